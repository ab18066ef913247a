package mapview

import (
	"gioui.org/op/paint"

	"github.com/olablt/gio-stationmap/internal/metrics"
	"github.com/olablt/gio-stationmap/markers"
	"github.com/olablt/gio-stationmap/tiles"
)

// Marker radii in pixels, independent of zoom.
const (
	UserMarkerRadius     = 8
	StationMarkerRadius  = 8
	SelectedMarkerRadius = 12
)

// TileDraw is one tile of a frame. Entries that are absent from the cache
// have Present false and are painted like Pending ones.
type TileDraw struct {
	Key     tiles.Key
	X, Y    float64
	Present bool
	State   tiles.State
	Op      paint.ImageOp
}

// Loaded reports whether the tile image can be blitted.
func (t TileDraw) Loaded() bool {
	return t.Present && t.State == tiles.Loaded
}

type MarkerDraw struct {
	markers.Marker
	Radius   float32
	Selected bool
}

// Frame is everything needed to paint one map frame.
type Frame struct {
	View     tiles.ViewState
	Tiles    []TileDraw
	User     *MarkerDraw
	Stations []MarkerDraw
	Popup    *Popup

	// Missing lists each visible key without a cache entry once.
	Missing []tiles.Key

	MetersPerPixel float64
}

// Selected returns the highlighted station marker.
func (f Frame) Selected() (MarkerDraw, bool) {
	for _, m := range f.Stations {
		if m.Selected {
			return m, true
		}
	}
	return MarkerDraw{}, false
}

// TileSource looks up cached tiles.
type TileSource interface {
	Get(key tiles.Key) (tiles.Entry, bool)
}

type FrameInput struct {
	View      tiles.ViewState
	Tiles     TileSource
	Markers   []markers.Marker
	Selection Selection
	User      *tiles.LatLng
}

// ComputeFrame lays out one frame. It only reads its input.
func ComputeFrame(in FrameInput) Frame {
	f := Frame{
		View:           in.View,
		MetersPerPixel: tiles.CalculateMetersPerPixel(in.View.CenterLat, in.View.Zoom),
	}

	seen := make(map[tiles.Key]bool)
	for _, p := range tiles.VisibleTiles(in.View) {
		td := TileDraw{Key: p.Key, X: p.X, Y: p.Y}
		if in.Tiles != nil {
			if e, ok := in.Tiles.Get(p.Key); ok {
				td.Present = true
				td.State = e.State
				td.Op = e.Op
			}
		}
		if !td.Present && !seen[p.Key] {
			seen[p.Key] = true
			f.Missing = append(f.Missing, p.Key)
		}
		f.Tiles = append(f.Tiles, td)
	}

	for _, m := range in.Markers {
		switch m.Kind {
		case markers.UserMarker:
			f.User = &MarkerDraw{Marker: m, Radius: UserMarkerRadius}
		case markers.StationMarker:
			md := MarkerDraw{Marker: m, Radius: StationMarkerRadius}
			if in.Selection.StationID != "" && m.Station.ID == in.Selection.StationID {
				md.Selected = true
				md.Radius = SelectedMarkerRadius
			}
			f.Stations = append(f.Stations, md)
		}
	}

	if in.Selection.Anchor != nil {
		if sel, ok := f.Selected(); ok {
			p := NewPopup(*sel.Station, *in.Selection.Anchor, in.User)
			f.Popup = &p
		}
	}
	return f
}

// TileCache is the part of the tile cache the renderer drives.
type TileCache interface {
	TileSource
	Request(key tiles.Key, onReady tiles.ReadyFunc) bool
	SetActiveZoom(zoom int)
}

// Renderer computes frames and requests the tiles they lack. Completed
// fetches are reported to onReady, usually a Batcher.
type Renderer struct {
	cache   TileCache
	onReady tiles.ReadyFunc
}

func NewRenderer(cache TileCache, onReady tiles.ReadyFunc) *Renderer {
	return &Renderer{cache: cache, onReady: onReady}
}

// Render computes the frame for in, reading tiles from the renderer's cache.
// Rendering the same input again issues no new fetches. Requests the cache
// refuses are reported to onReady later, which leads to another Render.
func (r *Renderer) Render(in FrameInput) Frame {
	r.cache.SetActiveZoom(in.View.Zoom)
	in.Tiles = r.cache
	f := ComputeFrame(in)
	for _, key := range f.Missing {
		r.cache.Request(key, r.onReady)
	}
	metrics.FramesRendered.Inc()
	return f
}
