package mapview

import (
	"math"

	"gioui.org/f32"

	"github.com/olablt/gio-stationmap/internal/metrics"
	"github.com/olablt/gio-stationmap/markers"
	"github.com/olablt/gio-stationmap/tiles"
)

// DefaultWheelStep is the scroll distance of one mouse wheel notch.
const DefaultWheelStep = 10

// ControllerConfig bounds the interaction controller.
type ControllerConfig struct {
	MinZoom int
	MaxZoom int

	// HitRadius is the click tolerance around a marker, in pixels.
	HitRadius float64
	// DragThreshold is the pointer travel, in pixels, above which a
	// gesture pans instead of clicking.
	DragThreshold float64
	// MarkerMargin keeps markers this far outside the canvas.
	MarkerMargin float64
	// WheelStep is the scroll distance accumulated per zoom level.
	WheelStep float64
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MinZoom:       1,
		MaxZoom:       18,
		HitRadius:     markers.MinHitRadius,
		DragThreshold: 3,
		MarkerMargin:  markers.DefaultMargin,
		WheelStep:     DefaultWheelStep,
	}
}

// Selection is the selected station and where its popup points. A nil
// Anchor means the popup is hidden while the station stays highlighted.
type Selection struct {
	StationID string
	Anchor    *f32.Point
}

// Controller owns the view state and the selection. It turns pointer, wheel
// and resize input into state transitions and is driven from a single
// goroutine.
type Controller struct {
	cfg  ControllerConfig
	view tiles.ViewState

	stations []markers.Station
	user     *tiles.LatLng

	markers      []markers.Marker
	markersValid bool

	sel Selection

	// gesture
	pressed  bool
	dragging bool
	start    f32.Point
	last     f32.Point
	travel   float64
	wheel    float64

	version uint64

	// OnSelect is called with the clicked station, or nil when a click
	// clears the selection.
	OnSelect func(*markers.Station)
}

func NewController(cfg ControllerConfig, view tiles.ViewState) *Controller {
	if cfg.MinZoom > cfg.MaxZoom {
		cfg.MinZoom, cfg.MaxZoom = cfg.MaxZoom, cfg.MinZoom
	}
	if cfg.DragThreshold < 0 {
		cfg.DragThreshold = 0
	}
	if cfg.WheelStep <= 0 {
		cfg.WheelStep = DefaultWheelStep
	}
	return &Controller{
		cfg:  cfg,
		view: view.Clamped(cfg.MinZoom, cfg.MaxZoom),
	}
}

func (c *Controller) View() tiles.ViewState { return c.view }

func (c *Controller) Selection() Selection { return c.sel }

// Version increases on every change that needs a new frame.
func (c *Controller) Version() uint64 { return c.version }

// Dragging reports whether the current gesture has turned into a pan.
func (c *Controller) Dragging() bool { return c.dragging }

func (c *Controller) UserLocation() *tiles.LatLng { return c.user }

// Markers returns the markers projected for the current view.
func (c *Controller) Markers() []markers.Marker {
	if !c.markersValid {
		c.markers = markers.Project(c.stations, c.user, c.view, c.cfg.MarkerMargin)
		c.markersValid = true
	}
	return c.markers
}

// SelectedStation returns the selected station, if it is still known.
func (c *Controller) SelectedStation() (markers.Station, bool) {
	if c.sel.StationID == "" {
		return markers.Station{}, false
	}
	for _, s := range c.stations {
		if s.ID == c.sel.StationID {
			return s, true
		}
	}
	return markers.Station{}, false
}

func (c *Controller) PointerDown(p f32.Point) {
	c.pressed = true
	c.dragging = false
	c.start, c.last = p, p
	c.travel = 0
}

func (c *Controller) PointerMove(p f32.Point) {
	if !c.pressed {
		return
	}
	d := p.Sub(c.last)
	c.travel += math.Hypot(float64(d.X), float64(d.Y))
	c.last = p

	switch {
	case c.dragging:
		c.pan(d)
	case c.travel > c.cfg.DragThreshold:
		// the map catches up with everything moved below the threshold
		c.dragging = true
		c.pan(p.Sub(c.start))
	}
}

// PointerUp ends the gesture. A gesture that never became a drag is a click.
func (c *Controller) PointerUp(p f32.Point) {
	if !c.pressed {
		return
	}
	c.PointerMove(p)
	wasDrag := c.dragging
	c.pressed, c.dragging = false, false
	if !wasDrag {
		c.click(p)
	}
}

// PointerLeave ends the gesture the same way as PointerUp.
func (c *Controller) PointerLeave(p f32.Point) {
	c.PointerUp(p)
}

// PointerCancel abandons the gesture without a click.
func (c *Controller) PointerCancel() {
	c.pressed, c.dragging = false, false
}

// Wheel accumulates scroll distance and zooms one level in once it reaches
// -WheelStep, one level out at +WheelStep, keeping the geographic point
// under p in place. Reversing the direction starts over, and one event never
// zooms more than one level.
func (c *Controller) Wheel(dy float32, p f32.Point) {
	d := float64(dy)
	if d == 0 {
		return
	}
	if (d < 0) != (c.wheel < 0) {
		c.wheel = 0
	}
	c.wheel += d
	switch {
	case c.wheel <= -c.cfg.WheelStep:
		c.wheel = 0
		c.zoomAround(c.view.Zoom+1, p)
	case c.wheel >= c.cfg.WheelStep:
		c.wheel = 0
		c.zoomAround(c.view.Zoom-1, p)
	}
}

func (c *Controller) ZoomIn() {
	c.zoomAround(c.view.Zoom+1, c.center())
}

func (c *Controller) ZoomOut() {
	c.zoomAround(c.view.Zoom-1, c.center())
}

// Resize sets the canvas size in pixels.
func (c *Controller) Resize(width, height int) {
	if width == c.view.Width && height == c.view.Height {
		return
	}
	c.view.Width, c.view.Height = width, height
	c.viewChanged()
}

// SetCenter moves the view to ll without changing the zoom.
func (c *Controller) SetCenter(ll tiles.LatLng) {
	v := c.view
	v.CenterLat, v.CenterLng = ll.Lat, ll.Lng
	v = v.Clamped(c.cfg.MinZoom, c.cfg.MaxZoom)
	if v == c.view {
		return
	}
	c.view = v
	c.viewChanged()
}

// SetStations replaces the station list. The popup follows its station to
// a new position; a selection whose station is gone is cleared.
func (c *Controller) SetStations(stations []markers.Station) {
	c.stations = stations
	c.markersValid = false
	c.version++

	if c.sel.StationID == "" {
		return
	}
	s, ok := c.SelectedStation()
	if !ok {
		c.clearSelection()
		return
	}
	if c.sel.Anchor != nil {
		a := PopupAnchor(s, c.view)
		c.sel.Anchor = &a
	}
}

// SetUserLocation sets or, with nil, removes the user marker.
func (c *Controller) SetUserLocation(ll *tiles.LatLng) {
	if ll != nil {
		cp := *ll
		ll = &cp
	}
	c.user = ll
	c.markersValid = false
	c.version++
}

// Deselect clears the selection and notifies OnSelect.
func (c *Controller) Deselect() {
	if c.sel.StationID == "" {
		return
	}
	c.clearSelection()
}

func (c *Controller) click(p f32.Point) {
	m, ok := markers.HitTest(c.Markers(), float64(p.X), float64(p.Y), c.cfg.HitRadius)
	if !ok {
		c.Deselect()
		return
	}

	anchor := PopupAnchor(*m.Station, c.view)
	c.sel = Selection{StationID: m.Station.ID, Anchor: &anchor}
	c.version++
	metrics.StationSelections.Inc()
	if c.OnSelect != nil {
		s := *m.Station
		c.OnSelect(&s)
	}
}

func (c *Controller) clearSelection() {
	c.sel = Selection{}
	c.version++
	if c.OnSelect != nil {
		c.OnSelect(nil)
	}
}

func (c *Controller) center() f32.Point {
	return f32.Pt(float32(c.view.Width)/2, float32(c.view.Height)/2)
}

// pan moves the map content by d pixels.
func (c *Controller) pan(d f32.Point) {
	if d == (f32.Point{}) {
		return
	}
	hw, hh := float64(c.view.Width)/2, float64(c.view.Height)/2
	lat, lng := tiles.Unproject(hw-float64(d.X), hh-float64(d.Y), c.view)
	c.view.CenterLat, c.view.CenterLng = lat, lng
	c.view = c.view.Clamped(c.cfg.MinZoom, c.cfg.MaxZoom)
	c.viewChanged()
}

func (c *Controller) zoomAround(zoom int, p f32.Point) {
	zoom = max(c.cfg.MinZoom, min(zoom, c.cfg.MaxZoom))
	if zoom == c.view.Zoom {
		return
	}

	px, py := float64(p.X), float64(p.Y)
	lat, lng := tiles.Unproject(px, py, c.view)

	next := c.view
	next.Zoom = zoom
	x, y := tiles.Project(lat, lng, next)
	hw, hh := float64(next.Width)/2, float64(next.Height)/2
	next.CenterLat, next.CenterLng = tiles.Unproject(hw+x-px, hh+y-py, next)

	c.view = next.Clamped(c.cfg.MinZoom, c.cfg.MaxZoom)
	c.viewChanged()
}

// viewChanged invalidates everything tied to screen positions.
func (c *Controller) viewChanged() {
	c.markersValid = false
	c.sel.Anchor = nil
	c.version++
}
