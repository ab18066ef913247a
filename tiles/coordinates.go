package tiles

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	TileSize           = 256
	earthCircumference = 40075016.686 // meters at equator

	// MaxLatitude is the edge of the square Web-Mercator world.
	MaxLatitude = 85.05112878
	// MaxCenterLatitude bounds the view center.
	MaxCenterLatitude = 85.0
)

// Key addresses one raster tile.
type Key struct {
	Zoom, X, Y int
}

// LatLng represents a geographical point
type LatLng struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Zoom, k.X, k.Y)
}

// Valid reports whether x and y are inside [0, 2^zoom).
func (k Key) Valid() bool {
	if k.Zoom < 0 || k.Zoom > 30 {
		return false
	}
	n := 1 << k.Zoom
	return k.X >= 0 && k.X < n && k.Y >= 0 && k.Y < n
}

// Tile returns the orb representation of the key.
func (k Key) Tile() maptile.Tile {
	return maptile.New(uint32(k.X), uint32(k.Y), maptile.Zoom(k.Zoom))
}

// Bound returns the geographic extent of the tile.
func (k Key) Bound() orb.Bound {
	return k.Tile().Bound()
}

// distance is the Chebyshev distance between two keys in tile units.
func (k Key) distance(o Key) int {
	dx := k.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dy := k.Y - o.Y
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy)
}

// ClampLat clamps a latitude into the Mercator-valid range. NaN becomes 0.
func ClampLat(lat float64) float64 {
	if math.IsNaN(lat) {
		return 0
	}
	return max(-MaxLatitude, min(lat, MaxLatitude))
}

// NormalizeLng wraps a longitude into [-180, 180). Non-finite values become 0.
func NormalizeLng(lng float64) float64 {
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		return 0
	}
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

// ValidateLatLng rejects coordinates that can not be projected.
func ValidateLatLng(ll LatLng) error {
	if math.IsNaN(ll.Lat) || math.IsInf(ll.Lat, 0) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lng, 0) {
		return fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrProjectionOutOfRange, ll.Lat, ll.Lng)
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrProjectionOutOfRange, ll.Lat, ll.Lng)
	}
	return nil
}

// LatLngToTileFloat converts geographical coordinates to fractional tile coordinates.
// Latitude is clamped to the Mercator range so the result is always finite.
func LatLngToTileFloat(lat, lng float64, zoom int) (float64, float64) {
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		lng = 0
	}
	latRad := ClampLat(lat) * math.Pi / 180
	n := math.Exp2(float64(zoom))
	x := (lng + 180.0) / 360.0 * n
	y := (1.0 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2.0 * n
	return x, y
}

// TileFloatToLatLng is the inverse of LatLngToTileFloat.
func TileFloatToLatLng(x, y float64, zoom int) (float64, float64) {
	n := math.Exp2(float64(zoom))
	lng := x/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))
	return latRad * 180.0 / math.Pi, lng
}

// LatLngToTile converts geographical coordinates to the tile containing them
func LatLngToTile(ll LatLng, zoom int) Key {
	x, y := LatLngToTileFloat(ll.Lat, NormalizeLng(ll.Lng), zoom)
	n := 1<<zoom - 1
	return Key{
		Zoom: zoom,
		X:    max(0, min(int(math.Floor(x)), n)),
		Y:    max(0, min(int(math.Floor(y)), n)),
	}
}

// ViewState is the map's center, zoom level and canvas size.
type ViewState struct {
	CenterLat float64
	CenterLng float64
	Zoom      int
	Width     int
	Height    int
}

func (v ViewState) Center() LatLng {
	return LatLng{Lat: v.CenterLat, Lng: v.CenterLng}
}

// Clamped returns v with the zoom clamped to [minZoom, maxZoom], the center
// latitude clamped to ±MaxCenterLatitude and the longitude normalized.
func (v ViewState) Clamped(minZoom, maxZoom int) ViewState {
	v.Zoom = max(minZoom, min(v.Zoom, maxZoom))
	if math.IsNaN(v.CenterLat) {
		v.CenterLat = 0
	}
	v.CenterLat = max(-MaxCenterLatitude, min(v.CenterLat, MaxCenterLatitude))
	v.CenterLng = NormalizeLng(v.CenterLng)
	return v
}

func (v ViewState) halfSize() (float64, float64) {
	return float64(v.Width) / 2, float64(v.Height) / 2
}

// Project maps a geographical point to screen pixels. The view center lands
// on the middle of the canvas. Points are taken along the shorter way around
// the antimeridian.
func Project(lat, lng float64, v ViewState) (float64, float64) {
	cx, cy := LatLngToTileFloat(v.CenterLat, v.CenterLng, v.Zoom)
	px, py := LatLngToTileFloat(lat, lng, v.Zoom)
	n := math.Exp2(float64(v.Zoom))
	dx := px - cx
	if dx > n/2 {
		dx -= n
	} else if dx < -n/2 {
		dx += n
	}
	hw, hh := v.halfSize()
	return dx*TileSize + hw, (py-cy)*TileSize + hh
}

// Unproject is the inverse of Project. It is exact for the tile-space
// coordinates; as the Mercator scale grows towards the poles the lat/lng
// resolution of one pixel shrinks accordingly.
func Unproject(x, y float64, v ViewState) (float64, float64) {
	cx, cy := LatLngToTileFloat(v.CenterLat, v.CenterLng, v.Zoom)
	hw, hh := v.halfSize()
	tx := cx + (x-hw)/TileSize
	ty := cy + (y-hh)/TileSize
	lat, lng := TileFloatToLatLng(tx, ty, v.Zoom)
	return ClampLat(lat), NormalizeLng(lng)
}

// CalculateMetersPerPixel calculates the meters per pixel at a given latitude and zoom level
func CalculateMetersPerPixel(latitude float64, zoom int) float64 {
	return earthCircumference * math.Cos(ClampLat(latitude)*math.Pi/180) / (math.Exp2(float64(zoom)) * TileSize)
}

// Placement is a tile positioned on the canvas. X and Y are the screen
// coordinates of its top-left corner, kept fractional for sub-pixel blits.
type Placement struct {
	Key  Key
	X, Y float64
}

// VisibleTiles returns the tiles covering the canvas plus a one tile margin.
// Columns wrap around the antimeridian; rows outside the world are skipped.
func VisibleTiles(v ViewState) []Placement {
	cx, cy := LatLngToTileFloat(v.CenterLat, v.CenterLng, v.Zoom)
	hw, hh := v.halfSize()
	n := 1 << v.Zoom

	minX := int(math.Floor(cx-hw/TileSize)) - 1
	maxX := int(math.Floor(cx+hw/TileSize)) + 1
	minY := max(0, int(math.Floor(cy-hh/TileSize))-1)
	maxY := min(n-1, int(math.Floor(cy+hh/TileSize))+1)

	placements := make([]Placement, 0, (maxX-minX+1)*max(0, maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			wx := ((x % n) + n) % n
			placements = append(placements, Placement{
				Key: Key{Zoom: v.Zoom, X: wx, Y: y},
				X:   (float64(x)-cx)*TileSize + hw,
				Y:   (float64(y)-cy)*TileSize + hh,
			})
		}
	}
	return placements
}
