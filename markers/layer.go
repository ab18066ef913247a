package markers

import (
	"math"

	"github.com/olablt/gio-stationmap/tiles"
)

const (
	// DefaultMargin keeps markers just outside the canvas so their visible
	// edge stays clickable.
	DefaultMargin = 100.0
	// MinHitRadius is the smallest accepted hit radius, wide enough for touch.
	MinHitRadius = 20.0
)

type Kind int

const (
	UserMarker Kind = iota
	StationMarker
)

// Marker is a station or the user's location projected for one frame.
type Marker struct {
	Kind    Kind
	Station *Station // nil for the user marker
	X, Y    float64
}

// Project maps the stations and the optional user location onto the canvas
// of v. Markers whose center is more than margin pixels outside the canvas
// are left out. The user marker, when present, comes first.
func Project(stations []Station, user *tiles.LatLng, v tiles.ViewState, margin float64) []Marker {
	if margin < 0 {
		margin = 0
	}
	inside := func(x, y float64) bool {
		return x >= -margin && x <= float64(v.Width)+margin &&
			y >= -margin && y <= float64(v.Height)+margin
	}

	markers := make([]Marker, 0, len(stations)+1)
	if user != nil {
		x, y := tiles.Project(user.Lat, user.Lng, v)
		if inside(x, y) {
			markers = append(markers, Marker{Kind: UserMarker, X: x, Y: y})
		}
	}
	for i := range stations {
		s := &stations[i]
		x, y := tiles.Project(s.Location.Lat, s.Location.Lng, v)
		if inside(x, y) {
			markers = append(markers, Marker{Kind: StationMarker, Station: s, X: x, Y: y})
		}
	}
	return markers
}

// HitTest returns the station marker nearest to (px, py) within radius.
// Radii below MinHitRadius are raised to it. The result does not depend on
// the order of ms: equal distances resolve to the lower station ID.
func HitTest(ms []Marker, px, py, radius float64) (Marker, bool) {
	radius = max(radius, MinHitRadius)

	var best Marker
	bestDist := math.Inf(1)
	found := false
	for _, m := range ms {
		if m.Kind != StationMarker || m.Station == nil {
			continue
		}
		d := math.Hypot(m.X-px, m.Y-py)
		if d > radius {
			continue
		}
		if !found || d < bestDist || (d == bestDist && m.Station.ID < best.Station.ID) {
			best, bestDist, found = m, d, true
		}
	}
	return best, found
}

// Find returns the marker of the station with the given id.
func Find(ms []Marker, id string) (Marker, bool) {
	for _, m := range ms {
		if m.Kind == StationMarker && m.Station != nil && m.Station.ID == id {
			return m, true
		}
	}
	return Marker{}, false
}
