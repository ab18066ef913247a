package mapview

import (
	"fmt"

	"gioui.org/f32"

	"github.com/olablt/gio-stationmap/markers"
	"github.com/olablt/gio-stationmap/tiles"
)

// PopupOffset lifts the popup anchor above the station flag.
const PopupOffset = 24

// PopupAnchor returns the screen point the popup of s points at in view v:
// just above the station marker.
func PopupAnchor(s markers.Station, v tiles.ViewState) f32.Point {
	x, y := tiles.Project(s.Location.Lat, s.Location.Lng, v)
	return f32.Pt(float32(x), float32(y-PopupOffset))
}

// Popup is the content and position of the selection overlay.
type Popup struct {
	Station markers.Station
	Anchor  f32.Point

	// Distance from the user, empty when the user location is unknown.
	Distance string
}

func NewPopup(s markers.Station, anchor f32.Point, user *tiles.LatLng) Popup {
	p := Popup{Station: s, Anchor: anchor}
	if user != nil {
		p.Distance = markers.FormatDistance(markers.DistanceMeters(*user, s.Location))
	}
	return p
}

func (p Popup) Availability() string {
	return fmt.Sprintf("%d bikes · %d free slots", p.Station.AvailableBikes, p.Station.FreeSlots)
}
