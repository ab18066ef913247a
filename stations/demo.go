package stations

import (
	"github.com/olablt/gio-stationmap/markers"
	"github.com/olablt/gio-stationmap/tiles"
)

// DefaultLocation is used when the device location is unknown.
var DefaultLocation = tiles.LatLng{Lat: 40.7128, Lng: -74.006}

// DemoStations returns a few stations around Manhattan for offline use.
func DemoStations() []markers.Station {
	return []markers.Station{
		{ID: "1", Name: "Downtown Hub", Address: "123 Main Street", Location: tiles.LatLng{Lat: 40.7128, Lng: -74.006}, AvailableBikes: 8, FreeSlots: 5, TotalSlots: 15},
		{ID: "2", Name: "Central Park", Address: "42 Park Avenue", Location: tiles.LatLng{Lat: 40.7829, Lng: -73.9654}, AvailableBikes: 12, FreeSlots: 3, TotalSlots: 15},
		{ID: "3", Name: "Brooklyn Bridge", Address: "88 East River", Location: tiles.LatLng{Lat: 40.7061, Lng: -73.9969}, AvailableBikes: 5, FreeSlots: 10, TotalSlots: 15},
		{ID: "4", Name: "Times Square", Address: "1540 Broadway", Location: tiles.LatLng{Lat: 40.758, Lng: -73.9855}, AvailableBikes: 15, FreeSlots: 0, TotalSlots: 15},
		{ID: "5", Name: "Upper West Side", Address: "300 Central Park West", Location: tiles.LatLng{Lat: 40.774, Lng: -73.9789}, AvailableBikes: 9, FreeSlots: 6, TotalSlots: 15},
	}
}
