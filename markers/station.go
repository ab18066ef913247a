// Package markers turns stations and the user's location into screen-space
// hit targets.
package markers

import (
	"fmt"

	"github.com/olablt/gio-stationmap/tiles"
)

// Station is a bike-rental dock as supplied by the map data provider.
// The map never modifies stations.
type Station struct {
	ID             string       `json:"id" validate:"required"`
	Name           string       `json:"name" validate:"required"`
	Address        string       `json:"address"`
	Location       tiles.LatLng `json:"location"`
	AvailableBikes int          `json:"availableBikes" validate:"gte=0"`
	FreeSlots      int          `json:"freeSlots" validate:"gte=0"`
	TotalSlots     int          `json:"totalSlots,omitempty" validate:"gte=0"`
}

func (s Station) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.ID)
}

// Capacity returns TotalSlots, or the sum of bikes and free slots when the
// provider did not report a total.
func (s Station) Capacity() int {
	if s.TotalSlots > 0 {
		return s.TotalSlots
	}
	return s.AvailableBikes + s.FreeSlots
}
