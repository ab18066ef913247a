package markers

import (
	"fmt"

	"github.com/golang/geo/s2"

	"github.com/olablt/gio-stationmap/tiles"
)

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b tiles.LatLng) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lng)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return float64(pa.Distance(pb)) * EarthRadiusMeters
}

// FormatDistance renders a distance for the station popup.
func FormatDistance(meters float64) string {
	switch {
	case meters < 1000:
		return fmt.Sprintf("%.0f m", meters)
	case meters < 10000:
		return fmt.Sprintf("%.1f km", meters/1000)
	default:
		return fmt.Sprintf("%.0f km", meters/1000)
	}
}
