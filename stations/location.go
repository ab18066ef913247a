package stations

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/olablt/gio-stationmap/tiles"
)

// ErrGeolocationUnavailable means the device location is denied or unknown.
var ErrGeolocationUnavailable = errors.New("geolocation unavailable")

// Locator reports the device location.
type Locator interface {
	Locate(ctx context.Context) (tiles.LatLng, error)
}

// StaticLocator reports a fixed location. A nil StaticLocator is unavailable.
type StaticLocator struct {
	Location tiles.LatLng
}

func (l *StaticLocator) Locate(ctx context.Context) (tiles.LatLng, error) {
	if l == nil {
		return tiles.LatLng{}, ErrGeolocationUnavailable
	}
	if err := ctx.Err(); err != nil {
		return tiles.LatLng{}, err
	}
	if err := tiles.ValidateLatLng(l.Location); err != nil {
		return tiles.LatLng{}, fmt.Errorf("%w: %w", ErrGeolocationUnavailable, err)
	}
	return l.Location, nil
}

// ResolveLocation asks loc for the device location and substitutes fallback
// when it cannot answer. The bool reports whether the location is real.
func ResolveLocation(ctx context.Context, loc Locator, fallback tiles.LatLng, log zerolog.Logger) (tiles.LatLng, bool) {
	if loc == nil {
		log.Info().Msg("no locator configured, using default location")
		return fallback, false
	}
	ll, err := loc.Locate(ctx)
	if err != nil {
		if !errors.Is(err, ErrGeolocationUnavailable) {
			err = fmt.Errorf("%w: %w", ErrGeolocationUnavailable, err)
		}
		log.Warn().Err(err).Float64("lat", fallback.Lat).Float64("lng", fallback.Lng).Msg("using default location")
		return fallback, false
	}
	return ll, true
}
