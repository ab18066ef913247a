package tiles

import (
	"errors"
	"fmt"
)

var (
	// ErrTileFetchFailed marks a tile that could not be fetched or decoded.
	// The cache keeps such tiles as Failed and never retries them.
	ErrTileFetchFailed = errors.New("tile fetch failed")

	// ErrProjectionOutOfRange is returned for coordinates outside the
	// projectable range.
	ErrProjectionOutOfRange = errors.New("coordinate out of projectable range")
)

// StatusError is a non-success HTTP answer from the tile server.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrTileFetchFailed
}
