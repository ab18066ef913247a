package tiles

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const DefaultURLTemplate = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

// HTTPConfig configures an HTTPProvider. Zero values fall back to defaults.
type HTTPConfig struct {
	URLTemplate string
	UserAgent   string
	Timeout     time.Duration

	// RequestsPerSecond limits outgoing requests; zero disables the limit.
	RequestsPerSecond float64
	Burst             int

	// FailureThreshold consecutive server failures open the breaker for
	// BreakerTimeout.
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// HTTPProvider downloads tiles from a templated tile server URL
// ({z}, {x} and {y} are substituted).
type HTTPProvider struct {
	client      *http.Client
	urlTemplate string
	userAgent   string
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[image.Image]
	log         zerolog.Logger
}

func NewHTTPProvider(cfg HTTPConfig, log zerolog.Logger) *HTTPProvider {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gio-stationmap/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	p := &HTTPProvider{
		client:      &http.Client{Timeout: cfg.Timeout},
		urlTemplate: cfg.URLTemplate,
		userAgent:   cfg.UserAgent,
		limiter:     rate.NewLimiter(limit, max(cfg.Burst, 1)),
		log:         log,
	}

	p.breaker = gobreaker.NewCircuitBreaker[image.Image](gobreaker.Settings{
		Name:    "tile-server",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: serverHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("tile server circuit breaker state changed")
		},
	})
	return p
}

// serverHealthy decides what counts against the breaker: a missing tile or
// a cancelled request says nothing about the server's health.
func serverHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

// TileURL returns the URL for downloading the map tile
func (p *HTTPProvider) TileURL(key Key) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(key.Zoom),
		"{x}", strconv.Itoa(key.X),
		"{y}", strconv.Itoa(key.Y),
	).Replace(p.urlTemplate)
}

func (p *HTTPProvider) GetTile(ctx context.Context, key Key) (image.Image, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: rate limit: %w", ErrTileFetchFailed, key, err)
	}

	img, err := p.breaker.Execute(func() (image.Image, error) {
		return p.fetch(ctx, key)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrTileFetchFailed, key, err)
	}
	return img, err
}

func (p *HTTPProvider) fetch(ctx context.Context, key Key) (image.Image, error) {
	url := p.TileURL(key)
	p.log.Debug().Str("url", url).Msg("requesting tile")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTileFetchFailed, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/png,image/jpeg,image/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrTileFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrTileFetchFailed, url, err)
	}
	return img, nil
}
