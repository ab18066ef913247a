package tiles

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func pngTile(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	img.Set(10, 10, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHTTPProvider_TileURL(t *testing.T) {
	t.Parallel()

	p := NewHTTPProvider(HTTPConfig{URLTemplate: "https://tiles.example.com/base/{z}/{x}/{y}.png?key=abc"}, zerolog.Nop())
	got := p.TileURL(Key{Zoom: 10, X: 512, Y: 340})
	want := "https://tiles.example.com/base/10/512/340.png?key=abc"
	if got != want {
		t.Errorf("TileURL() = %q, want %q", got, want)
	}

	def := NewHTTPProvider(HTTPConfig{}, zerolog.Nop())
	if got := def.TileURL(Key{Zoom: 1, X: 0, Y: 1}); got != "https://tile.openstreetmap.org/1/0/1.png" {
		t.Errorf("default TileURL() = %q", got)
	}
}

func TestHTTPProvider_GetTileDecodesPNG(t *testing.T) {
	t.Parallel()

	body := pngTile(t)
	var gotPath, gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{URLTemplate: srv.URL + "/{z}/{x}/{y}.png", UserAgent: "stationmap-test"}, zerolog.Nop())
	img, err := p.GetTile(context.Background(), Key{Zoom: 3, X: 4, Y: 2})
	if err != nil {
		t.Fatalf("GetTile() error = %v", err)
	}
	if img.Bounds().Dx() != TileSize {
		t.Errorf("decoded width = %d", img.Bounds().Dx())
	}
	if gotPath.Load() != "/3/4/2.png" {
		t.Errorf("requested path %v", gotPath.Load())
	}
	if gotUA.Load() != "stationmap-test" {
		t.Errorf("User-Agent = %v", gotUA.Load())
	}
}

func TestHTTPProvider_GarbageBodyFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{URLTemplate: srv.URL + "/{z}/{x}/{y}.png"}, zerolog.Nop())
	_, err := p.GetTile(context.Background(), Key{Zoom: 1, X: 1, Y: 1})
	if !errors.Is(err, ErrTileFetchFailed) {
		t.Errorf("GetTile() error = %v, want ErrTileFetchFailed", err)
	}
}

func TestHTTPProvider_BreakerOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{
		URLTemplate:      srv.URL + "/{z}/{x}/{y}.png",
		FailureThreshold: 3,
		BreakerTimeout:   time.Minute,
	}, zerolog.Nop())

	for x := range 6 {
		_, err := p.GetTile(context.Background(), Key{Zoom: 4, X: x, Y: 0})
		if !errors.Is(err, ErrTileFetchFailed) {
			t.Fatalf("GetTile(%d) error = %v, want ErrTileFetchFailed", x, err)
		}
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hit %d times, want 3 before the breaker opened", got)
	}
}

func TestHTTPProvider_MissingTilesDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{URLTemplate: srv.URL + "/{z}/{x}/{y}.png", FailureThreshold: 2}, zerolog.Nop())
	for x := range 5 {
		p.GetTile(context.Background(), Key{Zoom: 4, X: x, Y: 0})
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("server hit %d times, want 5", got)
	}
}

func TestHTTPProvider_RateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{URLTemplate: srv.URL + "/{z}/{x}/{y}.png", RequestsPerSecond: 0.01, Burst: 1}, zerolog.Nop())
	p.GetTile(context.Background(), Key{Zoom: 1, X: 0, Y: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.GetTile(ctx, Key{Zoom: 1, X: 1, Y: 0})
	if err == nil {
		t.Fatal("rate limited request should fail once the context expires")
	}
	if !errors.Is(err, ErrTileFetchFailed) {
		t.Errorf("rate limit error %v does not wrap ErrTileFetchFailed", err)
	}

	// cancellation stays recognizable so the cache can tell it from a failure
	cctx, ccancel := context.WithCancel(context.Background())
	ccancel()
	if _, err := p.GetTile(cctx, Key{Zoom: 1, X: 1, Y: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled wait error = %v, want context.Canceled", err)
	}
}

func TestServerHealthy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{context.Canceled, true},
		{&StatusError{Code: 404}, true},
		{&StatusError{Code: 429}, false},
		{&StatusError{Code: 503}, false},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := serverHealthy(tt.err); got != tt.want {
			t.Errorf("serverHealthy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestLocalProvider_GetTile(t *testing.T) {
	t.Parallel()

	p := NewLocalProvider()
	img, err := p.GetTile(context.Background(), Key{Zoom: 10, X: 512, Y: 340})
	if err != nil {
		t.Fatalf("GetTile() error = %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, TileSize, TileSize) {
		t.Errorf("bounds = %v", img.Bounds())
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a == 0 {
		t.Error("border pixel is transparent")
	}

	if _, err := p.GetTile(context.Background(), Key{Zoom: 1, X: 2, Y: 0}); !errors.Is(err, ErrTileFetchFailed) {
		t.Errorf("invalid key error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.GetTile(ctx, Key{Zoom: 1, X: 0, Y: 0}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context error = %v", err)
	}
}
