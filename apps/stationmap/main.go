package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gioui.org/app"
	"gioui.org/op"
	"gioui.org/unit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/olablt/gio-stationmap/internal/config"
	"github.com/olablt/gio-stationmap/internal/logging"
	"github.com/olablt/gio-stationmap/mapview"
	"github.com/olablt/gio-stationmap/markers"
	"github.com/olablt/gio-stationmap/stations"
	"github.com/olablt/gio-stationmap/tiles"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: os.Stderr,
	})

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	refresh := make(chan struct{}, 1)
	mv := mapview.New(refresh, mapview.Options{
		Provider: tileProvider(cfg),
		Center:   tiles.LatLng{Lat: cfg.Map.CenterLat, Lng: cfg.Map.CenterLng},
		Zoom:     cfg.Map.DefaultZoom,
		Controller: mapview.ControllerConfig{
			MinZoom:       cfg.Map.MinZoom,
			MaxZoom:       cfg.Map.MaxZoom,
			HitRadius:     cfg.Map.HitRadius,
			DragThreshold: cfg.Map.DragThreshold,
			MarkerMargin:  cfg.Map.MarkerMargin,
			WheelStep:     cfg.Map.WheelStep,
		},
		CacheCapacity: cfg.Tiles.Capacity,
		Workers:       cfg.Tiles.Workers,
		FetchTimeout:  cfg.Tiles.FetchTimeout,
		Debounce:      cfg.Map.Debounce,
		Logger:        logging.Component("tiles"),
		OnSelect:      onSelect,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go loadMapData(ctx, cfg, mv)

	go func() {
		w := new(app.Window)
		w.Option(app.Title("Bike stations"), app.Size(unit.Dp(1024), unit.Dp(768)))

		var ops op.Ops
		go func() {
			for range refresh {
				w.Invalidate()
			}
		}()
		for {
			switch e := w.Event().(type) {
			case app.DestroyEvent:
				cancel()
				mv.Close()
				if e.Err != nil {
					logging.Error().Err(e.Err).Msg("window closed with error")
					os.Exit(1)
				}
				os.Exit(0)
			case app.FrameEvent:
				gtx := app.NewContext(&ops, e)
				mv.Layout(gtx)
				e.Frame(gtx.Ops)
			}
		}
	}()
	app.Main()
}

func tileProvider(cfg *config.Config) tiles.Provider {
	if cfg.Tiles.Source == "debug" {
		logging.Info().Msg("using generated debug tiles")
		return tiles.NewLocalProvider()
	}
	logging.Info().Str("url", cfg.Tiles.URL).Msg("using tile server")
	return tiles.NewHTTPProvider(tiles.HTTPConfig{
		URLTemplate:       cfg.Tiles.URL,
		UserAgent:         cfg.Tiles.UserAgent,
		Timeout:           cfg.Tiles.Timeout,
		RequestsPerSecond: cfg.Tiles.RequestsPerSec,
		Burst:             cfg.Tiles.Burst,
		FailureThreshold:  cfg.Tiles.BreakerThreshold,
		BreakerTimeout:    cfg.Tiles.BreakerTimeout,
	}, logging.Component("tileserver"))
}

func stationSource(cfg *config.Config, log zerolog.Logger) stations.Source {
	switch cfg.Stations.Source {
	case "file":
		return stations.FileSource{Path: cfg.Stations.Path, Log: log}
	case "http":
		return stations.NewHTTPSource(cfg.Stations.URL, cfg.Stations.Timeout, log)
	default:
		return stations.StaticSource(stations.DemoStations())
	}
}

// loadMapData resolves the user location and the station list and hands
// them to the map. Failures leave the map usable: the view falls back to
// the default center and shows no stations.
func loadMapData(ctx context.Context, cfg *config.Config, mv *mapview.MapView) {
	log := logging.Component("stations")

	var locator stations.Locator
	if cfg.Location.Enabled {
		locator = &stations.StaticLocator{Location: tiles.LatLng{Lat: cfg.Location.Lat, Lng: cfg.Location.Lng}}
	}
	fallback := tiles.LatLng{Lat: cfg.Location.FallbackLat, Lng: cfg.Location.FallbackLng}
	user, _ := stations.ResolveLocation(ctx, locator, fallback, log)
	mv.UpdateUserLocation(&user)
	mv.CenterOn(user)

	start := time.Now()
	list, err := stationSource(cfg, log).Stations(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("source", cfg.Stations.Source).Msg("failed to load stations")
		}
		return
	}
	log.Info().Str("source", cfg.Stations.Source).Int("stations", len(list)).Dur("took", time.Since(start)).Msg("stations loaded")
	mv.UpdateStations(list)
}

func onSelect(s *markers.Station) {
	if s == nil {
		logging.Debug().Msg("station deselected")
		return
	}
	logging.Info().Str("station", s.ID).Str("name", s.Name).Int("bikes", s.AvailableBikes).Msg("station selected")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logging.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error().Err(err).Msg("metrics server stopped")
	}
}
