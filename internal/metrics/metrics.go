package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tile cache and renderer instrumentation.
var (
	TileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stationmap_tile_cache_hits_total",
			Help: "Total number of tile lookups answered by a loaded cache entry",
		},
	)

	TileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stationmap_tile_cache_misses_total",
			Help: "Total number of tile lookups that found no loaded entry",
		},
	)

	TileCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stationmap_tile_cache_evictions_total",
			Help: "Total number of tile entries evicted by zoom change or capacity",
		},
	)

	TileCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stationmap_tile_cache_entries",
			Help: "Current number of tile cache entries",
		},
	)

	TileFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationmap_tile_fetch_total",
			Help: "Total number of finished tile fetches by result",
		},
		[]string{"result"}, // "loaded", "failed", "stale", "cancelled"
	)

	TileFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stationmap_tile_fetch_duration_seconds",
			Help:    "Tile fetch duration in seconds",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	FramesRendered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stationmap_frames_total",
			Help: "Total number of computed map frames",
		},
	)

	StationSelections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stationmap_station_selections_total",
			Help: "Total number of stations selected by a click",
		},
	)
)

// Fetch results.
const (
	ResultLoaded    = "loaded"
	ResultFailed    = "failed"
	ResultStale     = "stale"
	ResultCancelled = "cancelled"
)
