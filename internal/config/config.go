// Package config loads the station map configuration.
//
// Values are layered: built-in defaults, then an optional YAML file
// (CONFIG_PATH or config.yaml), then STATIONMAP_* environment variables.
//
//	STATIONMAP_TILES_URL=https://tiles.example.com/{z}/{x}/{y}.png
//	STATIONMAP_MAP_DEFAULT_ZOOM=14
//	STATIONMAP_LOGGING_LEVEL=debug
package config

import "time"

// Config is the application configuration.
type Config struct {
	Map      MapConfig      `koanf:"map"`
	Tiles    TilesConfig    `koanf:"tiles"`
	Stations StationsConfig `koanf:"stations"`
	Location LocationConfig `koanf:"location"`
	Logging  LoggingConfig  `koanf:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// MapConfig holds the view and interaction settings.
type MapConfig struct {
	MinZoom       int           `koanf:"min_zoom" validate:"gte=0,lte=22"`
	MaxZoom       int           `koanf:"max_zoom" validate:"gte=0,lte=22"`
	DefaultZoom   int           `koanf:"default_zoom" validate:"gte=0,lte=22"`
	CenterLat     float64       `koanf:"center_lat" validate:"latitude"`
	CenterLng     float64       `koanf:"center_lng" validate:"longitude"`
	HitRadius     float64       `koanf:"hit_radius" validate:"gte=20"`
	DragThreshold float64       `koanf:"drag_threshold" validate:"gte=0"`
	MarkerMargin  float64       `koanf:"marker_margin" validate:"gte=0"`
	WheelStep     float64       `koanf:"wheel_step" validate:"gt=0"`
	Debounce      time.Duration `koanf:"debounce" validate:"gt=0"`
}

// TilesConfig selects and tunes the tile source.
type TilesConfig struct {
	// Source is "http" for a tile server or "debug" for generated tiles.
	Source           string        `koanf:"source" validate:"oneof=http debug"`
	URL              string        `koanf:"url"`
	UserAgent        string        `koanf:"user_agent"`
	Capacity         int           `koanf:"capacity" validate:"gte=16"`
	Workers          int           `koanf:"workers" validate:"gte=1,lte=64"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	// FetchTimeout bounds one tile fetch including time spent rate limited.
	FetchTimeout     time.Duration `koanf:"fetch_timeout" validate:"gt=0"`
	RequestsPerSec   float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst            int           `koanf:"burst" validate:"gte=1"`
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"gte=1"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// StationsConfig selects the map data provider.
type StationsConfig struct {
	// Source is "demo", "file" or "http".
	Source  string        `koanf:"source" validate:"oneof=demo file http"`
	Path    string        `koanf:"path"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// LocationConfig is the device location. When disabled, or before it is
// known, the map uses the fallback.
type LocationConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Lat         float64 `koanf:"lat" validate:"latitude"`
	Lng         float64 `koanf:"lng" validate:"longitude"`
	FallbackLat float64 `koanf:"fallback_lat" validate:"latitude"`
	FallbackLng float64 `koanf:"fallback_lng" validate:"longitude"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. "127.0.0.1:9464".
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}
