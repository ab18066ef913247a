package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "STATIONMAP_"

func defaultConfig() *Config {
	return &Config{
		Map: MapConfig{
			MinZoom:       1,
			MaxZoom:       18,
			DefaultZoom:   10,
			CenterLat:     40.7128,
			CenterLng:     -74.006,
			HitRadius:     20,
			DragThreshold: 3,
			MarkerMargin:  100,
			WheelStep:     10,
			Debounce:      300 * time.Millisecond,
		},
		Tiles: TilesConfig{
			Source:           "http",
			URL:              "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			UserAgent:        "gio-stationmap/1.0",
			Capacity:         150,
			Workers:          6,
			Timeout:          10 * time.Second,
			FetchTimeout:     30 * time.Second,
			RequestsPerSec:   20,
			Burst:            6,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Stations: StationsConfig{
			Source:  "demo",
			Timeout: 10 * time.Second,
		},
		Location: LocationConfig{
			Enabled:     false,
			FallbackLat: 40.7128,
			FallbackLng: -74.006,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file. An empty path skips the
// file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps STATIONMAP_SECTION_SOME_KEY to section.some_key.
//
// Examples:
//   - STATIONMAP_TILES_URL -> tiles.url
//   - STATIONMAP_TILES_USER_AGENT -> tiles.user_agent
//   - STATIONMAP_MAP_DEFAULT_ZOOM -> map.default_zoom
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" {
		return ""
	}
	return section + "." + rest
}
