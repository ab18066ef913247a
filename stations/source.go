// Package stations supplies the map with bike stations and the user's
// location. It is the only place that talks to the station backend.
package stations

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/olablt/gio-stationmap/markers"
)

// Source loads the current station list.
type Source interface {
	Stations(ctx context.Context) ([]markers.Station, error)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Sanitize drops stations that fail validation or repeat an earlier ID.
func Sanitize(stations []markers.Station, log zerolog.Logger) []markers.Station {
	v := getValidator()
	seen := make(map[string]bool, len(stations))
	out := make([]markers.Station, 0, len(stations))
	for _, s := range stations {
		if err := v.Struct(s); err != nil {
			log.Warn().Err(err).Str("station", s.ID).Msg("dropping invalid station")
			continue
		}
		if seen[s.ID] {
			log.Warn().Str("station", s.ID).Msg("dropping duplicate station")
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

// StaticSource serves a fixed list.
type StaticSource []markers.Station

func (s StaticSource) Stations(context.Context) ([]markers.Station, error) {
	out := make([]markers.Station, len(s))
	copy(out, s)
	return out, nil
}

// FileSource reads a JSON array of stations in the map's own format.
type FileSource struct {
	Path string
	Log  zerolog.Logger
}

func (s FileSource) Stations(ctx context.Context) ([]markers.Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading stations: %w", err)
	}
	var stations []markers.Station
	if err := json.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.Path, err)
	}
	return Sanitize(stations, s.Log), nil
}

// apiStation is a station as served by the backend.
type apiStation struct {
	StationID      string  `json:"stationId"`
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	TotalCapacity  int     `json:"totalCapacity"`
	AvailableBikes int     `json:"availableBikes"`
}

func (a apiStation) station() markers.Station {
	s := markers.Station{
		ID:             a.StationID,
		Name:           a.Name,
		Address:        a.Address,
		AvailableBikes: a.AvailableBikes,
		TotalSlots:     a.TotalCapacity,
	}
	s.Location.Lat, s.Location.Lng = a.Latitude, a.Longitude
	s.FreeSlots = max(0, a.TotalCapacity-a.AvailableBikes)
	return s
}

// HTTPSource fetches stations from the backend's GET {BaseURL}/stations.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
	Log     zerolog.Logger
}

func NewHTTPSource(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Log:     log,
	}
}

func (s *HTTPSource) Stations(ctx context.Context) ([]markers.Station, error) {
	url := s.BaseURL + "/stations"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching stations: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching stations: %s returned %d", url, resp.StatusCode)
	}

	var payload []apiStation
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding stations: %w", err)
	}
	stations := make([]markers.Station, len(payload))
	for i, a := range payload {
		stations[i] = a.station()
	}
	return Sanitize(stations, s.Log), nil
}
