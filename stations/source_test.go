package stations

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/olablt/gio-stationmap/markers"
	"github.com/olablt/gio-stationmap/tiles"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	in := []markers.Station{
		{ID: "1", Name: "ok", Location: tiles.LatLng{Lat: 36.8, Lng: 10.18}},
		{ID: "", Name: "no id"},
		{ID: "3", Name: "bad lat", Location: tiles.LatLng{Lat: 123}},
		{ID: "4", Name: "bad lng", Location: tiles.LatLng{Lng: math.NaN()}},
		{ID: "5", Name: "negative bikes", AvailableBikes: -1},
		{ID: "1", Name: "duplicate"},
		{ID: "7", Name: "ok too", AvailableBikes: 2, FreeSlots: 3},
	}
	got := Sanitize(in, zerolog.Nop())
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "7" {
		t.Errorf("Sanitize() = %+v, want stations 1 and 7", got)
	}
	if got[0].Name != "ok" {
		t.Error("the first of two duplicates should win")
	}
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stations.json")
	data := `[
		{"id":"1","name":"Tunis","address":"Avenue Habib Bourguiba","location":{"lat":36.80,"lng":10.18},"availableBikes":8,"freeSlots":4},
		{"id":"2","name":"Broken","location":{"lat":95,"lng":0}}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := FileSource{Path: path, Log: zerolog.Nop()}.Stations(context.Background())
	if err != nil {
		t.Fatalf("Stations() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d stations, want 1", len(got))
	}
	s := got[0]
	if s.ID != "1" || s.Location.Lat != 36.80 || s.AvailableBikes != 8 || s.FreeSlots != 4 {
		t.Errorf("station = %+v", s)
	}

	if _, err := (FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}).Stations(context.Background()); err == nil {
		t.Error("missing file should fail")
	}
}

func TestHTTPSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stations" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"stationId":"s1","name":"Downtown Hub","address":"123 Main Street","latitude":40.7128,"longitude":-74.006,"totalCapacity":15,"availableBikes":8},
			{"stationId":"s2","name":"Overfull","address":"","latitude":40.7,"longitude":-74.0,"totalCapacity":5,"availableBikes":7},
			{"stationId":"","name":"Anonymous","latitude":40.7,"longitude":-74.0}
		]`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/api/", time.Second, zerolog.Nop())
	got, err := src.Stations(context.Background())
	if err != nil {
		t.Fatalf("Stations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d stations, want 2", len(got))
	}
	want := markers.Station{
		ID: "s1", Name: "Downtown Hub", Address: "123 Main Street",
		Location:       tiles.LatLng{Lat: 40.7128, Lng: -74.006},
		AvailableBikes: 8, FreeSlots: 7, TotalSlots: 15,
	}
	if got[0] != want {
		t.Errorf("station = %+v, want %+v", got[0], want)
	}
	if got[1].FreeSlots != 0 {
		t.Errorf("free slots of an overfull station = %d, want 0", got[1].FreeSlots)
	}
}

func TestHTTPSource_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewHTTPSource(srv.URL, 0, zerolog.Nop()).Stations(context.Background()); err == nil {
		t.Error("503 should fail")
	}
}

func TestStaticSource_ReturnsCopy(t *testing.T) {
	t.Parallel()

	src := StaticSource(DemoStations())
	got, _ := src.Stations(context.Background())
	got[0].Name = "changed"
	again, _ := src.Stations(context.Background())
	if again[0].Name == "changed" {
		t.Error("callers can modify the static list")
	}
	if len(Sanitize(again, zerolog.Nop())) != len(again) {
		t.Error("demo stations should all be valid")
	}
}

func TestResolveLocation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fallback := DefaultLocation
	tunis := tiles.LatLng{Lat: 36.8, Lng: 10.18}

	if ll, ok := ResolveLocation(ctx, &StaticLocator{Location: tunis}, fallback, zerolog.Nop()); !ok || ll != tunis {
		t.Errorf("ResolveLocation(tunis) = %v, %v", ll, ok)
	}
	if ll, ok := ResolveLocation(ctx, nil, fallback, zerolog.Nop()); ok || ll != fallback {
		t.Errorf("ResolveLocation(nil) = %v, %v", ll, ok)
	}

	var missing *StaticLocator
	if _, err := missing.Locate(ctx); !errors.Is(err, ErrGeolocationUnavailable) {
		t.Errorf("nil locator error = %v", err)
	}
	if ll, ok := ResolveLocation(ctx, missing, fallback, zerolog.Nop()); ok || ll != fallback {
		t.Errorf("ResolveLocation(unavailable) = %v, %v", ll, ok)
	}

	bad := &StaticLocator{Location: tiles.LatLng{Lat: 100}}
	if _, err := bad.Locate(ctx); !errors.Is(err, ErrGeolocationUnavailable) || !errors.Is(err, tiles.ErrProjectionOutOfRange) {
		t.Errorf("invalid location error = %v", err)
	}
}
