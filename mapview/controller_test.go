package mapview

import (
	"math"
	"testing"

	"gioui.org/f32"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/olablt/gio-stationmap/internal/metrics"
	"github.com/olablt/gio-stationmap/markers"
	"github.com/olablt/gio-stationmap/tiles"
)

func tunisController(t *testing.T) (*Controller, *[]*markers.Station) {
	t.Helper()
	c := NewController(DefaultControllerConfig(), tiles.ViewState{CenterLat: 36.80, CenterLng: 10.18, Zoom: 10})
	c.Resize(800, 600)
	c.SetStations([]markers.Station{
		{ID: "1", Name: "Tunis", Location: tiles.LatLng{Lat: 36.80, Lng: 10.18}, AvailableBikes: 8},
	})
	var selected []*markers.Station
	c.OnSelect = func(s *markers.Station) { selected = append(selected, s) }
	return c, &selected
}

func TestController_ClickSelectsStationAtCenter(t *testing.T) {
	t.Parallel()

	c, selected := tunisController(t)
	before := testutil.ToFloat64(metrics.StationSelections)
	c.PointerDown(f32.Pt(400, 300))
	c.PointerUp(f32.Pt(400, 300))

	if got := testutil.ToFloat64(metrics.StationSelections); got < before+1 {
		t.Errorf("selection counter = %v, want at least %v", got, before+1)
	}
	if len(*selected) != 1 || (*selected)[0] == nil || (*selected)[0].ID != "1" {
		t.Fatalf("OnSelect calls = %v, want station 1", *selected)
	}
	sel := c.Selection()
	if sel.StationID != "1" || sel.Anchor == nil {
		t.Fatalf("Selection() = %+v", sel)
	}
	if math.Abs(float64(sel.Anchor.X)-400) > 2 || math.Abs(float64(sel.Anchor.Y)-(300-PopupOffset)) > 2 {
		t.Errorf("anchor = %v, want above the canvas center", *sel.Anchor)
	}
}

func TestController_DragVersusClick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      []f32.Point
		wantClick bool
	}{
		{"still", []f32.Point{{X: 400, Y: 300}}, true},
		{"jitter below threshold", []f32.Point{{X: 401, Y: 300}, {X: 401, Y: 301}, {X: 400, Y: 301}}, true},
		{"short drag", []f32.Point{{X: 402, Y: 300}, {X: 404, Y: 300}}, false},
		{"long drag", []f32.Point{{X: 420, Y: 310}, {X: 480, Y: 350}}, false},
		{"out and back", []f32.Point{{X: 410, Y: 300}, {X: 400, Y: 300}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, selected := tunisController(t)
			before := c.View()

			c.PointerDown(f32.Pt(400, 300))
			for _, p := range tt.path {
				c.PointerMove(p)
			}
			c.PointerUp(tt.path[len(tt.path)-1])

			clicked := len(*selected) > 0
			if clicked != tt.wantClick {
				t.Errorf("selection query fired = %v, want %v", clicked, tt.wantClick)
			}
			panned := c.View() != before
			if tt.wantClick && panned {
				t.Error("a click moved the map")
			}
		})
	}
}

func TestController_DragPansByPointerDelta(t *testing.T) {
	t.Parallel()

	c, _ := tunisController(t)
	start := c.View()
	c.PointerDown(f32.Pt(400, 300))
	c.PointerMove(f32.Pt(450, 280))
	c.PointerMove(f32.Pt(500, 260))
	c.PointerUp(f32.Pt(500, 260))

	// the point that was under the canvas center follows the pointer
	x, y := tiles.Project(start.CenterLat, start.CenterLng, c.View())
	if math.Abs(x-500) > 1e-3 || math.Abs(y-260) > 1e-3 {
		t.Errorf("old center now at (%v,%v), want (500,260)", x, y)
	}
}

func TestController_PointerLeaveEndsGesture(t *testing.T) {
	t.Parallel()

	c, selected := tunisController(t)
	c.PointerDown(f32.Pt(400, 300))
	c.PointerLeave(f32.Pt(400, 300))
	if len(*selected) != 1 {
		t.Errorf("leave without movement should click, got %d selections", len(*selected))
	}

	c.PointerMove(f32.Pt(600, 300))
	if c.Dragging() {
		t.Error("moves after leave should not drag")
	}

	c.PointerDown(f32.Pt(400, 300))
	c.PointerMove(f32.Pt(420, 300))
	c.PointerCancel()
	if c.Dragging() {
		t.Error("cancel should end the drag")
	}
}

func TestController_WheelZoomClamp(t *testing.T) {
	t.Parallel()

	c, _ := tunisController(t)
	p := f32.Pt(123, 456)
	for range 40 {
		c.Wheel(-DefaultWheelStep, p)
		if z := c.View().Zoom; z > 18 {
			t.Fatalf("zoom %d above max", z)
		}
	}
	if z := c.View().Zoom; z != 18 {
		t.Errorf("zoom after zooming in = %d, want 18", z)
	}
	for range 40 {
		c.Wheel(DefaultWheelStep, p)
		if z := c.View().Zoom; z < 1 {
			t.Fatalf("zoom %d below min", z)
		}
	}
	if z := c.View().Zoom; z != 1 {
		t.Errorf("zoom after zooming out = %d, want 1", z)
	}

	for range 40 {
		c.ZoomIn()
	}
	if z := c.View().Zoom; z != 18 {
		t.Errorf("zoom after ZoomIn = %d, want 18", z)
	}
}

func TestController_WheelKeepsCursorPoint(t *testing.T) {
	t.Parallel()

	c, _ := tunisController(t)
	p := f32.Pt(600, 150)
	lat, lng := tiles.Unproject(float64(p.X), float64(p.Y), c.View())

	c.Wheel(-DefaultWheelStep, p)
	if c.View().Zoom != 11 {
		t.Fatalf("zoom = %d, want 11", c.View().Zoom)
	}
	x, y := tiles.Project(lat, lng, c.View())
	if math.Abs(x-600) > 0.5 || math.Abs(y-150) > 0.5 {
		t.Errorf("cursor point moved to (%v,%v)", x, y)
	}

	c.Wheel(0, p)
	if c.View().Zoom != 11 {
		t.Error("zero scroll changed the zoom")
	}
}

func TestController_WheelAccumulatesSmallDeltas(t *testing.T) {
	t.Parallel()

	c, _ := tunisController(t)
	p := f32.Pt(400, 300)

	// a trackpad reports many small deltas for one gesture
	for range 9 {
		c.Wheel(-1, p)
	}
	if z := c.View().Zoom; z != 10 {
		t.Fatalf("zoom after 9px = %d, want 10", z)
	}
	c.Wheel(-1, p)
	if z := c.View().Zoom; z != 11 {
		t.Fatalf("zoom after 10px = %d, want 11", z)
	}

	// reversing direction discards the partial distance
	for range 5 {
		c.Wheel(-1, p)
	}
	for range 9 {
		c.Wheel(1, p)
	}
	if z := c.View().Zoom; z != 11 {
		t.Errorf("zoom after reversing = %d, want 11", z)
	}

	// one large delta moves a single level
	c.Wheel(-100, p)
	if z := c.View().Zoom; z != 12 {
		t.Errorf("zoom after a large delta = %d, want 12", z)
	}
}

func TestController_AnchorClearedOnViewChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		change func(c *Controller)
	}{
		{"drag", func(c *Controller) {
			c.PointerDown(f32.Pt(100, 100))
			c.PointerMove(f32.Pt(140, 100))
		}},
		{"wheel", func(c *Controller) { c.Wheel(-DefaultWheelStep, f32.Pt(10, 10)) }},
		{"zoom button", func(c *Controller) { c.ZoomOut() }},
		{"resize", func(c *Controller) { c.Resize(1024, 768) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _ := tunisController(t)
			c.PointerDown(f32.Pt(400, 300))
			c.PointerUp(f32.Pt(400, 300))
			if c.Selection().Anchor == nil {
				t.Fatal("click did not set an anchor")
			}
			v := c.Version()

			tt.change(c)

			if c.Selection().Anchor != nil {
				t.Error("anchor survived the view change")
			}
			if c.Selection().StationID != "1" {
				t.Error("view change dropped the highlighted station")
			}
			if c.Version() == v {
				t.Error("version did not change")
			}
		})
	}
}

func TestController_ClickOnEmptyMapDeselects(t *testing.T) {
	t.Parallel()

	c, selected := tunisController(t)
	c.PointerDown(f32.Pt(400, 300))
	c.PointerUp(f32.Pt(400, 300))
	c.PointerDown(f32.Pt(50, 50))
	c.PointerUp(f32.Pt(50, 50))

	if c.Selection() != (Selection{}) {
		t.Errorf("Selection() = %+v, want empty", c.Selection())
	}
	if len(*selected) != 2 || (*selected)[1] != nil {
		t.Errorf("OnSelect calls = %v, want station then nil", *selected)
	}

	// a miss with nothing selected stays quiet
	c.PointerDown(f32.Pt(50, 50))
	c.PointerUp(f32.Pt(50, 50))
	if len(*selected) != 2 {
		t.Errorf("OnSelect called %d times, want 2", len(*selected))
	}
}

func TestController_StationListChanges(t *testing.T) {
	t.Parallel()

	c, selected := tunisController(t)
	c.PointerDown(f32.Pt(400, 300))
	c.PointerUp(f32.Pt(400, 300))

	// the station moved: the popup follows it
	c.SetStations([]markers.Station{
		{ID: "1", Name: "Tunis", Location: tiles.LatLng{Lat: 36.80, Lng: 10.19}, AvailableBikes: 3},
	})
	sel := c.Selection()
	if sel.Anchor == nil || sel.Anchor.X <= 400 {
		t.Errorf("anchor = %v, want moved right", sel.Anchor)
	}
	if s, ok := c.SelectedStation(); !ok || s.AvailableBikes != 3 {
		t.Errorf("SelectedStation() = %+v, %v", s, ok)
	}

	// the station is gone: the selection goes with it
	c.SetStations(nil)
	if c.Selection() != (Selection{}) {
		t.Errorf("Selection() = %+v, want empty", c.Selection())
	}
	if n := len(*selected); n != 2 || (*selected)[1] != nil {
		t.Errorf("OnSelect calls = %v, want a final nil", *selected)
	}
}

func TestController_UserLocationMarker(t *testing.T) {
	t.Parallel()

	c, _ := tunisController(t)
	ll := tiles.LatLng{Lat: 36.80, Lng: 10.18}
	c.SetUserLocation(&ll)
	ll.Lat = 0 // the controller keeps its own copy

	ms := c.Markers()
	if len(ms) != 2 || ms[0].Kind != markers.UserMarker {
		t.Fatalf("Markers() = %+v, want user marker first", ms)
	}
	if math.Abs(ms[0].Y-300) > 1 {
		t.Errorf("user marker y = %v, want 300", ms[0].Y)
	}

	// clicking on top of both still selects the station
	c.PointerDown(f32.Pt(400, 300))
	c.PointerUp(f32.Pt(400, 300))
	if c.Selection().StationID != "1" {
		t.Error("user marker swallowed the click")
	}

	c.SetUserLocation(nil)
	if len(c.Markers()) != 1 {
		t.Error("user marker not removed")
	}
}

func TestController_SetCenterClamps(t *testing.T) {
	t.Parallel()

	c, _ := tunisController(t)
	c.SetCenter(tiles.LatLng{Lat: 89, Lng: 190})
	v := c.View()
	if v.CenterLat != tiles.MaxCenterLatitude || math.Abs(v.CenterLng-(-170)) > 1e-9 {
		t.Errorf("View() = %+v", v)
	}

	// dragging far north never leaves the Mercator range
	c.PointerDown(f32.Pt(400, 300))
	for i := 1; i <= 50; i++ {
		c.PointerMove(f32.Pt(400, 300+float32(i)*100))
	}
	if lat := c.View().CenterLat; lat > tiles.MaxCenterLatitude || math.IsNaN(lat) {
		t.Errorf("center latitude %v out of range", lat)
	}
}
