package mapview

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"sync"
	"time"

	"gioui.org/f32"
	"gioui.org/font/gofont"
	"gioui.org/io/event"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"github.com/rs/zerolog"

	"github.com/olablt/gio-stationmap/markers"
	"github.com/olablt/gio-stationmap/tiles"
)

var (
	backgroundColor   = color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
	pendingTileColor  = color.NRGBA{R: 0xf3, G: 0xf4, B: 0xf6, A: 0xff}
	failedTileColor   = color.NRGBA{R: 0xf9, G: 0xfa, B: 0xfb, A: 0xff}
	tileBorderColor   = color.NRGBA{R: 0xd1, G: 0xd5, B: 0xdb, A: 0xff}
	userColor         = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	stationColor      = color.NRGBA{R: 0x0d, G: 0x94, B: 0x88, A: 0xff}
	selectedColor     = color.NRGBA{R: 0x06, G: 0xb6, B: 0xd4, A: 0xff}
	selectedGlowColor = color.NRGBA{R: 0x06, G: 0xb6, B: 0xd4, A: 0x55}
	poleColor         = color.NRGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}
	white             = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	badgeColor        = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xdd}
)

// Options configures a MapView. Zero fields take defaults.
type Options struct {
	Provider tiles.Provider
	Center   tiles.LatLng
	Zoom     int

	Controller    ControllerConfig
	CacheCapacity int
	Workers       int
	FetchTimeout  time.Duration
	Debounce      time.Duration

	Theme    *material.Theme
	Logger   zerolog.Logger
	OnSelect func(*markers.Station)
}

type pendingUpdate struct {
	stations    []markers.Station
	hasStations bool
	user        *tiles.LatLng
	hasUser     bool
	center      *tiles.LatLng
}

// MapView is a slippy map widget showing bike stations and the user's
// location. Layout must be called from the window goroutine; the Update
// methods may be called from any goroutine.
type MapView struct {
	ctrl     *Controller
	cache    *tiles.Cache
	renderer *Renderer
	batcher  *Batcher
	refresh  chan<- struct{}

	theme      *material.Theme
	zoomInBtn  widget.Clickable
	zoomOutBtn widget.Clickable
	closeBtn   widget.Clickable
	popupTag   bool
	// popupRect is where the card was drawn in the last frame
	popupRect image.Rectangle

	mu      sync.Mutex
	pending pendingUpdate

	frame Frame
	log   zerolog.Logger
}

// New creates a map view. A value is sent on refresh, without blocking,
// whenever the view needs a new frame outside of input handling.
func New(refresh chan<- struct{}, opts Options) *MapView {
	if opts.Provider == nil {
		opts.Provider = tiles.NewLocalProvider()
	}
	if opts.Controller == (ControllerConfig{}) {
		opts.Controller = DefaultControllerConfig()
	}
	if opts.Theme == nil {
		opts.Theme = material.NewTheme()
		opts.Theme.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	}

	cacheOpts := []tiles.CacheOption{tiles.WithLogger(opts.Logger)}
	if opts.CacheCapacity > 0 {
		cacheOpts = append(cacheOpts, tiles.WithCapacity(opts.CacheCapacity))
	}
	if opts.Workers > 0 {
		cacheOpts = append(cacheOpts, tiles.WithWorkers(opts.Workers))
	}
	if opts.FetchTimeout > 0 {
		cacheOpts = append(cacheOpts, tiles.WithFetchTimeout(opts.FetchTimeout))
	}

	mv := &MapView{
		refresh: refresh,
		theme:   opts.Theme,
		log:     opts.Logger,
	}
	mv.cache = tiles.NewCache(opts.Provider, cacheOpts...)
	mv.batcher = NewBatcher(opts.Debounce, mv.cache.InFlight, mv.Invalidate)
	mv.renderer = NewRenderer(mv.cache, mv.batcher.TileReady)
	mv.ctrl = NewController(opts.Controller, tiles.ViewState{
		CenterLat: opts.Center.Lat,
		CenterLng: opts.Center.Lng,
		Zoom:      opts.Zoom,
	})
	mv.ctrl.OnSelect = opts.OnSelect
	return mv
}

// Invalidate asks the window for a new frame.
func (mv *MapView) Invalidate() {
	select {
	case mv.refresh <- struct{}{}:
	default:
	}
}

// UpdateStations replaces the displayed stations.
func (mv *MapView) UpdateStations(stations []markers.Station) {
	mv.mu.Lock()
	mv.pending.stations = stations
	mv.pending.hasStations = true
	mv.mu.Unlock()
	mv.Invalidate()
}

// UpdateUserLocation moves the user marker; nil hides it.
func (mv *MapView) UpdateUserLocation(ll *tiles.LatLng) {
	mv.mu.Lock()
	mv.pending.user = ll
	mv.pending.hasUser = true
	mv.mu.Unlock()
	mv.Invalidate()
}

// CenterOn moves the view center to ll on the next frame.
func (mv *MapView) CenterOn(ll tiles.LatLng) {
	mv.mu.Lock()
	mv.pending.center = &ll
	mv.mu.Unlock()
	mv.Invalidate()
}

// Controller exposes the view state. Only use it from the window goroutine.
func (mv *MapView) Controller() *Controller {
	return mv.ctrl
}

// Close cancels all tile fetches.
func (mv *MapView) Close() {
	mv.batcher.Stop()
	mv.cache.Close()
}

func (mv *MapView) applyPending() {
	mv.mu.Lock()
	p := mv.pending
	mv.pending = pendingUpdate{}
	mv.mu.Unlock()

	if p.hasStations {
		mv.ctrl.SetStations(p.stations)
		mv.log.Debug().Int("stations", len(p.stations)).Msg("stations updated")
	}
	if p.hasUser {
		mv.ctrl.SetUserLocation(p.user)
	}
	if p.center != nil {
		mv.ctrl.SetCenter(*p.center)
	}
}

func (mv *MapView) Layout(gtx layout.Context) layout.Dimensions {
	tag := mv
	size := gtx.Constraints.Max

	mv.applyPending()
	mv.ctrl.Resize(size.X, size.Y)

	// process events
	step := int(math.Ceil(mv.ctrl.cfg.WheelStep))
	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target:  tag,
			Kinds:   pointer.Press | pointer.Drag | pointer.Release | pointer.Cancel | pointer.Leave | pointer.Scroll,
			ScrollY: pointer.ScrollRange{Min: -step, Max: step},
		})
		if !ok {
			break
		}
		x, ok := ev.(pointer.Event)
		if !ok {
			continue
		}
		switch x.Kind {
		case pointer.Press:
			if x.Position.Round().In(mv.popupRect) {
				continue
			}
			mv.ctrl.PointerDown(x.Position)
		case pointer.Drag:
			mv.ctrl.PointerMove(x.Position)
		case pointer.Release:
			mv.ctrl.PointerUp(x.Position)
		case pointer.Leave:
			mv.ctrl.PointerLeave(x.Position)
		case pointer.Cancel:
			mv.ctrl.PointerCancel()
		case pointer.Scroll:
			mv.ctrl.Wheel(x.Scroll.Y, x.Position)
		}
	}
	for mv.zoomInBtn.Clicked(gtx) {
		mv.ctrl.ZoomIn()
	}
	for mv.zoomOutBtn.Clicked(gtx) {
		mv.ctrl.ZoomOut()
	}
	for mv.closeBtn.Clicked(gtx) {
		mv.ctrl.Deselect()
	}

	mv.frame = mv.renderer.Render(FrameInput{
		View:      mv.ctrl.View(),
		Markers:   mv.ctrl.Markers(),
		Selection: mv.ctrl.Selection(),
		User:      mv.ctrl.UserLocation(),
	})

	// Confine the area of interest to a gtx Max
	defer clip.Rect{Max: size}.Push(gtx.Ops).Pop()
	if mv.ctrl.Dragging() {
		pointer.CursorGrab.Add(gtx.Ops)
	}
	event.Op(gtx.Ops, tag)

	paint.Fill(gtx.Ops, backgroundColor)
	for _, t := range mv.frame.Tiles {
		paintTile(gtx.Ops, t)
	}
	if u := mv.frame.User; u != nil {
		paintUser(gtx.Ops, *u)
	}
	for _, m := range mv.frame.Stations {
		mv.paintStation(gtx, m)
	}
	mv.popupRect = image.Rectangle{}
	if p := mv.frame.Popup; p != nil {
		mv.layoutPopup(gtx, *p)
	}
	mv.layoutControls(gtx, mv.frame)

	return layout.Dimensions{Size: size}
}

func paintTile(ops *op.Ops, t TileDraw) {
	if !t.Loaded() {
		origin := image.Pt(int(math.Round(t.X)), int(math.Round(t.Y)))
		rect := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(tiles.TileSize, tiles.TileSize))}
		fill := pendingTileColor
		if t.Present && t.State == tiles.Failed {
			fill = failedTileColor
		}
		paint.FillShape(ops, fill, clip.Rect(rect).Op())
		paint.FillShape(ops, tileBorderColor, clip.Stroke{Path: clip.Rect(rect).Path(), Width: 1}.Op())
		return
	}

	// tiles are blitted at their exact sub-pixel offset, scaled to the
	// nominal tile size when the server returns another resolution
	imgSize := t.Op.Size()
	tr := f32.Affine2D{}
	if imgSize.X > 0 && imgSize.X != tiles.TileSize {
		s := float32(tiles.TileSize) / float32(imgSize.X)
		tr = tr.Scale(f32.Point{}, f32.Pt(s, s))
	}
	tr = tr.Offset(f32.Pt(float32(t.X), float32(t.Y)))

	defer op.Affine(tr).Push(ops).Pop()
	defer clip.Rect{Max: imgSize}.Push(ops).Pop()
	t.Op.Add(ops)
	paint.PaintOp{}.Add(ops)
}

func circle(ops *op.Ops, c f32.Point, r float32) clip.Op {
	return clip.Ellipse{
		Min: image.Pt(int(c.X-r), int(c.Y-r)),
		Max: image.Pt(int(c.X+r), int(c.Y+r)),
	}.Op(ops)
}

func paintUser(ops *op.Ops, m MarkerDraw) {
	c := f32.Pt(float32(m.X), float32(m.Y))
	paint.FillShape(ops, white, circle(ops, c, m.Radius+3))
	paint.FillShape(ops, userColor, circle(ops, c, m.Radius))
}

// paintStation draws a flag on a pole planted at the station, labelled with
// the number of available bikes.
func (mv *MapView) paintStation(gtx layout.Context, m MarkerDraw) {
	ops := gtx.Ops
	base := f32.Pt(float32(m.X), float32(m.Y))
	scale := m.Radius / StationMarkerRadius

	col := stationColor
	if m.Selected {
		col = selectedColor
		paint.FillShape(ops, selectedGlowColor, circle(ops, base, m.Radius*2))
	}

	poleTop := base.Y - 3*m.Radius
	pole := image.Rect(int(base.X)-1, int(poleTop), int(base.X)+1, int(base.Y))
	paint.FillShape(ops, poleColor, clip.Rect(pole).Op())
	paint.FillShape(ops, white, circle(ops, base, m.Radius/2+1))
	paint.FillShape(ops, col, circle(ops, base, m.Radius/2))

	lbl := material.Label(mv.theme, unit.Sp(11*scale), strconv.Itoa(m.Station.AvailableBikes))
	lbl.Color = white
	macro := op.Record(ops)
	lgtx := gtx
	lgtx.Constraints.Min = image.Point{}
	dims := lbl.Layout(lgtx)
	call := macro.Stop()

	pad := int(4 * scale)
	flag := image.Rect(int(base.X)+1, int(poleTop), int(base.X)+1+dims.Size.X+2*pad, int(poleTop)+dims.Size.Y+pad)
	paint.FillShape(ops, col, clip.UniformRRect(flag, int(2*scale)).Op(ops))

	st := op.Offset(image.Pt(flag.Min.X+pad, flag.Min.Y+pad/2)).Push(ops)
	call.Add(ops)
	st.Pop()
}

// layoutPopup places the station card so that its bottom edge centers on
// the anchor, kept inside the canvas.
func (mv *MapView) layoutPopup(gtx layout.Context, p Popup) {
	size := gtx.Constraints.Max

	macro := op.Record(gtx.Ops)
	cgtx := gtx
	cgtx.Constraints.Min = image.Point{}
	cgtx.Constraints.Max.X = min(gtx.Dp(unit.Dp(260)), size.X)
	dims := mv.popupCard(cgtx, p)
	call := macro.Stop()

	pos := image.Pt(int(p.Anchor.X)-dims.Size.X/2, int(p.Anchor.Y)-dims.Size.Y)
	pos.X = max(0, min(pos.X, size.X-dims.Size.X))
	pos.Y = max(0, min(pos.Y, size.Y-dims.Size.Y))
	mv.popupRect = image.Rectangle{Min: pos, Max: pos.Add(dims.Size)}

	defer op.Offset(pos).Push(gtx.Ops).Pop()
	defer clip.Rect{Max: dims.Size}.Push(gtx.Ops).Pop()
	event.Op(gtx.Ops, &mv.popupTag)
	call.Add(gtx.Ops)
}

func (mv *MapView) popupCard(gtx layout.Context, p Popup) layout.Dimensions {
	th := mv.theme
	return layout.Background{}.Layout(gtx,
		func(gtx layout.Context) layout.Dimensions {
			r := image.Rectangle{Max: gtx.Constraints.Min}
			rr := gtx.Dp(unit.Dp(8))
			paint.FillShape(gtx.Ops, tileBorderColor, clip.UniformRRect(r, rr).Op(gtx.Ops))
			paint.FillShape(gtx.Ops, white, clip.UniformRRect(r.Inset(1), rr-1).Op(gtx.Ops))
			return layout.Dimensions{Size: gtx.Constraints.Min}
		},
		func(gtx layout.Context) layout.Dimensions {
			return layout.UniformInset(unit.Dp(10)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
				children := []layout.FlexChild{
					layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
							layout.Flexed(1, material.Subtitle1(th, p.Station.Name).Layout),
							layout.Rigid(func(gtx layout.Context) layout.Dimensions {
								btn := material.Button(th, &mv.closeBtn, "×")
								btn.Inset = layout.UniformInset(unit.Dp(4))
								btn.TextSize = unit.Sp(12)
								return btn.Layout(gtx)
							}),
						)
					}),
					layout.Rigid(material.Body2(th, p.Station.Address).Layout),
					layout.Rigid(layout.Spacer{Height: unit.Dp(6)}.Layout),
					layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						l := material.Body1(th, p.Availability())
						l.Color = stationColor
						return l.Layout(gtx)
					}),
				}
				if p.Distance != "" {
					children = append(children, layout.Rigid(material.Caption(th, p.Distance+" away").Layout))
				}
				return layout.Flex{Axis: layout.Vertical}.Layout(gtx, children...)
			})
		},
	)
}

// layoutControls draws the zoom buttons and the zoom and scale badge.
func (mv *MapView) layoutControls(gtx layout.Context, f Frame) {
	th := mv.theme
	cfg := mv.ctrl.cfg

	zoomButton := func(c *widget.Clickable, label string, enabled bool) layout.Widget {
		return func(gtx layout.Context) layout.Dimensions {
			if !enabled {
				gtx = gtx.Disabled()
			}
			btn := material.Button(th, c, label)
			btn.Inset = layout.Inset{Top: unit.Dp(6), Bottom: unit.Dp(6), Left: unit.Dp(12), Right: unit.Dp(12)}
			return btn.Layout(gtx)
		}
	}

	layout.NE.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.UniformInset(unit.Dp(12)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
				layout.Rigid(zoomButton(&mv.zoomInBtn, "+", f.View.Zoom < cfg.MaxZoom)),
				layout.Rigid(layout.Spacer{Height: unit.Dp(6)}.Layout),
				layout.Rigid(zoomButton(&mv.zoomOutBtn, "−", f.View.Zoom > cfg.MinZoom)),
			)
		})
	})

	layout.SW.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.UniformInset(unit.Dp(12)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			return layout.Background{}.Layout(gtx,
				func(gtx layout.Context) layout.Dimensions {
					r := image.Rectangle{Max: gtx.Constraints.Min}
					paint.FillShape(gtx.Ops, badgeColor, clip.UniformRRect(r, gtx.Dp(unit.Dp(4))).Op(gtx.Ops))
					return layout.Dimensions{Size: gtx.Constraints.Min}
				},
				func(gtx layout.Context) layout.Dimensions {
					return layout.UniformInset(unit.Dp(6)).Layout(gtx,
						material.Caption(th, badgeText(f.View.Zoom, f.MetersPerPixel)).Layout)
				},
			)
		})
	})
}

func badgeText(zoom int, metersPerPixel float64) string {
	var scale string
	switch {
	case metersPerPixel < 10:
		scale = fmt.Sprintf("%.2f m/px", metersPerPixel)
	case metersPerPixel < 1000:
		scale = fmt.Sprintf("%.0f m/px", metersPerPixel)
	default:
		scale = fmt.Sprintf("%.1f km/px", metersPerPixel/1000)
	}
	return fmt.Sprintf("Zoom %d · %s", zoom, scale)
}
