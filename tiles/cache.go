package tiles

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"gioui.org/op/paint"
	"github.com/rs/zerolog"

	"github.com/olablt/gio-stationmap/internal/metrics"
	"github.com/olablt/gio-stationmap/tiles/worker"
)

const (
	DefaultCapacity = 150
	DefaultWorkers  = 6
)

// State is the fetch state of a cache entry.
type State int

const (
	Pending State = iota
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one cached tile. Image and Op are set once the tile
// is Loaded; Err once it Failed.
type Entry struct {
	Key   Key
	State State
	Image image.Image
	Op    paint.ImageOp
	Err   error
}

// ReadyFunc is called from the fetching goroutine when a tile settles.
type ReadyFunc func(key Key, state State)

// Cache memoizes fetched tiles for a single active zoom level. Entries of
// other zoom levels are purged as soon as the active zoom changes, and the
// entry count never exceeds the capacity.
type Cache struct {
	mu         sync.Mutex
	entries    map[Key]*Entry
	capacity   int
	activeZoom int
	inFlight   int

	// retry is the callback of the last request refused for lack of room.
	// It runs once the next fetch settles so the caller asks again.
	retry ReadyFunc

	provider Provider
	pool     *worker.Pool
	log      zerolog.Logger
}

type cacheOptions struct {
	capacity int
	workers  int
	timeout  time.Duration
	log      zerolog.Logger
}

type CacheOption func(*cacheOptions)

func WithCapacity(n int) CacheOption {
	return func(o *cacheOptions) { o.capacity = n }
}

func WithWorkers(n int) CacheOption {
	return func(o *cacheOptions) { o.workers = n }
}

// WithFetchTimeout bounds a single fetch, including time spent rate limited.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(o *cacheOptions) { o.timeout = d }
}

func WithLogger(l zerolog.Logger) CacheOption {
	return func(o *cacheOptions) { o.log = l }
}

func NewCache(provider Provider, opts ...CacheOption) *Cache {
	o := cacheOptions{
		capacity: DefaultCapacity,
		workers:  DefaultWorkers,
		timeout:  30 * time.Second,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 1 {
		o.capacity = 1
	}

	return &Cache{
		entries:    make(map[Key]*Entry),
		capacity:   o.capacity,
		activeZoom: -1,
		provider:   provider,
		// tasks of purged entries still sit in the queue until a worker
		// skips them, so a full queue refuses the request and arms retry
		pool: worker.NewPool(context.Background(), o.workers, o.capacity, o.timeout),
		log:  o.log,
	}
}

// Get returns a snapshot of the entry for key.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.TileCacheMisses.Inc()
		return Entry{}, false
	}
	if e.State == Loaded {
		metrics.TileCacheHits.Inc()
	} else {
		metrics.TileCacheMisses.Inc()
	}
	return *e, true
}

// Request starts fetching key unless an entry for it already exists, in any
// state. Failed keys are never retried and Pending keys are never fetched
// twice. A key from another zoom level makes that level active first.
// onReady runs once the fetch settles, unless the entry was evicted or the
// zoom changed meanwhile. A request refused because the cache is full of
// pending entries or the fetch queue is full calls onReady with the Pending
// state after the next fetch settles. Request reports whether a fetch was
// issued.
func (c *Cache) Request(key Key, onReady ReadyFunc) bool {
	if !key.Valid() {
		return false
	}

	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return false
	}
	c.setActiveZoomLocked(key.Zoom)
	if !c.makeRoomLocked(key) {
		c.retry = onReady
		c.mu.Unlock()
		c.log.Debug().Str("tile", key.String()).Msg("tile cache full of pending fetches, deferring request")
		return false
	}
	entry := &Entry{Key: key, State: Pending}
	c.entries[key] = entry
	c.inFlight++
	metrics.TileCacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	submitted := c.pool.Submit(func(ctx context.Context) {
		c.fetch(ctx, entry, onReady)
	})
	if !submitted {
		c.mu.Lock()
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
		c.inFlight--
		c.retry = onReady
		var retry ReadyFunc
		if c.inFlight == 0 {
			// the queue drained meanwhile, nothing left to trigger the retry
			retry = c.takeRetryLocked()
		}
		metrics.TileCacheEntries.Set(float64(len(c.entries)))
		c.mu.Unlock()
		c.log.Debug().Str("tile", key.String()).Msg("tile fetch queue full, deferring request")
		if retry != nil {
			retry(key, Pending)
		}
		return false
	}
	return true
}

func (c *Cache) fetch(ctx context.Context, entry *Entry, onReady ReadyFunc) {
	c.mu.Lock()
	if !c.relevantLocked(entry) {
		c.inFlight--
		retry := c.takeRetryLocked()
		c.mu.Unlock()
		c.dropStale(entry.Key, retry)
		return
	}
	c.mu.Unlock()

	start := time.Now()
	img, err := c.provider.GetTile(ctx, entry.Key)
	metrics.TileFetchDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	c.inFlight--
	if !c.relevantLocked(entry) {
		retry := c.takeRetryLocked()
		c.mu.Unlock()
		c.dropStale(entry.Key, retry)
		return
	}

	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled) {
		// shutdown, not a property of the tile
		delete(c.entries, entry.Key)
		metrics.TileCacheEntries.Set(float64(len(c.entries)))
		c.mu.Unlock()
		metrics.TileFetches.WithLabelValues(metrics.ResultCancelled).Inc()
		return
	}

	if err != nil {
		entry.State = Failed
		entry.Err = err
	} else {
		entry.State = Loaded
		entry.Image = img
		entry.Op = paint.NewImageOp(img)
	}
	state := entry.State
	retry := c.takeRetryLocked()
	c.mu.Unlock()

	if err != nil {
		metrics.TileFetches.WithLabelValues(metrics.ResultFailed).Inc()
		c.log.Warn().Err(err).Str("tile", entry.Key.String()).Msg("tile fetch failed")
	} else {
		metrics.TileFetches.WithLabelValues(metrics.ResultLoaded).Inc()
		c.log.Debug().Str("tile", entry.Key.String()).Dur("took", time.Since(start)).Msg("tile loaded")
	}

	if onReady != nil {
		onReady(entry.Key, state)
	}
	if retry != nil {
		retry(entry.Key, Pending)
	}
}

// relevantLocked reports whether entry is still cached for the active zoom.
func (c *Cache) relevantLocked(entry *Entry) bool {
	current, ok := c.entries[entry.Key]
	return ok && current == entry && entry.Key.Zoom == c.activeZoom
}

func (c *Cache) takeRetryLocked() ReadyFunc {
	retry := c.retry
	c.retry = nil
	return retry
}

func (c *Cache) dropStale(key Key, retry ReadyFunc) {
	metrics.TileFetches.WithLabelValues(metrics.ResultStale).Inc()
	c.log.Debug().Str("tile", key.String()).Msg("dropping tile for inactive view")
	if retry != nil {
		retry(key, Pending)
	}
}

// SetActiveZoom purges every entry of another zoom level.
func (c *Cache) SetActiveZoom(zoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setActiveZoomLocked(zoom)
}

func (c *Cache) setActiveZoomLocked(zoom int) {
	if zoom == c.activeZoom {
		return
	}
	c.activeZoom = zoom
	c.purgeLocked()
}

func (c *Cache) purgeLocked() {
	purged := 0
	for k := range c.entries {
		if k.Zoom != c.activeZoom {
			delete(c.entries, k)
			purged++
		}
	}
	if purged > 0 {
		metrics.TileCacheEvictions.Add(float64(purged))
		metrics.TileCacheEntries.Set(float64(len(c.entries)))
	}
}

// makeRoomLocked frees one slot for key if the cache is full. Inactive zoom
// levels go first, then the settled entry farthest from key, preferring
// Loaded over Failed so failures stay remembered. Pending entries are never
// evicted.
func (c *Cache) makeRoomLocked(key Key) bool {
	if len(c.entries) < c.capacity {
		return true
	}
	c.purgeLocked()
	if len(c.entries) < c.capacity {
		return true
	}

	for _, state := range []State{Loaded, Failed} {
		var victim Key
		found := false
		for k, e := range c.entries {
			if e.State != state {
				continue
			}
			if !found || farther(k, victim, key) {
				victim = k
				found = true
			}
		}
		if found {
			delete(c.entries, victim)
			metrics.TileCacheEvictions.Inc()
			return true
		}
	}
	return false
}

// farther reports whether a is a better eviction victim than b relative to
// the key being inserted. Ties break on coordinates so eviction does not
// depend on map iteration order.
func farther(a, b, key Key) bool {
	da, db := a.distance(key), b.distance(key)
	if da != db {
		return da > db
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// InFlight returns the number of fetches that have not settled yet,
// including fetches whose entry was already evicted.
func (c *Cache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// ActiveZoom returns the zoom level entries are kept for, or -1 before the
// first request.
func (c *Cache) ActiveZoom() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeZoom
}

// Close cancels pending fetches and waits for the fetch workers to exit.
func (c *Cache) Close() {
	c.pool.Shutdown()
}
