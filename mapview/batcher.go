package mapview

import (
	"sync"
	"time"

	"github.com/olablt/gio-stationmap/tiles"
)

// DefaultDebounce is the longest a finished tile waits for the others.
const DefaultDebounce = 300 * time.Millisecond

// Batcher turns a burst of tile completions into one refresh. It flushes at
// once when no fetch is in flight and otherwise at most maxWait after the
// first unflushed completion, so slow tiles never hold the map back.
type Batcher struct {
	maxWait  time.Duration
	inFlight func() int
	flush    func()

	mu    sync.Mutex
	timer *time.Timer
}

func NewBatcher(maxWait time.Duration, inFlight func() int, flush func()) *Batcher {
	if maxWait <= 0 {
		maxWait = DefaultDebounce
	}
	return &Batcher{maxWait: maxWait, inFlight: inFlight, flush: flush}
}

// TileReady has the signature of tiles.ReadyFunc.
func (b *Batcher) TileReady(tiles.Key, tiles.State) {
	if b.inFlight() == 0 {
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		b.mu.Unlock()
		b.flush()
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		b.timer = time.AfterFunc(b.maxWait, b.fire)
	}
}

func (b *Batcher) fire() {
	b.mu.Lock()
	b.timer = nil
	b.mu.Unlock()
	b.flush()
}

// Stop drops a scheduled flush.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
