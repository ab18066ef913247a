package worker

import (
	"context"
	"sync"
	"time"
)

// Task is a unit of work. The context is cancelled when the pool shuts down
// or the task timeout expires.
type Task func(ctx context.Context)

type Pool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tasks   chan Task
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts maxWorkers goroutines draining a queue of queueSize tasks.
// A zero timeout means tasks only stop on shutdown.
func NewPool(ctx context.Context, maxWorkers, queueSize int, timeout time.Duration) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(chan Task, max(queueSize, 1)),
		timeout: timeout,
	}

	p.wg.Add(maxWorkers)
	for range maxWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			p.run(task)
		}
	}
}

func (p *Pool) run(task Task) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	task(ctx)
}

// Submit queues a task without blocking. It returns false when the queue is
// full or the pool has been shut down.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Shutdown cancels running tasks, drops queued ones and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
