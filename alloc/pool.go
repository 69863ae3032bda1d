package alloc

import "sync"

// A Worker is the per-task allocation state handed out by a Pool.
type Worker interface {
	// Mark all memory owned by the worker as available.
	Reset()

	// Release memory that is not referenced by live allocations.
	Shrink()
}

// A Pool owns the per-worker allocation states. A task acquires a worker for
// its lifetime and releases it when done, so allocation itself never needs
// cross-goroutine synchronization; only Acquire/Release and the reset barrier
// take the pool lock.
type Pool[W Worker] struct {
	mu    sync.Mutex
	newFn func() (W, error)
	idle  []W
	all   []W
	inUse int
}

// Create a pool that lazily creates workers with newFn.
func NewPool[W Worker](newFn func() (W, error)) *Pool[W] {
	return &Pool[W]{newFn: newFn}
}

// Acquire a worker, creating a new one when all existing workers are busy.
func (p *Pool[W]) Acquire() (W, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.idle); n > 0 {
		w := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse++
		return w, nil
	}

	w, err := p.newFn()
	if err != nil {
		var zero W
		return zero, err
	}
	p.all = append(p.all, w)
	p.inUse++
	return w, nil
}

// Return a worker to the pool.
func (p *Pool[W]) Release(w W) {
	p.mu.Lock()
	p.idle = append(p.idle, w)
	p.inUse--
	p.mu.Unlock()
}

// Reset all workers. Reset acts as a barrier: it fails with
// ErrResetInFlight if any worker is still acquired, so no task can allocate
// from memory that is being recycled.
func (p *Pool[W]) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse != 0 {
		return ErrResetInFlight
	}
	for _, w := range p.all {
		w.Reset()
	}
	return nil
}

// Shrink all idle workers.
func (p *Pool[W]) Shrink() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse != 0 {
		return ErrResetInFlight
	}
	for _, w := range p.all {
		w.Shrink()
	}
	return nil
}

// Invoke fn for every worker created by the pool.
func (p *Pool[W]) Each(fn func(W)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.all {
		fn(w)
	}
}

// Number of workers created so far.
func (p *Pool[W]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}
