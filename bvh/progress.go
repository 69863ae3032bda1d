package bvh

import (
	"sync"
	"sync/atomic"
)

// A ProgressMonitor receives the number of primitives placed into leaves since
// the previous call. Calls are serialized; the deltas of a complete build add
// up to the number of primitives.
type ProgressMonitor func(delta int)

type progressReporter struct {
	mu      sync.Mutex
	monitor ProgressMonitor
	total   atomic.Int64
}

func (p *progressReporter) report(delta int) {
	p.total.Add(int64(delta))
	if p.monitor == nil || delta == 0 {
		return
	}
	p.mu.Lock()
	p.monitor(delta)
	p.mu.Unlock()
}

// Accumulates progress deltas. It is safe for concurrent use and is meant to
// be plugged into builders via WithProgress.
type ProgressCounter struct {
	done atomic.Int64
}

// Get a ProgressMonitor that feeds this counter.
func (c *ProgressCounter) Monitor() ProgressMonitor {
	return func(delta int) { c.done.Add(int64(delta)) }
}

// Number of primitives processed so far.
func (c *ProgressCounter) Done() int {
	return int(c.done.Load())
}
