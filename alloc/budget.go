package alloc

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// A Budget caps the number of bytes that a group of arenas may reserve. It is
// shared by all worker arenas of a pool and is the only allocation state that
// is touched by more than one goroutine.
type Budget struct {
	limit int64
	used  atomic.Int64
	peak  atomic.Int64
}

// Create a budget with the given byte limit. A limit <= 0 disables the cap.
func NewBudget(limit int64) *Budget {
	return &Budget{limit: limit}
}

// Reserve n bytes or fail with ErrExhausted.
func (b *Budget) Reserve(n int64) error {
	if b == nil {
		return nil
	}

	for {
		used := b.used.Load()
		if b.limit > 0 && used+n > b.limit {
			return fmt.Errorf("%w: need %s, %s of %s in use", ErrExhausted,
				humanize.Bytes(uint64(n)), humanize.Bytes(uint64(used)), humanize.Bytes(uint64(b.limit)))
		}
		if b.used.CompareAndSwap(used, used+n) {
			b.updatePeak(used + n)
			return nil
		}
	}
}

// Return n previously reserved bytes.
func (b *Budget) Release(n int64) {
	if b == nil {
		return
	}
	b.used.Add(-n)
}

func (b *Budget) updatePeak(v int64) {
	for {
		peak := b.peak.Load()
		if v <= peak || b.peak.CompareAndSwap(peak, v) {
			return
		}
	}
}

// Bytes currently reserved.
func (b *Budget) Used() int64 {
	if b == nil {
		return 0
	}
	return b.used.Load()
}

// Highest number of bytes reserved at any point.
func (b *Budget) Peak() int64 {
	if b == nil {
		return 0
	}
	return b.peak.Load()
}

// The configured limit; <= 0 means unlimited.
func (b *Budget) Limit() int64 {
	if b == nil {
		return 0
	}
	return b.limit
}

func (b *Budget) String() string {
	if b.Limit() <= 0 {
		return fmt.Sprintf("%s used (peak %s, unlimited)", humanize.Bytes(uint64(b.Used())), humanize.Bytes(uint64(b.Peak())))
	}
	return fmt.Sprintf("%s used (peak %s) of %s", humanize.Bytes(uint64(b.Used())), humanize.Bytes(uint64(b.Peak())), humanize.Bytes(uint64(b.Limit())))
}
