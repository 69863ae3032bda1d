package alloc

import (
	"fmt"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
)

// Default number of items per arena block.
const DefaultBlockItems = 1024

// An Arena is a single-owner bump allocator that hands out items of type T
// from a chain of fixed-capacity blocks. Arenas are not safe for concurrent
// use; each worker owns its own arena for the duration of a task.
//
// Reset marks all blocks as available without releasing their memory so
// subsequent builds reuse the same blocks.
type Arena[T any] struct {
	budget     *Budget
	blockItems int
	itemBytes  int64

	blocks [][]T

	// The block currently being filled and the number of items used in it.
	cur  int
	used int

	// Items handed out since the last reset.
	allocated int
}

// Create a new arena whose blocks hold blockItems items. All block
// reservations are charged against budget (which may be nil).
func NewArena[T any](blockItems int, budget *Budget) (*Arena[T], error) {
	if blockItems <= 0 {
		return nil, ErrInvalidBlockSize
	}

	var zero T
	itemBytes := int64(size.Of(zero))
	if itemBytes <= 0 {
		itemBytes = 1
	}

	return &Arena[T]{
		budget:     budget,
		blockItems: blockItems,
		itemBytes:  itemBytes,
		cur:        -1,
	}, nil
}

// Allocate a single zeroed item.
func (a *Arena[T]) Alloc() (*T, error) {
	if a.cur < 0 || a.used == a.blockItems {
		if err := a.nextBlock(); err != nil {
			return nil, err
		}
	}

	item := &a.blocks[a.cur][a.used]
	var zero T
	*item = zero
	a.used++
	a.allocated++
	return item, nil
}

// Allocate n contiguous zeroed items. Requests that do not fit in the
// remaining space of the current block skip to the next block.
func (a *Arena[T]) AllocN(n int) ([]T, error) {
	if n > a.blockItems {
		return nil, fmt.Errorf("%w: %d items requested, block holds %d", ErrRequestTooLarge, n, a.blockItems)
	}
	if n <= 0 {
		return nil, nil
	}

	if a.cur < 0 || a.blockItems-a.used < n {
		if err := a.nextBlock(); err != nil {
			return nil, err
		}
	}

	items := a.blocks[a.cur][a.used : a.used+n : a.used+n]
	clear(items)
	a.used += n
	a.allocated += n
	return items, nil
}

// Advance to the next block, reusing a retained block when one is available.
func (a *Arena[T]) nextBlock() error {
	if a.cur+1 < len(a.blocks) {
		a.cur++
		a.used = 0
		return nil
	}

	if err := a.budget.Reserve(a.blockBytes()); err != nil {
		return err
	}
	a.blocks = append(a.blocks, make([]T, a.blockItems))
	a.cur = len(a.blocks) - 1
	a.used = 0
	return nil
}

func (a *Arena[T]) blockBytes() int64 {
	return a.itemBytes * int64(a.blockItems)
}

// Mark all blocks as available. Memory is retained for reuse.
func (a *Arena[T]) Reset() {
	a.cur = -1
	a.used = 0
	a.allocated = 0
}

// Release blocks that are not needed by the current allocations back to the
// budget.
func (a *Arena[T]) Shrink() {
	keep := a.cur + 1
	for i := keep; i < len(a.blocks); i++ {
		a.blocks[i] = nil
		a.budget.Release(a.blockBytes())
	}
	a.blocks = a.blocks[:keep]
}

// Get arena usage statistics.
func (a *Arena[T]) Stats() Stats {
	return Stats{
		Blocks:        len(a.blocks),
		ActiveBlocks:  a.cur + 1,
		Items:         a.allocated,
		BytesReserved: int64(len(a.blocks)) * a.blockBytes(),
		BytesUsed:     int64(a.allocated) * a.itemBytes,
	}
}

// Arena usage statistics.
type Stats struct {
	// Blocks retained by the arena and blocks in use since the last reset.
	Blocks       int
	ActiveBlocks int

	// Items handed out since the last reset.
	Items int

	BytesReserved int64
	BytesUsed     int64
}

// Combine two stat sets.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		Blocks:        s.Blocks + other.Blocks,
		ActiveBlocks:  s.ActiveBlocks + other.ActiveBlocks,
		Items:         s.Items + other.Items,
		BytesReserved: s.BytesReserved + other.BytesReserved,
		BytesUsed:     s.BytesUsed + other.BytesUsed,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("%d items in %d/%d blocks, %s used of %s reserved",
		s.Items, s.ActiveBlocks, s.Blocks,
		humanize.Bytes(uint64(s.BytesUsed)), humanize.Bytes(uint64(s.BytesReserved)))
}
