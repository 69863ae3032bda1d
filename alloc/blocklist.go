package alloc

import (
	"iter"
	"sync"

	"github.com/DmitriyVTitov/size"
)

// A fixed-capacity block of items that can be chained into a BlockList.
type Block[T any] struct {
	items []T
	next  *Block[T]
}

// Append an item to the block. Returns false if the block is full.
func (b *Block[T]) Insert(v T) bool {
	if len(b.items) == cap(b.items) {
		return false
	}
	b.items = append(b.items, v)
	return true
}

// Number of items stored in the block.
func (b *Block[T]) Len() int {
	return len(b.items)
}

// Get the i-th item.
func (b *Block[T]) At(i int) T {
	return b.items[i]
}

// A BlockPool recycles blocks of a fixed capacity. Unlike an Arena it is shared
// between workers, so access is serialized with a mutex; blocks are only taken
// and returned once per block fill, which keeps contention low.
type BlockPool[T any] struct {
	mu         sync.Mutex
	budget     *Budget
	capacity   int
	blockBytes int64
	free       []*Block[T]
	allocated  int
}

// Create a block pool whose blocks hold capacity items.
func NewBlockPool[T any](capacity int, budget *Budget) (*BlockPool[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidBlockSize
	}
	var zero T
	itemBytes := int64(size.Of(zero))
	if itemBytes <= 0 {
		itemBytes = 1
	}
	return &BlockPool[T]{
		budget:     budget,
		capacity:   capacity,
		blockBytes: itemBytes * int64(capacity),
	}, nil
}

// Get an empty block.
func (p *BlockPool[T]) Malloc() (*Block[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		return b, nil
	}

	if err := p.budget.Reserve(p.blockBytes); err != nil {
		return nil, err
	}
	p.allocated++
	return &Block[T]{items: make([]T, 0, p.capacity)}, nil
}

// Return a block to the pool.
func (p *BlockPool[T]) Free(b *Block[T]) {
	clear(b.items)
	b.items = b.items[:0]
	b.next = nil

	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Number of blocks created by the pool.
func (p *BlockPool[T]) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Number of blocks currently waiting for reuse.
func (p *BlockPool[T]) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// A singly-linked list of blocks. Blocks are appended at the tail and taken
// from the head so iteration order matches insertion order.
type BlockList[T any] struct {
	head, tail *Block[T]
}

// Link a block at the end of the list and return it.
func (l *BlockList[T]) Insert(b *Block[T]) *Block[T] {
	b.next = nil
	if l.tail == nil {
		l.head = b
	} else {
		l.tail.next = b
	}
	l.tail = b
	return b
}

// Unlink and return the first block or nil if the list is empty.
func (l *BlockList[T]) Take() *Block[T] {
	b := l.head
	if b == nil {
		return nil
	}
	l.head = b.next
	if l.head == nil {
		l.tail = nil
	}
	b.next = nil
	return b
}

// Append an item, linking a new block from pool when the tail is full.
func (l *BlockList[T]) Append(pool *BlockPool[T], v T) error {
	if l.tail != nil && l.tail.Insert(v) {
		return nil
	}
	b, err := pool.Malloc()
	if err != nil {
		return err
	}
	l.Insert(b).Insert(v)
	return nil
}

// Total number of items in the list.
func (l *BlockList[T]) Len() int {
	n := 0
	for b := l.head; b != nil; b = b.next {
		n += len(b.items)
	}
	return n
}

// Iterate all items in insertion order.
func (l *BlockList[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for b := l.head; b != nil; b = b.next {
			for _, v := range b.items {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Return all blocks to the pool.
func (l *BlockList[T]) Release(pool *BlockPool[T]) {
	for b := l.Take(); b != nil; b = l.Take() {
		pool.Free(b)
	}
}
