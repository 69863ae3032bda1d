package bvh

import (
	"errors"

	"github.com/achilleasa/bvhbuild/alloc"
)

// ArenaConfig controls the block sizes and memory budget of a NodeAllocator.
type ArenaConfig struct {
	// Items per arena block.
	NodeBlockItems int `toml:"node_block_items"`
	LeafBlockItems int `toml:"leaf_block_items"`
	IDBlockItems   int `toml:"id_block_items"`

	// Upper bound for the memory reserved by all workers. A value <= 0
	// disables the limit.
	MaxBytes int64 `toml:"max_bytes"`
}

// Get the default arena configuration.
func DefaultArenaConfig() ArenaConfig {
	return ArenaConfig{
		NodeBlockItems: 256,
		LeafBlockItems: alloc.DefaultBlockItems,
		IDBlockItems:   4 * alloc.DefaultBlockItems,
	}
}

// An Allocator holds the arenas owned by a single build task. It is never
// shared between goroutines while acquired.
type Allocator struct {
	nodes   *alloc.Arena[Node]
	qnodes  *alloc.Arena[QuantizedNode]
	mbnodes *alloc.Arena[MBNode]
	leaves  *alloc.Arena[Leaf]
	ids     *alloc.Arena[uint32]
}

func newAllocator(cfg ArenaConfig, budget *alloc.Budget) (*Allocator, error) {
	var (
		a   Allocator
		err error
	)
	if a.nodes, err = alloc.NewArena[Node](cfg.NodeBlockItems, budget); err != nil {
		return nil, err
	}
	if a.qnodes, err = alloc.NewArena[QuantizedNode](cfg.NodeBlockItems, budget); err != nil {
		return nil, err
	}
	if a.mbnodes, err = alloc.NewArena[MBNode](cfg.NodeBlockItems, budget); err != nil {
		return nil, err
	}
	if a.leaves, err = alloc.NewArena[Leaf](cfg.LeafBlockItems, budget); err != nil {
		return nil, err
	}
	if a.ids, err = alloc.NewArena[uint32](cfg.IDBlockItems, budget); err != nil {
		return nil, err
	}
	return &a, nil
}

// Allocate an internal node.
func (a *Allocator) AllocNode() (*Node, error) {
	return a.nodes.Alloc()
}

// Allocate a quantized internal node.
func (a *Allocator) AllocQuantizedNode() (*QuantizedNode, error) {
	return a.qnodes.Alloc()
}

// Allocate a motion blur internal node.
func (a *Allocator) AllocMBNode() (*MBNode, error) {
	return a.mbnodes.Alloc()
}

// Allocate a leaf with room for n primitive IDs.
func (a *Allocator) AllocLeaf(n int) (*Leaf, error) {
	leaf, err := a.leaves.Alloc()
	if err != nil {
		return nil, err
	}
	leaf.Prims, err = a.ids.AllocN(n)
	if errors.Is(err, alloc.ErrRequestTooLarge) {
		// Oversized leaves bypass the arena.
		leaf.Prims, err = make([]uint32, n), nil
	}
	if err != nil {
		return nil, err
	}
	return leaf, nil
}

// Reset implements alloc.Worker.
func (a *Allocator) Reset() {
	a.nodes.Reset()
	a.qnodes.Reset()
	a.mbnodes.Reset()
	a.leaves.Reset()
	a.ids.Reset()
}

// Shrink implements alloc.Worker.
func (a *Allocator) Shrink() {
	a.nodes.Shrink()
	a.qnodes.Shrink()
	a.mbnodes.Shrink()
	a.leaves.Shrink()
	a.ids.Shrink()
}

// Get the combined arena statistics.
func (a *Allocator) Stats() alloc.Stats {
	return a.nodes.Stats().
		Add(a.qnodes.Stats()).
		Add(a.mbnodes.Stats()).
		Add(a.leaves.Stats()).
		Add(a.ids.Stats())
}

// NodeAllocator hands out per-task Allocators. All memory allocated during a
// build stays alive until the next Reset.
type NodeAllocator struct {
	pool   *alloc.Pool[*Allocator]
	budget *alloc.Budget
}

// Create a node allocator.
func NewNodeAllocator(cfg ArenaConfig) *NodeAllocator {
	def := DefaultArenaConfig()
	if cfg.NodeBlockItems <= 0 {
		cfg.NodeBlockItems = def.NodeBlockItems
	}
	if cfg.LeafBlockItems <= 0 {
		cfg.LeafBlockItems = def.LeafBlockItems
	}
	if cfg.IDBlockItems <= 0 {
		cfg.IDBlockItems = def.IDBlockItems
	}

	budget := alloc.NewBudget(cfg.MaxBytes)
	return &NodeAllocator{
		budget: budget,
		pool: alloc.NewPool(func() (*Allocator, error) {
			return newAllocator(cfg, budget)
		}),
	}
}

// Acquire an allocator for the calling task.
func (na *NodeAllocator) Acquire() (*Allocator, error) {
	return na.pool.Acquire()
}

// Release an allocator obtained via Acquire.
func (na *NodeAllocator) Release(a *Allocator) {
	na.pool.Release(a)
}

// Make all memory available for the next build. Fails if any allocator is
// still acquired.
func (na *NodeAllocator) Reset() error {
	return na.pool.Reset()
}

// Release memory not used by the current hierarchy.
func (na *NodeAllocator) Shrink() error {
	return na.pool.Shrink()
}

// Get the memory budget shared by all allocators.
func (na *NodeAllocator) Budget() *alloc.Budget {
	return na.budget
}

// Number of worker allocators created so far.
func (na *NodeAllocator) Workers() int {
	return na.pool.Len()
}

// Get the combined statistics of all allocators.
func (na *NodeAllocator) Stats() alloc.Stats {
	var stats alloc.Stats
	na.pool.Each(func(a *Allocator) {
		stats = stats.Add(a.Stats())
	})
	return stats
}
