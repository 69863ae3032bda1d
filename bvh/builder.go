package bvh

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/achilleasa/bvhbuild/log"
	"github.com/achilleasa/bvhbuild/parallel"
	"github.com/achilleasa/bvhbuild/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// An Option customizes a build.
type Option func(*builder)

// Report leaf creation progress to monitor.
func WithProgress(monitor ProgressMonitor) Option {
	return func(b *builder) {
		b.progress.monitor = monitor
	}
}

// Limit the number of concurrently running build tasks. By default the
// builder uses one task per available CPU.
func WithWorkers(n int) Option {
	return func(b *builder) {
		b.workers = n
	}
}

type buildStats struct {
	nodes    atomic.Int64
	leaves   atomic.Int64
	tasks    atomic.Int64
	maxDepth atomic.Int64
}

func (s *buildStats) observeDepth(depth int) {
	for {
		cur := s.maxDepth.Load()
		if int64(depth) <= cur || s.maxDepth.CompareAndSwap(cur, int64(depth)) {
			return
		}
	}
}

type builder struct {
	logger log.Logger

	settings Settings
	prims    []PrimRef
	nodes    *NodeAllocator

	// The strategy used for splitting build records.
	splitter splitter

	// Encodes leaves. Static builds wrap their encoder so it reports the
	// record bounds for both ends of the time segment.
	createLeaf CreateLeafMBFunc
	motionBlur bool

	// Bounds the number of concurrently running tasks.
	workers int
	sem     *semaphore.Weighted

	progress progressReporter
	stats    buildStats
}

func newBuilder(nodes *NodeAllocator, prims []PrimRef, s Settings, opts []Option) (*builder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	b := &builder{
		logger:   log.New("bvh builder"),
		settings: s,
		prims:    prims,
		nodes:    nodes,
		splitter: sahSplitter{settings: s},
		workers:  parallel.Workers(),
	}
	for _, opt := range opts {
		opt(b)
	}

	// The calling goroutine counts as a worker.
	b.sem = semaphore.NewWeighted(int64(max(b.workers-1, 0)))
	return b, nil
}

// Construct a hierarchy over prims. The prims slice is reordered in place and
// info must describe its contents. createLeaf is invoked for every leaf; the
// resulting hierarchy stays valid until nodes is reset.
//
// The builder recursively splits build records with the binned surface area
// heuristic until every record fits into a leaf. Records larger than
// Settings.ParallelThreshold are processed by separate tasks; the resulting
// topology does not depend on task scheduling.
func Build(ctx context.Context, nodes *NodeAllocator, prims []PrimRef, info BuildInfo, s Settings, createLeaf CreateLeafFunc, opts ...Option) (NodeRef, types.AABB, error) {
	b, err := newBuilder(nodes, prims, s, opts)
	if err != nil {
		return EmptyRef, types.EmptyAABB(), err
	}
	b.createLeaf = func(prims []PrimRef, rec BuildRecord, a *Allocator) (NodeRef, types.LinearBounds, error) {
		ref, err := createLeaf(prims, rec, a)
		return ref, types.StaticLinearBounds(rec.Info.Geom), err
	}

	ref, bounds, err := b.build(ctx, info)
	if err != nil {
		return EmptyRef, types.EmptyAABB(), err
	}
	return ref, bounds.Bounds0, nil
}

func (b *builder) build(ctx context.Context, info BuildInfo) (NodeRef, types.LinearBounds, error) {
	if info.Count != len(b.prims) {
		return EmptyRef, types.EmptyLinearBounds(), fmt.Errorf("bvh: build info describes %d primitives; got %d", info.Count, len(b.prims))
	}
	if len(b.prims) == 0 {
		return EmptyRef, types.EmptyLinearBounds(), nil
	}

	a, err := b.nodes.Acquire()
	if err != nil {
		return EmptyRef, types.EmptyLinearBounds(), err
	}
	defer b.nodes.Release(a)

	start := time.Now()
	ref, bounds, err := b.recurse(ctx, BuildRecord{Begin: 0, End: len(b.prims), Info: info}, a)
	if err != nil {
		return EmptyRef, types.EmptyLinearBounds(), err
	}

	b.logger.Debugf(
		"BVH build time: %d ms, prims: %d, maxDepth: %d, nodes: %d, leaves: %d, tasks: %d",
		time.Since(start).Nanoseconds()/1e6,
		len(b.prims), b.stats.maxDepth.Load(), b.stats.nodes.Load(), b.stats.leaves.Load(), b.stats.tasks.Load(),
	)
	return ref, bounds, nil
}

// Build the subtree for rec using allocator a.
func (b *builder) recurse(ctx context.Context, rec BuildRecord, a *Allocator) (NodeRef, types.LinearBounds, error) {
	if err := ctx.Err(); err != nil {
		return EmptyRef, types.EmptyLinearBounds(), err
	}
	b.stats.observeDepth(rec.Depth)

	switch {
	case rec.Count() == 0:
		return EmptyRef, types.EmptyLinearBounds(), nil
	case rec.Count() <= b.settings.MaxLeafSize:
		return b.leaf(rec, a)
	}

	children, err := b.splitChildren(rec)
	if err != nil {
		return EmptyRef, types.EmptyLinearBounds(), err
	}
	if len(children) == 1 {
		return b.leaf(rec, a)
	}

	var (
		refs   [MaxBranchingFactor]NodeRef
		bounds [MaxBranchingFactor]types.LinearBounds
	)
	if err := b.recurseChildren(ctx, children, refs[:], bounds[:], a); err != nil {
		return EmptyRef, types.EmptyLinearBounds(), err
	}
	return b.createNode(children, refs[:len(children)], bounds[:len(children)], a)
}

// Split rec into up to BranchingFactor children. The child with the largest
// surface area is split next; ties go to the lowest child index. Children
// that fit into a leaf are never split.
func (b *builder) splitChildren(rec BuildRecord) ([]BuildRecord, error) {
	var (
		children = make([]BuildRecord, 1, MaxBranchingFactor)
		done     [MaxBranchingFactor]bool
	)
	children[0] = rec

	largeLeaf := rec.Depth >= b.settings.MaxDepth
	for len(children) < b.settings.BranchingFactor {
		best := -1
		for i, c := range children {
			if done[i] || c.Count() <= b.settings.MaxLeafSize {
				continue
			}
			if best == -1 || c.Info.Geom.HalfArea() > children[best].Info.Geom.HalfArea() {
				best = i
			}
		}
		if best == -1 {
			break
		}

		left, right, ok, err := b.splitRecord(children[best], largeLeaf)
		if err != nil {
			return nil, err
		}
		if !ok {
			done[best] = true
			continue
		}
		children[best] = left
		children = append(children, right)
	}

	for i := range children {
		children[i].Depth = rec.Depth + 1
	}
	if len(children) == 1 {
		children[0].Depth = rec.Depth
	}
	return children, nil
}

// Split a record that is too large for a leaf in two. Records past the depth
// cap and records without a split cheaper than a leaf are split at the
// median. Returns false if the partitioner rejected the split.
func (b *builder) splitRecord(rec BuildRecord, largeLeaf bool) (left, right BuildRecord, ok bool, err error) {
	if largeLeaf {
		left, right = MedianSplit(b.prims, rec)
		return left, right, true, nil
	}

	split := b.splitter.find(b.prims, rec)
	if split.Valid() && split.Cost < LeafCost(rec.Count(), b.settings) {
		left, right, err = b.splitter.partition(b.prims, rec, split)
		return left, right, err == nil, err
	}

	left, right = MedianSplit(b.prims, rec)
	return left, right, true, nil
}

// Build the subtrees of children. Large children are forked as separate
// tasks while the remaining ones are processed inline using allocator a.
func (b *builder) recurseChildren(ctx context.Context, children []BuildRecord, refs []NodeRef, bounds []types.LinearBounds, a *Allocator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var forked [MaxBranchingFactor]bool
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range children {
		if c.Count() <= b.settings.ParallelThreshold || !b.sem.TryAcquire(1) {
			continue
		}

		forked[i] = true
		b.stats.tasks.Add(1)
		g.Go(func() error {
			defer b.sem.Release(1)

			wa, err := b.nodes.Acquire()
			if err != nil {
				return err
			}
			defer b.nodes.Release(wa)

			refs[i], bounds[i], err = b.recurse(gctx, c, wa)
			return err
		})
	}

	var inlineErr error
	for i, c := range children {
		if forked[i] {
			continue
		}
		var err error
		if refs[i], bounds[i], err = b.recurse(gctx, c, a); err != nil {
			inlineErr = err
			cancel()
			break
		}
	}

	// Errors of cancelled siblings must not mask the error that caused the
	// cancellation.
	werr := g.Wait()
	switch {
	case inlineErr != nil && !errors.Is(inlineErr, context.Canceled):
		return inlineErr
	case werr != nil:
		return werr
	}
	return inlineErr
}

// Allocate an internal node for the given children.
func (b *builder) createNode(children []BuildRecord, refs []NodeRef, bounds []types.LinearBounds, a *Allocator) (NodeRef, types.LinearBounds, error) {
	b.stats.nodes.Add(1)

	switch {
	case b.motionBlur:
		node, err := a.AllocMBNode()
		if err != nil {
			return EmptyRef, types.EmptyLinearBounds(), err
		}
		node.NumChildren = len(children)
		for i := range children {
			node.SetChild(i, refs[i], bounds[i])
		}
		return MotionBlurRef(node), node.ComputeBounds(), nil
	case b.settings.Quantize:
		node, err := a.AllocQuantizedNode()
		if err != nil {
			return EmptyRef, types.EmptyLinearBounds(), err
		}
		var childBounds [MaxBranchingFactor]types.AABB
		node.NumChildren = len(children)
		for i := range children {
			node.Children[i] = refs[i]
			childBounds[i] = bounds[i].Bounds0
		}
		node.SetBounds(childBounds[:len(children)])
		// Decoded child bounds may exceed the exact ones.
		return QuantizedRef(node), types.StaticLinearBounds(node.ComputeBounds()), nil
	default:
		node, err := a.AllocNode()
		if err != nil {
			return EmptyRef, types.EmptyLinearBounds(), err
		}
		node.NumChildren = len(children)
		for i := range children {
			node.SetChild(i, refs[i], bounds[i].Bounds0)
		}
		return InternalRef(node), types.StaticLinearBounds(node.ComputeBounds()), nil
	}
}

func (b *builder) leaf(rec BuildRecord, a *Allocator) (NodeRef, types.LinearBounds, error) {
	if err := checkLeafSize(rec, b.settings); err != nil {
		return EmptyRef, types.EmptyLinearBounds(), err
	}

	ref, bounds, err := b.createLeaf(b.prims, rec, a)
	if err != nil {
		return EmptyRef, types.EmptyLinearBounds(), err
	}

	b.stats.leaves.Add(1)
	b.progress.report(rec.Count())
	return ref, bounds, nil
}
