package bvh

import (
	"context"
	"time"

	"github.com/achilleasa/bvhbuild/log"
	"github.com/achilleasa/bvhbuild/types"
	"golang.org/x/sync/errgroup"
)

// LeafBounds computes the current bounds of a leaf.
type LeafBounds interface {
	LeafBounds(leaf NodeRef) types.AABB
}

// LeafBoundsFunc adapts a function to the LeafBounds interface.
type LeafBoundsFunc func(leaf NodeRef) types.AABB

func (fn LeafBoundsFunc) LeafBounds(leaf NodeRef) types.AABB {
	return fn(leaf)
}

// Subtrees rooted above this depth are refitted by separate tasks.
const defaultRefitParallelDepth = 4

// A Refitter recomputes the bounds of an existing hierarchy bottom-up without
// changing its topology. It must only be used when primitive positions
// changed but the primitive set and the leaf assignment did not.
type Refitter struct {
	logger        log.Logger
	leafBounds    LeafBounds
	parallelDepth int
}

// Create a refitter that queries leaf bounds from lb.
func NewRefitter(lb LeafBounds) *Refitter {
	return &Refitter{
		logger:        log.New("bvh refit"),
		leafBounds:    lb,
		parallelDepth: defaultRefitParallelDepth,
	}
}

// Refit the hierarchy rooted at root and return the new root bounds.
// Hierarchies built with motion blur are rejected with ErrMotionBlurRefit.
func (r *Refitter) Refit(ctx context.Context, root NodeRef) (types.AABB, error) {
	start := time.Now()
	bounds, err := r.refit(ctx, root, 0)
	if err != nil {
		return types.EmptyAABB(), err
	}
	r.logger.Debugf("BVH refit time: %d ms", time.Since(start).Nanoseconds()/1e6)
	return bounds, nil
}

func (r *Refitter) refit(ctx context.Context, ref NodeRef, depth int) (types.AABB, error) {
	switch ref.Kind() {
	case KindEmpty:
		return types.EmptyAABB(), nil
	case KindLeaf:
		return r.leafBounds.LeafBounds(ref), nil
	case KindMotionBlur:
		return types.EmptyAABB(), ErrMotionBlurRefit
	}

	var bounds [MaxBranchingFactor]types.AABB
	if err := r.refitChildren(ctx, ref, depth, bounds[:ref.NumChildren()]); err != nil {
		return types.EmptyAABB(), err
	}

	switch ref.Kind() {
	case KindQuantized:
		node := ref.Quantized()
		node.SetBounds(bounds[:node.NumChildren])
		return node.ComputeBounds(), nil
	default:
		node := ref.Node()
		for i := 0; i < node.NumChildren; i++ {
			node.Bounds[i] = bounds[i]
		}
		return node.ComputeBounds(), nil
	}
}

func (r *Refitter) refitChildren(ctx context.Context, ref NodeRef, depth int, bounds []types.AABB) error {
	if depth >= r.parallelDepth {
		for i := range bounds {
			var err error
			if bounds[i], err = r.refit(ctx, ref.Child(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range bounds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var err error
			bounds[i], err = r.refit(gctx, ref.Child(i), depth+1)
			return err
		})
	}
	return g.Wait()
}
