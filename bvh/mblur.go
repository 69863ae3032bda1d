package bvh

import (
	"context"
	"fmt"

	"github.com/achilleasa/bvhbuild/types"
)

// A Segment holds the input for building the hierarchy of one motion blur
// time segment.
type Segment struct {
	// Primitive references whose bounds enclose the primitive motion over
	// the segment. The builder reorders the slice in place.
	Prims []PrimRef
	Info  BuildInfo

	// Encodes leaves and reports their bounds at both ends of the segment.
	CreateLeaf CreateLeafMBFunc
}

// SegmentFunc returns the build input for segment i in [0, timeSteps-1).
type SegmentFunc func(i int) (Segment, error)

// Construct one hierarchy per time segment. A geometry with T time steps has
// T-1 segments; each segment root is stored at its segment index. The
// returned bounds enclose all segment start and end bounds.
func BuildMB(ctx context.Context, nodes *NodeAllocator, timeSteps int, s Settings, segment SegmentFunc, opts ...Option) ([]NodeRef, types.AABB, error) {
	if timeSteps < 2 {
		return nil, types.EmptyAABB(), fmt.Errorf("%w: got %d", ErrTooFewTimeSteps, timeSteps)
	}

	var (
		roots  = make([]NodeRef, timeSteps-1)
		bounds = types.EmptyAABB()
	)
	for i := range roots {
		seg, err := segment(i)
		if err != nil {
			return nil, types.EmptyAABB(), err
		}

		b, err := newBuilder(nodes, seg.Prims, s, opts)
		if err != nil {
			return nil, types.EmptyAABB(), err
		}
		b.createLeaf = seg.CreateLeaf
		b.motionBlur = true

		root, lb, err := b.build(ctx, seg.Info)
		if err != nil {
			return nil, types.EmptyAABB(), fmt.Errorf("bvh: building time segment %d: %w", i, err)
		}
		roots[i] = root
		bounds = bounds.Extend(lb.Global())
	}
	return roots, bounds, nil
}
