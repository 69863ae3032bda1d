package accel

import (
	"context"
	"fmt"

	"github.com/achilleasa/bvhbuild/bvh"
	"github.com/achilleasa/bvhbuild/parallel"
	"github.com/achilleasa/bvhbuild/types"
)

// Number of faces or segments gathered by a single task.
const collectGrain = 4096

// A primSink receives the primitives produced by one chunk of the fill pass
// and writes them to the slots reserved for the chunk by the count pass.
type primSink struct {
	dst      []bvh.PrimRef
	base     uint32
	n        int
	info     bvh.BuildInfo
	overflow bool
}

// Append a primitive and return its global ID. Returns false if the chunk
// produces more primitives than it reported in the count pass.
func (s *primSink) add(bounds types.AABB) (uint32, bool) {
	if s.n == len(s.dst) {
		s.overflow = true
		return 0, false
	}
	id := s.base + uint32(s.n)
	s.dst[s.n] = bvh.NewPrimRef(bounds, id)
	s.info.AddPrim(s.dst[s.n])
	s.n++
	return id, true
}

// Count the primitives of a nested (geometry, primitive range) iteration
// space. The returned state must be passed to fillPrims.
func countPrims(ctx context.Context, sizes []int, count func(c parallel.Chunk) int) (*parallel.PrefixSumState, int, error) {
	state := parallel.NewPrefixSumState(sizes, collectGrain)
	total, err := state.Count(ctx, func(c parallel.Chunk) (int, error) {
		return count(c), nil
	})
	return state, total, err
}

// Run the fill pass for a counted iteration space. dst must have room for
// the counted total. Every chunk must produce exactly the number of
// primitives it counted; otherwise ErrCountMismatch is returned.
func fillPrims(ctx context.Context, state *parallel.PrefixSumState, dst []bvh.PrimRef, fill func(c parallel.Chunk, sink *primSink)) (bvh.BuildInfo, error) {
	return parallel.Fill(ctx, state, bvh.EmptyBuildInfo(),
		func(i int, c parallel.Chunk, base int) (bvh.BuildInfo, error) {
			sink := &primSink{
				dst:  dst[base : base+state.Counted(i)],
				base: uint32(base),
				info: bvh.EmptyBuildInfo(),
			}
			fill(c, sink)
			if sink.overflow || sink.n != len(sink.dst) {
				return sink.info, fmt.Errorf("%w: geometry %d, range [%d, %d): counted %d", ErrCountMismatch, c.Outer, c.Begin, c.End, len(sink.dst))
			}
			return sink.info, nil
		},
		bvh.MergeBuildInfo,
	)
}

// Build the input of one motion blur segment. Primitive references are
// enlarged to the bounds swept over the segment and leaves report the exact
// bounds of their primitives at both segment ends.
func segmentInput(ctx context.Context, prims []bvh.PrimRef, boundsAt func(id uint32, t int) types.AABB, createLeaf bvh.CreateLeafFunc) bvh.SegmentFunc {
	linearBounds := func(id uint32, seg int) types.LinearBounds {
		return types.LinearBounds{Bounds0: boundsAt(id, seg), Bounds1: boundsAt(id, seg+1)}
	}

	return func(seg int) (bvh.Segment, error) {
		out := make([]bvh.PrimRef, len(prims))
		info, err := parallel.Reduce(ctx, len(prims), collectGrain, bvh.EmptyBuildInfo(),
			func(r parallel.Range) (bvh.BuildInfo, error) {
				info := bvh.EmptyBuildInfo()
				for i := r.Begin; i < r.End; i++ {
					id := prims[i].ID
					out[i] = bvh.NewPrimRef(linearBounds(id, seg).Global(), id)
					info.AddPrim(out[i])
				}
				return info, nil
			},
			bvh.MergeBuildInfo,
		)
		if err != nil {
			return bvh.Segment{}, err
		}

		return bvh.Segment{
			Prims: out,
			Info:  info,
			CreateLeaf: func(prims []bvh.PrimRef, rec bvh.BuildRecord, a *bvh.Allocator) (bvh.NodeRef, types.LinearBounds, error) {
				ref, err := createLeaf(prims, rec, a)
				if err != nil {
					return bvh.EmptyRef, types.EmptyLinearBounds(), err
				}
				lb := types.EmptyLinearBounds()
				for _, p := range rec.Prims(prims) {
					lb = lb.Extend(linearBounds(p.ID, seg))
				}
				return ref, lb, nil
			},
		}, nil
	}
}
