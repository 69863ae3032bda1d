package bvh

import (
	"iter"
	"math"
	"slices"

	"github.com/achilleasa/bvhbuild/alloc"
	"github.com/achilleasa/bvhbuild/types"
)

// A Curve is a cubic curve segment with a constant radius.
type Curve struct {
	P0, P1, P2, P3 types.Vec3
	Radius         float32
}

// Get the normalized direction from the first to the last control point.
// Zero-length curves have a zero direction.
func (c Curve) Direction() types.Vec3 {
	return c.P3.Sub(c.P0).Normalize()
}

// Get the world space bounds of the curve.
func (c Curve) Bounds() types.AABB {
	return types.AABBFromPoints(c.P0, c.P1, c.P2, c.P3).Enlarge(c.Radius)
}

// Get the bounds of the curve expressed in the coordinates of frame f.
func (c Curve) BoundsInFrame(f types.Frame) types.AABB {
	return types.AABBFromPoints(
		f.Transform(c.P0), f.Transform(c.P1), f.Transform(c.P2), f.Transform(c.P3),
	).Enlarge(c.Radius)
}

// A CurveSource resolves primitive IDs to curves.
type CurveSource interface {
	Curve(id uint32) Curve
}

// A StrandSplit separates curves into two groups based on their dominant
// direction.
type StrandSplit struct {
	Axis0, Axis1 types.Vec3

	// Cost is num0*halfArea(bounds0) + num1*halfArea(bounds1) where the
	// bounds of each group are measured in a frame aligned to its axis. The
	// cost is infinite if one of the groups is empty.
	Cost       float32
	Num0, Num1 int
}

// Returns true if both groups are non-empty.
func (s StrandSplit) Valid() bool {
	return !math.IsInf(float64(s.Cost), 1)
}

// Get the group (0 or 1) a curve belongs to. Curves whose direction aligns
// equally well with both axes, including zero-length curves, go to group 1.
func (s StrandSplit) side(c Curve) int {
	dir := c.Direction()
	cos0 := abs32(dir.Dot(s.Axis0))
	cos1 := abs32(dir.Dot(s.Axis1))
	if cos0 > cos1 {
		return 0
	}
	return 1
}

// Find a strand split for a set of curve primitives. The direction of the
// first curve with non-zero length becomes axis0 and the direction of the
// curve least aligned with it becomes axis1. Zero-length curves never seed
// an axis.
func FindStrandSplit(prims iter.Seq[PrimRef], curves CurveSource) StrandSplit {
	split := StrandSplit{Cost: float32(math.Inf(1))}

	var (
		seeded  bool
		bestCos = float32(1)
	)
	for p := range prims {
		dir := curves.Curve(p.ID).Direction()
		if dir == (types.Vec3{}) {
			continue
		}
		if !seeded {
			seeded = true
			split.Axis0 = dir
			split.Axis1 = dir
			continue
		}
		if cos := abs32(dir.Dot(split.Axis0)); cos < bestCos {
			bestCos = cos
			split.Axis1 = dir
		}
	}
	if !seeded {
		// Without an axis every curve ends up in the second group.
		for range prims {
			split.Num1++
		}
		return split
	}

	var (
		frame0  = types.FrameFromAxis(split.Axis0)
		frame1  = types.FrameFromAxis(split.Axis1)
		bounds0 = types.EmptyAABB()
		bounds1 = types.EmptyAABB()
	)
	for p := range prims {
		c := curves.Curve(p.ID)
		if split.side(c) == 0 {
			split.Num0++
			bounds0 = bounds0.Extend(c.BoundsInFrame(frame0))
		} else {
			split.Num1++
			bounds1 = bounds1.Extend(c.BoundsInFrame(frame1))
		}
	}

	if split.Num0 != 0 && split.Num1 != 0 {
		split.Cost = float32(split.Num0)*bounds0.HalfArea() + float32(split.Num1)*bounds1.HalfArea()
	}
	return split
}

// Move the primitives of list into two new lists, one per group. Blocks of
// list are returned to pool as soon as they are drained so list is empty
// afterwards.
func (s StrandSplit) Split(pool *alloc.BlockPool[PrimRef], list *alloc.BlockList[PrimRef], curves CurveSource) (left, right alloc.BlockList[PrimRef], linfo, rinfo BuildInfo, err error) {
	linfo, rinfo = EmptyBuildInfo(), EmptyBuildInfo()

	for block := list.Take(); block != nil; block = list.Take() {
		for i := 0; i < block.Len(); i++ {
			p := block.At(i)
			if s.side(curves.Curve(p.ID)) == 0 {
				linfo.AddPrim(p)
				err = left.Append(pool, p)
			} else {
				rinfo.AddPrim(p)
				err = right.Append(pool, p)
			}
			if err != nil {
				pool.Free(block)
				list.Release(pool)
				left.Release(pool)
				right.Release(pool)
				return left, right, linfo, rinfo, err
			}
		}
		pool.Free(block)
	}
	return left, right, linfo, rinfo, nil
}

// StrandFallback selects what happens when the strand heuristic cannot
// separate a set of curves.
type StrandFallback uint8

const (
	// Split the record with the binned surface area heuristic instead.
	StrandFallbackSAH StrandFallback = iota

	// Report that no split exists so the builder creates a leaf when the
	// record is small enough and a median split otherwise.
	StrandFallbackLeaf
)

// Split curve records with the strand heuristic. Blocks for the temporary
// primitive lists are taken from pool.
func WithStrandSplitter(curves CurveSource, pool *alloc.BlockPool[PrimRef], fallback StrandFallback) Option {
	return func(b *builder) {
		b.splitter = &strandSplitter{
			sah:      sahSplitter{settings: b.settings},
			curves:   curves,
			pool:     pool,
			fallback: fallback,
		}
	}
}

type strandSplitter struct {
	sah      sahSplitter
	curves   CurveSource
	pool     *alloc.BlockPool[PrimRef]
	fallback StrandFallback
}

func (s *strandSplitter) find(prims []PrimRef, rec BuildRecord) Split {
	strand := FindStrandSplit(slices.Values(rec.Prims(prims)), s.curves)
	if !strand.Valid() {
		if s.fallback == StrandFallbackLeaf {
			return invalidSplit()
		}
		return s.sah.find(prims, rec)
	}

	var invParentArea float32
	if pa := rec.Info.Geom.HalfArea(); pa > 0 {
		invParentArea = 1 / pa
	}
	settings := s.sah.settings
	return Split{
		Cost:   settings.TraversalCost + strand.Cost*invParentArea*settings.IntersectionCost,
		Axis:   -1,
		strand: &strand,
	}
}

func (s *strandSplitter) partition(prims []PrimRef, rec BuildRecord, split Split) (left, right BuildRecord, err error) {
	if split.strand == nil {
		return s.sah.partition(prims, rec, split)
	}

	var list alloc.BlockList[PrimRef]
	for _, p := range rec.Prims(prims) {
		if err = list.Append(s.pool, p); err != nil {
			list.Release(s.pool)
			return left, right, err
		}
	}

	llist, rlist, linfo, rinfo, err := split.strand.Split(s.pool, &list, s.curves)
	if err != nil {
		return left, right, err
	}
	defer llist.Release(s.pool)
	defer rlist.Release(s.pool)

	i := rec.Begin
	for p := range llist.All() {
		prims[i] = p
		i++
	}
	mid := i
	for p := range rlist.All() {
		prims[i] = p
		i++
	}

	left = BuildRecord{Begin: rec.Begin, End: mid, Info: linfo, Depth: rec.Depth + 1}
	right = BuildRecord{Begin: mid, End: rec.End, Info: rinfo, Depth: rec.Depth + 1}
	return left, right, nil
}

func abs32(v float32) float32 {
	return math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
}
