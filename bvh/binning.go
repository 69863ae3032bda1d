package bvh

import (
	"cmp"
	"math"
	"slices"

	"github.com/achilleasa/bvhbuild/types"
)

// A Split describes how a build record should be partitioned. Splits are
// produced by a splitter and only make sense for the record they were computed
// for.
type Split struct {
	// Estimated SAH cost of the split. Invalid splits have an infinite cost.
	Cost float32

	// Binning axis and the first bin that belongs to the right side.
	Axis int
	Pos  int

	mapping binMapping
	strand  *StrandSplit
}

// Returns true if the split produces two non-empty sides.
func (s Split) Valid() bool {
	return !math.IsInf(float64(s.Cost), 1)
}

func invalidSplit() Split {
	return Split{Cost: float32(math.Inf(1)), Axis: -1}
}

// Maps primitive centroids to bins along each axis.
type binMapping struct {
	num   int
	ofs   types.Vec3
	scale types.Vec3
}

func newBinMapping(cent types.AABB, binCount int) binMapping {
	m := binMapping{num: binCount, ofs: cent.Min}
	size := cent.Size()
	for axis := 0; axis < 3; axis++ {
		if size[axis] > 0 {
			// Scale slightly below num so the max centroid lands in the last bin.
			m.scale[axis] = 0.99 * float32(binCount) / size[axis]
		}
	}
	return m
}

// Get the bin for a centroid along axis. The result is always in [0, num).
func (m binMapping) bin(c types.Vec3, axis int) int {
	b := int((c[axis] - m.ofs[axis]) * m.scale[axis])
	return min(max(b, 0), m.num-1)
}

type binArray[T any] [3][MaxBins]T

// Get the SAH cost of turning count primitives into a leaf.
func LeafCost(count int, s Settings) float32 {
	return float32(count) * s.IntersectionCost
}

// Find the cheapest binned SAH split for a build record. The split cost is
//
//	traversalCost + (leftArea*leftCount + rightArea*rightCount) / parentArea * intersectionCost
//
// Ties are resolved in favour of the lowest axis and then the lowest split
// position. An invalid split is returned when every candidate leaves one side
// empty.
func FindSplit(prims []PrimRef, rec BuildRecord, s Settings) Split {
	if rec.Count() < 2 {
		return invalidSplit()
	}

	m := newBinMapping(rec.Info.Cent, s.BinCount)

	var (
		counts binArray[int]
		bounds binArray[types.AABB]
	)
	for axis := 0; axis < 3; axis++ {
		for b := 0; b < m.num; b++ {
			bounds[axis][b] = types.EmptyAABB()
		}
	}

	for _, p := range rec.Prims(prims) {
		c := p.Center()
		for axis := 0; axis < 3; axis++ {
			b := m.bin(c, axis)
			counts[axis][b]++
			bounds[axis][b] = bounds[axis][b].Extend(p.Bounds)
		}
	}

	// Sweep from the right and store the area and count of every suffix.
	var (
		rCounts binArray[int]
		rAreas  binArray[float32]
	)
	for axis := 0; axis < 3; axis++ {
		box := types.EmptyAABB()
		n := 0
		for b := m.num - 1; b > 0; b-- {
			box = box.Extend(bounds[axis][b])
			n += counts[axis][b]
			rCounts[axis][b] = n
			rAreas[axis][b] = box.HalfArea()
		}
	}

	var invParentArea float32
	if pa := rec.Info.Geom.HalfArea(); pa > 0 {
		invParentArea = 1 / pa
	}

	best := invalidSplit()
	for axis := 0; axis < 3; axis++ {
		box := types.EmptyAABB()
		n := 0
		for b := 1; b < m.num; b++ {
			box = box.Extend(bounds[axis][b-1])
			n += counts[axis][b-1]
			if n == 0 || rCounts[axis][b] == 0 {
				continue
			}

			sah := box.HalfArea()*float32(n) + rAreas[axis][b]*float32(rCounts[axis][b])
			cost := s.TraversalCost + sah*invParentArea*s.IntersectionCost
			if cost < best.Cost {
				best = Split{Cost: cost, Axis: axis, Pos: b, mapping: m}
			}
		}
	}
	return best
}

// Partition the record range in place so all primitives left of the split
// come first. Returns the two child records.
func Partition(prims []PrimRef, rec BuildRecord, split Split) (left, right BuildRecord) {
	linfo, rinfo := EmptyBuildInfo(), EmptyBuildInfo()

	i, j := rec.Begin, rec.End
	for i < j {
		if split.mapping.bin(prims[i].Center(), split.Axis) < split.Pos {
			linfo.AddPrim(prims[i])
			i++
			continue
		}
		j--
		prims[i], prims[j] = prims[j], prims[i]
		rinfo.AddPrim(prims[j])
	}

	left = BuildRecord{Begin: rec.Begin, End: i, Info: linfo, Depth: rec.Depth + 1}
	right = BuildRecord{Begin: i, End: rec.End, Info: rinfo, Depth: rec.Depth + 1}
	return left, right
}

// Split a record into two halves of equal primitive count along the axis of
// largest centroid extent. Primitives are ordered by centroid and then by ID
// so the result does not depend on the input order of coincident primitives.
func MedianSplit(prims []PrimRef, rec BuildRecord) (left, right BuildRecord) {
	axis := rec.Info.Cent.Size().MaxAxis()
	if rec.Info.Cent.Size() == (types.Vec3{}) {
		axis = rec.Info.Geom.Size().MaxAxis()
	}

	slices.SortFunc(rec.Prims(prims), func(a, b PrimRef) int {
		if c := cmp.Compare(a.Center()[axis], b.Center()[axis]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	mid := rec.Begin + rec.Count()/2
	left = BuildRecord{Begin: rec.Begin, End: mid, Info: ComputeBuildInfo(prims[rec.Begin:mid]), Depth: rec.Depth + 1}
	right = BuildRecord{Begin: mid, End: rec.End, Info: ComputeBuildInfo(prims[mid:rec.End]), Depth: rec.Depth + 1}
	return left, right
}
