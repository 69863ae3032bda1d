package bvh

import "github.com/achilleasa/bvhbuild/types"

// A PrimRef is a lightweight handle to a geometric primitive. The builder
// reorders PrimRefs in place; the primitive itself is never touched.
type PrimRef struct {
	Bounds types.AABB
	ID     uint32
}

// Create a new primitive reference.
func NewPrimRef(bounds types.AABB, id uint32) PrimRef {
	return PrimRef{Bounds: bounds, ID: id}
}

// Get the centroid used for binning.
func (p PrimRef) Center() types.Vec3 {
	return p.Bounds.Center()
}

// BuildInfo aggregates statistics over a range of primitive references.
type BuildInfo struct {
	Count int

	// Bounds of the primitives and of their centroids.
	Geom types.AABB
	Cent types.AABB
}

// Create an empty BuildInfo.
func EmptyBuildInfo() BuildInfo {
	return BuildInfo{Geom: types.EmptyAABB(), Cent: types.EmptyAABB()}
}

// Account for a primitive with the given bounds.
func (bi *BuildInfo) Add(bounds types.AABB) {
	bi.Count++
	bi.Geom = bi.Geom.Extend(bounds)
	bi.Cent = bi.Cent.ExtendPoint(bounds.Center())
}

// Account for a primitive reference.
func (bi *BuildInfo) AddPrim(p PrimRef) {
	bi.Add(p.Bounds)
}

// Merge two BuildInfo values. The operation is associative and commutative
// which makes it safe to use as the combine step of a parallel reduction.
func MergeBuildInfo(a, b BuildInfo) BuildInfo {
	return BuildInfo{
		Count: a.Count + b.Count,
		Geom:  a.Geom.Extend(b.Geom),
		Cent:  a.Cent.Extend(b.Cent),
	}
}

// Compute the BuildInfo for a set of primitive references.
func ComputeBuildInfo(prims []PrimRef) BuildInfo {
	bi := EmptyBuildInfo()
	for i := range prims {
		bi.AddPrim(prims[i])
	}
	return bi
}

// A BuildRecord describes a contiguous range [Begin, End) of the shared
// primitive reference array together with its aggregate statistics. Ranges
// of sibling records never overlap.
type BuildRecord struct {
	Begin, End int
	Info       BuildInfo
	Depth      int
}

// Number of primitives in the record.
func (r BuildRecord) Count() int {
	return r.End - r.Begin
}

// Get the primitive references covered by the record.
func (r BuildRecord) Prims(prims []PrimRef) []PrimRef {
	return prims[r.Begin:r.End]
}
