package types

import "math"

// An axis aligned bounding box. The zero value is a degenerate box at the
// origin; use EmptyAABB to obtain a box that any Extend call replaces.
type AABB struct {
	Min Vec3
	Max Vec3
}

// Create an empty bounding box.
func EmptyAABB() AABB {
	return AABB{
		Min: Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Create a bounding box enclosing a set of points.
func AABBFromPoints(points ...Vec3) AABB {
	box := EmptyAABB()
	for _, p := range points {
		box = box.ExtendPoint(p)
	}
	return box
}

// Returns true if the box contains no points.
func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Grow the box to include a point.
func (b AABB) ExtendPoint(p Vec3) AABB {
	return AABB{Min: MinVec3(b.Min, p), Max: MaxVec3(b.Max, p)}
}

// Grow the box to include another box.
func (b AABB) Extend(other AABB) AABB {
	return AABB{Min: MinVec3(b.Min, other.Min), Max: MaxVec3(b.Max, other.Max)}
}

// Union of two boxes.
func Union(a, b AABB) AABB {
	return a.Extend(b)
}

// Intersection of two boxes. The result may be empty.
func (b AABB) Intersect(other AABB) AABB {
	return AABB{Min: MaxVec3(b.Min, other.Min), Max: MinVec3(b.Max, other.Max)}
}

// Get box dimensions. Empty boxes report a zero size.
func (b AABB) Size() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Get the box center.
func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Get twice the box center. Binning only needs relative centroid positions
// so the multiplication can be skipped.
func (b AABB) Center2() Vec3 {
	return b.Min.Add(b.Max)
}

// Half of the box surface area.
func (b AABB) HalfArea() float32 {
	d := b.Size()
	return d[0]*d[1] + d[1]*d[2] + d[0]*d[2]
}

// Box surface area.
func (b AABB) Area() float32 {
	return 2 * b.HalfArea()
}

// Returns true if other is fully enclosed by this box. Empty boxes are
// enclosed by every box.
func (b AABB) Contains(other AABB) bool {
	if other.IsEmpty() {
		return true
	}
	for axis := 0; axis < 3; axis++ {
		if other.Min[axis] < b.Min[axis] || other.Max[axis] > b.Max[axis] {
			return false
		}
	}
	return true
}

// Returns true if the point lies inside the box (inclusive).
func (b AABB) ContainsPoint(p Vec3) bool {
	for axis := 0; axis < 3; axis++ {
		if p[axis] < b.Min[axis] || p[axis] > b.Max[axis] {
			return false
		}
	}
	return true
}

// Grow the box by one ulp in every direction.
func (b AABB) RoundOut() AABB {
	if b.IsEmpty() {
		return b
	}
	var out AABB
	for axis := 0; axis < 3; axis++ {
		out.Min[axis] = math.Nextafter32(b.Min[axis], float32(math.Inf(-1)))
		out.Max[axis] = math.Nextafter32(b.Max[axis], float32(math.Inf(1)))
	}
	return out
}

// Pad the box by d on every side.
func (b AABB) Enlarge(d float32) AABB {
	if b.IsEmpty() {
		return b
	}
	return AABB{Min: b.Min.Sub(Splat(d)), Max: b.Max.Add(Splat(d))}
}

// A pair of bounding boxes describing the motion of a primitive over one
// time segment.
type LinearBounds struct {
	Bounds0 AABB
	Bounds1 AABB
}

// Create empty linear bounds.
func EmptyLinearBounds() LinearBounds {
	return LinearBounds{Bounds0: EmptyAABB(), Bounds1: EmptyAABB()}
}

// Create linear bounds for a static box.
func StaticLinearBounds(b AABB) LinearBounds {
	return LinearBounds{Bounds0: b, Bounds1: b}
}

// Grow both ends of the segment.
func (lb LinearBounds) Extend(other LinearBounds) LinearBounds {
	return LinearBounds{
		Bounds0: lb.Bounds0.Extend(other.Bounds0),
		Bounds1: lb.Bounds1.Extend(other.Bounds1),
	}
}

// Get the box enclosing the primitive during the whole segment.
func (lb LinearBounds) Global() AABB {
	return lb.Bounds0.Extend(lb.Bounds1)
}

// Interpolate the bounds at time t in [0, 1].
func (lb LinearBounds) Interpolate(t float32) AABB {
	return AABB{
		Min: Lerp(lb.Bounds0.Min, lb.Bounds1.Min, t),
		Max: Lerp(lb.Bounds0.Max, lb.Bounds1.Max, t),
	}
}
