package scene

import "github.com/achilleasa/bvhbuild/types"

// A curve control point with a thickness.
type ControlPoint struct {
	P      types.Vec3
	Radius float32
}

// A CurveSet stores cubic curve segments. Each segment uses four consecutive
// control points starting at the index stored in Curves.
type CurveSet struct {
	Geometry

	Points []Buffer[ControlPoint]
	Curves Buffer[uint32]
}

// Create a curve set from per time step control point lists and the
// first control point index of every segment.
func NewCurveSet(points [][]ControlPoint, curves []uint32) *CurveSet {
	c := &CurveSet{Curves: NewBuffer(curves)}
	for _, p := range points {
		c.Points = append(c.Points, NewBuffer(p))
	}
	return c
}

func (c *CurveSet) NumPrimitives() int {
	return c.Curves.Len()
}

// Check that segment i references existing control points with finite
// coordinates and a non-negative radius.
func (c *CurveSet) Valid(i int) bool {
	first := int(c.Curves.At(i))
	for t := range c.Points {
		if first+3 >= c.Points[t].Len() {
			return false
		}
		for _, cp := range c.Segment(i, t) {
			if !isFinite(cp.P) || !(cp.Radius >= 0) {
				return false
			}
		}
	}
	return true
}

// Get the control points of segment i at time step t.
func (c *CurveSet) Segment(i, t int) [4]ControlPoint {
	first := int(c.Curves.At(i))
	pb := &c.Points[t]
	return [4]ControlPoint{pb.At(first), pb.At(first + 1), pb.At(first + 2), pb.At(first + 3)}
}

// Get the bounds of segment i at time step t. The control point hull is
// enlarged by the largest radius.
func (c *CurveSet) Bounds(i, t int) types.AABB {
	seg := c.Segment(i, t)
	var radius float32
	box := types.EmptyAABB()
	for _, cp := range seg {
		box = box.ExtendPoint(cp.P)
		radius = max(radius, cp.Radius)
	}
	return box.Enlarge(radius)
}

func (c *CurveSet) TopologyModified() bool {
	return c.Curves.IsModified()
}

func (c *CurveSet) ClearModified() {
	c.Curves.ClearModified()
	for t := range c.Points {
		c.Points[t].ClearModified()
	}
}
