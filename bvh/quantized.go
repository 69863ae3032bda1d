package bvh

import (
	"math"

	"github.com/achilleasa/bvhbuild/types"
)

const quantMax = math.MaxUint8

// QuantizedNode is an internal node that stores child bounds as 8-bit offsets
// relative to the node bounds. Quantization always rounds outwards so the
// decoded child bounds contain the exact ones.
type QuantizedNode struct {
	NumChildren int
	Children    [MaxBranchingFactor]NodeRef

	Origin types.Vec3
	Scale  types.Vec3

	Lower [MaxBranchingFactor][3]uint8
	Upper [MaxBranchingFactor][3]uint8

	// Marks children with empty bounds which cannot be encoded.
	empty [MaxBranchingFactor]bool
}

// Quantize a set of child bounds. Refitting re-quantizes in place by calling
// SetBounds again.
func (n *QuantizedNode) SetBounds(bounds []types.AABB) {
	union := types.EmptyAABB()
	for _, b := range bounds {
		union = union.Extend(b)
	}

	if union.IsEmpty() {
		n.Origin, n.Scale = types.Vec3{}, types.Vec3{}
	} else {
		n.Origin = union.Min
		for axis := 0; axis < 3; axis++ {
			n.Scale[axis] = quantScale(union.Min[axis], union.Max[axis])
		}
	}

	for i, b := range bounds {
		if b.IsEmpty() {
			n.empty[i] = true
			continue
		}
		n.empty[i] = false
		for axis := 0; axis < 3; axis++ {
			n.Lower[i][axis] = n.quantizeDown(b.Min[axis], axis)
			n.Upper[i][axis] = n.quantizeUp(b.Max[axis], axis)
		}
	}
}

// Decode the bounds of child i.
func (n *QuantizedNode) ChildBounds(i int) types.AABB {
	if n.empty[i] {
		return types.EmptyAABB()
	}
	var out types.AABB
	for axis := 0; axis < 3; axis++ {
		out.Min[axis] = n.dequantize(n.Lower[i][axis], axis)
		out.Max[axis] = n.dequantize(n.Upper[i][axis], axis)
	}
	return out
}

// Get the union of the decoded child bounds.
func (n *QuantizedNode) ComputeBounds() types.AABB {
	box := types.EmptyAABB()
	for i := 0; i < n.NumChildren; i++ {
		box = box.Extend(n.ChildBounds(i))
	}
	return box
}

func (n *QuantizedNode) dequantize(q uint8, axis int) float32 {
	// The explicit conversion prevents fused multiply-add so encode and
	// decode round identically.
	return n.Origin[axis] + float32(float32(q)*n.Scale[axis])
}

func (n *QuantizedNode) quantizeDown(v float32, axis int) uint8 {
	if n.Scale[axis] == 0 {
		return 0
	}
	q := clampQuant(math.Floor(float64((v - n.Origin[axis]) / n.Scale[axis])))
	for q > 0 && n.dequantize(q, axis) > v {
		q--
	}
	return q
}

func (n *QuantizedNode) quantizeUp(v float32, axis int) uint8 {
	if n.Scale[axis] == 0 {
		return 0
	}
	q := clampQuant(math.Ceil(float64((v - n.Origin[axis]) / n.Scale[axis])))
	for q < quantMax && n.dequantize(q, axis) < v {
		q++
	}
	return q
}

// Pick the smallest step such that origin + 255*step reaches max.
func quantScale(lo, hi float32) float32 {
	if hi <= lo {
		return 0
	}
	s := math.Nextafter32((hi-lo)/quantMax, float32(math.Inf(1)))
	for lo+float32(quantMax*s) < hi {
		s = math.Nextafter32(s, float32(math.Inf(1)))
	}
	return s
}

func clampQuant(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= quantMax:
		return quantMax
	}
	return uint8(v)
}
