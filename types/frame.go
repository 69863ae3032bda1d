package types

// An orthonormal basis whose rows are the X, Y and Z axes. Transforming a point
// by a frame expresses it in the frame's local coordinates.
type Frame Mat3

// Build a frame whose Z axis is aligned to the given unit direction.
func FrameFromAxis(z Vec3) Frame {
	// Pick the helper axis least aligned with z to keep the cross product stable.
	a := z.Abs()
	minAxis := 0
	if a[1] < a[minAxis] {
		minAxis = 1
	}
	if a[2] < a[minAxis] {
		minAxis = 2
	}
	var helper Vec3
	helper[minAxis] = 1

	x := helper.Cross(z).Normalize()
	y := z.Cross(x)
	return Frame{
		x[0], x[1], x[2],
		y[0], y[1], y[2],
		z[0], z[1], z[2],
	}
}

// Get frame axis (0=X, 1=Y, 2=Z).
func (f Frame) Axis(i int) Vec3 {
	return Vec3{f[3*i], f[3*i+1], f[3*i+2]}
}

// Express a world space point in frame coordinates.
func (f Frame) Transform(v Vec3) Vec3 {
	return Mat3(f).MulVec3(v)
}

// Return the inverse frame. Frames are orthonormal so this is a transpose.
func (f Frame) Transposed() Frame {
	return Frame(Mat3(f).Transpose())
}
