package scene

import (
	"math"
	"math/rand/v2"

	"github.com/achilleasa/bvhbuild/types"
)

// Extent of the cube that generated geometry is placed in.
const generatorExtent = 100

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func randomPoint(rng *rand.Rand, extent float32) types.Vec3 {
	return types.XYZ(
		(rng.Float32()-0.5)*extent,
		(rng.Float32()-0.5)*extent,
		(rng.Float32()-0.5)*extent,
	)
}

// Generate a mesh of count small random triangles. Each triangle moves along
// its own random direction across the time steps.
func RandomTriangles(seed uint64, count, timeSteps int) *TriangleMesh {
	rng := newRand(seed)
	timeSteps = max(timeSteps, 1)

	vertices := make([][]types.Vec3, timeSteps)
	triangles := make([]Triangle, count)
	for i := 0; i < count; i++ {
		center := randomPoint(rng, generatorExtent)
		velocity := randomPoint(rng, 2)
		var corners [3]types.Vec3
		for c := range corners {
			corners[c] = center.Add(randomPoint(rng, 2))
		}

		base := uint32(3 * i)
		triangles[i] = Triangle{base, base + 1, base + 2}
		for t := range vertices {
			d := velocity.Mul(float32(t))
			for _, p := range corners {
				vertices[t] = append(vertices[t], p.Add(d))
			}
		}
	}
	return NewTriangleMesh(vertices, triangles)
}

// Generate count hair strands of segments cubic segments each, growing
// outwards from the surface of a sphere. Strands sway sideways across the
// time steps.
func RandomHair(seed uint64, count, segments, timeSteps int) *CurveSet {
	rng := newRand(seed)
	timeSteps = max(timeSteps, 1)
	segments = max(segments, 1)

	const (
		sphereRadius = generatorExtent / 4
		strandLength = generatorExtent / 4
		hairRadius   = 0.05
	)

	points := make([][]ControlPoint, timeSteps)
	var curves []uint32
	for i := 0; i < count; i++ {
		dir := randomPoint(rng, 2).Normalize()
		if dir == (types.Vec3{}) {
			dir = types.XYZ(0, 1, 0)
		}
		root := dir.Mul(sphereRadius)
		sway := randomPoint(rng, 1)

		first := uint32(len(points[0]))
		for s := 0; s < segments; s++ {
			curves = append(curves, first+uint32(3*s))
		}

		numPoints := 3*segments + 1
		for t := range points {
			for p := 0; p < numPoints; p++ {
				f := float32(p) / float32(numPoints-1)
				pos := root.Add(dir.Mul(f * strandLength)).Add(sway.Mul(f * f * float32(t)))
				points[t] = append(points[t], ControlPoint{P: pos, Radius: hairRadius * (1 - 0.5*f)})
			}
		}
	}
	return NewCurveSet(points, curves)
}

// Generate a w x h grid of quads on a rippled surface. All edges use the
// given tessellation level. The surface rises along y across the time
// steps.
func SubdivGrid(w, h int, level float32, timeSteps int) *SubdivMesh {
	timeSteps = max(timeSteps, 1)
	cell := float32(generatorExtent) / float32(max(w, h, 1))

	vertices := make([][]types.Vec3, timeSteps)
	for t := range vertices {
		for y := 0; y <= h; y++ {
			for x := 0; x <= w; x++ {
				height := float32(math.Sin(float64(x)*0.7)*math.Cos(float64(y)*0.3)) * cell
				vertices[t] = append(vertices[t], types.XYZ(float32(x)*cell, height+float32(t), float32(y)*cell))
			}
		}
	}

	var faceVertices, indices []uint32
	var levels []float32
	row := uint32(w + 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint32(y)*row + uint32(x)
			faceVertices = append(faceVertices, 4)
			indices = append(indices, v, v+1, v+row+1, v+row)
			levels = append(levels, level, level, level, level)
		}
	}

	m := NewSubdivMesh(vertices, faceVertices, indices)
	m.Levels = NewBuffer(levels)
	return m
}

// Move every vertex of a buffer by a random offset of up to amount along
// each axis.
func Jitter(seed uint64, amount float32, vb *Buffer[types.Vec3]) {
	rng := newRand(seed)
	moved := make([]types.Vec3, vb.Len())
	for i, p := range vb.Items() {
		moved[i] = p.Add(randomPoint(rng, 2*amount))
	}
	vb.Set(moved)
}

// Move every control point of a buffer by a random offset of up to amount
// along each axis.
func JitterPoints(seed uint64, amount float32, pb *Buffer[ControlPoint]) {
	rng := newRand(seed)
	moved := make([]ControlPoint, pb.Len())
	for i, cp := range pb.Items() {
		moved[i] = ControlPoint{P: cp.P.Add(randomPoint(rng, 2*amount)), Radius: cp.Radius}
	}
	pb.Set(moved)
}
