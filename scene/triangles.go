package scene

import (
	"math"

	"github.com/achilleasa/bvhbuild/types"
)

// Triangle vertex indices.
type Triangle [3]uint32

// A TriangleMesh is an indexed triangle mesh with one vertex buffer per
// time step.
type TriangleMesh struct {
	Geometry

	Vertices  []Buffer[types.Vec3]
	Triangles Buffer[Triangle]
}

// Create a mesh from per time step vertex lists and a triangle list.
func NewTriangleMesh(vertices [][]types.Vec3, triangles []Triangle) *TriangleMesh {
	m := &TriangleMesh{Triangles: NewBuffer(triangles)}
	for _, v := range vertices {
		m.Vertices = append(m.Vertices, NewBuffer(v))
	}
	return m
}

func (m *TriangleMesh) NumPrimitives() int {
	return m.Triangles.Len()
}

// Check that a triangle references existing vertices with finite
// coordinates at every time step.
func (m *TriangleMesh) Valid(i int) bool {
	tri := m.Triangles.At(i)
	for t := range m.Vertices {
		for _, idx := range tri {
			if int(idx) >= m.Vertices[t].Len() || !isFinite(m.Vertices[t].At(int(idx))) {
				return false
			}
		}
	}
	return true
}

// Get the bounds of triangle i at time step t.
func (m *TriangleMesh) Bounds(i, t int) types.AABB {
	tri := m.Triangles.At(i)
	vb := &m.Vertices[t]
	return types.AABBFromPoints(vb.At(int(tri[0])), vb.At(int(tri[1])), vb.At(int(tri[2])))
}

// Check whether the connectivity of the mesh changed.
func (m *TriangleMesh) TopologyModified() bool {
	return m.Triangles.IsModified()
}

func (m *TriangleMesh) ClearModified() {
	m.Triangles.ClearModified()
	for t := range m.Vertices {
		m.Vertices[t].ClearModified()
	}
}

func isFinite(v types.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}
