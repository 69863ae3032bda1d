package scene

import (
	"math"

	"github.com/achilleasa/bvhbuild/types"
)

// Faces are tessellated into grids of at most MaxGridLevel x MaxGridLevel
// cells per sub-patch; higher levels produce more sub-patches.
const MaxGridLevel = 8

// A SubPatch identifies a grid cell range of one quad of a subdivision
// face. Faces with four vertices form a single quad; other faces are split
// into one quad per vertex.
type SubPatch struct {
	Face uint32
	Quad uint16

	// Cell (U, V) of a K x K grid over the quad.
	K, U, V uint16
}

// A SubdivMesh is a polygon mesh with faces of arbitrary vertex count
// together with the crease and hole data that shape its limit surface.
type SubdivMesh struct {
	Geometry

	Vertices []Buffer[types.Vec3]

	// Number of vertices of each face.
	FaceVertices Buffer[uint32]

	// Vertex indices of all faces, stored consecutively.
	VertexIndices Buffer[uint32]

	// Indices of faces that are holes.
	Holes Buffer[uint32]

	EdgeCreases         Buffer[[2]uint32]
	EdgeCreaseWeights   Buffer[float32]
	VertexCreases       Buffer[uint32]
	VertexCreaseWeights Buffer[float32]

	// Tessellation level of every face edge, parallel to VertexIndices. An
	// empty buffer selects level 1 for all edges.
	Levels Buffer[float32]

	faceStart []int
	holes     map[uint32]struct{}
}

// Create a subdivision mesh.
func NewSubdivMesh(vertices [][]types.Vec3, faceVertices, vertexIndices []uint32) *SubdivMesh {
	m := &SubdivMesh{
		FaceVertices:  NewBuffer(faceVertices),
		VertexIndices: NewBuffer(vertexIndices),
	}
	for _, v := range vertices {
		m.Vertices = append(m.Vertices, NewBuffer(v))
	}
	return m
}

// Check whether any buffer that defines the mesh connectivity changed.
// Vertex positions and tessellation levels are not part of the topology.
func (m *SubdivMesh) TopologyModified() bool {
	return m.FaceVertices.IsModified() ||
		m.VertexIndices.IsModified() ||
		m.Holes.IsModified() ||
		m.EdgeCreases.IsModified() ||
		m.EdgeCreaseWeights.IsModified() ||
		m.VertexCreases.IsModified() ||
		m.VertexCreaseWeights.IsModified()
}

// Rebuild the face lookup tables if the topology changed. It must be called
// before querying faces and is not safe for concurrent use.
func (m *SubdivMesh) UpdateTopology() {
	if m.faceStart != nil && !m.FaceVertices.IsModified() && !m.Holes.IsModified() {
		return
	}

	m.faceStart = make([]int, m.FaceVertices.Len()+1)
	for f, n := range m.FaceVertices.Items() {
		m.faceStart[f+1] = m.faceStart[f] + int(n)
	}

	m.holes = make(map[uint32]struct{}, m.Holes.Len())
	for _, f := range m.Holes.Items() {
		m.holes[f] = struct{}{}
	}
}

func (m *SubdivMesh) NumFaces() int {
	return m.FaceVertices.Len()
}

// Check whether a face produces geometry. Holes, degenerate faces and faces
// referencing missing or non-finite vertices do not.
func (m *SubdivMesh) Valid(face int) bool {
	if _, hole := m.holes[uint32(face)]; hole {
		return false
	}
	start, end := m.faceStart[face], m.faceStart[face+1]
	if end-start < 3 || end > m.VertexIndices.Len() {
		return false
	}
	for t := range m.Vertices {
		for _, idx := range m.VertexIndices.Items()[start:end] {
			if int(idx) >= m.Vertices[t].Len() || !isFinite(m.Vertices[t].At(int(idx))) {
				return false
			}
		}
	}
	return true
}

// Get the tessellation level of a face as the maximum of its edge levels.
func (m *SubdivMesh) FaceLevel(face int) float32 {
	if m.Levels.Len() == 0 {
		return 1
	}
	var level float32 = 1
	for i := m.faceStart[face]; i < m.faceStart[face+1] && i < m.Levels.Len(); i++ {
		level = max(level, m.Levels.At(i))
	}
	return level
}

func (m *SubdivMesh) gridSize(face int) int {
	return max(1, int(math.Ceil(float64(m.FaceLevel(face))/MaxGridLevel)))
}

func (m *SubdivMesh) numQuads(face int) int {
	n := m.faceStart[face+1] - m.faceStart[face]
	if n == 4 {
		return 1
	}
	return n
}

// Number of sub-patches generated for a valid face.
func (m *SubdivMesh) SubPatchCount(face int) int {
	k := m.gridSize(face)
	return m.numQuads(face) * k * k
}

// Invoke fn for every sub-patch of a valid face in a fixed order.
func (m *SubdivMesh) ForEachSubPatch(face int, fn func(p SubPatch)) {
	k := m.gridSize(face)
	for q := 0; q < m.numQuads(face); q++ {
		for v := 0; v < k; v++ {
			for u := 0; u < k; u++ {
				fn(SubPatch{Face: uint32(face), Quad: uint16(q), K: uint16(k), U: uint16(u), V: uint16(v)})
			}
		}
	}
}

// Get the bounds of a sub-patch at time step t.
func (m *SubdivMesh) SubPatchBounds(p SubPatch, t int) types.AABB {
	c := m.quadCorners(p, t)
	k := float32(p.K)
	u0, u1 := float32(p.U)/k, float32(p.U+1)/k
	v0, v1 := float32(p.V)/k, float32(p.V+1)/k
	return types.AABBFromPoints(
		bilinear(c, u0, v0), bilinear(c, u1, v0),
		bilinear(c, u1, v1), bilinear(c, u0, v1),
	)
}

func (m *SubdivMesh) quadCorners(p SubPatch, t int) [4]types.Vec3 {
	start, end := m.faceStart[p.Face], m.faceStart[p.Face+1]
	indices := m.VertexIndices.Items()[start:end]
	vb := &m.Vertices[t]
	vertex := func(i int) types.Vec3 {
		return vb.At(int(indices[i%len(indices)]))
	}

	n := len(indices)
	if n == 4 {
		return [4]types.Vec3{vertex(0), vertex(1), vertex(2), vertex(3)}
	}

	var centroid types.Vec3
	for i := 0; i < n; i++ {
		centroid = centroid.Add(vertex(i))
	}
	centroid = centroid.Mul(1 / float32(n))

	q := int(p.Quad)
	cur, next, prev := vertex(q), vertex(q+1), vertex(q+n-1)
	return [4]types.Vec3{
		cur,
		types.Lerp(cur, next, 0.5),
		centroid,
		types.Lerp(prev, cur, 0.5),
	}
}

func bilinear(c [4]types.Vec3, u, v float32) types.Vec3 {
	return types.Lerp(types.Lerp(c[0], c[1], u), types.Lerp(c[3], c[2], u), v)
}

func (m *SubdivMesh) ClearModified() {
	m.FaceVertices.ClearModified()
	m.VertexIndices.ClearModified()
	m.Holes.ClearModified()
	m.EdgeCreases.ClearModified()
	m.EdgeCreaseWeights.ClearModified()
	m.VertexCreases.ClearModified()
	m.VertexCreaseWeights.ClearModified()
	m.Levels.ClearModified()
	for t := range m.Vertices {
		m.Vertices[t].ClearModified()
	}
}
