package accel

import (
	"github.com/achilleasa/bvhbuild/bvh"
	"github.com/achilleasa/bvhbuild/log"
	"github.com/achilleasa/bvhbuild/scene"
)

// TriangleBuilder maintains a hierarchy over the enabled triangle meshes of
// a scene. Leaves store primitive IDs that resolve to triangles via
// Primitive.
type TriangleBuilder struct {
	meshBuilder
}

// Create a triangle builder that installs its hierarchy into b.
func NewTriangleBuilder(b *BVH, sc *scene.Scene, s bvh.Settings, opts ...bvh.Option) *TriangleBuilder {
	tb := &TriangleBuilder{
		meshBuilder: meshBuilder{
			geometryBuilder: geometryBuilder{
				logger:   log.New("accel triangles"),
				bvh:      b,
				scene:    sc,
				typ:      scene.Triangles,
				settings: s,
				opts:     opts,
			},
		},
	}
	tb.geometries = func() []geometry {
		out := make([]geometry, len(sc.TriangleMeshes))
		for i, m := range sc.TriangleMeshes {
			out[i] = m
		}
		return out
	}
	return tb
}
