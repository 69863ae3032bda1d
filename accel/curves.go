package accel

import (
	"github.com/achilleasa/bvhbuild/alloc"
	"github.com/achilleasa/bvhbuild/bvh"
	"github.com/achilleasa/bvhbuild/log"
	"github.com/achilleasa/bvhbuild/scene"
)

// Primitive references per temporary block used by the strand splitter.
const strandBlockItems = 256

// CurveBuilder maintains a hierarchy over the enabled curve sets of a scene.
// Records are split by grouping curves of similar direction, falling back
// to the binned surface area heuristic as configured.
type CurveBuilder struct {
	meshBuilder

	fallback bvh.StrandFallback
	pool     *alloc.BlockPool[bvh.PrimRef]
}

// Create a curve builder that installs its hierarchy into b.
func NewCurveBuilder(b *BVH, sc *scene.Scene, s bvh.Settings, fallback bvh.StrandFallback, opts ...bvh.Option) (*CurveBuilder, error) {
	pool, err := alloc.NewBlockPool[bvh.PrimRef](strandBlockItems, b.Nodes.Budget())
	if err != nil {
		return nil, err
	}

	cb := &CurveBuilder{
		meshBuilder: meshBuilder{
			geometryBuilder: geometryBuilder{
				logger:   log.New("accel curves"),
				bvh:      b,
				scene:    sc,
				typ:      scene.Curves,
				settings: s,
				opts:     opts,
			},
		},
		fallback: fallback,
		pool:     pool,
	}
	cb.geometries = func() []geometry {
		out := make([]geometry, len(sc.CurveSets))
		for i, c := range sc.CurveSets {
			out[i] = c
		}
		return out
	}
	cb.buildOpts = func() []bvh.Option {
		return []bvh.Option{bvh.WithStrandSplitter(cb, cb.pool, cb.fallback)}
	}
	return cb, nil
}

// Resolve a leaf primitive ID to its curve at the first time step.
func (cb *CurveBuilder) Curve(id uint32) bvh.Curve {
	r := cb.refs[id]
	seg := cb.scene.CurveSets[r.Geom].Segment(int(r.Prim), 0)
	return bvh.Curve{
		P0:     seg[0].P,
		P1:     seg[1].P,
		P2:     seg[2].P,
		P3:     seg[3].P,
		Radius: max(seg[0].Radius, seg[1].Radius, seg[2].Radius, seg[3].Radius),
	}
}
