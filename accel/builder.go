package accel

import (
	"context"
	"slices"
	"time"

	"github.com/achilleasa/bvhbuild/bvh"
	"github.com/achilleasa/bvhbuild/log"
	"github.com/achilleasa/bvhbuild/parallel"
	"github.com/achilleasa/bvhbuild/scene"
	"github.com/achilleasa/bvhbuild/types"
)

// A Builder maintains the hierarchy of one geometry type of a scene.
type Builder interface {
	// Bring the hierarchy up to date with the scene. On failure the
	// builder either leaves the previous hierarchy installed (if the
	// failure occurred before it was modified) or installs the empty
	// hierarchy; a partially built hierarchy is never installed.
	Build(ctx context.Context) error

	// Release the primitive storage held by the builder.
	Clear()
}

// PrimID locates a primitive inside the scene.
type PrimID struct {
	Geom uint32
	Prim uint32
}

// State shared by all geometry builders.
type geometryBuilder struct {
	logger   log.Logger
	bvh      *BVH
	scene    *scene.Scene
	typ      scene.GeometryType
	settings bvh.Settings
	opts     []bvh.Option

	// Set after a successful build.
	built     bool
	numEvents int
}

// Check whether the installed hierarchy can be refitted for count
// primitives. Refitting requires an unchanged topology, no geometry enabled
// or disabled since the last build and no motion blur in either the
// installed or the requested hierarchy.
func (g *geometryBuilder) refittable(topologyModified, motionBlur bool, count int) bool {
	return g.built &&
		!topologyModified &&
		g.scene.EnableDisableEvents(g.typ) == g.numEvents &&
		!g.bvh.MotionBlur && !motionBlur &&
		count == g.bvh.NumPrimitives
}

// Discard the installed hierarchy and make its memory available for a
// rebuild.
func (g *geometryBuilder) resetNodes() error {
	g.built = false
	g.bvh.Clear()
	g.bvh.Settings = g.settings
	return g.bvh.Nodes.Reset()
}

// Record a successful build.
func (g *geometryBuilder) commit() error {
	g.built = true
	g.numEvents = g.scene.EnableDisableEvents(g.typ)
	if g.scene.Static {
		return g.bvh.Shrink()
	}
	return nil
}

// Refit the installed hierarchy. On failure the empty hierarchy is
// installed.
func (g *geometryBuilder) refit(ctx context.Context, lb bvh.LeafBounds) error {
	bounds, err := bvh.NewRefitter(lb).Refit(ctx, g.bvh.Root)
	if err != nil {
		g.built = false
		g.bvh.Clear()
		return err
	}
	g.bvh.Bounds = bounds
	return nil
}

// The geometry interface implemented by triangle meshes and curve sets.
type geometry interface {
	Enabled() bool
	NumPrimitives() int
	Valid(i int) bool
	Bounds(i, t int) types.AABB
	TopologyModified() bool
	ClearModified()
}

// meshBuilder builds hierarchies over geometries whose primitives map to
// exactly one primitive reference each.
type meshBuilder struct {
	geometryBuilder

	geometries func() []geometry

	// Extra build options evaluated before every rebuild.
	buildOpts func() []bvh.Option

	// Maps leaf primitive IDs to scene primitives.
	refs []PrimID

	// Primitive reference storage reused by dynamic scenes.
	prims []bvh.PrimRef
}

// Get the scene primitive referenced by a leaf primitive ID.
func (mb *meshBuilder) Primitive(id uint32) PrimID {
	return mb.refs[id]
}

// Number of primitive references retained for the next build.
func (mb *meshBuilder) RetainedPrims() int {
	return cap(mb.prims)
}

func (mb *meshBuilder) Clear() {
	mb.prims = nil
	mb.refs = nil
	mb.built = false
	mb.bvh.Clear()
}

func (mb *meshBuilder) Build(ctx context.Context) error {
	start := time.Now()
	geoms := mb.geometries()

	sizes := make([]int, len(geoms))
	topologyModified := false
	for i, g := range geoms {
		if g.Enabled() {
			sizes[i] = g.NumPrimitives()
			topologyModified = topologyModified || g.TopologyModified()
		}
	}

	state, count, err := countPrims(ctx, sizes, func(c parallel.Chunk) int {
		var n int
		g := geoms[c.Outer]
		for i := c.Begin; i < c.End; i++ {
			if g.Valid(i) {
				n++
			}
		}
		return n
	})
	if err != nil {
		return err
	}

	if count == 0 {
		mb.Clear()
		mb.bvh.Settings = mb.settings
		mb.clearModified(geoms)
		mb.logger.Infof("no %s primitives; installed empty BVH", mb.typ)
		return mb.commit()
	}

	prims := mb.prims
	if cap(prims) < count {
		prims = make([]bvh.PrimRef, count)
	}
	prims = prims[:count]
	refs := make([]PrimID, count)
	info, err := fillPrims(ctx, state, prims, func(c parallel.Chunk, sink *primSink) {
		g := geoms[c.Outer]
		for i := c.Begin; i < c.End; i++ {
			if !g.Valid(i) {
				continue
			}
			id, ok := sink.add(g.Bounds(i, 0))
			if !ok {
				return
			}
			refs[id] = PrimID{Geom: uint32(c.Outer), Prim: uint32(i)}
		}
	})
	if err != nil {
		return err
	}

	if mb.refittable(topologyModified, mb.scene.IsMotionBlurred(), count) && slices.Equal(refs, mb.refs) {
		err = mb.refit(ctx, bvh.LeafBoundsFunc(func(leaf bvh.NodeRef) types.AABB {
			box := types.EmptyAABB()
			for _, id := range leaf.Leaf().Prims {
				box = box.Extend(prims[id].Bounds)
			}
			return box
		}))
		if err != nil {
			return err
		}
		mb.logger.Infof("refitted BVH over %d %s primitives in %d ms", count, mb.typ, time.Since(start).Nanoseconds()/1e6)
	} else {
		if err = mb.rebuild(ctx, geoms, prims, refs, info); err != nil {
			return err
		}
		mb.logger.Infof("built BVH over %d %s primitives in %d ms", count, mb.typ, time.Since(start).Nanoseconds()/1e6)
	}

	mb.prims = prims
	if mb.scene.Static {
		mb.prims = nil
	}
	mb.clearModified(geoms)
	return mb.commit()
}

func (mb *meshBuilder) rebuild(ctx context.Context, geoms []geometry, prims []bvh.PrimRef, refs []PrimID, info bvh.BuildInfo) error {
	if err := mb.resetNodes(); err != nil {
		return err
	}
	mb.refs = refs

	opts := slices.Clone(mb.opts)
	if mb.buildOpts != nil {
		opts = append(opts, mb.buildOpts()...)
	}

	if mb.scene.IsMotionBlurred() {
		boundsAt := func(id uint32, t int) types.AABB {
			r := refs[id]
			return geoms[r.Geom].Bounds(int(r.Prim), t)
		}
		segment := segmentInput(ctx, prims, boundsAt, bvh.IDLeaf)
		roots, bounds, err := bvh.BuildMB(ctx, mb.bvh.Nodes, mb.scene.NumTimeSteps, mb.settings, segment, opts...)
		if err != nil {
			return err
		}
		mb.bvh.SetSegments(roots, bounds, len(prims))
		return nil
	}

	root, bounds, err := bvh.Build(ctx, mb.bvh.Nodes, prims, info, mb.settings, bvh.IDLeaf, opts...)
	if err != nil {
		return err
	}
	mb.bvh.Set(root, bounds, len(prims))
	return nil
}

// Clear the modification flags of the enabled geometries. Disabled
// geometries keep theirs until they take part in a build again.
func (mb *meshBuilder) clearModified(geoms []geometry) {
	for _, g := range geoms {
		if g.Enabled() {
			g.ClearModified()
		}
	}
}
