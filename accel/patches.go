package accel

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/achilleasa/bvhbuild/bvh"
	"github.com/achilleasa/bvhbuild/log"
	"github.com/achilleasa/bvhbuild/parallel"
	"github.com/achilleasa/bvhbuild/scene"
	"github.com/achilleasa/bvhbuild/types"
)

// PatchRef locates a sub-patch of a subdivision mesh.
type PatchRef struct {
	Geom uint32
	scene.SubPatch
}

// PatchBuilder maintains a hierarchy over the sub-patches of the enabled
// subdivision meshes of a scene. Every leaf holds a single patch.
//
// Cached builders refit the previous hierarchy when only vertex positions
// or tessellation levels changed and the patch count stayed the same.
// Motion blurred builders build one hierarchy per time segment and always
// rebuild.
type PatchBuilder struct {
	geometryBuilder

	cached bool
	mblur  bool

	patches []PatchRef

	// Bounds of every patch at every time step, indexed by
	// patch*NumTimeSteps+t.
	bounds    []types.AABB
	timeSteps int

	// Primitive reference storage reused by dynamic scenes.
	prims []bvh.PrimRef
}

// Create a patch builder that installs its hierarchy into b.
func NewPatchBuilder(b *BVH, sc *scene.Scene, s bvh.Settings, cached, mblur bool, opts ...bvh.Option) *PatchBuilder {
	s.MinLeafSize = 1
	s.MaxLeafSize = 1
	return &PatchBuilder{
		geometryBuilder: geometryBuilder{
			logger:   log.New("accel patches"),
			bvh:      b,
			scene:    sc,
			typ:      scene.Subdiv,
			settings: s,
			opts:     opts,
		},
		cached: cached,
		mblur:  mblur,
	}
}

// Get the patch referenced by a leaf primitive ID.
func (pb *PatchBuilder) Patch(id uint32) PatchRef {
	return pb.patches[id]
}

// Get the bounds of a patch at time step t as computed by the last build.
func (pb *PatchBuilder) PatchBounds(id uint32, t int) types.AABB {
	return pb.bounds[int(id)*pb.timeSteps+t]
}

// Number of primitive references retained for the next build.
func (pb *PatchBuilder) RetainedPrims() int {
	return cap(pb.prims)
}

func (pb *PatchBuilder) Clear() {
	pb.patches = nil
	pb.bounds = nil
	pb.prims = nil
	pb.built = false
	pb.bvh.Clear()
}

func (pb *PatchBuilder) Build(ctx context.Context) error {
	start := time.Now()
	meshes := pb.scene.SubdivMeshes
	timeSteps := pb.scene.NumTimeSteps
	if pb.mblur && timeSteps < 2 {
		return fmt.Errorf("accel: motion blurred patches: %w: got %d", bvh.ErrTooFewTimeSteps, timeSteps)
	}

	sizes := make([]int, len(meshes))
	topologyModified := false
	for i, m := range meshes {
		if !m.Enabled() {
			continue
		}
		m.UpdateTopology()
		sizes[i] = m.NumFaces()
		topologyModified = topologyModified || m.TopologyModified()
	}

	state, count, err := countPrims(ctx, sizes, func(c parallel.Chunk) int {
		var n int
		m := meshes[c.Outer]
		for f := c.Begin; f < c.End; f++ {
			if m.Valid(f) {
				n += m.SubPatchCount(f)
			}
		}
		return n
	})
	if err != nil {
		return err
	}

	if count == 0 {
		pb.Clear()
		pb.bvh.Settings = pb.settings
		pb.clearModified()
		pb.logger.Info("no patches; installed empty BVH")
		return pb.commit()
	}

	prims := pb.prims
	if cap(prims) < count {
		prims = make([]bvh.PrimRef, count)
	}
	prims = prims[:count]
	patches := make([]PatchRef, count)
	bounds := make([]types.AABB, count*timeSteps)
	info, err := fillPrims(ctx, state, prims, func(c parallel.Chunk, sink *primSink) {
		m := meshes[c.Outer]
		for f := c.Begin; f < c.End && !sink.overflow; f++ {
			if !m.Valid(f) {
				continue
			}
			m.ForEachSubPatch(f, func(p scene.SubPatch) {
				if sink.overflow {
					return
				}
				b0 := m.SubPatchBounds(p, 0)
				id, ok := sink.add(b0)
				if !ok {
					return
				}
				patches[id] = PatchRef{Geom: uint32(c.Outer), SubPatch: p}
				bounds[int(id)*timeSteps] = b0
				for t := 1; t < timeSteps; t++ {
					bounds[int(id)*timeSteps+t] = m.SubPatchBounds(p, t)
				}
			})
		}
	})
	if err != nil {
		return err
	}

	if pb.cached && pb.refittable(topologyModified, pb.mblur, count) {
		err = pb.refit(ctx, bvh.LeafBoundsFunc(func(leaf bvh.NodeRef) types.AABB {
			box := types.EmptyAABB()
			for _, id := range leaf.Leaf().Prims {
				box = box.Extend(bounds[int(id)*timeSteps])
			}
			return box
		}))
		if err != nil {
			return err
		}
		pb.patches, pb.bounds, pb.timeSteps = patches, bounds, timeSteps
		pb.logger.Infof("refitted BVH over %d patches in %d ms", count, time.Since(start).Nanoseconds()/1e6)
	} else {
		if err = pb.rebuild(ctx, prims, info, patches, bounds, timeSteps); err != nil {
			return err
		}
		pb.logger.Infof("built BVH over %d patches in %d ms", count, time.Since(start).Nanoseconds()/1e6)
	}

	pb.prims = prims
	if pb.scene.Static {
		pb.prims = nil
	}
	pb.clearModified()
	return pb.commit()
}

func (pb *PatchBuilder) rebuild(ctx context.Context, prims []bvh.PrimRef, info bvh.BuildInfo, patches []PatchRef, bounds []types.AABB, timeSteps int) error {
	if err := pb.resetNodes(); err != nil {
		return err
	}
	pb.patches, pb.bounds, pb.timeSteps = patches, bounds, timeSteps

	opts := slices.Clone(pb.opts)
	if pb.mblur {
		boundsAt := func(id uint32, t int) types.AABB {
			return bounds[int(id)*timeSteps+t]
		}
		segment := segmentInput(ctx, prims, boundsAt, bvh.IDLeaf)
		roots, box, err := bvh.BuildMB(ctx, pb.bvh.Nodes, timeSteps, pb.settings, segment, opts...)
		if err != nil {
			return err
		}
		pb.bvh.SetSegments(roots, box, len(prims))
		return nil
	}

	root, box, err := bvh.Build(ctx, pb.bvh.Nodes, prims, info, pb.settings, bvh.IDLeaf, opts...)
	if err != nil {
		return err
	}
	pb.bvh.Set(root, box, len(prims))
	return nil
}

// Clear the modification flags of the enabled meshes. Disabled meshes keep
// theirs until they take part in a build again.
func (pb *PatchBuilder) clearModified() {
	for _, m := range pb.scene.SubdivMeshes {
		if m.Enabled() {
			m.ClearModified()
		}
	}
}
