package bvh

import (
	"context"
	"errors"
	"testing"

	"github.com/achilleasa/bvhbuild/types"
)

// Primitives that move by +1 along x per time step.
type movingPrims []types.AABB

func (m movingPrims) at(id uint32, step int) types.AABB {
	d := types.XYZ(float32(step), 0, 0)
	return types.AABB{Min: m[id].Min.Add(d), Max: m[id].Max.Add(d)}
}

func (m movingPrims) segment(i int) (Segment, error) {
	seg := Segment{Info: EmptyBuildInfo()}
	for id := range m {
		lb := types.LinearBounds{Bounds0: m.at(uint32(id), i), Bounds1: m.at(uint32(id), i+1)}
		p := NewPrimRef(lb.Global(), uint32(id))
		seg.Prims = append(seg.Prims, p)
		seg.Info.AddPrim(p)
	}
	seg.CreateLeaf = func(prims []PrimRef, rec BuildRecord, a *Allocator) (NodeRef, types.LinearBounds, error) {
		ref, err := IDLeaf(prims, rec, a)
		lb := types.EmptyLinearBounds()
		for _, p := range rec.Prims(prims) {
			lb = lb.Extend(types.LinearBounds{Bounds0: m.at(p.ID, i), Bounds1: m.at(p.ID, i+1)})
		}
		return ref, lb, err
	}
	return seg, nil
}

func TestBuildMotionBlur(t *testing.T) {
	var prims movingPrims
	for _, p := range randomPrims(500, 13) {
		prims = append(prims, p.Bounds)
	}

	type spec struct {
		timeSteps int
	}
	specs := []spec{{2}, {3}, {5}}

	s := DefaultSettings()
	s.ParallelThreshold = 64
	for index, sp := range specs {
		nodes := NewNodeAllocator(DefaultArenaConfig())
		roots, bounds, err := BuildMB(context.Background(), nodes, sp.timeSteps, s, prims.segment)
		if err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		if len(roots) != sp.timeSteps-1 {
			t.Fatalf("[spec %d] expected %d segment roots; got %d", index, sp.timeSteps-1, len(roots))
		}

		expBounds := types.EmptyAABB()
		for id := range prims {
			for step := 0; step < sp.timeSteps; step++ {
				expBounds = expBounds.Extend(prims.at(uint32(id), step))
			}
		}
		if bounds != expBounds {
			t.Fatalf("[spec %d] expected scene bounds %v; got %v", index, expBounds, bounds)
		}

		for seg, root := range roots {
			if root.Kind() != KindMotionBlur {
				t.Fatalf("[spec %d] expected segment %d root to be a motion blur node; got %s", index, seg, root.Kind())
			}
			if got := len(LeafIDs(root)); got != len(prims) {
				t.Fatalf("[spec %d] expected %d primitives in segment %d; got %d", index, len(prims), seg, got)
			}
		}
	}
}

func TestBuildMotionBlurNeedsTwoTimeSteps(t *testing.T) {
	nodes := NewNodeAllocator(DefaultArenaConfig())
	_, _, err := BuildMB(context.Background(), nodes, 1, DefaultSettings(), func(int) (Segment, error) {
		t.Fatal("expected no segment to be requested")
		return Segment{}, nil
	})
	if !errors.Is(err, ErrTooFewTimeSteps) {
		t.Fatalf("expected ErrTooFewTimeSteps; got %v", err)
	}
}
