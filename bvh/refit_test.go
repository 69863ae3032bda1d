package bvh

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/achilleasa/bvhbuild/types"
)

func TestRefitShrunkPrimitive(t *testing.T) {
	s := DefaultSettings()
	s.MaxLeafSize = 1
	s.BranchingFactor = 2

	prims := []PrimRef{
		NewPrimRef(types.AABB{Min: types.XYZ(0, 0, 0), Max: types.XYZ(10, 1, 1)}, 0),
		NewPrimRef(types.AABB{Min: types.XYZ(-3, 0, 0), Max: types.XYZ(-2, 1, 1)}, 1),
	}
	root, _, _ := buildPrims(t, slices.Clone(prims), s)

	// Shrink the first primitive from [0, 10] to [0, 5] along x.
	updated := slices.Clone(prims)
	updated[0].Bounds.Max[0] = 5

	refitted, err := NewRefitter(leafBoundsFor(updated)).Refit(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	_, rebuilt, _ := buildPrims(t, slices.Clone(updated), s)
	if refitted != rebuilt {
		t.Fatalf("expected refitted bounds %v to match rebuilt bounds %v", refitted, rebuilt)
	}
	if refitted.Max[0] != 5 {
		t.Fatalf("expected root bounds to end at x=5; got %v", refitted)
	}
}

func TestRefitMatchesRebuild(t *testing.T) {
	for _, quantize := range []bool{false, true} {
		s := DefaultSettings()
		s.Quantize = quantize
		orig := randomPrims(3000, 21)
		root, _, _ := buildPrims(t, slices.Clone(orig), s)

		// Move every primitive without changing the primitive set.
		moved := slices.Clone(orig)
		for i := range moved {
			d := types.XYZ(float32(i%7), float32(i%3), -float32(i%5))
			moved[i].Bounds = types.AABB{Min: moved[i].Bounds.Min.Add(d), Max: moved[i].Bounds.Max.Add(d)}
		}

		lb := leafBoundsFor(moved)
		refitted, err := NewRefitter(lb).Refit(context.Background(), root)
		if err != nil {
			t.Fatal(err)
		}
		if err := Validate(root, refitted, s, lb); err != nil {
			t.Fatalf("[quantize %t] %v", quantize, err)
		}

		exp := ComputeBuildInfo(moved).Geom
		if quantize && !refitted.Contains(exp) {
			t.Fatalf("[quantize %t] expected refitted bounds %v to contain %v", quantize, refitted, exp)
		}
		if !quantize && refitted != exp {
			t.Fatalf("[quantize %t] expected refitted bounds %v; got %v", quantize, exp, refitted)
		}
	}
}

func TestRefitEmptyAndLeaf(t *testing.T) {
	r := NewRefitter(LeafBoundsFunc(func(NodeRef) types.AABB { return unitBox(1, 1, 1) }))

	bounds, err := r.Refit(context.Background(), EmptyRef)
	if err != nil || !bounds.IsEmpty() {
		t.Fatalf("expected empty bounds for empty hierarchy; got %v, %v", bounds, err)
	}

	bounds, err = r.Refit(context.Background(), LeafRef(&Leaf{Prims: []uint32{0}}))
	if err != nil || bounds != unitBox(1, 1, 1) {
		t.Fatalf("expected leaf bounds; got %v, %v", bounds, err)
	}
}

func TestRefitRejectsMotionBlur(t *testing.T) {
	r := NewRefitter(LeafBoundsFunc(func(NodeRef) types.AABB { return types.EmptyAABB() }))
	if _, err := r.Refit(context.Background(), MotionBlurRef(&MBNode{})); !errors.Is(err, ErrMotionBlurRefit) {
		t.Fatalf("expected ErrMotionBlurRefit; got %v", err)
	}
}
