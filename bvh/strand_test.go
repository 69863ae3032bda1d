package bvh

import (
	"context"
	"slices"
	"testing"

	"github.com/achilleasa/bvhbuild/alloc"
	"github.com/achilleasa/bvhbuild/types"
)

type mockCurves []Curve

func (m mockCurves) Curve(id uint32) Curve { return m[id] }

func (m mockCurves) prims() []PrimRef {
	prims := make([]PrimRef, len(m))
	for i, c := range m {
		prims[i] = NewPrimRef(c.Bounds(), uint32(i))
	}
	return prims
}

func straightCurve(from, dir types.Vec3) Curve {
	return Curve{
		P0:     from,
		P1:     from.Add(dir.Mul(1.0 / 3)),
		P2:     from.Add(dir.Mul(2.0 / 3)),
		P3:     from.Add(dir),
		Radius: 0.1,
	}
}

func TestStrandSplitParallelCurves(t *testing.T) {
	var curves mockCurves
	for i := 0; i < 5; i++ {
		curves = append(curves, straightCurve(types.XYZ(float32(i), 0, 0), types.XYZ(0, 0, 4)))
	}

	split := FindStrandSplit(slices.Values(curves.prims()), curves)
	if split.Valid() {
		t.Fatalf("expected infinite cost for parallel curves; got %f", split.Cost)
	}
	if split.Num0 != 0 || split.Num1 != 5 {
		t.Fatalf("expected all curves on one side; got %d/%d", split.Num0, split.Num1)
	}
}

func TestStrandSplitCrossingCurves(t *testing.T) {
	curves := mockCurves{
		straightCurve(types.XYZ(0, 0, 0), types.XYZ(5, 0, 0)),
		straightCurve(types.XYZ(0, 1, 0), types.XYZ(5, 0.1, 0)),
		straightCurve(types.XYZ(0, 0, 0), types.XYZ(0, 5, 0)),
		straightCurve(types.XYZ(0, 2, 0), types.XYZ(5, 0, 0.2)),
		straightCurve(types.XYZ(1, 0, 0), types.XYZ(0.1, 5, 0)),
		// Zero-length curves always go to the second group.
		straightCurve(types.XYZ(3, 3, 3), types.Vec3{}),
	}

	split := FindStrandSplit(slices.Values(curves.prims()), curves)
	if !split.Valid() {
		t.Fatal("expected a valid strand split")
	}
	if split.Num0 != 3 || split.Num1 != 3 {
		t.Fatalf("expected a 3/3 split; got %d/%d", split.Num0, split.Num1)
	}
	if split.Axis1 != types.XYZ(0, 1, 0) {
		t.Fatalf("expected axis1 to be the direction of the perpendicular curve; got %v", split.Axis1)
	}

	pool, err := alloc.NewBlockPool[PrimRef](2, nil)
	if err != nil {
		t.Fatal(err)
	}
	var list alloc.BlockList[PrimRef]
	for _, p := range curves.prims() {
		if err := list.Append(pool, p); err != nil {
			t.Fatal(err)
		}
	}

	left, right, linfo, rinfo, err := split.Split(pool, &list, curves)
	if err != nil {
		t.Fatal(err)
	}
	if list.Len() != 0 {
		t.Fatal("expected the source list to be drained")
	}
	if left.Len() != 3 || right.Len() != 3 || linfo.Count != 3 || rinfo.Count != 3 {
		t.Fatalf("expected 3 primitives per side; got %d/%d", left.Len(), right.Len())
	}

	var leftIDs, rightIDs []uint32
	for p := range left.All() {
		leftIDs = append(leftIDs, p.ID)
	}
	for p := range right.All() {
		rightIDs = append(rightIDs, p.ID)
	}
	if !slices.Equal(leftIDs, []uint32{0, 1, 3}) || !slices.Equal(rightIDs, []uint32{2, 4, 5}) {
		t.Fatalf("unexpected split: left %v, right %v", leftIDs, rightIDs)
	}

	left.Release(pool)
	right.Release(pool)
	if pool.Idle() != pool.Allocated() {
		t.Fatalf("expected all %d blocks to be returned to the pool; got %d", pool.Allocated(), pool.Idle())
	}
}

func TestStrandSplitZeroLengthFirstCurve(t *testing.T) {
	crossing := mockCurves{
		straightCurve(types.XYZ(0, 0, 0), types.XYZ(5, 0, 0)),
		straightCurve(types.XYZ(0, 0, 0), types.XYZ(0, 5, 0)),
		straightCurve(types.XYZ(0, 2, 0), types.XYZ(5, 0, 0.2)),
		straightCurve(types.XYZ(1, 0, 0), types.XYZ(0.1, 5, 0)),
	}

	type spec struct {
		curves  mockCurves
		expNum0 int
		expNum1 int
	}
	specs := []spec{
		{crossing, 2, 2},
		// A leading zero-length curve must not become axis0.
		{append(mockCurves{straightCurve(types.XYZ(3, 3, 3), types.Vec3{})}, crossing...), 2, 3},
	}

	for index, sp := range specs {
		split := FindStrandSplit(slices.Values(sp.curves.prims()), sp.curves)
		if !split.Valid() {
			t.Fatalf("[spec %d] expected a valid strand split; got cost %f", index, split.Cost)
		}
		if split.Axis0 != types.XYZ(1, 0, 0) || split.Axis1 != types.XYZ(0, 1, 0) {
			t.Fatalf("[spec %d] expected axes along x and y; got %v and %v", index, split.Axis0, split.Axis1)
		}
		if split.Num0 != sp.expNum0 || split.Num1 != sp.expNum1 {
			t.Fatalf("[spec %d] expected a %d/%d split; got %d/%d", index, sp.expNum0, sp.expNum1, split.Num0, split.Num1)
		}
	}

	all := mockCurves{straightCurve(types.XYZ(1, 1, 1), types.Vec3{}), straightCurve(types.XYZ(2, 2, 2), types.Vec3{})}
	if split := FindStrandSplit(slices.Values(all.prims()), all); split.Valid() || split.Num1 != 2 {
		t.Fatalf("expected an invalid split with both curves in the second group; got %+v", split)
	}
}

func TestStrandSplitterBuild(t *testing.T) {
	// A crossing pattern of long thin curves.
	var curves mockCurves
	for i := 0; i < 200; i++ {
		f := float32(i % 20)
		if i%2 == 0 {
			curves = append(curves, straightCurve(types.XYZ(0, f, float32(i/20)), types.XYZ(20, 0.01*f, 0)))
		} else {
			curves = append(curves, straightCurve(types.XYZ(f, 0, float32(i/20)), types.XYZ(0.01*f, 20, 0)))
		}
	}

	s := DefaultSettings()
	s.ParallelThreshold = 16
	pool, err := alloc.NewBlockPool[PrimRef](16, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, fallback := range []StrandFallback{StrandFallbackSAH, StrandFallbackLeaf} {
		root, bounds, _ := buildPrims(t, curves.prims(), s, WithStrandSplitter(curves, pool, fallback))

		if err := Validate(root, bounds, s, leafBoundsFor(curves.prims())); err != nil {
			t.Fatal(err)
		}
		ids := LeafIDs(root)
		slices.Sort(ids)
		if len(ids) != len(curves) {
			t.Fatalf("expected %d primitives in leaves; got %d", len(curves), len(ids))
		}
		for i, id := range ids {
			if id != uint32(i) {
				t.Fatalf("expected primitive %d to appear exactly once", i)
			}
		}
		if pool.Idle() != pool.Allocated() {
			t.Fatal("expected all temporary blocks to be returned to the pool")
		}
	}
}

func TestStrandSplitterFallback(t *testing.T) {
	// Parallel curves cannot be separated by direction. Four of them are
	// packed together and two lie far away.
	var curves mockCurves
	for _, x := range []float32{0, 1, 2, 3, 100, 101} {
		curves = append(curves, straightCurve(types.XYZ(x, 0, 0), types.XYZ(0, 0, 4)))
	}

	s := DefaultSettings()
	s.MaxLeafSize = 4
	pool, err := alloc.NewBlockPool[PrimRef](16, nil)
	if err != nil {
		t.Fatal(err)
	}

	type spec struct {
		fallback      StrandFallback
		expLeafCounts []int
	}
	specs := []spec{
		// SAH separates the packed curves from the distant ones.
		{StrandFallbackSAH, []int{4, 2}},
		// No split is reported so the oversized record is split at the median.
		{StrandFallbackLeaf, []int{3, 3}},
	}

	for index, sp := range specs {
		nodes := NewNodeAllocator(DefaultArenaConfig())
		prims := curves.prims()
		root, bounds, err := Build(context.Background(), nodes, prims, ComputeBuildInfo(prims), s, IDLeaf, WithStrandSplitter(curves, pool, sp.fallback))
		if err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		if err := Validate(root, bounds, s, leafBoundsFor(curves.prims())); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}

		var counts []int
		Walk(root, func(ref NodeRef, _ int) {
			if ref.IsLeaf() {
				counts = append(counts, len(ref.Leaf().Prims))
			}
		})
		if !slices.Equal(counts, sp.expLeafCounts) {
			t.Fatalf("[spec %d] expected leaf sizes %v; got %v", index, sp.expLeafCounts, counts)
		}
	}
}
