package bvh

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/achilleasa/bvhbuild/alloc"
	"github.com/achilleasa/bvhbuild/types"
)

func unitBox(x, y, z float32) types.AABB {
	return types.AABB{
		Min: types.XYZ(x-0.5, y-0.5, z-0.5),
		Max: types.XYZ(x+0.5, y+0.5, z+0.5),
	}
}

func randomPrims(n int, seed uint64) []PrimRef {
	rng := rand.New(rand.NewPCG(seed, seed))
	prims := make([]PrimRef, n)
	for i := range prims {
		c := types.XYZ(rng.Float32()*100, rng.Float32()*100, rng.Float32()*100)
		d := types.XYZ(rng.Float32()*2, rng.Float32()*2, rng.Float32()*2)
		prims[i] = NewPrimRef(types.AABB{Min: c.Sub(d), Max: c.Add(d)}, uint32(i))
	}
	return prims
}

// Returns a LeafBounds implementation backed by a snapshot of the primitive
// bounds indexed by ID.
func leafBoundsFor(prims []PrimRef) LeafBoundsFunc {
	byID := make(map[uint32]types.AABB, len(prims))
	for _, p := range prims {
		byID[p.ID] = p.Bounds
	}
	return func(ref NodeRef) types.AABB {
		box := types.EmptyAABB()
		for _, id := range ref.Leaf().Prims {
			box = box.Extend(byID[id])
		}
		return box
	}
}

func buildPrims(t *testing.T, prims []PrimRef, s Settings, opts ...Option) (NodeRef, types.AABB, *NodeAllocator) {
	t.Helper()
	nodes := NewNodeAllocator(DefaultArenaConfig())
	root, bounds, err := Build(context.Background(), nodes, prims, ComputeBuildInfo(prims), s, IDLeaf, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return root, bounds, nodes
}

// Serialize the hierarchy topology and stored bounds.
func dump(root NodeRef) string {
	var buf strings.Builder
	var walk func(ref NodeRef)
	walk = func(ref NodeRef) {
		switch ref.Kind() {
		case KindEmpty:
			buf.WriteString("E")
		case KindLeaf:
			fmt.Fprintf(&buf, "L%v", ref.Leaf().Prims)
		default:
			fmt.Fprintf(&buf, "%s(", ref.Kind())
			for i := 0; i < ref.NumChildren(); i++ {
				fmt.Fprintf(&buf, "%v:", ref.ChildBounds(i))
				walk(ref.Child(i))
				buf.WriteString(" ")
			}
			buf.WriteString(")")
		}
	}
	walk(root)
	return buf.String()
}

func TestSettingsValidate(t *testing.T) {
	type spec struct {
		mutate func(*Settings)
		expErr bool
	}
	specs := []spec{
		{func(s *Settings) {}, false},
		{func(s *Settings) { s.BranchingFactor = 1 }, true},
		{func(s *Settings) { s.BranchingFactor = MaxBranchingFactor + 1 }, true},
		{func(s *Settings) { s.MinLeafSize = 0 }, true},
		{func(s *Settings) { s.MinLeafSize, s.MaxLeafSize = 4, 2 }, true},
		{func(s *Settings) { s.MaxDepth = 0 }, true},
		{func(s *Settings) { s.IntersectionCost = 0 }, true},
		{func(s *Settings) { s.BinCount = 1 }, true},
		{func(s *Settings) { s.BinCount = MaxBins + 1 }, true},
		{func(s *Settings) { s.ParallelThreshold = 0 }, true},
	}

	for index, sp := range specs {
		s := DefaultSettings()
		sp.mutate(&s)
		err := s.Validate()
		if sp.expErr && !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("[spec %d] expected ErrInvalidSettings; got %v", index, err)
		}
		if !sp.expErr && err != nil {
			t.Fatalf("[spec %d] expected no error; got %v", index, err)
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	root, bounds, _ := buildPrims(t, nil, DefaultSettings())
	if !root.IsEmpty() {
		t.Fatalf("expected empty root; got %s", root.Kind())
	}
	if !bounds.IsEmpty() {
		t.Fatalf("expected empty bounds; got %v", bounds)
	}
	if stats := CollectStats(root, bounds, DefaultSettings()); stats.Prims != 0 {
		t.Fatalf("expected 0 primitives; got %d", stats.Prims)
	}
}

func TestBuildSinglePrimitive(t *testing.T) {
	prims := []PrimRef{NewPrimRef(unitBox(1, 2, 3), 42)}
	root, bounds, _ := buildPrims(t, prims, DefaultSettings())

	if !root.IsLeaf() {
		t.Fatalf("expected leaf root; got %s", root.Kind())
	}
	if got := root.Leaf().Prims; !slices.Equal(got, []uint32{42}) {
		t.Fatalf("expected leaf [42]; got %v", got)
	}
	if bounds != unitBox(1, 2, 3) {
		t.Fatalf("expected bounds %v; got %v", unitBox(1, 2, 3), bounds)
	}
	if stats := CollectStats(root, bounds, DefaultSettings()); stats.Nodes() != 0 {
		t.Fatalf("expected 0 internal nodes; got %d", stats.Nodes())
	}
}

func TestBuildTwoSeparatedPrimitives(t *testing.T) {
	s := DefaultSettings()
	s.MaxLeafSize = 1
	s.BranchingFactor = 2

	prims := []PrimRef{
		NewPrimRef(unitBox(0, 0, 0), 0),
		NewPrimRef(unitBox(100, 0, 0), 1),
	}

	split := FindSplit(prims, BuildRecord{End: 2, Info: ComputeBuildInfo(prims)}, s)
	if !split.Valid() || split.Axis != 0 {
		t.Fatalf("expected a valid split along the x axis; got %+v", split)
	}

	root, bounds, _ := buildPrims(t, prims, s)
	stats := CollectStats(root, bounds, s)
	if stats.Internal != 1 || stats.Leaves != 2 {
		t.Fatalf("expected 1 internal node and 2 leaves; got %d and %d", stats.Internal, stats.Leaves)
	}
	if root.Child(0).Leaf().Prims[0] != 0 || root.Child(1).Leaf().Prims[0] != 1 {
		t.Fatalf("expected the left child to hold the primitive at x=0; got %s", dump(root))
	}
}

func TestRecordsThatFitBecomeLeaves(t *testing.T) {
	// SAH would separate these boxes but they fit into a single leaf.
	var prims []PrimRef
	for i := 0; i < 8; i++ {
		prims = append(prims, NewPrimRef(unitBox(float32(100*i), 0, 0), uint32(i)))
	}

	type spec struct {
		maxLeafSize  int
		expLeaves    int
		expInternals int
	}
	specs := []spec{
		{8, 1, 0},
		{4, 2, 1},
		{1, 8, 5},
	}

	for index, sp := range specs {
		s := DefaultSettings()
		s.MaxLeafSize = sp.maxLeafSize
		root, bounds, _ := buildPrims(t, slices.Clone(prims), s)

		stats := CollectStats(root, bounds, s)
		if stats.Leaves != sp.expLeaves || stats.Nodes() != sp.expInternals {
			t.Fatalf("[spec %d] expected %d leaves and %d internal nodes; got %d and %d", index, sp.expLeaves, sp.expInternals, stats.Leaves, stats.Nodes())
		}
		if err := Validate(root, bounds, s, leafBoundsFor(prims)); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
	}
}

func TestMedianFallback(t *testing.T) {
	// Boxes of different size sharing the same centroid.
	var prims []PrimRef
	for i := 0; i < 4; i++ {
		half := float32(i + 1)
		prims = append(prims, NewPrimRef(types.AABB{Min: types.Splat(-half), Max: types.Splat(half)}, uint32(i)))
	}

	s := DefaultSettings()
	s.BranchingFactor = 2
	rec := BuildRecord{End: len(prims), Info: ComputeBuildInfo(prims)}
	if split := FindSplit(prims, rec, s); split.Valid() {
		t.Fatalf("expected no valid SAH split for coincident centroids; got %+v", split)
	}

	type spec struct {
		maxLeafSize int
		expLeaves   int
	}
	specs := []spec{
		{4, 1},
		{2, 2},
		{1, 4},
	}

	for index, sp := range specs {
		s.MaxLeafSize = sp.maxLeafSize
		root, bounds, _ := buildPrims(t, slices.Clone(prims), s)

		stats := CollectStats(root, bounds, s)
		if stats.Leaves != sp.expLeaves {
			t.Fatalf("[spec %d] expected %d leaves; got %d", index, sp.expLeaves, stats.Leaves)
		}
		if err := Validate(root, bounds, s, leafBoundsFor(prims)); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
	}
}

func TestMedianSplitOrdersByID(t *testing.T) {
	prims := []PrimRef{
		NewPrimRef(unitBox(0, 0, 0), 3),
		NewPrimRef(unitBox(0, 0, 0), 1),
		NewPrimRef(unitBox(0, 0, 0), 2),
		NewPrimRef(unitBox(0, 0, 0), 0),
	}
	left, right := MedianSplit(prims, BuildRecord{End: 4, Info: ComputeBuildInfo(prims)})
	if left.Count() != 2 || right.Count() != 2 {
		t.Fatalf("expected two halves of 2; got %d and %d", left.Count(), right.Count())
	}
	for i, p := range prims {
		if p.ID != uint32(i) {
			t.Fatalf("expected primitive %d to have ID %d; got %d", i, i, p.ID)
		}
	}
	if left.Depth != 1 || right.Depth != 1 {
		t.Fatal("expected child records to be one level deeper")
	}
}

func TestFindSplitIsOptimal(t *testing.T) {
	s := DefaultSettings()
	prims := randomPrims(500, 7)
	rec := BuildRecord{End: len(prims), Info: ComputeBuildInfo(prims)}
	split := FindSplit(prims, rec, s)
	if !split.Valid() {
		t.Fatal("expected a valid split")
	}

	// Evaluate every candidate by brute force.
	m := newBinMapping(rec.Info.Cent, s.BinCount)
	invArea := 1 / rec.Info.Geom.HalfArea()
	for axis := 0; axis < 3; axis++ {
		for pos := 1; pos < s.BinCount; pos++ {
			var left, right BuildInfo = EmptyBuildInfo(), EmptyBuildInfo()
			for _, p := range prims {
				if m.bin(p.Center(), axis) < pos {
					left.AddPrim(p)
				} else {
					right.AddPrim(p)
				}
			}
			if left.Count == 0 || right.Count == 0 {
				continue
			}
			cost := s.TraversalCost + (left.Geom.HalfArea()*float32(left.Count)+right.Geom.HalfArea()*float32(right.Count))*invArea*s.IntersectionCost
			if cost < split.Cost*(1-1e-5) {
				t.Fatalf("candidate (axis %d, pos %d) has cost %f which is lower than the selected cost %f", axis, pos, cost, split.Cost)
			}
		}
	}
}

func TestFindSplitTieBreak(t *testing.T) {
	// Splitting along x or along y yields the same cost.
	prims := []PrimRef{
		NewPrimRef(unitBox(0, 0, 0), 0),
		NewPrimRef(unitBox(10, 0, 0), 1),
		NewPrimRef(unitBox(0, 10, 0), 2),
		NewPrimRef(unitBox(10, 10, 0), 3),
	}
	rec := BuildRecord{End: len(prims), Info: ComputeBuildInfo(prims)}

	for attempt := 0; attempt < 3; attempt++ {
		split := FindSplit(prims, rec, DefaultSettings())
		if split.Axis != 0 || split.Pos != 1 {
			t.Fatalf("expected split at axis 0, bin 1; got axis %d, bin %d", split.Axis, split.Pos)
		}
	}
}

func TestPartition(t *testing.T) {
	s := DefaultSettings()
	prims := randomPrims(1000, 3)
	rec := BuildRecord{Begin: 100, End: 900}
	rec.Info = ComputeBuildInfo(rec.Prims(prims))

	before := slices.Clone(prims)
	split := FindSplit(prims, rec, s)
	left, right := Partition(prims, rec, split)

	if left.Begin != 100 || right.End != 900 || left.End != right.Begin {
		t.Fatalf("expected adjacent child ranges covering [100, 900); got [%d, %d) and [%d, %d)", left.Begin, left.End, right.Begin, right.End)
	}
	if left.Info.Count != left.Count() || right.Info.Count != right.Count() {
		t.Fatal("expected child info counts to match the child ranges")
	}
	for i := left.Begin; i < left.End; i++ {
		if split.mapping.bin(prims[i].Center(), split.Axis) >= split.Pos {
			t.Fatalf("expected primitive at %d to be left of the split", i)
		}
	}
	for i := right.Begin; i < right.End; i++ {
		if split.mapping.bin(prims[i].Center(), split.Axis) < split.Pos {
			t.Fatalf("expected primitive at %d to be right of the split", i)
		}
	}

	// Items outside the record must not move.
	if !slices.Equal(before[:100], prims[:100]) || !slices.Equal(before[900:], prims[900:]) {
		t.Fatal("expected primitives outside the record range to remain in place")
	}
}

func TestBuildInvariants(t *testing.T) {
	type spec struct {
		branching int
		maxLeaf   int
		quantize  bool
	}
	specs := []spec{
		{2, 1, false},
		{4, 8, false},
		{8, 4, false},
		{4, 8, true},
		{2, 3, true},
	}

	orig := randomPrims(5000, 11)
	for index, sp := range specs {
		s := DefaultSettings()
		s.BranchingFactor = sp.branching
		s.MaxLeafSize = sp.maxLeaf
		s.Quantize = sp.quantize
		s.ParallelThreshold = 64

		prims := slices.Clone(orig)
		root, bounds, _ := buildPrims(t, prims, s)

		ids := LeafIDs(root)
		slices.Sort(ids)
		if len(ids) != len(orig) {
			t.Fatalf("[spec %d] expected %d primitives in leaves; got %d", index, len(orig), len(ids))
		}
		for i, id := range ids {
			if id != uint32(i) {
				t.Fatalf("[spec %d] expected primitive %d to appear exactly once", index, i)
			}
		}

		if err := Validate(root, bounds, s, leafBoundsFor(orig)); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}

		expBounds := ComputeBuildInfo(orig).Geom
		if !bounds.Contains(expBounds) {
			t.Fatalf("[spec %d] expected root bounds %v to contain %v", index, bounds, expBounds)
		}
		if !sp.quantize && bounds != expBounds {
			t.Fatalf("[spec %d] expected root bounds %v; got %v", index, expBounds, bounds)
		}

		Walk(root, func(ref NodeRef, _ int) {
			if n := ref.NumChildren(); ref.IsInternal() && (n < 2 || n > sp.branching) {
				t.Fatalf("[spec %d] expected internal nodes with 2..%d children; got %d", index, sp.branching, n)
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	s := DefaultSettings()
	s.ParallelThreshold = 32
	orig := randomPrims(4000, 5)

	root, _, _ := buildPrims(t, slices.Clone(orig), s, WithWorkers(1))
	exp := dump(root)

	for attempt := 0; attempt < 3; attempt++ {
		root, _, _ := buildPrims(t, slices.Clone(orig), s)
		if got := dump(root); got != exp {
			t.Fatalf("[attempt %d] expected parallel build to match the sequential one", attempt)
		}
	}
}

func TestMaxDepthForcesCountSplits(t *testing.T) {
	s := DefaultSettings()
	s.MaxDepth = 1
	s.MaxLeafSize = 4
	s.BranchingFactor = 2

	orig := randomPrims(100, 9)
	root, bounds, _ := buildPrims(t, slices.Clone(orig), s)
	if err := Validate(root, bounds, s, leafBoundsFor(orig)); err != nil {
		t.Fatal(err)
	}
	if got := len(LeafIDs(root)); got != len(orig) {
		t.Fatalf("expected %d primitives in leaves; got %d", len(orig), got)
	}
}

func TestBuildProgress(t *testing.T) {
	var (
		counter ProgressCounter
		calls   int
	)
	monitor := counter.Monitor()

	s := DefaultSettings()
	s.ParallelThreshold = 16
	prims := randomPrims(3000, 1)
	buildPrims(t, prims, s, WithProgress(func(delta int) {
		if delta <= 0 {
			t.Errorf("expected positive progress delta; got %d", delta)
		}
		calls++
		monitor(delta)
	}))

	if counter.Done() != len(prims) {
		t.Fatalf("expected progress to add up to %d; got %d", len(prims), counter.Done())
	}
	if calls == 0 {
		t.Fatal("expected progress monitor to be invoked")
	}
}

func TestBuildLeafErrorAborts(t *testing.T) {
	errBoom := errors.New("boom")
	s := DefaultSettings()
	s.ParallelThreshold = 16

	prims := randomPrims(2000, 2)
	nodes := NewNodeAllocator(DefaultArenaConfig())
	root, _, err := Build(context.Background(), nodes, prims, ComputeBuildInfo(prims), s, func(prims []PrimRef, rec BuildRecord, a *Allocator) (NodeRef, error) {
		for _, p := range rec.Prims(prims) {
			if p.ID == 1234 {
				return EmptyRef, errBoom
			}
		}
		return IDLeaf(prims, rec, a)
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom; got %v", err)
	}
	if !root.IsEmpty() {
		t.Fatal("expected no hierarchy to be returned on failure")
	}
	if err := nodes.Reset(); err != nil {
		t.Fatalf("expected all allocators to be released; got %v", err)
	}
}

func TestBuildExhaustedBudget(t *testing.T) {
	prims := randomPrims(100, 4)
	nodes := NewNodeAllocator(ArenaConfig{MaxBytes: 1})
	_, _, err := Build(context.Background(), nodes, prims, ComputeBuildInfo(prims), DefaultSettings(), IDLeaf)
	if !errors.Is(err, alloc.ErrExhausted) {
		t.Fatalf("expected ErrExhausted; got %v", err)
	}
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prims := randomPrims(100, 4)
	nodes := NewNodeAllocator(DefaultArenaConfig())
	if _, _, err := Build(ctx, nodes, prims, ComputeBuildInfo(prims), DefaultSettings(), IDLeaf); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled; got %v", err)
	}
}

func TestNodeAllocatorResetBarrier(t *testing.T) {
	nodes := NewNodeAllocator(DefaultArenaConfig())
	a, err := nodes.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if err := nodes.Reset(); !errors.Is(err, alloc.ErrResetInFlight) {
		t.Fatalf("expected ErrResetInFlight; got %v", err)
	}
	nodes.Release(a)
	if err := nodes.Reset(); err != nil {
		t.Fatal(err)
	}
}

func TestNodeAllocatorReusesMemory(t *testing.T) {
	s := DefaultSettings()
	prims := randomPrims(2000, 8)
	nodes := NewNodeAllocator(DefaultArenaConfig())

	for attempt := 0; attempt < 3; attempt++ {
		if err := nodes.Reset(); err != nil {
			t.Fatal(err)
		}
		in := slices.Clone(prims)
		if _, _, err := Build(context.Background(), nodes, in, ComputeBuildInfo(in), s, IDLeaf, WithWorkers(1)); err != nil {
			t.Fatal(err)
		}
	}

	// A sequential build uses a single allocator whose blocks are recycled.
	stats := nodes.Stats()
	if stats.Blocks != stats.ActiveBlocks {
		t.Fatalf("expected all retained blocks to be reused; got %s", stats)
	}
	if nodes.Workers() != 1 {
		t.Fatalf("expected 1 worker allocator; got %d", nodes.Workers())
	}
}

func TestQuantizedNodeIsConservative(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for attempt := 0; attempt < 100; attempt++ {
		var bounds []types.AABB
		for i := 0; i < 1+rng.IntN(MaxBranchingFactor); i++ {
			c := types.XYZ(rng.Float32()*1000-500, rng.Float32()*1000-500, rng.Float32()*1000-500)
			d := types.XYZ(rng.Float32()*50, rng.Float32()*50, rng.Float32()*50)
			bounds = append(bounds, types.AABB{Min: c.Sub(d), Max: c.Add(d)})
		}

		var node QuantizedNode
		node.NumChildren = len(bounds)
		node.SetBounds(bounds)
		for i, exact := range bounds {
			if got := node.ChildBounds(i); !got.Contains(exact) {
				t.Fatalf("[attempt %d] expected decoded bounds %v to contain %v", attempt, got, exact)
			}
		}
	}
}

func TestQuantizedNodeDegenerateAxis(t *testing.T) {
	bounds := []types.AABB{
		{Min: types.XYZ(0, 1, 0), Max: types.XYZ(1, 1, 0)},
		{Min: types.XYZ(2, 1, 0), Max: types.XYZ(3, 1, 0)},
		types.EmptyAABB(),
	}
	var node QuantizedNode
	node.NumChildren = len(bounds)
	node.SetBounds(bounds)

	for i := 0; i < 2; i++ {
		got := node.ChildBounds(i)
		if !got.Contains(bounds[i]) {
			t.Fatalf("expected child %d bounds %v to contain %v", i, got, bounds[i])
		}
		// Flat axes are stored exactly.
		if got.Min[1] != 1 || got.Max[1] != 1 || got.Min[2] != 0 || got.Max[2] != 0 {
			t.Fatalf("expected child %d to be flat along y and z; got %v", i, got)
		}
	}
	if !node.ChildBounds(2).IsEmpty() {
		t.Fatal("expected empty child to decode to empty bounds")
	}
}
