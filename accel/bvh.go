// Package accel builds and maintains the acceleration structures of a scene.
// There is one builder per geometry type; each decides between a full
// rebuild and a refit of its previous hierarchy, gathers primitive
// references from the scene and installs the result into a BVH container.
package accel

import (
	"bytes"
	"fmt"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/achilleasa/bvhbuild/bvh"
	"github.com/achilleasa/bvhbuild/types"
)

// A BVH holds a built hierarchy together with the memory backing it.
type BVH struct {
	Nodes *bvh.NodeAllocator

	// Settings used for building the current hierarchy.
	Settings bvh.Settings

	Root          bvh.NodeRef
	Bounds        types.AABB
	NumPrimitives int

	// Motion blurred hierarchies have one root per time segment; Root
	// points to the first one.
	MotionBlur   bool
	SegmentRoots []bvh.NodeRef
}

// Create an empty BVH whose nodes are allocated according to cfg.
func NewBVH(cfg bvh.ArenaConfig) *BVH {
	return &BVH{
		Nodes:    bvh.NewNodeAllocator(cfg),
		Settings: bvh.DefaultSettings(),
		Root:     bvh.EmptyRef,
		Bounds:   types.EmptyAABB(),
	}
}

// Install a hierarchy.
func (b *BVH) Set(root bvh.NodeRef, bounds types.AABB, numPrims int) {
	b.Root = root
	b.Bounds = bounds
	b.NumPrimitives = numPrims
	b.MotionBlur = false
	b.SegmentRoots = nil
}

// Install a motion blurred hierarchy with one root per time segment.
func (b *BVH) SetSegments(roots []bvh.NodeRef, bounds types.AABB, numPrims int) {
	b.Set(roots[0], bounds, numPrims)
	b.MotionBlur = true
	b.SegmentRoots = roots
}

// Install the empty hierarchy. Node memory is retained for the next build.
func (b *BVH) Clear() {
	b.Set(bvh.EmptyRef, types.EmptyAABB(), 0)
}

// Release node memory not used by the current hierarchy.
func (b *BVH) Shrink() error {
	return b.Nodes.Shrink()
}

// Get the roots of the hierarchy.
func (b *BVH) Roots() []bvh.NodeRef {
	if b.MotionBlur {
		return b.SegmentRoots
	}
	return []bvh.NodeRef{b.Root}
}

// Collect statistics over all roots. The SAH cost of motion blurred
// hierarchies is averaged over the time segments.
func (b *BVH) Stats() bvh.Stats {
	var out bvh.Stats
	roots := b.Roots()
	for _, root := range roots {
		s := bvh.CollectStats(root, b.Bounds, b.Settings)
		out.Internal += s.Internal
		out.Quantized += s.Quantized
		out.MotionBlur += s.MotionBlur
		out.Leaves += s.Leaves
		out.Empty += s.Empty
		out.Prims += s.Prims
		out.MaxDepth = max(out.MaxDepth, s.MaxDepth)
		out.SAH += s.SAH
	}
	out.SAH /= float32(len(roots))
	return out
}

// Measure the bytes retained by the hierarchy and its allocator.
func (b *BVH) MemoryFootprint() int {
	return size.Of(b)
}

// Render a summary table of the hierarchy.
func (b *BVH) Report(title string) string {
	stats := b.Stats()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{title, ""})
	table.Append([]string{"Primitives", fmt.Sprintf("%d", b.NumPrimitives)})
	table.Append([]string{"Time segments", fmt.Sprintf("%d", len(b.Roots()))})
	table.Append([]string{"Nodes", fmt.Sprintf("%d", stats.Nodes())})
	table.Append([]string{"Leaves", fmt.Sprintf("%d", stats.Leaves)})
	table.Append([]string{"Max depth", fmt.Sprintf("%d", stats.MaxDepth)})
	table.Append([]string{"SAH cost", fmt.Sprintf("%.2f", stats.SAH)})
	table.Append([]string{"Arena", b.Nodes.Stats().String()})
	table.Append([]string{"Budget", b.Nodes.Budget().String()})
	table.SetFooter([]string{"Footprint", humanize.Bytes(uint64(max(b.MemoryFootprint(), 0)))})
	table.Render()
	return buf.String()
}
