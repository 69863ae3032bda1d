package bvh

import (
	"bytes"
	"fmt"

	"github.com/olekukonko/tablewriter"

	"github.com/achilleasa/bvhbuild/types"
)

// Stats summarize the shape of a hierarchy.
type Stats struct {
	Internal   int
	Quantized  int
	MotionBlur int
	Leaves     int
	Empty      int
	Prims      int
	MaxDepth   int

	// Expected cost of a ray traversal through the hierarchy relative to the
	// root surface area, using the cost constants of the build settings.
	SAH float32
}

// Collect hierarchy statistics. bounds are the root bounds returned by the
// builder.
func CollectStats(root NodeRef, bounds types.AABB, s Settings) Stats {
	var stats Stats

	var invRootArea float32
	if a := bounds.HalfArea(); a > 0 {
		invRootArea = 1 / a
	}

	var walk func(ref NodeRef, box types.AABB, depth int)
	walk = func(ref NodeRef, box types.AABB, depth int) {
		stats.MaxDepth = max(stats.MaxDepth, depth)
		area := box.HalfArea() * invRootArea

		switch ref.Kind() {
		case KindEmpty:
			stats.Empty++
			return
		case KindLeaf:
			n := len(ref.Leaf().Prims)
			stats.Leaves++
			stats.Prims += n
			stats.SAH += area * float32(n) * s.IntersectionCost
			return
		case KindInternal:
			stats.Internal++
		case KindQuantized:
			stats.Quantized++
		case KindMotionBlur:
			stats.MotionBlur++
		}

		stats.SAH += area * s.TraversalCost
		for i := 0; i < ref.NumChildren(); i++ {
			walk(ref.Child(i), ref.ChildBounds(i), depth+1)
		}
	}
	walk(root, bounds, 0)
	return stats
}

// Number of internal nodes of any kind.
func (s Stats) Nodes() int {
	return s.Internal + s.Quantized + s.MotionBlur
}

// Build a tabular representation of the stats.
func (s Stats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Node type", "Count"})
	table.Append([]string{"Internal", fmt.Sprintf("%d", s.Internal)})
	table.Append([]string{"Quantized", fmt.Sprintf("%d", s.Quantized)})
	table.Append([]string{"Motion blur", fmt.Sprintf("%d", s.MotionBlur)})
	table.Append([]string{"Leaves", fmt.Sprintf("%d", s.Leaves)})
	table.Append([]string{"Empty", fmt.Sprintf("%d", s.Empty)})
	table.Append([]string{" ", " "})
	table.Append([]string{"Primitives", fmt.Sprintf("%d", s.Prims)})
	table.Append([]string{"Max depth", fmt.Sprintf("%d", s.MaxDepth)})
	table.SetFooter([]string{"SAH cost", fmt.Sprintf("%.2f", s.SAH)})
	table.Render()
	return buf.String()
}

// Collect the primitive IDs stored in all leaves in depth-first order.
func LeafIDs(root NodeRef) []uint32 {
	var ids []uint32
	Walk(root, func(ref NodeRef, _ int) {
		if ref.IsLeaf() {
			ids = append(ids, ref.Leaf().Prims...)
		}
	})
	return ids
}

// Invoke fn for every node of the hierarchy in depth-first order.
func Walk(root NodeRef, fn func(ref NodeRef, depth int)) {
	var walk func(ref NodeRef, depth int)
	walk = func(ref NodeRef, depth int) {
		fn(ref, depth)
		for i := 0; i < ref.NumChildren(); i++ {
			walk(ref.Child(i), depth+1)
		}
	}
	walk(root, 0)
}

// Check the structural invariants of a hierarchy: every stored child box
// must be enclosed by the box stored for its parent, leaves must hold between
// 1 and s.MaxLeafSize primitives, and, if lb is not nil, the actual leaf
// bounds must be enclosed by the box stored for the leaf.
func Validate(root NodeRef, bounds types.AABB, s Settings, lb LeafBounds) error {
	var check func(ref NodeRef, box types.AABB, path string) error
	check = func(ref NodeRef, box types.AABB, path string) error {
		switch ref.Kind() {
		case KindEmpty:
			return nil
		case KindLeaf:
			leaf := ref.Leaf()
			if len(leaf.Prims) == 0 || len(leaf.Prims) > s.MaxLeafSize {
				return fmt.Errorf("%w: leaf %s holds %d primitives", ErrInvalidHierarchy, path, len(leaf.Prims))
			}
			if lb != nil && !box.Contains(lb.LeafBounds(ref)) {
				return fmt.Errorf("%w: leaf %s escapes its parent bounds", ErrInvalidHierarchy, path)
			}
			return nil
		}

		for i := 0; i < ref.NumChildren(); i++ {
			childBox := ref.ChildBounds(i)
			childPath := fmt.Sprintf("%s/%d", path, i)
			if !box.Contains(childBox) {
				return fmt.Errorf("%w: node %s escapes its parent bounds", ErrInvalidHierarchy, childPath)
			}
			if err := check(ref.Child(i), childBox, childPath); err != nil {
				return err
			}
		}
		return nil
	}
	return check(root, bounds, "")
}
