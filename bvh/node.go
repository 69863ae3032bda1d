package bvh

import "github.com/achilleasa/bvhbuild/types"

// Kind identifies the payload of a NodeRef.
type Kind uint8

// The supported node kinds.
const (
	KindEmpty Kind = iota
	KindLeaf
	KindInternal
	KindQuantized
	KindMotionBlur
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindLeaf:
		return "leaf"
	case KindInternal:
		return "internal"
	case KindQuantized:
		return "quantized"
	case KindMotionBlur:
		return "motion blur"
	}
	return "unknown"
}

// A NodeRef is a tagged reference to a hierarchy node. The zero value is the
// empty node.
type NodeRef struct {
	kind Kind

	node   *Node
	qnode  *QuantizedNode
	mbnode *MBNode
	leaf   *Leaf
}

// The empty node.
var EmptyRef = NodeRef{}

// Create a reference to an internal node.
func InternalRef(n *Node) NodeRef {
	return NodeRef{kind: KindInternal, node: n}
}

// Create a reference to a quantized internal node.
func QuantizedRef(n *QuantizedNode) NodeRef {
	return NodeRef{kind: KindQuantized, qnode: n}
}

// Create a reference to a motion blur internal node.
func MotionBlurRef(n *MBNode) NodeRef {
	return NodeRef{kind: KindMotionBlur, mbnode: n}
}

// Create a reference to a leaf.
func LeafRef(l *Leaf) NodeRef {
	return NodeRef{kind: KindLeaf, leaf: l}
}

func (r NodeRef) Kind() Kind { return r.kind }

func (r NodeRef) IsEmpty() bool { return r.kind == KindEmpty }

func (r NodeRef) IsLeaf() bool { return r.kind == KindLeaf }

// Returns true for any of the internal node kinds.
func (r NodeRef) IsInternal() bool {
	return r.kind == KindInternal || r.kind == KindQuantized || r.kind == KindMotionBlur
}

func (r NodeRef) Node() *Node { return r.node }

func (r NodeRef) Quantized() *QuantizedNode { return r.qnode }

func (r NodeRef) MotionBlur() *MBNode { return r.mbnode }

func (r NodeRef) Leaf() *Leaf { return r.leaf }

// Number of children of an internal node. Leaves and empty nodes have none.
func (r NodeRef) NumChildren() int {
	switch r.kind {
	case KindInternal:
		return r.node.NumChildren
	case KindQuantized:
		return r.qnode.NumChildren
	case KindMotionBlur:
		return r.mbnode.NumChildren
	}
	return 0
}

// Get the i-th child of an internal node.
func (r NodeRef) Child(i int) NodeRef {
	switch r.kind {
	case KindInternal:
		return r.node.Children[i]
	case KindQuantized:
		return r.qnode.Children[i]
	case KindMotionBlur:
		return r.mbnode.Children[i]
	}
	return EmptyRef
}

// Get the bounds stored for the i-th child. Motion blur nodes report the box
// enclosing the child over the whole time segment.
func (r NodeRef) ChildBounds(i int) types.AABB {
	switch r.kind {
	case KindInternal:
		return r.node.Bounds[i]
	case KindQuantized:
		return r.qnode.ChildBounds(i)
	case KindMotionBlur:
		return r.mbnode.ChildBounds(i).Global()
	}
	return types.EmptyAABB()
}

// A leaf stores the IDs of the primitives it references.
type Leaf struct {
	Prims []uint32
}

// Node is an internal node with full precision child bounds.
type Node struct {
	NumChildren int
	Children    [MaxBranchingFactor]NodeRef
	Bounds      [MaxBranchingFactor]types.AABB
}

// Set child i.
func (n *Node) SetChild(i int, ref NodeRef, bounds types.AABB) {
	n.Children[i] = ref
	n.Bounds[i] = bounds
}

// Get the union of the child bounds.
func (n *Node) ComputeBounds() types.AABB {
	box := types.EmptyAABB()
	for i := 0; i < n.NumChildren; i++ {
		box = box.Extend(n.Bounds[i])
	}
	return box
}

// MBNode is an internal node that stores the linear motion of each child
// over one time segment.
type MBNode struct {
	NumChildren int
	Children    [MaxBranchingFactor]NodeRef
	Bounds0     [MaxBranchingFactor]types.AABB
	Bounds1     [MaxBranchingFactor]types.AABB
}

// Set child i.
func (n *MBNode) SetChild(i int, ref NodeRef, bounds types.LinearBounds) {
	n.Children[i] = ref
	n.Bounds0[i] = bounds.Bounds0
	n.Bounds1[i] = bounds.Bounds1
}

// Get the linear bounds of child i.
func (n *MBNode) ChildBounds(i int) types.LinearBounds {
	return types.LinearBounds{Bounds0: n.Bounds0[i], Bounds1: n.Bounds1[i]}
}

// Get the union of the child linear bounds.
func (n *MBNode) ComputeBounds() types.LinearBounds {
	lb := types.EmptyLinearBounds()
	for i := 0; i < n.NumChildren; i++ {
		lb = lb.Extend(n.ChildBounds(i))
	}
	return lb
}
