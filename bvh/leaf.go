package bvh

import (
	"fmt"

	"github.com/achilleasa/bvhbuild/types"
)

// CreateLeafFunc encodes the primitives of a build record into a leaf. It is
// invoked concurrently from multiple tasks, each with its own Allocator.
type CreateLeafFunc func(prims []PrimRef, rec BuildRecord, a *Allocator) (NodeRef, error)

// CreateLeafMBFunc encodes the primitives of a build record into a leaf and
// reports the linear bounds of the leaf over the time segment being built.
type CreateLeafMBFunc func(prims []PrimRef, rec BuildRecord, a *Allocator) (NodeRef, types.LinearBounds, error)

// IDLeaf stores the primitive IDs of the record in a leaf.
func IDLeaf(prims []PrimRef, rec BuildRecord, a *Allocator) (NodeRef, error) {
	leaf, err := a.AllocLeaf(rec.Count())
	if err != nil {
		return EmptyRef, err
	}
	for i, p := range rec.Prims(prims) {
		leaf.Prims[i] = p.ID
	}
	return LeafRef(leaf), nil
}

// Wrap a static leaf encoder so it can be used by the motion blur builder.
// The leaf is assumed not to move.
func StaticLeafMB(fn CreateLeafFunc) CreateLeafMBFunc {
	return func(prims []PrimRef, rec BuildRecord, a *Allocator) (NodeRef, types.LinearBounds, error) {
		ref, err := fn(prims, rec, a)
		return ref, types.StaticLinearBounds(rec.Info.Geom), err
	}
}

func checkLeafSize(rec BuildRecord, s Settings) error {
	if rec.Count() > s.MaxLeafSize {
		return fmt.Errorf("%w: %d primitives; limit is %d", ErrLeafTooLarge, rec.Count(), s.MaxLeafSize)
	}
	return nil
}
