package bvh

// A splitter finds and applies two-way splits of build records.
type splitter interface {
	find(prims []PrimRef, rec BuildRecord) Split
	partition(prims []PrimRef, rec BuildRecord, split Split) (left, right BuildRecord, err error)
}

// Splits records using the binned surface area heuristic.
type sahSplitter struct {
	settings Settings
}

func (s sahSplitter) find(prims []PrimRef, rec BuildRecord) Split {
	return FindSplit(prims, rec, s.settings)
}

func (s sahSplitter) partition(prims []PrimRef, rec BuildRecord, split Split) (left, right BuildRecord, err error) {
	left, right = Partition(prims, rec, split)
	return left, right, nil
}
