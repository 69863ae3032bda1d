package bvh

import (
	"bytes"
	"fmt"

	"github.com/olekukonko/tablewriter"
)

const (
	// Upper bound for Settings.BranchingFactor.
	MaxBranchingFactor = 8

	// Upper bound for Settings.BinCount.
	MaxBins = 64
)

// Settings control a single build. They are constant for the duration of a
// build.
type Settings struct {
	// Number of children per internal node.
	BranchingFactor int `toml:"branching_factor"`

	// Leaves hold between MinLeafSize and MaxLeafSize primitives. Records
	// with at most MaxLeafSize primitives always become leaves; larger ones
	// are always split.
	MinLeafSize int `toml:"min_leaf_size"`
	MaxLeafSize int `toml:"max_leaf_size"`

	// Records at this depth are split by primitive count only until they
	// fit into a leaf.
	MaxDepth int `toml:"max_depth"`

	// SAH cost model constants.
	TraversalCost    float32 `toml:"traversal_cost"`
	IntersectionCost float32 `toml:"intersection_cost"`

	// Number of bins per axis used by the binned SAH partitioner.
	BinCount int `toml:"bin_count"`

	// Records with more primitives than this threshold are built by
	// separate tasks.
	ParallelThreshold int `toml:"parallel_threshold"`

	// Store internal node child bounds in reduced precision.
	Quantize bool `toml:"quantize"`
}

// Get the default build settings.
func DefaultSettings() Settings {
	return Settings{
		BranchingFactor:   4,
		MinLeafSize:       1,
		MaxLeafSize:       8,
		MaxDepth:          64,
		TraversalCost:     1.0,
		IntersectionCost:  1.0,
		BinCount:          16,
		ParallelThreshold: 1024,
	}
}

// Validate settings.
func (s Settings) Validate() error {
	switch {
	case s.BranchingFactor < 2 || s.BranchingFactor > MaxBranchingFactor:
		return fmt.Errorf("%w: branching factor must be in [2, %d]; got %d", ErrInvalidSettings, MaxBranchingFactor, s.BranchingFactor)
	case s.MinLeafSize < 1:
		return fmt.Errorf("%w: min leaf size must be at least 1; got %d", ErrInvalidSettings, s.MinLeafSize)
	case s.MaxLeafSize < s.MinLeafSize:
		return fmt.Errorf("%w: max leaf size (%d) is smaller than min leaf size (%d)", ErrInvalidSettings, s.MaxLeafSize, s.MinLeafSize)
	case s.MaxDepth < 1:
		return fmt.Errorf("%w: max depth must be at least 1; got %d", ErrInvalidSettings, s.MaxDepth)
	case s.TraversalCost < 0 || s.IntersectionCost <= 0:
		return fmt.Errorf("%w: traversal cost must be >= 0 and intersection cost > 0", ErrInvalidSettings)
	case s.BinCount < 2 || s.BinCount > MaxBins:
		return fmt.Errorf("%w: bin count must be in [2, %d]; got %d", ErrInvalidSettings, MaxBins, s.BinCount)
	case s.ParallelThreshold < 1:
		return fmt.Errorf("%w: parallel threshold must be at least 1; got %d", ErrInvalidSettings, s.ParallelThreshold)
	}
	return nil
}

// Build a tabular representation of the settings.
func (s Settings) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Setting", "Value"})
	table.Append([]string{"Branching factor", fmt.Sprintf("%d", s.BranchingFactor)})
	table.Append([]string{"Leaf size", fmt.Sprintf("[%d, %d]", s.MinLeafSize, s.MaxLeafSize)})
	table.Append([]string{"Max depth", fmt.Sprintf("%d", s.MaxDepth)})
	table.Append([]string{"Traversal cost", fmt.Sprintf("%.2f", s.TraversalCost)})
	table.Append([]string{"Intersection cost", fmt.Sprintf("%.2f", s.IntersectionCost)})
	table.Append([]string{"Bins", fmt.Sprintf("%d", s.BinCount)})
	table.Append([]string{"Parallel threshold", fmt.Sprintf("%d", s.ParallelThreshold)})
	table.Append([]string{"Quantized nodes", fmt.Sprintf("%t", s.Quantize)})
	table.Render()
	return buf.String()
}
