package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// A Chunk is a range of inner items belonging to one outer item (e.g. a range
// of faces of a single mesh).
type Chunk struct {
	Outer int
	Range
}

// Split a nested iteration space into chunks. sizes[i] is the number of inner
// items of outer item i. Chunks never span two outer items.
func SplitNested(sizes []int, grain int) []Chunk {
	if grain <= 0 {
		grain = DefaultGrain
	}

	var out []Chunk
	for outer, n := range sizes {
		for _, r := range Split(n, grain) {
			out = append(out, Chunk{Outer: outer, Range: r})
		}
	}
	return out
}

// PrefixSumState keeps the chunking and per-chunk counts of a nested
// iteration space between a counting pass and a fill pass. The chunking must
// stay the same between the two passes for the computed bases to be valid.
type PrefixSumState struct {
	Chunks []Chunk

	counts []int
	bases  []int
	total  int
}

// Create a new prefix sum state for the given nested sizes.
func NewPrefixSumState(sizes []int, grain int) *PrefixSumState {
	chunks := SplitNested(sizes, grain)
	return &PrefixSumState{
		Chunks: chunks,
		counts: make([]int, len(chunks)),
		bases:  make([]int, len(chunks)),
	}
}

// Run the counting pass. fn returns the number of output items produced by a
// chunk. The exclusive prefix sum of the counts becomes the base offset of each
// chunk in the fill pass. Returns the total count.
func (s *PrefixSumState) Count(ctx context.Context, fn func(c Chunk) (int, error)) (int, error) {
	if err := forEachChunk(ctx, s.Chunks, func(i int, c Chunk) error {
		n, err := fn(c)
		if err != nil {
			return err
		}
		s.counts[i] = n
		return nil
	}); err != nil {
		return 0, err
	}

	s.total = 0
	for i, n := range s.counts {
		s.bases[i] = s.total
		s.total += n
	}
	return s.total, nil
}

// Total number of items reported by the last counting pass.
func (s *PrefixSumState) Total() int {
	return s.total
}

// Number of items counted for chunk i.
func (s *PrefixSumState) Counted(i int) int {
	return s.counts[i]
}

// Output offset of chunk i.
func (s *PrefixSumState) Base(i int) int {
	return s.bases[i]
}

// Run the fill pass. fn receives each chunk with the output offset computed
// by the counting pass and returns a per-chunk result; results are combined in
// chunk order starting from identity.
func Fill[R any](ctx context.Context, s *PrefixSumState, identity R, fn func(i int, c Chunk, base int) (R, error), combine func(a, b R) R) (R, error) {
	results := make([]R, len(s.Chunks))
	if err := forEachChunk(ctx, s.Chunks, func(i int, c Chunk) error {
		v, err := fn(i, c, s.bases[i])
		if err != nil {
			return err
		}
		results[i] = v
		return nil
	}); err != nil {
		return identity, err
	}

	out := identity
	for _, v := range results {
		out = combine(out, v)
	}
	return out, nil
}

func forEachChunk(ctx context.Context, chunks []Chunk, fn func(i int, c Chunk) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers())
	for i, c := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i, c)
		})
	}
	return g.Wait()
}
