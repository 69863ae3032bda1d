// Package parallel implements the fork-join helpers used by the builders:
// parallel loops over index ranges, associative reductions and a two-pass
// prefix sum over nested (outer item, inner range) iteration spaces.
//
// Work is split into chunks up front and each chunk is processed by its own
// goroutine, bounded by the number of available processors. Results are
// always combined in chunk order so reductions are deterministic even when
// the combine function is only associative.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Default number of items processed by a single task.
const DefaultGrain = 1024

// A half-open index range.
type Range struct {
	Begin, End int
}

// Number of items in the range.
func (r Range) Len() int {
	return r.End - r.Begin
}

// Split [0, n) into ranges with at most grain items each.
func Split(n, grain int) []Range {
	if grain <= 0 {
		grain = DefaultGrain
	}
	if n <= 0 {
		return nil
	}

	out := make([]Range, 0, (n+grain-1)/grain)
	for begin := 0; begin < n; begin += grain {
		out = append(out, Range{Begin: begin, End: min(begin+grain, n)})
	}
	return out
}

// Number of goroutines used for running chunks concurrently.
func Workers() int {
	return runtime.GOMAXPROCS(0)
}

// Invoke fn for every chunk of [0, n). The first error cancels the remaining
// chunks and is returned.
func For(ctx context.Context, n, grain int, fn func(r Range) error) error {
	ranges := Split(n, grain)
	if len(ranges) == 1 {
		return fn(ranges[0])
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers())
	for _, r := range ranges {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(r)
		})
	}
	return g.Wait()
}

// Compute fn over every chunk of [0, n) and fold the chunk results with
// combine, starting from identity. combine must be associative.
func Reduce[T any](ctx context.Context, n, grain int, identity T, fn func(r Range) (T, error), combine func(a, b T) T) (T, error) {
	ranges := Split(n, grain)
	results := make([]T, len(ranges))

	err := For(ctx, n, grain, func(r Range) error {
		v, err := fn(r)
		if err != nil {
			return err
		}
		results[chunkIndex(r, grain)] = v
		return nil
	})
	if err != nil {
		return identity, err
	}

	out := identity
	for _, v := range results {
		out = combine(out, v)
	}
	return out, nil
}

func chunkIndex(r Range, grain int) int {
	if grain <= 0 {
		grain = DefaultGrain
	}
	return r.Begin / grain
}
