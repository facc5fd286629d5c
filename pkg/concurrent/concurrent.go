package concurrent

import (
	"golang.org/x/sync/errgroup"
)

// ForEach runs action for every item, at most limit at a time (no limit when
// limit <= 0). It waits for all goroutines and returns the first error.
func ForEach[T any](items []T, limit int, action func(T) error) error {
	var errGroup errgroup.Group
	if limit > 0 {
		errGroup.SetLimit(limit)
	}

	for _, item := range items {
		errGroup.Go(func() error {
			return action(item)
		})
	}

	return errGroup.Wait()
}

// ParallelMap applies mapFn to each item in parallel, preserving order.
// The workers parameter bounds the number of goroutines.
func ParallelMap[T any, R any](items []T, workers int, mapFn func(T) R) []R {
	out := make([]R, len(items))

	var errGroup errgroup.Group
	if workers > 0 {
		errGroup.SetLimit(workers)
	}

	for idx, item := range items {
		errGroup.Go(func() error {
			out[idx] = mapFn(item)
			return nil
		})
	}
	_ = errGroup.Wait()

	return out
}

// Flatten concatenates the slices in order.
func Flatten[T any](parts [][]T) []T {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]T, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
