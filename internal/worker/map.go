// Package worker provides a bounded-concurrency fan-out used by the
// out-of-band analysis pass.
package worker

import (
	"context"
	"sync"
)

// Map applies fn to every item with at most workers goroutines and
// returns results in input order. Items already dispatched finish even
// after ctx is cancelled; undispatched items yield the zero R.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R) []R {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = fn(ctx, items[i])
			}
		}()
	}

feed:
	for i := range items {
		select {
		case <-ctx.Done():
			break feed
		case indices <- i:
		}
	}
	close(indices)
	wg.Wait()
	return results
}
