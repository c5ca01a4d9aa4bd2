// Package workerpool provides bounded concurrent processing utilities.
package workerpool

import (
	"context"
	"sync"
)

// Result is the outcome of processing a single item.
type Result[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// Map runs process over items with at most workerCount concurrent workers.
// A failing item does not stop the others: every item gets its own Result, in
// the order of items. Items still queued when ctx is canceled are reported
// with ctx.Err() without being processed.
func Map[T, R any](
	ctx context.Context,
	workerCount int,
	items []T,
	process func(context.Context, T) (R, error),
) []Result[T, R] {
	results := make([]Result[T, R], len(items))
	if len(items) == 0 {
		return results
	}
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(items) {
		workerCount = len(items)
	}

	tasks := make(chan int)
	wg := sync.WaitGroup{}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				value, err := process(ctx, items[idx])
				results[idx] = Result[T, R]{Item: items[idx], Value: value, Err: err}
			}
		}()
	}

	next := 0
feed:
	for ; next < len(items); next++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case tasks <- next:
		}
	}
	close(tasks)
	wg.Wait()

	for i := next; i < len(items); i++ {
		results[i] = Result[T, R]{Item: items[i], Err: ctx.Err()}
	}

	return results
}

// Split separates successful results from failed ones.
func Split[T, R any](results []Result[T, R]) (ok, failed []Result[T, R]) {
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
			continue
		}
		ok = append(ok, r)
	}
	return ok, failed
}
