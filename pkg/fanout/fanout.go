// Package fanout provides concurrent processing where each item's failure
// is isolated: one failing item never cancels or delays the rest.
package fanout

import (
	"context"
	"sync"
)

// Result pairs an input item with the outcome of processing it.
type Result[T any] struct {
	Item T
	Err  error
}

// Process runs a worker pool over the provided items and returns one
// Result per item, in input order. Unlike a fail-fast pool, an item error
// is recorded and the remaining items still run to completion; only
// context cancellation stops the pool early, in which case unprocessed
// items carry the context error.
func Process[T any](
	ctx context.Context,
	workerCount int,
	items []T,
	process func(context.Context, T) error,
) []Result[T] {
	if workerCount < 1 {
		workerCount = 1
	}

	results := make([]Result[T], len(items))
	for i, item := range items {
		results[i] = Result[T]{Item: item}
	}

	tasks := make(chan int, workerCount)
	wg := sync.WaitGroup{}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				if err := ctx.Err(); err != nil {
					results[idx].Err = err
					continue
				}
				results[idx].Err = process(ctx, items[idx])
			}
		}()
	}

	for i := range items {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	return results
}
