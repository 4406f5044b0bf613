package workerpool

import (
	"context"
	"sync"
)

// Run fans items out to at most workers goroutines and hands every result to
// collect on a single goroutine, so collectors need no locking of their own.
// Processing stops handing out new items once ctx is canceled; items already
// in flight still deliver their results. Run returns ctx.Err when canceled
// early, nil otherwise.
func Run[T, R any](ctx context.Context, workers int, items []T, process func(ctx context.Context, item T) R, collect func(R)) error {
	if len(items) == 0 {
		return ctx.Err()
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	feed := make(chan T)
	results := make(chan R)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range feed {
				results <- process(ctx, item)
			}
		}()
	}

	go func() {
		defer close(feed)
		for _, item := range items {
			select {
			case feed <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		if collect != nil {
			collect(result)
		}
	}
	return ctx.Err()
}
