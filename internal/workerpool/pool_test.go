package workerpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"shelf/internal/workerpool"
)

func TestRunProcessesEveryItem(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	var sum int
	err := workerpool.Run(context.Background(), 4, items, func(ctx context.Context, n int) int {
		return n
	}, func(n int) {
		// Single collector goroutine: no locking needed.
		sum += n
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := 49 * 50 / 2; sum != want {
		t.Fatalf("sum = %d, want %d", sum, want)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 3
	items := make([]int, 30)

	var active, maxActive int32
	err := workerpool.Run(context.Background(), workers, items, func(ctx context.Context, n int) int {
		cur := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		return n
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := atomic.LoadInt32(&maxActive); got > workers {
		t.Fatalf("max concurrent workers = %d, want <= %d", got, workers)
	}
}

func TestRunStopsFeedingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := make([]int, 100)

	var processed int32
	err := workerpool.Run(ctx, 2, items, func(ctx context.Context, n int) int {
		if atomic.AddInt32(&processed, 1) == 4 {
			cancel()
		}
		return n
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := atomic.LoadInt32(&processed); got == 100 {
		t.Fatal("cancellation did not stop the feed")
	}
}

func TestRunEmptyInput(t *testing.T) {
	called := false
	err := workerpool.Run(context.Background(), 4, nil, func(ctx context.Context, n int) int {
		called = true
		return n
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called {
		t.Fatal("process called for empty input")
	}
}
