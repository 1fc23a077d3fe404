package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestForEachVisitsEveryIndexOnce(t *testing.T) {
	seen := make([]int32, 50)
	if err := ForEach(context.Background(), len(seen), 4, func(_ context.Context, i int) {
		atomic.AddInt32(&seen[i], 1)
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("index %d visited %d times", i, n)
		}
	}
}

func TestForEachRespectsLimit(t *testing.T) {
	var inflight, peak int32
	err := ForEach(context.Background(), 20, 3, func(_ context.Context, _ int) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds limit", peak)
	}
}

func TestForEachStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	err := ForEach(ctx, 100, 1, func(_ context.Context, i int) {
		if atomic.AddInt32(&calls, 1) == 5 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got >= 100 {
		t.Fatalf("expected early stop, got %d calls", got)
	}
}

func TestWorkers(t *testing.T) {
	if Workers(3) != 3 || Workers(0) != 1 {
		t.Fatal("explicit worker counts should pass through")
	}
	if Workers(-1) < 1 {
		t.Fatal("all-cores sentinel should yield at least one worker")
	}
}
