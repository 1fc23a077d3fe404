// Package parallel runs bounded fan-out loops.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Workers maps the features.cqt.num_cpus setting to a worker count: negative
// means every logical core, zero means one.
func Workers(numCPUs int) int {
	switch {
	case numCPUs > 0:
		return numCPUs
	case numCPUs == 0:
		return 1
	}
	if cores := cpuid.CPU.LogicalCores; cores > 0 {
		return cores
	}
	return runtime.NumCPU()
}

// ForEach calls body for every i in [0, length) with at most limit calls in
// flight. Once ctx is cancelled no further calls start; ForEach still waits
// for running calls and then returns ctx.Err().
func ForEach(ctx context.Context, length, limit int, body func(ctx context.Context, i int)) error {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return ctx.Err()
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i := 0; i < length; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			body(ctx, i)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}
