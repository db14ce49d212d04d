// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"context"
	"runtime"
	"sync"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// poolSize resolves the worker count: the configured value bounded by
// the backend connection pool, never more than one worker per pipe.
func poolSize(requested, pipes int) int {
	workers := requested
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if cap := config.Keys.PoolSize; cap > 0 && workers > cap {
		log.Warnf("Requested %d workers exceeds the connection pool size %d; clamping", workers, cap)
		workers = cap
	}
	if pipes > 0 && workers > pipes {
		workers = pipes
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// runPool syncs every pipe through a bounded worker pool. Each pipe is
// owned by exactly one worker per iteration.
func runPool(ctx context.Context, workers int, pipes []*schema.Pipe,
	run func(context.Context, *schema.Pipe) schema.SuccessTuple,
) map[*schema.Pipe]schema.SuccessTuple {
	jobs := make(chan *schema.Pipe)
	results := make(map[*schema.Pipe]schema.SuccessTuple, len(pipes))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pipe := range jobs {
				tuple := run(ctx, pipe)
				mu.Lock()
				results[pipe] = tuple
				mu.Unlock()
			}
		}()
	}

	for _, pipe := range pipes {
		select {
		case jobs <- pipe:
		case <-ctx.Done():
			mu.Lock()
			if _, ok := results[pipe]; !ok {
				results[pipe] = schema.Fail("cancelled")
			}
			mu.Unlock()
		}
	}
	close(jobs)
	wg.Wait()
	return results
}
