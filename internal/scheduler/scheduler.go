// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler drives sync over a set of pipes: one-shot, loop with
// a minimum spacing, or fired by a schedule string, through a bounded
// worker pool with per-pipe timeouts.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/internal/sync"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
	"golang.org/x/time/rate"
)

// Config selects the scheduling mode and its bounds.
type Config struct {
	Workers        int
	MinSeconds     float64
	Loop           bool
	DoNTimes       int
	ScheduleStr    string
	TimeoutSeconds float64
}

// Scheduler runs iterations of pipe syncs.
type Scheduler struct {
	Syncer *sync.Syncer
	Config Config
}

func New(syncer *sync.Syncer, cfg Config) *Scheduler {
	return &Scheduler{Syncer: syncer, Config: cfg}
}

// Run drives the configured mode to completion and returns the final
// iteration's results. ok is true iff at least one pipe succeeded in
// the final iteration.
func (s *Scheduler) Run(ctx context.Context, pipes []*schema.Pipe, opts sync.Options,
) (map[*schema.Pipe]schema.SuccessTuple, bool) {
	if s.Config.ScheduleStr != "" {
		return s.runScheduled(ctx, pipes, opts)
	}

	iterations := 1
	if s.Config.DoNTimes > 1 {
		iterations = s.Config.DoNTimes
	}
	infinite := s.Config.Loop && s.Config.DoNTimes <= 1

	minSeconds := s.Config.MinSeconds
	if minSeconds <= 0 {
		minSeconds = 1
	}
	limiter := rate.NewLimiter(rate.Every(time.Duration(minSeconds*float64(time.Second))), 1)

	var results map[*schema.Pipe]schema.SuccessTuple
	for i := 0; infinite || i < iterations; i++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		results = s.runOnce(ctx, pipes, opts)
		reportResults(results)
		if ctx.Err() != nil {
			break
		}
	}
	return results, anySucceeded(results)
}

// runScheduled fires iterations on the schedule string. Pure cron
// expressions are handed to gocron; richer schedules tick on the
// parser's own Next.
func (s *Scheduler) runScheduled(ctx context.Context, pipes []*schema.Pipe, opts sync.Options,
) (map[*schema.Pipe]schema.SuccessTuple, bool) {
	sched, err := ParseSchedule(s.Config.ScheduleStr, time.Now().UTC())
	if err != nil {
		log.Errorf("Invalid schedule %q: %v", s.Config.ScheduleStr, err)
		return nil, false
	}

	var results map[*schema.Pipe]schema.SuccessTuple
	fire := func() {
		results = s.runOnce(ctx, pipes, opts)
		reportResults(results)
	}

	if _, isCron := sched.root.(*cronTerm); isCron {
		gs, err := gocron.NewScheduler()
		if err != nil {
			log.Errorf("Could not create scheduler: %v", err)
			return nil, false
		}
		if _, err := gs.NewJob(
			gocron.CronJob(s.Config.ScheduleStr, false),
			gocron.NewTask(fire),
		); err != nil {
			log.Errorf("Could not schedule job: %v", err)
			return nil, false
		}
		gs.Start()
		<-ctx.Done()
		if err := gs.Shutdown(); err != nil {
			log.Warnf("Scheduler shutdown: %v", err)
		}
		return results, anySucceeded(results)
	}

	now := time.Now().UTC()
	log.Infof("Scheduling syncs %s; next fires %s", s.Config.ScheduleStr, sched.Describe(now, 3))
	for {
		next := sched.Next(now)
		if next.IsZero() {
			break
		}
		select {
		case <-ctx.Done():
			return results, anySucceeded(results)
		case <-time.After(time.Until(next)):
		}
		fire()
		now = next
	}
	return results, anySucceeded(results)
}

// runOnce syncs every pipe through the pool with the per-pipe timeout.
func (s *Scheduler) runOnce(ctx context.Context, pipes []*schema.Pipe, opts sync.Options,
) map[*schema.Pipe]schema.SuccessTuple {
	workers := poolSize(s.Config.Workers, len(pipes))
	for _, pipe := range pipes {
		inst, err := connectors.ParseInstanceKeys(s.Syncer.Registry, pipe.Instance)
		if err != nil {
			continue
		}
		if size := inst.PoolSize(); size > 0 && workers > size {
			log.Warnf("%d workers exceeds the connection pool size %d of %s; clamping", workers, size, pipe.Instance)
			workers = size
		}
	}
	timeout := time.Duration(s.Config.TimeoutSeconds * float64(time.Second))

	return runPool(ctx, workers, pipes, func(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
		runCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		done := make(chan schema.SuccessTuple, 1)
		go func() {
			done <- s.Syncer.SyncPipe(runCtx, pipe, opts)
		}()
		select {
		case tuple := <-done:
			if !tuple.Ok && runCtx.Err() == context.DeadlineExceeded {
				return schema.Fail("timeout")
			}
			return tuple
		case <-runCtx.Done():
			// The worker abandons a source that ignores cancellation; any
			// uncommitted batch is rolled back by the backend.
			if runCtx.Err() == context.DeadlineExceeded {
				return schema.Fail("timeout")
			}
			return schema.Fail("cancelled")
		}
	})
}

func reportResults(results map[*schema.Pipe]schema.SuccessTuple) {
	for pipe, tuple := range results {
		if tuple.Ok {
			log.Infof("%s: %s", pipe, tuple.Msg)
		} else {
			log.Errorf("%s: %s", pipe, tuple.Msg)
		}
	}
}

func anySucceeded(results map[*schema.Pipe]schema.SuccessTuple) bool {
	for _, tuple := range results {
		if tuple.Ok {
			return true
		}
	}
	return false
}
