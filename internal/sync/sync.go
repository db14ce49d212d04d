// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sync implements the per-pipe sync orchestrator: hooks, source
// resolution, dtype enforcement, the filter-existing pass, and the write
// path with retry and integrity fallback.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/internal/filter"
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// Options control one pipe sync.
type Options struct {
	// Frame, when set, is synced directly instead of fetching.
	Frame *schema.Frame

	Begin  interface{}
	End    interface{}
	Params map[string]interface{}

	Blocking      bool
	Workers       int
	CheckExisting bool
	Force         bool
	Debug         bool
}

// DefaultOptions mirror pipe.sync's defaults.
func DefaultOptions() Options {
	return Options{Blocking: true, CheckExisting: true}
}

// Syncer drives pipe syncs against a connector registry.
type Syncer struct {
	Registry *connectors.Registry
	Hooks    *Hooks
}

func NewSyncer(registry *connectors.Registry, hooks *Hooks) *Syncer {
	if hooks == nil {
		hooks = NewHooks()
	}
	return &Syncer{Registry: registry, Hooks: hooks}
}

// SyncPipe runs one full sync for pipe and reports the outcome.
func (s *Syncer) SyncPipe(ctx context.Context, pipe *schema.Pipe, opts Options) schema.SuccessTuple {
	start := time.Now()
	s.Hooks.runPre(pipe, &opts)

	result, stats := s.run(ctx, pipe, &opts)

	duration := time.Since(start)
	pipeLabel := pipe.KeysString()
	if result.Ok {
		rowsInserted.WithLabelValues(pipeLabel).Add(float64(stats.Inserted))
		rowsUpdated.WithLabelValues(pipeLabel).Add(float64(stats.Updated))
		rowsUpserted.WithLabelValues(pipeLabel).Add(float64(stats.Upserted))
	} else {
		syncErrors.WithLabelValues(pipeLabel, errorKindOf(result.Msg)).Inc()
	}
	syncDuration.WithLabelValues(pipeLabel).Observe(duration.Seconds())

	s.Hooks.runPost(pipe, result, duration, &opts)
	return result
}

func (s *Syncer) run(ctx context.Context, pipe *schema.Pipe, opts *Options) (schema.SuccessTuple, connectors.SyncStats) {
	var stats connectors.SyncStats

	inst, err := connectors.ParseInstanceKeys(s.Registry, pipe.Instance)
	if err != nil {
		return schema.FailErr(err), stats
	}

	if tuple := s.ensureRegistered(ctx, inst, pipe); !tuple.Ok {
		return tuple, stats
	}

	batches, err := s.resolveSource(ctx, inst, pipe, opts)
	if err != nil {
		return schema.FailErr(err), stats
	}
	defer batches.Close()

	for {
		if cerr := ctx.Err(); cerr != nil {
			return schema.Fail("cancelled"), stats
		}
		frame, err := batches.Next(ctx)
		if err != nil {
			if schema.KindOf(err) == schema.KindCancelled {
				return schema.Fail("cancelled"), stats
			}
			return schema.FailErr(err), stats
		}
		if frame == nil {
			break
		}
		if frame.Len() == 0 {
			continue
		}
		batchStats, tuple := s.syncBatch(ctx, inst, pipe, frame, opts)
		if !tuple.Ok {
			return tuple, stats
		}
		stats.Add(batchStats)
	}

	return schema.Succeed("%s", composeMessage(stats)), stats
}

// ensureRegistered registers the pipe on first contact, merging any
// plugin-contributed default parameters.
func (s *Syncer) ensureRegistered(ctx context.Context, inst connectors.Instance, pipe *schema.Pipe) schema.SuccessTuple {
	id, err := inst.GetPipeID(ctx, pipe)
	if err != nil {
		return schema.FailErr(err)
	}
	if id != 0 {
		pipe.ID = id
		attributes, err := inst.GetPipeAttributes(ctx, pipe)
		if err == nil && len(attributes) > 0 {
			pipe.PatchParameters(attributes)
		}
		return schema.Succeed("pipe exists")
	}

	if conn, cerr := s.Registry.GetFromKeys(pipe.Connector); cerr == nil {
		if registrar, ok := conn.(connectors.Registrar); ok {
			params, rerr := registrar.RegisterParams(ctx, pipe)
			if rerr != nil {
				log.Warnf("Plugin registration for %s failed: %v", pipe, rerr)
			} else if len(params) > 0 {
				pipe.PatchParameters(params)
			}
		}
	}
	if err := pipe.Parameters().ValidateTags(config.Keys.TagNegationPrefix); err != nil {
		return schema.FailErr(err)
	}
	return inst.RegisterPipe(ctx, pipe)
}

func (s *Syncer) resolveSource(ctx context.Context, inst connectors.Instance, pipe *schema.Pipe,
	opts *Options,
) (connectors.Batches, error) {
	if opts.Frame != nil {
		return connectors.NewFrameBatches(opts.Frame), nil
	}

	conn, err := s.Registry.GetFromKeys(pipe.Connector)
	if err != nil {
		return nil, err
	}
	fetcher, ok := conn.(connectors.Fetcher)
	if !ok {
		return nil, schema.Errorf(schema.KindConfig, "resolve source",
			"connector %q for %s cannot fetch", pipe.Connector, pipe)
	}

	begin := opts.Begin
	if begin == nil && pipe.Parameters().DatetimeColumn() != "" {
		begin = s.backtrackBegin(ctx, inst, pipe, opts)
	}

	chunkMinutes := config.Keys.ChunkMinutes
	if n, ok := pipe.Parameters().Fetch()["chunk_minutes"].(float64); ok && n > 0 {
		chunkMinutes = int(n)
	}

	return fetcher.Fetch(ctx, pipe, connectors.FetchOptions{
		Begin:         begin,
		End:           opts.End,
		Params:        opts.Params,
		ChunkInterval: time.Duration(chunkMinutes) * time.Minute,
		Debug:         opts.Debug,
	})
}

// backtrackBegin replays a window before the pipe's sync time so
// late-arriving and updated rows are caught by the filter.
func (s *Syncer) backtrackBegin(ctx context.Context, inst connectors.Instance, pipe *schema.Pipe,
	opts *Options,
) interface{} {
	syncTime, err := inst.GetSyncTime(ctx, pipe, true, false, opts.Params)
	if err != nil {
		log.Warnf("Could not read sync time for %s: %v", pipe, err)
		return nil
	}
	if syncTime == nil {
		return nil
	}

	backtrack := config.Keys.BacktrackMinutes
	if n, ok := pipe.Parameters().Fetch()["backtrack_minutes"].(float64); ok && n >= 0 {
		backtrack = int(n)
	}

	switch st := syncTime.(type) {
	case time.Time:
		return st.Add(-time.Duration(backtrack) * time.Minute)
	case int64:
		return st - int64(backtrack)
	case int:
		return int64(st) - int64(backtrack)
	}
	return syncTime
}

func (s *Syncer) syncBatch(ctx context.Context, inst connectors.Instance, pipe *schema.Pipe,
	frame *schema.Frame, opts *Options,
) (connectors.SyncStats, schema.SuccessTuple) {
	var stats connectors.SyncStats
	params := pipe.Parameters()

	declared, err := dtypes.ParseMap(params.Dtypes())
	if err != nil {
		return stats, schema.FailErr(err)
	}

	// New columns get inferred dtypes, persisted on the pipe.
	inferred := dtypes.InferFrame(frame, declared)
	if len(inferred) > 0 {
		for col, dt := range inferred {
			pipe.SetDtype(col, dt.String())
			declared[col] = dt
		}
		if tuple := inst.EditPipe(ctx, pipe, true); !tuple.Ok {
			log.Warnf("Could not persist inferred dtypes for %s: %s", pipe, tuple.Msg)
		}
	}

	if params.Enforce() {
		if err := dtypes.Enforce(frame, declared); err != nil {
			return stats, schema.FailErr(err)
		}
	}

	unique := params.UniqueColumns()
	toWrite := frame

	if opts.CheckExisting && len(unique) > 0 {
		existing, err := s.readOverlap(ctx, inst, pipe, frame, opts)
		if err != nil {
			return stats, schema.FailErr(err)
		}
		if err := dtypes.Enforce(existing, declared); err != nil {
			return stats, schema.FailErr(err)
		}
		res := filter.Existing(frame, existing, unique, declared, params.NullIndices())
		toWrite = res.Delta
		if toWrite.Len() == 0 {
			return stats, schema.Succeed("inserted 0")
		}
	}

	syncOpts := connectors.SyncOptions{
		CheckExisting: opts.CheckExisting,
		Blocking:      opts.Blocking,
		Debug:         opts.Debug,
		Workers:       opts.Workers,
	}

	var tuple schema.SuccessTuple
	err = withRetries(ctx, "sync pipe "+pipe.KeysString(), func() error {
		var st connectors.SyncStats
		st, tuple = inst.SyncPipe(ctx, pipe, toWrite, syncOpts)
		if tuple.Ok {
			stats = st
			return nil
		}
		return errors.New(tuple.Msg)
	})
	if err == nil {
		return stats, tuple
	}
	if schema.KindOf(err) == schema.KindCancelled {
		return stats, schema.Fail("cancelled")
	}

	// Unanticipated unique-constraint violation on a non-upsert pipe:
	// fall back to upsert once for this batch.
	if isIntegrityMessage(tuple.Msg) && !params.Upsert() && len(unique) > 0 {
		log.Warnf("Integrity error syncing %s, falling back to upsert: %s", pipe, tuple.Msg)
		syncOpts.Upsert = true
		var st connectors.SyncStats
		st, tuple = inst.SyncPipe(ctx, pipe, toWrite, syncOpts)
		if tuple.Ok {
			stats = st
			return stats, tuple
		}
	}
	return stats, tuple
}

// readOverlap queries the instance for existing rows within a safety
// window around the batch's datetime extremes.
func (s *Syncer) readOverlap(ctx context.Context, inst connectors.Instance, pipe *schema.Pipe,
	frame *schema.Frame, opts *Options,
) (*schema.Frame, error) {
	var begin, end interface{}
	if dtCol := pipe.Parameters().DatetimeColumn(); dtCol != "" && frame.HasColumn(dtCol) {
		min, max, ok := frame.MinMax(dtCol)
		if ok {
			begin = padBound(min, false)
			end = padBound(max, true)
		}
	}

	var existing *schema.Frame
	err := withRetries(ctx, "read existing rows", func() error {
		var rerr error
		existing, rerr = inst.GetPipeData(ctx, pipe, begin, end, opts.Params, 0, "")
		return rerr
	})
	return existing, err
}

// padBound widens a batch extreme by one unit so boundary rows stay in
// the overlap window (range reads are half-open).
func padBound(v interface{}, up bool) interface{} {
	switch val := v.(type) {
	case time.Time:
		if up {
			return val.Add(time.Minute)
		}
		return val.Add(-time.Minute)
	case int64:
		if up {
			return val + 1
		}
		return val - 1
	case int:
		if up {
			return int64(val) + 1
		}
		return int64(val) - 1
	}
	return v
}

func composeMessage(stats connectors.SyncStats) string {
	if stats.Upserted > 0 {
		return fmt.Sprintf("upserted %d", stats.Upserted)
	}
	if stats.Updated > 0 && stats.Inserted == 0 {
		return fmt.Sprintf("updated %d", stats.Updated)
	}
	if stats.Updated > 0 {
		return fmt.Sprintf("inserted %d, updated %d", stats.Inserted, stats.Updated)
	}
	return fmt.Sprintf("inserted %d", stats.Inserted)
}

func isIntegrityMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.HasPrefix(lower, string(schema.KindIntegrity)+":") ||
		strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate entry") ||
		strings.Contains(lower, "duplicate key")
}

func errorKindOf(msg string) string {
	if msg == "cancelled" {
		return string(schema.KindCancelled)
	}
	if idx := strings.IndexByte(msg, ':'); idx > 0 {
		head := msg[:idx]
		switch schema.Kind(head) {
		case schema.KindConfig, schema.KindConnector, schema.KindSchema,
			schema.KindIntegrity, schema.KindTransient, schema.KindTimeout,
			schema.KindCancelled, schema.KindPlugin, schema.KindInternal:
			return head
		}
	}
	return string(schema.KindInternal)
}
