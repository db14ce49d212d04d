// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package connectors defines the connector contracts (source, instance,
// repository) and the registry resolving `type:label` keys to handles.
package connectors

import (
	"context"
	"time"

	"github.com/meerschaum/mrsm/pkg/schema"
)

// Connector is a typed, labelled handle to a backend driver.
type Connector interface {
	Type() string
	Label() string
	Keys() string
}

// FetchOptions bound a fetch call. Begin/End hold a time.Time or an
// integer axis value; nil means unbounded.
type FetchOptions struct {
	Begin         interface{}
	End           interface{}
	Params        map[string]interface{}
	ChunkInterval time.Duration
	Debug         bool
}

// Batches is a finite, lazy sequence of row batches. Next returns a nil
// frame once the sequence is exhausted.
type Batches interface {
	Next(ctx context.Context) (*schema.Frame, error)
	Close() error
}

// Fetcher is a source connector for pipes.
type Fetcher interface {
	Connector
	Fetch(ctx context.Context, pipe *schema.Pipe, opts FetchOptions) (Batches, error)
}

// Registrar contributes default parameters at pipe bootstrap.
// Plugin-typed connectors implement it.
type Registrar interface {
	RegisterParams(ctx context.Context, pipe *schema.Pipe) (schema.Parameters, error)
}

// SyncOptions control one SyncPipe write.
type SyncOptions struct {
	CheckExisting bool
	Blocking      bool
	Debug         bool
	Workers       int

	// Upsert forces upsert semantics for this batch regardless of the
	// pipe's parameters (the integrity-fallback path).
	Upsert bool
}

// SyncStats accumulate the per-batch write counts.
type SyncStats struct {
	Inserted int
	Updated  int
	Upserted int
}

func (s *SyncStats) Add(other SyncStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Upserted += other.Upserted
}

// Instance is the storage contract every instance connector satisfies.
type Instance interface {
	Connector

	RegisterPipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple
	EditPipe(ctx context.Context, pipe *schema.Pipe, patch bool) schema.SuccessTuple
	DeletePipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple

	GetPipeID(ctx context.Context, pipe *schema.Pipe) (int64, error)
	GetPipeAttributes(ctx context.Context, pipe *schema.Pipe) (schema.Parameters, error)

	// GetSyncTime returns the extreme datetime (or integer axis value) in
	// the target, filtered by params; nil when the target is empty.
	GetSyncTime(ctx context.Context, pipe *schema.Pipe, newest, roundDown bool,
		params map[string]interface{}) (interface{}, error)

	GetPipeData(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
		params map[string]interface{}, limit int, order string) (*schema.Frame, error)
	GetPipeRowCount(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
		params map[string]interface{}, remote bool) (int64, error)
	GetPipeColumnsTypes(ctx context.Context, pipe *schema.Pipe) (map[string]string, error)
	GetPipeColumnsIndices(ctx context.Context, pipe *schema.Pipe) (map[string][]string, error)

	// SyncPipe atomically writes one batch with the engine's write
	// semantics. The stats carry the insert/update/upsert counts the
	// orchestrator accumulates into its report.
	SyncPipe(ctx context.Context, pipe *schema.Pipe, frame *schema.Frame,
		opts SyncOptions) (SyncStats, schema.SuccessTuple)

	DropPipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple
	DropPipeIndices(ctx context.Context, pipe *schema.Pipe, columns []string) schema.SuccessTuple
	CreatePipeIndices(ctx context.Context, pipe *schema.Pipe, columns []string) schema.SuccessTuple
	ClearPipe(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
		params map[string]interface{}) schema.SuccessTuple

	// PoolSize bounds the scheduler's worker pool.
	PoolSize() int
}

// PipeFilter selects pipes by key lists and tags. Empty lists match
// everything; a tag carrying the negation prefix excludes its bare form.
type PipeFilter struct {
	ConnectorKeys []string
	MetricKeys    []string
	LocationKeys  []string
	Tags          []string
}

// Lister enumerates registered pipes; instance connectors implement it
// so the scheduler can select pipes by key filters.
type Lister interface {
	ListPipes(ctx context.Context, filter PipeFilter) ([]*schema.Pipe, error)
}

// frameBatches adapts a fixed frame list to the Batches contract.
type frameBatches struct {
	frames []*schema.Frame
	pos    int
}

// NewFrameBatches wraps pre-materialised frames as a batch sequence.
func NewFrameBatches(frames ...*schema.Frame) Batches {
	return &frameBatches{frames: frames}
}

func (b *frameBatches) Next(ctx context.Context) (*schema.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.KindCancelled, "next batch", err)
	}
	if b.pos >= len(b.frames) {
		return nil, nil
	}
	f := b.frames[b.pos]
	b.pos++
	return f, nil
}

func (b *frameBatches) Close() error { return nil }
