// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sync

import (
	"context"
	"testing"
	"time"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/internal/instance/memstore"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSyncer(t *testing.T) (*Syncer, connectors.Instance) {
	t.Helper()
	config.Patch(map[string]interface{}{
		"meerschaum": map[string]interface{}{
			"connectors": map[string]interface{}{
				"memory": map[string]interface{}{
					"test": map[string]interface{}{},
				},
			},
		},
	})
	registry := connectors.NewRegistry()
	registry.RegisterType("memory", memstore.Factory)
	syncer := NewSyncer(registry, NewHooks())
	inst, err := connectors.ParseInstanceKeys(registry, "memory:test")
	require.NoError(t, err)
	return syncer, inst
}

func newTestPipe(columns map[string]interface{}, extra schema.Parameters) *schema.Pipe {
	pipe := schema.NewPipe("a", "b", "c", "memory:test")
	params := schema.Parameters{}
	if columns != nil {
		params["columns"] = columns
	}
	for k, v := range extra {
		params[k] = v
	}
	pipe.SetParameters(params)
	return pipe
}

func frameOf(rows ...schema.Row) *schema.Frame {
	frame := &schema.Frame{}
	for _, row := range rows {
		frame.Append(row)
	}
	return frame
}

func syncFrame(t *testing.T, syncer *Syncer, pipe *schema.Pipe, frame *schema.Frame) schema.SuccessTuple {
	t.Helper()
	opts := DefaultOptions()
	opts.Frame = frame
	return syncer.SyncPipe(context.Background(), pipe, opts)
}

func TestInsertThenUpdate(t *testing.T) {
	syncer, inst := newTestSyncer(t)
	pipe := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"}, nil)
	ctx := context.Background()

	tuple := syncFrame(t, syncer, pipe, frameOf(schema.Row{"dt": "2024-01-01", "id": 1, "v": 10}))
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, "inserted 1", tuple.Msg)

	n, err := inst.GetPipeRowCount(ctx, pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tuple = syncFrame(t, syncer, pipe, frameOf(schema.Row{"dt": "2024-01-01", "id": 1, "v": 20}))
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, "updated 1", tuple.Msg)

	n, err = inst.GetPipeRowCount(ctx, pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	frame, err := inst.GetPipeData(ctx, pipe, nil, nil, nil, 0, "")
	require.NoError(t, err)
	require.Equal(t, 1, frame.Len())
	assert.Equal(t, int64(20), frame.Rows[0]["v"])
}

func TestSyncIdempotent(t *testing.T) {
	syncer, inst := newTestSyncer(t)
	pipe := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"}, nil)

	batch := frameOf(
		schema.Row{"dt": "2024-01-01", "id": 1, "v": 1},
		schema.Row{"dt": "2024-01-02", "id": 2, "v": 2},
	)
	tuple := syncFrame(t, syncer, pipe, batch)
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, "inserted 2", tuple.Msg)

	tuple = syncFrame(t, syncer, pipe, batch.Copy())
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, "inserted 0", tuple.Msg)

	n, err := inst.GetPipeRowCount(context.Background(), pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDtypeEnforcementFailure(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	pipe := newTestPipe(nil, schema.Parameters{
		"dtypes": map[string]interface{}{"x": "int"},
	})

	tuple := syncFrame(t, syncer, pipe, frameOf(schema.Row{"x": "7"}))
	require.True(t, tuple.Ok, tuple.Msg)

	tuple = syncFrame(t, syncer, pipe, frameOf(schema.Row{"x": "abc"}))
	assert.False(t, tuple.Ok)
	assert.Contains(t, tuple.Msg, "schema")
}

func TestJSONInference(t *testing.T) {
	syncer, inst := newTestSyncer(t)
	pipe := newTestPipe(map[string]interface{}{"id": "id"}, nil)

	tuple := syncFrame(t, syncer, pipe, frameOf(
		schema.Row{"id": 1, "a": []interface{}{"x"}},
		schema.Row{"id": 2, "a": map[string]interface{}{"b": 1}},
	))
	require.True(t, tuple.Ok, tuple.Msg)

	assert.Equal(t, "json", pipe.Parameters().Dtypes()["a"])

	frame, err := inst.GetPipeData(context.Background(), pipe, nil, nil, nil, 0, "")
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	byID := map[interface{}]interface{}{}
	for _, row := range frame.Rows {
		byID[row["id"]] = row["a"]
	}
	assert.Equal(t, []interface{}{"x"}, byID[int64(1)])
	assert.Equal(t, map[string]interface{}{"b": 1}, byID[int64(2)])
}

func TestNullIndexPolicy(t *testing.T) {
	syncer, inst := newTestSyncer(t)
	pipe := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"},
		schema.Parameters{"null_indices": false})

	row := schema.Row{"dt": "2024-01-01", "id": nil, "v": 1}
	require.True(t, syncFrame(t, syncer, pipe, frameOf(row)).Ok)
	require.True(t, syncFrame(t, syncer, pipe, frameOf(row)).Ok)

	n, err := inst.GetPipeRowCount(context.Background(), pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNumericStickiness(t *testing.T) {
	syncer, inst := newTestSyncer(t)
	pipe := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"}, nil)

	tuple := syncFrame(t, syncer, pipe, frameOf(
		schema.Row{"dt": "2024-01-01", "id": 1, "n": 1},
		schema.Row{"dt": "2024-01-02", "id": 2, "n": 2.5},
	))
	require.True(t, tuple.Ok, tuple.Msg)
	require.Equal(t, "numeric", pipe.Parameters().Dtypes()["n"])

	tuple = syncFrame(t, syncer, pipe, frameOf(
		schema.Row{"dt": "2024-01-03", "id": 3, "n": 7},
	))
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, "numeric", pipe.Parameters().Dtypes()["n"])

	frame, err := inst.GetPipeData(context.Background(), pipe, nil, nil, nil, 0, "")
	require.NoError(t, err)
	for _, row := range frame.Rows {
		_, isDecimal := row["n"].(decimal.Decimal)
		assert.True(t, isDecimal, "row %v", row)
	}
}

func TestTzRegimeStickiness(t *testing.T) {
	syncer, inst := newTestSyncer(t)
	ctx := context.Background()

	// Aware column: naive inputs are promoted to UTC.
	aware := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"}, nil)
	require.True(t, syncFrame(t, syncer, aware, frameOf(
		schema.Row{"dt": "2024-01-01T00:00:00Z", "id": 1, "v": 1},
	)).Ok)
	require.Equal(t, "datetime[ns, UTC]", aware.Parameters().Dtypes()["dt"])
	require.True(t, syncFrame(t, syncer, aware, frameOf(
		schema.Row{"dt": "2024-01-02 06:00:00", "id": 2, "v": 2},
	)).Ok)
	assert.Equal(t, "datetime[ns, UTC]", aware.Parameters().Dtypes()["dt"])

	frame, err := inst.GetPipeData(ctx, aware, nil, nil, nil, 0, "asc")
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC), frame.Rows[1]["dt"])

	// Naive column: aware inputs are converted to UTC and stripped.
	naive := schema.NewPipe("a2", "b2", "", "memory:test")
	naive.SetParameters(schema.Parameters{
		"columns": map[string]interface{}{"datetime": "dt", "id": "id"},
	})
	require.True(t, syncFrame(t, syncer, naive, frameOf(
		schema.Row{"dt": "2024-01-01 00:00:00", "id": 1, "v": 1},
	)).Ok)
	require.Equal(t, "datetime[ns]", naive.Parameters().Dtypes()["dt"])
	require.True(t, syncFrame(t, syncer, naive, frameOf(
		schema.Row{"dt": "2024-01-02T02:00:00+02:00", "id": 2, "v": 2},
	)).Ok)
	assert.Equal(t, "datetime[ns]", naive.Parameters().Dtypes()["dt"])

	frame, err = inst.GetPipeData(ctx, naive, nil, nil, nil, 0, "asc")
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), frame.Rows[1]["dt"])
}

func TestUpsertPath(t *testing.T) {
	syncer, inst := newTestSyncer(t)
	pipe := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"},
		schema.Parameters{"upsert": true})

	tuple := syncFrame(t, syncer, pipe, frameOf(
		schema.Row{"dt": "2024-01-01", "id": 1, "v": 1},
	))
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, "upserted 1", tuple.Msg)

	tuple = syncFrame(t, syncer, pipe, frameOf(
		schema.Row{"dt": "2024-01-01", "id": 1, "v": 2},
		schema.Row{"dt": "2024-01-02", "id": 2, "v": 3},
	))
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, "upserted 2", tuple.Msg)

	n, err := inst.GetPipeRowCount(context.Background(), pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStaticPipeRejectsNewColumns(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	pipe := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"},
		schema.Parameters{"static": true})

	require.True(t, syncFrame(t, syncer, pipe, frameOf(
		schema.Row{"dt": "2024-01-01", "id": 1, "v": 1},
	)).Ok)

	tuple := syncFrame(t, syncer, pipe, frameOf(
		schema.Row{"dt": "2024-01-02", "id": 2, "v": 2, "extra": "nope"},
	))
	assert.False(t, tuple.Ok)
	assert.Contains(t, tuple.Msg, "static")
}

func TestPreHookErrorsDoNotAbort(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	hookRan := false
	syncer.Hooks.RegisterPre(func(pipe *schema.Pipe, opts *Options) error {
		hookRan = true
		return assert.AnError
	})
	var postResult schema.SuccessTuple
	syncer.Hooks.RegisterPost(func(pipe *schema.Pipe, result schema.SuccessTuple,
		duration time.Duration, opts *Options) error {
		postResult = result
		return nil
	})

	pipe := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"}, nil)
	tuple := syncFrame(t, syncer, pipe, frameOf(schema.Row{"dt": "2024-01-01", "id": 1}))
	require.True(t, tuple.Ok, tuple.Msg)
	assert.True(t, hookRan)
	assert.True(t, postResult.Ok)
}

func TestCancelledContext(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	pipe := newTestPipe(map[string]interface{}{"datetime": "dt", "id": "id"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := DefaultOptions()
	opts.Frame = frameOf(schema.Row{"dt": "2024-01-01", "id": 1})
	tuple := syncer.SyncPipe(ctx, pipe, opts)
	assert.False(t, tuple.Ok)
	assert.Equal(t, "cancelled", tuple.Msg)
}

func TestComposeMessage(t *testing.T) {
	assert.Equal(t, "inserted 3", composeMessage(connectors.SyncStats{Inserted: 3}))
	assert.Equal(t, "updated 2", composeMessage(connectors.SyncStats{Updated: 2}))
	assert.Equal(t, "inserted 1, updated 2", composeMessage(connectors.SyncStats{Inserted: 1, Updated: 2}))
	assert.Equal(t, "upserted 4", composeMessage(connectors.SyncStats{Upserted: 4}))
}
