// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Connect("sql", "test", "sqlite", filepath.Join(t.TempDir(), "test.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sqlTestPipe(metric string) *schema.Pipe {
	pipe := schema.NewPipe("plugin:src", metric, "", "sql:test")
	pipe.SetParameters(schema.Parameters{
		"columns": map[string]interface{}{"datetime": "dt", "id": "id"},
		"dtypes": map[string]interface{}{
			"dt": "datetime[ns, UTC]",
			"id": "int",
			"v":  "int",
		},
	})
	return pipe
}

func sqlDay(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func sqlFrame(rows ...schema.Row) *schema.Frame {
	frame := &schema.Frame{}
	for _, row := range rows {
		frame.Append(row)
	}
	return frame
}

func TestMetadataCRUD(t *testing.T) {
	store := newStore(t)
	pipe := sqlTestPipe("weather")
	ctx := context.Background()

	require.True(t, store.RegisterPipe(ctx, pipe).Ok)
	assert.NotZero(t, pipe.ID)

	dup := sqlTestPipe("weather")
	assert.False(t, store.RegisterPipe(ctx, dup).Ok)

	id, err := store.GetPipeID(ctx, pipe)
	require.NoError(t, err)
	assert.Equal(t, pipe.ID, id)

	attributes, err := store.GetPipeAttributes(ctx, pipe)
	require.NoError(t, err)
	assert.Equal(t, "dt", attributes.DatetimeColumn())

	require.True(t, store.DeletePipe(ctx, pipe).Ok)
	id, err = store.GetPipeID(ctx, pipe)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestSyncInsertThenUpdate(t *testing.T) {
	store := newStore(t)
	pipe := sqlTestPipe("power")
	ctx := context.Background()
	require.True(t, store.RegisterPipe(ctx, pipe).Ok)

	opts := connectors.SyncOptions{CheckExisting: true}
	stats, tuple := store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(1), "id": int64(1), "v": int64(10)},
		schema.Row{"dt": sqlDay(2), "id": int64(2), "v": int64(20)},
	), opts)
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, 2, stats.Inserted)

	n, err := store.GetPipeRowCount(ctx, pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stats, tuple = store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(1), "id": int64(1), "v": int64(11)},
	), opts)
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, 0, stats.Inserted)
	assert.Equal(t, 1, stats.Updated)

	frame, err := store.GetPipeData(ctx, pipe, nil, nil, nil, 0, "asc")
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())

	declared, err := dtypes.ParseMap(pipe.Parameters().Dtypes())
	require.NoError(t, err)
	require.NoError(t, dtypes.Enforce(frame, declared))
	assert.Equal(t, int64(11), frame.Rows[0]["v"])
}

func TestSyncUpsert(t *testing.T) {
	store := newStore(t)
	pipe := sqlTestPipe("upserts")
	pipe.Parameters()["upsert"] = true
	ctx := context.Background()
	require.True(t, store.RegisterPipe(ctx, pipe).Ok)

	opts := connectors.SyncOptions{CheckExisting: true}
	_, tuple := store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(1), "id": int64(1), "v": int64(1)},
	), opts)
	require.True(t, tuple.Ok, tuple.Msg)

	stats, tuple := store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(1), "id": int64(1), "v": int64(2)},
		schema.Row{"dt": sqlDay(2), "id": int64(2), "v": int64(3)},
	), opts)
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Equal(t, 2, stats.Upserted)

	n, err := store.GetPipeRowCount(ctx, pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStaticRejectsNewColumn(t *testing.T) {
	store := newStore(t)
	pipe := sqlTestPipe("frozen")
	pipe.Parameters()["static"] = true
	ctx := context.Background()
	require.True(t, store.RegisterPipe(ctx, pipe).Ok)

	opts := connectors.SyncOptions{CheckExisting: true}
	_, tuple := store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(1), "id": int64(1), "v": int64(1)},
	), opts)
	require.True(t, tuple.Ok, tuple.Msg)

	_, tuple = store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(2), "id": int64(2), "v": int64(2), "extra": "x"},
	), opts)
	assert.False(t, tuple.Ok)
	assert.Contains(t, tuple.Msg, "static")
}

func TestClearPipeRange(t *testing.T) {
	store := newStore(t)
	pipe := sqlTestPipe("clears")
	ctx := context.Background()
	require.True(t, store.RegisterPipe(ctx, pipe).Ok)

	opts := connectors.SyncOptions{CheckExisting: true}
	_, tuple := store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(1), "id": int64(1), "v": int64(1)},
		schema.Row{"dt": sqlDay(2), "id": int64(2), "v": int64(2)},
		schema.Row{"dt": sqlDay(3), "id": int64(3), "v": int64(3)},
	), opts)
	require.True(t, tuple.Ok, tuple.Msg)

	tuple = store.ClearPipe(ctx, pipe, sqlDay(2), sqlDay(3), nil)
	require.True(t, tuple.Ok, tuple.Msg)

	n, err := store.GetPipeRowCount(ctx, pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestColumnsTypesAndIndices(t *testing.T) {
	store := newStore(t)
	pipe := sqlTestPipe("introspect")
	ctx := context.Background()
	require.True(t, store.RegisterPipe(ctx, pipe).Ok)

	opts := connectors.SyncOptions{CheckExisting: true}
	_, tuple := store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(1), "id": int64(1), "v": int64(1)},
	), opts)
	require.True(t, tuple.Ok, tuple.Msg)

	types, err := store.GetPipeColumnsTypes(ctx, pipe)
	require.NoError(t, err)
	assert.Equal(t, "DATETIME", types["dt"])
	assert.Equal(t, "INTEGER", types["id"])

	indices, err := store.GetPipeColumnsIndices(ctx, pipe)
	require.NoError(t, err)
	assert.NotEmpty(t, indices["dt"])
	assert.NotEmpty(t, indices["id"])

	tuple = store.DropPipeIndices(ctx, pipe, nil)
	require.True(t, tuple.Ok, tuple.Msg)
	tuple = store.CreatePipeIndices(ctx, pipe, nil)
	require.True(t, tuple.Ok, tuple.Msg)
}

func TestDropPipeKeepsMetadata(t *testing.T) {
	store := newStore(t)
	pipe := sqlTestPipe("dropme")
	ctx := context.Background()
	require.True(t, store.RegisterPipe(ctx, pipe).Ok)

	opts := connectors.SyncOptions{CheckExisting: true}
	_, tuple := store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": sqlDay(1), "id": int64(1), "v": int64(1)},
	), opts)
	require.True(t, tuple.Ok, tuple.Msg)

	require.True(t, store.DropPipe(ctx, pipe).Ok)
	n, err := store.GetPipeRowCount(ctx, pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	id, err := store.GetPipeID(ctx, pipe)
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestListPipesFilters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a := sqlTestPipe("weather")
	b := schema.NewPipe("sql:remote", "power", "west", "sql:test")
	b.SetParameters(schema.Parameters{"tags": []interface{}{"prod"}})
	require.True(t, store.RegisterPipe(ctx, a).Ok)
	require.True(t, store.RegisterPipe(ctx, b).Ok)

	all, err := store.ListPipes(ctx, connectors.PipeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byMetric, err := store.ListPipes(ctx, connectors.PipeFilter{MetricKeys: []string{"power"}})
	require.NoError(t, err)
	require.Len(t, byMetric, 1)
	assert.Equal(t, "west", byMetric[0].Location)

	tagged, err := store.ListPipes(ctx, connectors.PipeFilter{Tags: []string{"_prod"}})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "weather", tagged[0].Metric)
}

func TestPhysicalTypeMapping(t *testing.T) {
	cases := map[string]string{
		"int":               "INTEGER",
		"float":             "REAL",
		"bool":              "INTEGER",
		"bytes":             "BLOB",
		"uuid":              "CHAR(36)",
		"numeric":           "TEXT",
		"json":              "TEXT",
		"datetime[ns, UTC]": "DATETIME",
		"object":            "TEXT",
	}
	for logical, physical := range cases {
		assert.Equal(t, physical, physicalType(dtypes.MustParse(logical), "sqlite"), logical)
	}

	assert.Equal(t, "DECIMAL(20,10)", physicalType(dtypes.MustParse("numeric(20,10)"), "mysql"))
	assert.Equal(t, "DECIMAL(38,12)", physicalType(dtypes.MustParse("numeric"), "mysql"))
	assert.Equal(t, "JSON", physicalType(dtypes.MustParse("json"), "mysql"))
	assert.Equal(t, "DATETIME(6)", physicalType(dtypes.MustParse("datetime[ns, UTC]"), "mysql"))
}

func TestDatetimeBounds(t *testing.T) {
	store := newStore(t)
	pipe := sqlTestPipe("bounds")
	ctx := context.Background()
	require.True(t, store.RegisterPipe(ctx, pipe).Ok)

	farFuture := time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	_, tuple := store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": farFuture, "id": int64(1), "v": int64(1)},
	), connectors.SyncOptions{CheckExisting: true})
	assert.False(t, tuple.Ok)
	assert.Contains(t, tuple.Msg, "representable")

	// With enforcement off the value is clamped and the write succeeds.
	pipe.Parameters()["enforce"] = false
	_, tuple = store.SyncPipe(ctx, pipe, sqlFrame(
		schema.Row{"dt": farFuture, "id": int64(1), "v": int64(1)},
	), connectors.SyncOptions{CheckExisting: true})
	require.True(t, tuple.Ok, tuple.Msg)
	assert.Contains(t, tuple.Msg, "clamped")
}
