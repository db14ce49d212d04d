// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/internal/instance/memstore"
	syncpkg "github.com/meerschaum/mrsm/internal/sync"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowConnector blocks in Fetch until its delay elapses or the context
// is cancelled.
type slowConnector struct {
	delay time.Duration
}

func (c *slowConnector) Type() string  { return "slow" }
func (c *slowConnector) Label() string { return "src" }
func (c *slowConnector) Keys() string  { return "slow:src" }

func (c *slowConnector) Fetch(ctx context.Context, pipe *schema.Pipe,
	opts connectors.FetchOptions,
) (connectors.Batches, error) {
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return nil, schema.NewError(schema.KindCancelled, "fetch", ctx.Err())
	}
	frame := &schema.Frame{}
	frame.Append(schema.Row{"dt": "2024-01-01", "id": 1})
	return connectors.NewFrameBatches(frame), nil
}

func newTestRegistry(t *testing.T, delay time.Duration) *connectors.Registry {
	t.Helper()
	config.Patch(map[string]interface{}{
		"meerschaum": map[string]interface{}{
			"connectors": map[string]interface{}{
				"memory": map[string]interface{}{"test": map[string]interface{}{}},
				"slow":   map[string]interface{}{"src": map[string]interface{}{}},
			},
		},
	})
	registry := connectors.NewRegistry()
	registry.RegisterType("memory", memstore.Factory)
	registry.RegisterType("slow", func(typ, label string, attributes map[string]interface{}) (connectors.Connector, error) {
		return &slowConnector{delay: delay}, nil
	})
	return registry
}

func slowPipe() *schema.Pipe {
	pipe := schema.NewPipe("slow:src", "metric", "", "memory:test")
	pipe.SetParameters(schema.Parameters{
		"columns": map[string]interface{}{"datetime": "dt", "id": "id"},
	})
	return pipe
}

func TestTimeoutSeconds(t *testing.T) {
	registry := newTestRegistry(t, 10*time.Second)
	syncer := syncpkg.NewSyncer(registry, syncpkg.NewHooks())
	sched := New(syncer, Config{TimeoutSeconds: 1, MinSeconds: 0.01})

	pipe := slowPipe()
	start := time.Now()
	results, ok := sched.Run(context.Background(), []*schema.Pipe{pipe}, syncpkg.DefaultOptions())
	elapsed := time.Since(start)

	assert.False(t, ok)
	require.Contains(t, results, pipe)
	assert.Equal(t, "timeout", results[pipe].Msg)
	assert.Less(t, elapsed, 3*time.Second)

	inst, err := connectors.ParseInstanceKeys(registry, "memory:test")
	require.NoError(t, err)
	n, err := inst.GetPipeRowCount(context.Background(), pipe, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOneShotSync(t *testing.T) {
	registry := newTestRegistry(t, 10*time.Millisecond)
	syncer := syncpkg.NewSyncer(registry, syncpkg.NewHooks())
	sched := New(syncer, Config{MinSeconds: 0.01})

	pipe := slowPipe()
	results, ok := sched.Run(context.Background(), []*schema.Pipe{pipe}, syncpkg.DefaultOptions())
	require.True(t, ok)
	assert.True(t, results[pipe].Ok, results[pipe].Msg)
}

func TestDoNTimes(t *testing.T) {
	registry := newTestRegistry(t, time.Millisecond)
	syncer := syncpkg.NewSyncer(registry, syncpkg.NewHooks())
	sched := New(syncer, Config{DoNTimes: 3, MinSeconds: 0.01})

	pipe := slowPipe()
	results, ok := sched.Run(context.Background(), []*schema.Pipe{pipe}, syncpkg.DefaultOptions())
	require.True(t, ok)
	// After the first insert the source's single row is already seen.
	assert.Equal(t, "inserted 0", results[pipe].Msg)
}

func TestPoolSizeBounds(t *testing.T) {
	assert.Equal(t, 1, poolSize(0, 1))
	assert.Equal(t, 3, poolSize(3, 10))
	clamped := poolSize(100, 100)
	assert.LessOrEqual(t, clamped, config.Keys.PoolSize)
	assert.GreaterOrEqual(t, clamped, 1)
}
