// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memstore is the in-memory instance connector. It backs the
// `memory` connector type and the engine's test fixtures, and serves as
// the reference implementation of the storage contract.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

type record struct {
	id         int64
	parameters schema.Parameters
	frame      *schema.Frame
	exists     bool
	frozen     bool
}

// Store is a full in-memory instance.
type Store struct {
	typ   string
	label string

	mu     sync.Mutex
	nextID int64
	pipes  map[string]*record
	pool   int
}

// Factory builds memory instances for the connector registry.
func Factory(typ, label string, attributes map[string]interface{}) (connectors.Connector, error) {
	pool := 8
	if n, ok := attributes["pool_size"].(float64); ok && n > 0 {
		pool = int(n)
	}
	return New(typ, label, pool), nil
}

func New(typ, label string, pool int) *Store {
	return &Store{
		typ:    typ,
		label:  label,
		nextID: 1,
		pipes:  map[string]*record{},
		pool:   pool,
	}
}

func (s *Store) Type() string  { return s.typ }
func (s *Store) Label() string { return s.label }
func (s *Store) Keys() string  { return s.typ + ":" + s.label }
func (s *Store) PoolSize() int { return s.pool }

func pipeKey(pipe *schema.Pipe) string {
	return strings.Join([]string{pipe.Connector, pipe.Metric, pipe.Location}, "\x1f")
}

func splitPipeKey(key string) (connector, metric, location string) {
	parts := strings.SplitN(key, "\x1f", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

func (s *Store) lookup(pipe *schema.Pipe) *record {
	return s.pipes[pipeKey(pipe)]
}

/* metadata CRUD */

func (s *Store) RegisterPipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup(pipe) != nil {
		return schema.Fail("pipe %s is already registered", pipe)
	}
	rec := &record{
		id:         s.nextID,
		parameters: copyParams(pipe.Parameters()),
	}
	s.nextID++
	s.pipes[pipeKey(pipe)] = rec
	pipe.ID = rec.id
	return schema.Succeed("registered %s", pipe)
}

func (s *Store) EditPipe(ctx context.Context, pipe *schema.Pipe, patch bool) schema.SuccessTuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(pipe)
	if rec == nil {
		return schema.Fail("pipe %s is not registered", pipe)
	}
	if patch {
		rec.parameters = mergeParams(rec.parameters, pipe.Parameters())
	} else {
		rec.parameters = copyParams(pipe.Parameters())
	}
	return schema.Succeed("edited %s", pipe)
}

func (s *Store) DeletePipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup(pipe) == nil {
		return schema.Fail("pipe %s is not registered", pipe)
	}
	delete(s.pipes, pipeKey(pipe))
	pipe.ID = 0
	return schema.Succeed("deleted %s", pipe)
}

func (s *Store) GetPipeID(ctx context.Context, pipe *schema.Pipe) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(pipe)
	if rec == nil {
		return 0, nil
	}
	return rec.id, nil
}

func (s *Store) GetPipeAttributes(ctx context.Context, pipe *schema.Pipe) (schema.Parameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(pipe)
	if rec == nil {
		return nil, schema.Errorf(schema.KindConfig, "get pipe attributes",
			"pipe %s is not registered", pipe)
	}
	return copyParams(rec.parameters), nil
}

/* reads */

func (s *Store) GetSyncTime(ctx context.Context, pipe *schema.Pipe, newest, roundDown bool,
	params map[string]interface{},
) (interface{}, error) {
	frame, err := s.GetPipeData(ctx, pipe, nil, nil, params, 0, "")
	if err != nil || frame == nil {
		return nil, err
	}
	dtCol := pipe.Parameters().DatetimeColumn()
	if dtCol == "" {
		return nil, nil
	}
	min, max, ok := frame.MinMax(dtCol)
	if !ok {
		return nil, nil
	}
	extreme := max
	if !newest {
		extreme = min
	}
	if t, ok := extreme.(time.Time); ok && roundDown {
		return t.Truncate(time.Minute), nil
	}
	return extreme, nil
}

func (s *Store) GetPipeData(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{}, limit int, order string,
) (*schema.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(pipe)
	if rec == nil || !rec.exists {
		return nil, nil
	}

	pred, err := compileParams(params)
	if err != nil {
		return nil, err
	}

	dtCol := rec.parameters.DatetimeColumn()
	out := &schema.Frame{Columns: append([]string(nil), rec.frame.Columns...)}
	for _, row := range rec.frame.Rows {
		if dtCol != "" && !withinBounds(row[dtCol], begin, end) {
			continue
		}
		match, err := pred(row)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		out.Rows = append(out.Rows, row)
	}

	if dtCol != "" && order != "" {
		desc := strings.EqualFold(order, "desc")
		sort.SliceStable(out.Rows, func(i, j int) bool {
			less := axisLess(out.Rows[i][dtCol], out.Rows[j][dtCol])
			if desc {
				return !less
			}
			return less
		})
	}
	if limit > 0 && len(out.Rows) > limit {
		out.Rows = out.Rows[:limit]
	}
	return out.Copy(), nil
}

func (s *Store) GetPipeRowCount(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{}, remote bool,
) (int64, error) {
	frame, err := s.GetPipeData(ctx, pipe, begin, end, params, 0, "")
	if err != nil || frame == nil {
		return 0, err
	}
	return int64(frame.Len()), nil
}

func (s *Store) GetPipeColumnsTypes(ctx context.Context, pipe *schema.Pipe) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(pipe)
	if rec == nil || !rec.exists {
		return map[string]string{}, nil
	}
	declared, err := dtypes.ParseMap(rec.parameters.Dtypes())
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, col := range rec.frame.Columns {
		if dt, ok := declared[col]; ok {
			out[col] = dt.String()
			continue
		}
		out[col] = string(dtypes.Object)
	}
	return out, nil
}

func (s *Store) GetPipeColumnsIndices(ctx context.Context, pipe *schema.Pipe) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(pipe)
	if rec == nil {
		return map[string][]string{}, nil
	}
	out := map[string][]string{}
	for name, cols := range rec.parameters.IndexColumns() {
		for _, col := range cols {
			out[col] = append(out[col], name)
		}
	}
	for col := range out {
		sort.Strings(out[col])
	}
	return out, nil
}

/* writes */

func (s *Store) SyncPipe(ctx context.Context, pipe *schema.Pipe, frame *schema.Frame,
	opts connectors.SyncOptions,
) (connectors.SyncStats, schema.SuccessTuple) {
	var stats connectors.SyncStats
	if frame == nil || frame.Len() == 0 {
		return stats, schema.Succeed("inserted 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.lookup(pipe)
	if rec == nil {
		// Implicit registration keeps parity with the SQL store.
		rec = &record{id: s.nextID, parameters: copyParams(pipe.Parameters())}
		s.nextID++
		s.pipes[pipeKey(pipe)] = rec
		pipe.ID = rec.id
	}

	params := pipe.Parameters()
	if !rec.exists {
		rec.frame = &schema.Frame{Columns: append([]string(nil), frame.Columns...)}
		rec.exists = true
		rec.frozen = params.Static()
	} else {
		for _, col := range frame.Columns {
			if rec.frame.HasColumn(col) {
				continue
			}
			if rec.frozen {
				return stats, schema.FailErr(schema.Errorf(schema.KindSchema, "sync pipe",
					"static pipe %s cannot add column %q", pipe, col))
			}
			rec.frame.AddColumn(col)
		}
	}
	// Keep the instance's parameter blob current with inferred dtypes.
	rec.parameters = mergeParams(rec.parameters, params)

	unique := params.UniqueColumns()
	declared, err := dtypes.ParseMap(params.Dtypes())
	if err != nil {
		return stats, schema.FailErr(err)
	}

	if (params.Upsert() || opts.Upsert) && len(unique) > 0 {
		inserted, updated := s.upsertRows(rec, frame, unique, declared)
		stats.Upserted = inserted + updated
		return stats, schema.Succeed("upserted %d", stats.Upserted)
	}

	if len(unique) > 0 {
		inserted, updated := s.mergeRows(rec, frame, unique, declared)
		stats.Inserted, stats.Updated = inserted, updated
		msg := fmt.Sprintf("inserted %d", inserted)
		if updated > 0 {
			msg = fmt.Sprintf("inserted %d, updated %d", inserted, updated)
			if inserted == 0 {
				msg = fmt.Sprintf("updated %d", updated)
			}
		}
		return stats, schema.Succeed("%s", msg)
	}

	rec.frame.Rows = append(rec.frame.Rows, frame.Copy().Rows...)
	stats.Inserted = frame.Len()
	return stats, schema.Succeed("inserted %d", stats.Inserted)
}

func (s *Store) upsertRows(rec *record, frame *schema.Frame, unique []string,
	declared map[string]dtypes.Dtype,
) (inserted, updated int) {
	return s.applyMerge(rec, frame, unique, declared, true)
}

func (s *Store) mergeRows(rec *record, frame *schema.Frame, unique []string,
	declared map[string]dtypes.Dtype,
) (inserted, updated int) {
	return s.applyMerge(rec, frame, unique, declared, false)
}

func (s *Store) applyMerge(rec *record, frame *schema.Frame, unique []string,
	declared map[string]dtypes.Dtype, replaceAll bool,
) (inserted, updated int) {
	index := map[string]int{}
	for i, row := range rec.frame.Rows {
		if key, ok := rowKey(row, unique, declared); ok {
			index[key] = i
		}
	}
	for _, row := range frame.Rows {
		cp := copyRow(row)
		key, ok := rowKey(row, unique, declared)
		if !ok {
			rec.frame.Rows = append(rec.frame.Rows, cp)
			inserted++
			continue
		}
		if at, seen := index[key]; seen {
			existing := rec.frame.Rows[at]
			changed := false
			for col, v := range cp {
				if !sameCell(existing[col], v) {
					existing[col] = v
					changed = true
				}
			}
			if changed || replaceAll {
				updated++
			}
			continue
		}
		index[key] = len(rec.frame.Rows)
		rec.frame.Rows = append(rec.frame.Rows, cp)
		inserted++
	}
	return inserted, updated
}

func (s *Store) DropPipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(pipe)
	if rec == nil {
		return schema.Fail("pipe %s is not registered", pipe)
	}
	rec.frame = nil
	rec.exists = false
	rec.frozen = false
	return schema.Succeed("dropped %s", pipe)
}

func (s *Store) DropPipeIndices(ctx context.Context, pipe *schema.Pipe, columns []string) schema.SuccessTuple {
	log.Debugf("Dropping indices on %s (memory instance keeps none)", pipe)
	return schema.Succeed("dropped indices on %s", pipe)
}

func (s *Store) CreatePipeIndices(ctx context.Context, pipe *schema.Pipe, columns []string) schema.SuccessTuple {
	log.Debugf("Creating indices on %s (memory instance keeps none)", pipe)
	return schema.Succeed("created indices on %s", pipe)
}

func (s *Store) ClearPipe(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{},
) schema.SuccessTuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(pipe)
	if rec == nil || !rec.exists {
		return schema.Succeed("cleared 0 rows")
	}
	pred, err := compileParams(params)
	if err != nil {
		return schema.FailErr(err)
	}
	dtCol := rec.parameters.DatetimeColumn()
	kept := rec.frame.Rows[:0]
	cleared := 0
	for _, row := range rec.frame.Rows {
		inRange := dtCol == "" || withinBounds(row[dtCol], begin, end)
		match, perr := pred(row)
		if perr != nil {
			return schema.FailErr(perr)
		}
		if inRange && match {
			cleared++
			continue
		}
		kept = append(kept, row)
	}
	rec.frame.Rows = kept
	return schema.Succeed("cleared %d rows", cleared)
}

/* helpers */

func copyParams(p schema.Parameters) schema.Parameters {
	return schema.Parameters(deepCopy(map[string]interface{}(p)))
}

func mergeParams(base, patch schema.Parameters) schema.Parameters {
	out := copyParams(base)
	for k, v := range deepCopy(map[string]interface{}(patch)) {
		if sub, ok := v.(map[string]interface{}); ok {
			if cur, ok := out[k].(map[string]interface{}); ok {
				out[k] = mergeTrees(cur, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func mergeTrees(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if sub, ok := v.(map[string]interface{}); ok {
			if cur, ok := out[k].(map[string]interface{}); ok {
				out[k] = mergeTrees(cur, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func deepCopy(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = deepCopy(val)
		case []interface{}:
			cp := make([]interface{}, len(val))
			copy(cp, val)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

func copyRow(row schema.Row) schema.Row {
	cp := make(schema.Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return cp
}
