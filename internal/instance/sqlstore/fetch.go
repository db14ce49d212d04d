// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// Fetch makes the SQL connector a source: the pipe's fetch.definition
// query is wrapped as a subquery and bounded by the datetime axis. With
// a chunk interval and both bounds, windows stream one batch per call.
func (s *Store) Fetch(ctx context.Context, pipe *schema.Pipe, opts connectors.FetchOptions,
) (connectors.Batches, error) {
	definition, _ := pipe.Parameters().Fetch()["definition"].(string)
	if definition == "" {
		return nil, schema.Errorf(schema.KindConfig, "fetch",
			"pipe %s has no fetch definition", pipe)
	}
	dtCol := pipe.Parameters().DatetimeColumn()

	beginT, beginIsTime := opts.Begin.(time.Time)
	endT, endIsTime := opts.End.(time.Time)
	if dtCol != "" && beginIsTime && endIsTime && opts.ChunkInterval > 0 {
		return &windowedBatches{
			store:      s,
			definition: definition,
			dtCol:      dtCol,
			cursor:     beginT,
			end:        endT,
			interval:   opts.ChunkInterval,
		}, nil
	}

	query, args := s.boundedQuery(definition, dtCol, opts.Begin, opts.End)
	frame, err := s.queryFrame(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return connectors.NewFrameBatches(frame), nil
}

func (s *Store) boundedQuery(definition, dtCol string, begin, end interface{}) (string, []interface{}) {
	query := fmt.Sprintf("SELECT * FROM (%s) AS definition_subquery", definition)
	var args []interface{}
	clause := " WHERE"
	if dtCol != "" && begin != nil {
		query += fmt.Sprintf("%s %s >= ?", clause, s.quoteIdent(dtCol))
		args = append(args, begin)
		clause = " AND"
	}
	if dtCol != "" && end != nil {
		query += fmt.Sprintf("%s %s < ?", clause, s.quoteIdent(dtCol))
		args = append(args, end)
	}
	return query, args
}

func (s *Store) queryFrame(ctx context.Context, query string, args []interface{}) (*schema.Frame, error) {
	rows, err := s.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "fetch")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(err, "fetch")
	}
	frame := &schema.Frame{Columns: columns}
	for rows.Next() {
		row := schema.Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, classify(err, "fetch")
		}
		normalizeRow(row)
		frame.Rows = append(frame.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "fetch")
	}
	return frame, nil
}

// windowedBatches streams one chunk interval per Next call.
type windowedBatches struct {
	store      *Store
	definition string
	dtCol      string
	cursor     time.Time
	end        time.Time
	interval   time.Duration
}

func (w *windowedBatches) Next(ctx context.Context) (*schema.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.KindCancelled, "fetch", err)
	}
	if !w.cursor.Before(w.end) {
		return nil, nil
	}
	stop := w.cursor.Add(w.interval)
	if stop.After(w.end) {
		stop = w.end
	}
	query, args := w.store.boundedQuery(w.definition, w.dtCol, w.cursor, stop)
	frame, err := w.store.queryFrame(ctx, query, args)
	if err != nil {
		return nil, err
	}
	w.cursor = stop
	return frame, nil
}

func (w *windowedBatches) Close() error { return nil }
