// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// ListPipes enumerates registered pipes matching the key filters. Tag
// filters apply client-side on the parameter blob; the negation prefix
// excludes a tag's bare form.
func (s *Store) ListPipes(ctx context.Context, filter connectors.PipeFilter) ([]*schema.Pipe, error) {
	q := sq.Select("pipe_id", "connector_keys", "metric_key", "location_key", "parameters").
		From(pipesTable).
		OrderBy("pipe_id")
	if len(filter.ConnectorKeys) > 0 {
		q = q.Where(sq.Eq{"connector_keys": filter.ConnectorKeys})
	}
	if len(filter.MetricKeys) > 0 {
		q = q.Where(sq.Eq{"metric_key": filter.MetricKeys})
	}
	if len(filter.LocationKeys) > 0 {
		locations := make([]string, len(filter.LocationKeys))
		for i, loc := range filter.LocationKeys {
			locations[i] = schema.NormalizeLocation(loc)
		}
		q = q.Where(sq.Eq{"location_key": locations})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, schema.NewError(schema.KindInternal, "build query", err)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "list pipes")
	}
	defer rows.Close()

	var pipes []*schema.Pipe
	for rows.Next() {
		var id int64
		var connector, metric, location string
		var raw sql.NullString
		if err := rows.Scan(&id, &connector, &metric, &location, &raw); err != nil {
			return nil, classify(err, "list pipes")
		}
		pipe := schema.NewPipe(connector, metric, location, s.Keys())
		pipe.ID = id
		if raw.Valid && raw.String != "" {
			params := schema.Parameters{}
			if err := json.Unmarshal([]byte(raw.String), &params); err == nil {
				pipe.SetParameters(params)
			}
		}
		if !connectors.MatchTags(pipe.Parameters().Tags(), filter.Tags, config.Keys.TagNegationPrefix) {
			continue
		}
		pipes = append(pipes, pipe)
	}
	return pipes, rows.Err()
}
