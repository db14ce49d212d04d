// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/schema"
)

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch s.flavor {
	case "mysql":
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, classify(err, "check table")
	}
	return n > 0, nil
}

// paramsWhere renders the params filter: equality, IN lists, and the
// `_`-prefixed negation spelling. Any other value is matched by
// equality; the "expr" key is skipped.
func paramsWhere(q sq.SelectBuilder, params map[string]interface{}) sq.SelectBuilder {
	for col, accepted := range params {
		if col == "expr" {
			continue
		}
		switch want := accepted.(type) {
		case []interface{}:
			var include, exclude []interface{}
			for _, w := range want {
				if str, ok := w.(string); ok && strings.HasPrefix(str, "_") {
					exclude = append(exclude, strings.TrimPrefix(str, "_"))
					continue
				}
				include = append(include, w)
			}
			if len(include) > 0 {
				q = q.Where(sq.Eq{col: include})
			}
			if len(exclude) > 0 {
				q = q.Where(sq.NotEq{col: exclude})
			}
		case string:
			if strings.HasPrefix(want, "_") {
				q = q.Where(sq.NotEq{col: strings.TrimPrefix(want, "_")})
				continue
			}
			q = q.Where(sq.Eq{col: want})
		default:
			q = q.Where(sq.Eq{col: accepted})
		}
	}
	return q
}

func (s *Store) GetPipeData(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{}, limit int, order string,
) (*schema.Frame, error) {
	table := s.target(pipe)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	attributes, err := s.GetPipeAttributes(ctx, pipe)
	if err != nil {
		attributes = pipe.Parameters()
	}
	dtCol := attributes.DatetimeColumn()

	q := sq.Select("*").From(s.quoteIdent(table))
	if dtCol != "" {
		if begin != nil {
			q = q.Where(sq.GtOrEq{s.quoteIdent(dtCol): begin})
		}
		if end != nil {
			q = q.Where(sq.Lt{s.quoteIdent(dtCol): end})
		}
		if order != "" {
			dir := "ASC"
			if strings.EqualFold(order, "desc") {
				dir = "DESC"
			}
			q = q.OrderBy(s.quoteIdent(dtCol) + " " + dir)
		}
	}
	q = paramsWhere(q, params)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, schema.NewError(schema.KindInternal, "build query", err)
	}
	rows, err := s.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "get pipe data")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(err, "get pipe data")
	}
	frame := &schema.Frame{Columns: columns}
	for rows.Next() {
		row := schema.Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, classify(err, "scan pipe data")
		}
		normalizeRow(row)
		frame.Rows = append(frame.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "get pipe data")
	}
	return frame, nil
}

// normalizeRow maps driver scan types to the engine's cell types.
func normalizeRow(row schema.Row) {
	for col, v := range row {
		switch val := v.(type) {
		case []byte:
			row[col] = string(val)
		case sql.RawBytes:
			row[col] = string(val)
		}
	}
}

func (s *Store) GetPipeRowCount(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{}, remote bool,
) (int64, error) {
	table := s.target(pipe)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	attributes, aerr := s.GetPipeAttributes(ctx, pipe)
	if aerr != nil {
		attributes = pipe.Parameters()
	}
	dtCol := attributes.DatetimeColumn()

	q := sq.Select("COUNT(*)").From(s.quoteIdent(table))
	if dtCol != "" {
		if begin != nil {
			q = q.Where(sq.GtOrEq{s.quoteIdent(dtCol): begin})
		}
		if end != nil {
			q = q.Where(sq.Lt{s.quoteIdent(dtCol): end})
		}
	}
	q = paramsWhere(q, params)

	query, args, err := q.ToSql()
	if err != nil {
		return 0, schema.NewError(schema.KindInternal, "build query", err)
	}
	var n int64
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(err, "get pipe rowcount")
	}
	return n, nil
}

func (s *Store) GetSyncTime(ctx context.Context, pipe *schema.Pipe, newest, roundDown bool,
	params map[string]interface{},
) (interface{}, error) {
	table := s.target(pipe)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	attributes, aerr := s.GetPipeAttributes(ctx, pipe)
	if aerr != nil {
		attributes = pipe.Parameters()
	}
	dtCol := attributes.DatetimeColumn()
	if dtCol == "" {
		return nil, nil
	}

	agg := "MAX"
	if !newest {
		agg = "MIN"
	}
	q := paramsWhere(
		sq.Select(agg+"("+s.quoteIdent(dtCol)+")").From(s.quoteIdent(table)),
		params,
	)
	query, args, err := q.ToSql()
	if err != nil {
		return nil, schema.NewError(schema.KindInternal, "build query", err)
	}

	var raw interface{}
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err, "get sync time")
	}
	if raw == nil {
		return nil, nil
	}

	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if str, ok := raw.(string); ok {
		if t, _, perr := dtypes.ParseDatetime(str); perr == nil {
			raw = t
		}
	}
	if t, ok := raw.(time.Time); ok && roundDown {
		return t.Truncate(time.Minute), nil
	}
	return raw, nil
}

func (s *Store) ClearPipe(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{},
) schema.SuccessTuple {
	table := s.target(pipe)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return schema.FailErr(err)
	}
	if !exists {
		return schema.Succeed("cleared 0 rows")
	}

	attributes, aerr := s.GetPipeAttributes(ctx, pipe)
	if aerr != nil {
		attributes = pipe.Parameters()
	}
	dtCol := attributes.DatetimeColumn()

	q := sq.Delete(s.quoteIdent(table))
	if dtCol != "" {
		if begin != nil {
			q = q.Where(sq.GtOrEq{s.quoteIdent(dtCol): begin})
		}
		if end != nil {
			q = q.Where(sq.Lt{s.quoteIdent(dtCol): end})
		}
	}
	for col, accepted := range params {
		q = q.Where(sq.Eq{s.quoteIdent(col): accepted})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return schema.FailErr(schema.NewError(schema.KindInternal, "build query", err))
	}
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return schema.FailErr(classify(err, "clear pipe"))
	}
	n, _ := res.RowsAffected()
	return schema.Succeed("cleared %d rows", n)
}
