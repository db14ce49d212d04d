// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// columnsOf introspects a table's columns and physical types.
func (s *Store) columnsOf(ctx context.Context, table string) (map[string]string, error) {
	out := map[string]string{}
	switch s.flavor {
	case "mysql":
		rows, err := s.DB.QueryContext(ctx,
			"SELECT column_name, column_type FROM information_schema.columns "+
				"WHERE table_schema = DATABASE() AND table_name = ?", table)
		if err != nil {
			return nil, classify(err, "introspect columns")
		}
		defer rows.Close()
		for rows.Next() {
			var name, typ string
			if err := rows.Scan(&name, &typ); err != nil {
				return nil, classify(err, "introspect columns")
			}
			out[name] = strings.ToUpper(typ)
		}
		return out, rows.Err()
	default:
		rows, err := s.DB.QueryContext(ctx,
			fmt.Sprintf("PRAGMA table_info(%s)", s.quoteIdent(table)))
		if err != nil {
			return nil, classify(err, "introspect columns")
		}
		defer rows.Close()
		for rows.Next() {
			var cid int
			var name, typ string
			var notNull int
			var dflt interface{}
			var pk int
			if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
				return nil, classify(err, "introspect columns")
			}
			out[name] = strings.ToUpper(typ)
		}
		return out, rows.Err()
	}
}

func (s *Store) GetPipeColumnsTypes(ctx context.Context, pipe *schema.Pipe) (map[string]string, error) {
	table := s.target(pipe)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]string{}, nil
	}
	return s.columnsOf(ctx, table)
}

// GetPipeColumnsIndices maps each indexed column to the index names
// covering it.
func (s *Store) GetPipeColumnsIndices(ctx context.Context, pipe *schema.Pipe) (map[string][]string, error) {
	table := s.target(pipe)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string][]string{}, nil
	}

	out := map[string][]string{}
	switch s.flavor {
	case "mysql":
		rows, err := s.DB.QueryContext(ctx,
			"SELECT index_name, column_name FROM information_schema.statistics "+
				"WHERE table_schema = DATABASE() AND table_name = ?", table)
		if err != nil {
			return nil, classify(err, "introspect indices")
		}
		defer rows.Close()
		for rows.Next() {
			var index, column string
			if err := rows.Scan(&index, &column); err != nil {
				return nil, classify(err, "introspect indices")
			}
			out[column] = append(out[column], index)
		}
		if err := rows.Err(); err != nil {
			return nil, classify(err, "introspect indices")
		}
	default:
		names, err := s.sqliteIndexNames(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, index := range names {
			cols, err := s.sqliteIndexColumns(ctx, index)
			if err != nil {
				return nil, err
			}
			for _, column := range cols {
				out[column] = append(out[column], index)
			}
		}
	}
	for column := range out {
		sort.Strings(out[column])
	}
	return out, nil
}

func (s *Store) sqliteIndexNames(ctx context.Context, table string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf("PRAGMA index_list(%s)", s.quoteIdent(table)))
	if err != nil {
		return nil, classify(err, "introspect indices")
	}
	defer rows.Close()

	var names []string
	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(err, "introspect indices")
	}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err, "introspect indices")
		}
		// PRAGMA index_list: seq, name, unique, origin, partial.
		if b, ok := values[1].([]byte); ok {
			names = append(names, string(b))
		} else if str, ok := values[1].(string); ok {
			names = append(names, str)
		}
	}
	return names, rows.Err()
}

func (s *Store) sqliteIndexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf("PRAGMA index_info(%s)", s.quoteIdent(index)))
	if err != nil {
		return nil, classify(err, "introspect indices")
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name interface{}
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, classify(err, "introspect indices")
		}
		switch n := name.(type) {
		case string:
			columns = append(columns, n)
		case []byte:
			columns = append(columns, string(n))
		}
	}
	return columns, rows.Err()
}

// createIndices builds the unique index backing the effective unique
// constraint plus the declared extras.
func (s *Store) createIndices(ctx context.Context, table string, params schema.Parameters) error {
	unique := params.UniqueColumns()
	if len(unique) > 0 {
		quoted := make([]string, len(unique))
		for i, col := range unique {
			quoted[i] = s.quoteIdent(col)
		}
		name := "uq_" + table
		ddl := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)",
			s.quoteIdent(name), s.quoteIdent(table), strings.Join(quoted, ", "))
		if _, err := s.DB.ExecContext(ctx, ddl); err != nil && !isDuplicateIndex(err) {
			return classify(err, "create unique index")
		}
	}

	for name, cols := range params.IndexColumns() {
		if sameColumns(cols, unique) {
			continue
		}
		quoted := make([]string, len(cols))
		for i, col := range cols {
			quoted[i] = s.quoteIdent(col)
		}
		indexName := fmt.Sprintf("ix_%s_%s", table, name)
		ddl := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			s.quoteIdent(indexName), s.quoteIdent(table), strings.Join(quoted, ", "))
		if _, err := s.DB.ExecContext(ctx, ddl); err != nil && !isDuplicateIndex(err) {
			return classify(err, "create index")
		}
	}
	return nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isDuplicateIndex(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1061
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func (s *Store) CreatePipeIndices(ctx context.Context, pipe *schema.Pipe, columns []string) schema.SuccessTuple {
	table := s.target(pipe)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return schema.FailErr(err)
	}
	if !exists {
		return schema.Fail("target %s does not exist", table)
	}
	params := pipe.Parameters()
	if len(columns) > 0 {
		params = restrictIndices(params, columns)
	}
	if err := s.createIndices(ctx, table, params); err != nil {
		return schema.FailErr(err)
	}
	return schema.Succeed("created indices on %s", table)
}

func (s *Store) DropPipeIndices(ctx context.Context, pipe *schema.Pipe, columns []string) schema.SuccessTuple {
	table := s.target(pipe)
	indices, err := s.GetPipeColumnsIndices(ctx, pipe)
	if err != nil {
		return schema.FailErr(err)
	}

	restrict := map[string]bool{}
	for _, col := range columns {
		restrict[col] = true
	}

	dropped := map[string]bool{}
	for column, names := range indices {
		if len(restrict) > 0 && !restrict[column] {
			continue
		}
		for _, name := range names {
			if dropped[name] || strings.HasPrefix(name, "sqlite_autoindex") {
				continue
			}
			var ddl string
			if s.flavor == "mysql" {
				ddl = fmt.Sprintf("DROP INDEX %s ON %s", s.quoteIdent(name), s.quoteIdent(table))
			} else {
				ddl = fmt.Sprintf("DROP INDEX %s", s.quoteIdent(name))
			}
			if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
				log.Warnf("Could not drop index %s on %s: %v", name, table, err)
				continue
			}
			dropped[name] = true
		}
	}
	return schema.Succeed("dropped %d indices on %s", len(dropped), table)
}

// restrictIndices narrows the parameter map's index definitions to the
// given columns.
func restrictIndices(params schema.Parameters, columns []string) schema.Parameters {
	keep := map[string]bool{}
	for _, col := range columns {
		keep[col] = true
	}
	indices := map[string]interface{}{}
	for name, cols := range params.IndexColumns() {
		all := true
		for _, col := range cols {
			if !keep[col] {
				all = false
				break
			}
		}
		if all {
			vals := make([]interface{}, len(cols))
			for i, col := range cols {
				vals[i] = col
			}
			indices[name] = vals
		}
	}
	out := schema.Parameters{}
	for k, v := range params {
		out[k] = v
	}
	out["indices"] = indices
	return out
}
