// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/internal/filter"
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// insertChunkRows bounds one multi-row INSERT statement.
const insertChunkRows = 500

// Representable datetime range on the supported flavors.
var (
	minDatetime = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxDatetime = time.Date(9999, time.December, 31, 23, 59, 59, 999999000, time.UTC)
)

func (s *Store) SyncPipe(ctx context.Context, pipe *schema.Pipe, frame *schema.Frame,
	opts connectors.SyncOptions,
) (connectors.SyncStats, schema.SuccessTuple) {
	var stats connectors.SyncStats
	if frame == nil || frame.Len() == 0 {
		return stats, schema.Succeed("inserted 0")
	}

	params := pipe.Parameters()
	declared, err := dtypes.ParseMap(params.Dtypes())
	if err != nil {
		return stats, schema.FailErr(err)
	}
	table := s.target(pipe)

	warning, err := s.boundDatetimes(frame, params, declared)
	if err != nil {
		return stats, schema.FailErr(err)
	}

	if err := s.ensureTarget(ctx, table, frame, params, declared); err != nil {
		return stats, schema.FailErr(err)
	}

	unique := params.UniqueColumns()
	doUpsert := (params.Upsert() || opts.Upsert) && len(unique) > 0

	if doUpsert {
		n, err := s.upsertRows(ctx, table, frame, unique)
		if err != nil {
			return stats, schema.FailErr(err)
		}
		stats.Upserted = n
		return stats, schema.Succeed("upserted %d%s", n, warning)
	}

	if len(unique) > 0 && opts.CheckExisting {
		existing, err := s.overlapRows(ctx, pipe, frame, params)
		if err != nil {
			return stats, schema.FailErr(err)
		}
		if err := dtypes.Enforce(existing, declared); err != nil {
			return stats, schema.FailErr(err)
		}
		res := filter.Existing(frame, existing, unique, declared, params.NullIndices())

		inserted, err := s.insertRows(ctx, table, res.Unseen)
		if err != nil {
			return stats, schema.FailErr(err)
		}
		updated, err := s.updateRows(ctx, table, res.Update, unique)
		if err != nil {
			return stats, schema.FailErr(err)
		}
		stats.Inserted, stats.Updated = inserted, updated
		msg := fmt.Sprintf("inserted %d", inserted)
		if updated > 0 && inserted == 0 {
			msg = fmt.Sprintf("updated %d", updated)
		} else if updated > 0 {
			msg = fmt.Sprintf("inserted %d, updated %d", inserted, updated)
		}
		return stats, schema.Succeed("%s%s", msg, warning)
	}

	n, err := s.insertRows(ctx, table, frame)
	if err != nil {
		return stats, schema.FailErr(err)
	}
	stats.Inserted = n
	return stats, schema.Succeed("inserted %d%s", n, warning)
}

// boundDatetimes rejects datetime cells outside the representable range,
// or clamps them with a warning when enforcement is off.
func (s *Store) boundDatetimes(frame *schema.Frame, params schema.Parameters,
	declared map[string]dtypes.Dtype,
) (string, error) {
	clamped := 0
	for col, dt := range declared {
		if dt.Base != dtypes.Datetime || !frame.HasColumn(col) {
			continue
		}
		for i, row := range frame.Rows {
			t, ok := row[col].(time.Time)
			if !ok {
				continue
			}
			if t.Before(minDatetime) || t.After(maxDatetime) {
				if params.Enforce() {
					return "", schema.Errorf(schema.KindSchema, "sync pipe",
						"datetime %v (column %q, row %d) is outside the representable range", t, col, i)
				}
				if t.Before(minDatetime) {
					row[col] = minDatetime
				} else {
					row[col] = maxDatetime
				}
				clamped++
			}
		}
	}
	if clamped > 0 {
		return fmt.Sprintf(" (clamped %d out-of-range datetimes)", clamped), nil
	}
	return "", nil
}

// ensureTarget creates the table on first write and adds any new
// columns, honouring the static flag. DDL is serialised per store.
func (s *Store) ensureTarget(ctx context.Context, table string, frame *schema.Frame,
	params schema.Parameters, declared map[string]dtypes.Dtype,
) error {
	s.ddlMu.Lock()
	defer s.ddlMu.Unlock()

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}

	if !exists {
		cols := make([]string, 0, len(frame.Columns))
		for _, col := range frame.Columns {
			cols = append(cols, s.quoteIdent(col)+" "+physicalType(declared[col], s.flavor))
		}
		ddl := fmt.Sprintf("CREATE TABLE %s (%s)", s.quoteIdent(table), strings.Join(cols, ", "))
		if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
			return classify(err, "create target")
		}
		log.Infof("Created target %s", table)
		return s.createIndices(ctx, table, params)
	}

	current, err := s.columnsOf(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range frame.Columns {
		if _, ok := current[col]; ok {
			continue
		}
		if params.Static() {
			return schema.Errorf(schema.KindSchema, "sync pipe",
				"static pipe cannot add column %q to %s", col, table)
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			s.quoteIdent(table), s.quoteIdent(col), physicalType(declared[col], s.flavor))
		if _, err := s.DB.ExecContext(ctx, alter); err != nil {
			return classify(err, "add column")
		}
		log.Debugf("Added column %s to %s", col, table)
	}
	return nil
}

// overlapRows reads the existing rows within the batch's datetime window.
func (s *Store) overlapRows(ctx context.Context, pipe *schema.Pipe, frame *schema.Frame,
	params schema.Parameters,
) (*schema.Frame, error) {
	var begin, end interface{}
	if dtCol := params.DatetimeColumn(); dtCol != "" && frame.HasColumn(dtCol) {
		if min, max, ok := frame.MinMax(dtCol); ok {
			switch t := min.(type) {
			case time.Time:
				begin = t.Add(-time.Minute)
			case int64:
				begin = t - 1
			case int:
				begin = int64(t) - 1
			default:
				begin = min
			}
			switch t := max.(type) {
			case time.Time:
				end = t.Add(time.Minute)
			case int64:
				end = t + 1
			case int:
				end = int64(t) + 1
			default:
				end = max
			}
		}
	}
	return s.GetPipeData(ctx, pipe, begin, end, nil, 0, "")
}

func (s *Store) insertRows(ctx context.Context, table string, frame *schema.Frame) (int, error) {
	if frame == nil || frame.Len() == 0 {
		return 0, nil
	}
	cols := frame.Columns
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = s.quoteIdent(col)
	}

	// Inserts are bundled into transactions because in sqlite,
	// that speeds up inserts A LOT.
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classify(err, "begin insert")
	}
	defer tx.Rollback()

	inserted := 0
	for start := 0; start < len(frame.Rows); start += insertChunkRows {
		stop := start + insertChunkRows
		if stop > len(frame.Rows) {
			stop = len(frame.Rows)
		}
		chunk := frame.Rows[start:stop]

		placeholders := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*len(cols))
		rowPattern := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
		for _, row := range chunk {
			placeholders = append(placeholders, rowPattern)
			for _, col := range cols {
				args = append(args, bindValue(row[col]))
			}
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			s.quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, classify(err, "insert rows")
		}
		inserted += len(chunk)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(err, "commit insert")
	}
	return inserted, nil
}

func (s *Store) updateRows(ctx context.Context, table string, frame *schema.Frame,
	unique []string,
) (int, error) {
	if frame == nil || frame.Len() == 0 {
		return 0, nil
	}
	uniqueSet := map[string]bool{}
	for _, col := range unique {
		uniqueSet[col] = true
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classify(err, "begin update")
	}
	defer tx.Rollback()

	updated := 0
	for _, row := range frame.Rows {
		var sets []string
		var args []interface{}
		for _, col := range frame.Columns {
			if uniqueSet[col] {
				continue
			}
			if _, present := row[col]; !present {
				continue
			}
			sets = append(sets, s.quoteIdent(col)+" = ?")
			args = append(args, bindValue(row[col]))
		}
		if len(sets) == 0 {
			continue
		}
		var wheres []string
		for _, col := range unique {
			if row[col] == nil {
				wheres = append(wheres, s.quoteIdent(col)+" IS NULL")
				continue
			}
			wheres = append(wheres, s.quoteIdent(col)+" = ?")
			args = append(args, bindValue(row[col]))
		}
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			s.quoteIdent(table), strings.Join(sets, ", "), strings.Join(wheres, " AND "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, classify(err, "update rows")
		}
		updated++
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(err, "commit update")
	}
	return updated, nil
}

// upsertRows merges the batch on the unique columns, updating changed
// non-key cells and inserting new rows.
func (s *Store) upsertRows(ctx context.Context, table string, frame *schema.Frame,
	unique []string,
) (int, error) {
	if frame == nil || frame.Len() == 0 {
		return 0, nil
	}
	cols := frame.Columns
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = s.quoteIdent(col)
	}
	uniqueSet := map[string]bool{}
	quotedUnique := make([]string, len(unique))
	for i, col := range unique {
		uniqueSet[col] = true
		quotedUnique[i] = s.quoteIdent(col)
	}
	var updates []string
	for _, col := range cols {
		if uniqueSet[col] {
			continue
		}
		if s.flavor == "mysql" {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", s.quoteIdent(col), s.quoteIdent(col)))
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", s.quoteIdent(col), s.quoteIdent(col)))
		}
	}

	var conflictClause string
	if s.flavor == "mysql" {
		conflictClause = " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
		if len(updates) == 0 {
			conflictClause = " ON DUPLICATE KEY UPDATE " + quotedUnique[0] + " = " + quotedUnique[0]
		}
	} else {
		if len(updates) == 0 {
			conflictClause = fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(quotedUnique, ", "))
		} else {
			conflictClause = fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
				strings.Join(quotedUnique, ", "), strings.Join(updates, ", "))
		}
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classify(err, "begin upsert")
	}
	defer tx.Rollback()

	merged := 0
	rowPattern := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	for start := 0; start < len(frame.Rows); start += insertChunkRows {
		stop := start + insertChunkRows
		if stop > len(frame.Rows) {
			stop = len(frame.Rows)
		}
		chunk := frame.Rows[start:stop]

		placeholders := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*len(cols))
		for _, row := range chunk {
			placeholders = append(placeholders, rowPattern)
			for _, col := range cols {
				args = append(args, bindValue(row[col]))
			}
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s%s",
			s.quoteIdent(table), strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "), conflictClause)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, classify(err, "upsert rows")
		}
		merged += len(chunk)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(err, "commit upsert")
	}
	return merged, nil
}

// bindValue maps engine cell types to driver bind types.
func bindValue(v interface{}) interface{} {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.String()
	case uuid.UUID:
		return val.String()
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	case bool:
		if val {
			return 1
		}
		return 0
	}
	return v
}

func (s *Store) DropPipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	table := s.target(pipe)
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return schema.FailErr(err)
	}
	if !exists {
		return schema.Succeed("target %s does not exist", table)
	}
	if _, err := s.DB.ExecContext(ctx, "DROP TABLE "+s.quoteIdent(table)); err != nil {
		return schema.FailErr(classify(err, "drop pipe"))
	}
	return schema.Succeed("dropped %s", table)
}
