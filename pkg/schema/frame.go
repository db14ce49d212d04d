// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"sort"
	"time"
)

// Row is one record keyed by column name. Missing keys read as null.
type Row map[string]interface{}

// Frame is an ordered batch of rows sharing a column set. Column order is
// stable so generated SQL and serialised output are deterministic.
type Frame struct {
	Columns []string
	Rows    []Row
}

func NewFrame(columns ...string) *Frame {
	return &Frame{Columns: columns}
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

func (f *Frame) HasColumn(col string) bool {
	for _, c := range f.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// AddColumn registers a column if unknown. Existing rows read null for it.
func (f *Frame) AddColumn(col string) {
	if !f.HasColumn(col) {
		f.Columns = append(f.Columns, col)
	}
}

// Append adds a row, registering any columns not yet known to the frame.
func (f *Frame) Append(row Row) {
	keys := make([]string, 0, len(row))
	for k := range row {
		if !f.HasColumn(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	f.Columns = append(f.Columns, keys...)
	f.Rows = append(f.Rows, row)
}

// Concat appends all rows of other, merging column sets.
func (f *Frame) Concat(other *Frame) {
	if other == nil {
		return
	}
	for _, c := range other.Columns {
		f.AddColumn(c)
	}
	f.Rows = append(f.Rows, other.Rows...)
}

// Project returns a shallow copy restricted to cols (unknown cols skipped).
func (f *Frame) Project(cols []string) *Frame {
	out := &Frame{}
	for _, c := range cols {
		if f.HasColumn(c) {
			out.Columns = append(out.Columns, c)
		}
	}
	out.Rows = make([]Row, 0, len(f.Rows))
	for _, row := range f.Rows {
		proj := make(Row, len(out.Columns))
		for _, c := range out.Columns {
			if v, ok := row[c]; ok {
				proj[c] = v
			}
		}
		out.Rows = append(out.Rows, proj)
	}
	return out
}

// Copy returns a deep-enough copy: fresh row maps, shared cell values.
func (f *Frame) Copy() *Frame {
	out := &Frame{Columns: append([]string(nil), f.Columns...)}
	out.Rows = make([]Row, len(f.Rows))
	for i, row := range f.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// MinMax scans column col and returns its extreme values. Supports
// time.Time and integer axes; ok is false when no non-null value exists.
func (f *Frame) MinMax(col string) (min, max interface{}, ok bool) {
	for _, row := range f.Rows {
		v, present := row[col]
		if !present || v == nil {
			continue
		}
		if !ok {
			min, max, ok = v, v, true
			continue
		}
		if lessAxis(v, min) {
			min = v
		}
		if lessAxis(max, v) {
			max = v
		}
	}
	return min, max, ok
}

func lessAxis(a, b interface{}) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Before(bt)
	}
	ai, aok := toInt64(a)
	bi, bok := toInt64(b)
	if aok && bok {
		return ai < bi
	}
	return false
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
