// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package memstore

import (
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/meerschaum/mrsm/internal/filter"
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// predicate evaluates the params filter against one row.
type predicate func(row schema.Row) (bool, error)

// compileParams builds a row predicate from a params map. Each key names
// a column; the value is an accepted scalar, a list of accepted scalars,
// or a string with the `_` negation prefix. The reserved key "expr" holds
// an expression evaluated with the row as its environment.
func compileParams(params map[string]interface{}) (predicate, error) {
	if len(params) == 0 {
		return func(schema.Row) (bool, error) { return true, nil }, nil
	}

	var program *vm.Program
	if src, ok := params["expr"].(string); ok && src != "" {
		compiled, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, schema.NewError(schema.KindConfig, "compile params expression", err)
		}
		program = compiled
	}

	return func(row schema.Row) (bool, error) {
		for col, accepted := range params {
			if col == "expr" {
				continue
			}
			if !cellAccepted(row[col], accepted) {
				return false, nil
			}
		}
		if program != nil {
			out, err := expr.Run(program, map[string]interface{}(row))
			if err != nil {
				return false, schema.NewError(schema.KindConfig, "evaluate params expression", err)
			}
			match, _ := out.(bool)
			if !match {
				return false, nil
			}
		}
		return true, nil
	}, nil
}

func cellAccepted(v, accepted interface{}) bool {
	switch want := accepted.(type) {
	case []interface{}:
		negated := false
		for _, w := range want {
			if s, ok := w.(string); ok && strings.HasPrefix(s, "_") {
				negated = true
				if sameCell(v, strings.TrimPrefix(s, "_")) {
					return false
				}
			}
		}
		if negated {
			return true
		}
		for _, w := range want {
			if sameCell(v, w) {
				return true
			}
		}
		return false
	case string:
		if strings.HasPrefix(want, "_") {
			return !sameCell(v, strings.TrimPrefix(want, "_"))
		}
		return sameCell(v, want)
	}
	return sameCell(v, accepted)
}

func sameCell(a, b interface{}) bool {
	return filter.ValuesEqual(a, b, dtypes.Dtype{})
}

func rowKey(row schema.Row, unique []string, declared map[string]dtypes.Dtype) (string, bool) {
	return filter.JoinKey(row, unique, declared)
}

// withinBounds applies the half-open [begin, end) datetime bound used by
// every range read. A nil bound is unbounded; a null axis cell only
// matches unbounded reads.
func withinBounds(v, begin, end interface{}) bool {
	if begin == nil && end == nil {
		return true
	}
	if v == nil {
		return false
	}
	if begin != nil && axisLess(v, begin) {
		return false
	}
	if end != nil && !axisLess(v, end) {
		return false
	}
	return true
}

func axisLess(a, b interface{}) bool {
	at, aok := toTime(a)
	bt, bok := toTime(b)
	if aok && bok {
		return at.Before(bt)
	}
	ai, aok := toAxisInt(a)
	bi, bok := toAxisInt(b)
	if aok && bok {
		return ai < bi
	}
	return false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, _, err := dtypes.ParseDatetime(t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

func toAxisInt(v interface{}) (int64, bool) {
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
