// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/shopspring/decimal"

	"github.com/meerschaum/mrsm/pkg/schema"
)

// NullSentinel is the textual null marker some backends round-trip in
// place of a true null; it compares equal to nil.
const NullSentinel = "\\N"

func isNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == NullSentinel {
		return true
	}
	return false
}

// JoinKey renders the U-projection of a row as a canonical string.
// ok is false when any key cell is null.
func JoinKey(row schema.Row, unique []string, declared map[string]dtypes.Dtype) (string, bool) {
	var b strings.Builder
	complete := true
	for i, col := range unique {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		v, present := row[col]
		if !present || isNull(v) {
			complete = false
			b.WriteString("\x00")
			continue
		}
		b.WriteString(canonical(v, declared[col]))
	}
	return b.String(), complete
}

// canonical renders one cell deterministically for key building.
func canonical(v interface{}, dt dtypes.Dtype) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		if dt.Base == dtypes.Numeric && (dt.Scale > 0 || dt.Precision > 0) {
			return val.Round(int32(dt.Scale)).String()
		}
		return val.String()
	case uuid.UUID:
		return val.String()
	case []byte:
		return string(val)
	case float64:
		return decimal.NewFromFloat(val).String()
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	}
	return fmt.Sprint(v)
}

// ValuesEqual compares two cells under the declared dtype.
func ValuesEqual(a, b interface{}, dt dtypes.Dtype) bool {
	aNull, bNull := isNull(a), isNull(b)
	if aNull || bNull {
		return aNull == bNull
	}

	switch dt.Base {
	case dtypes.Numeric:
		da, aok := toDecimal(a)
		db, bok := toDecimal(b)
		if aok && bok {
			if dt.Scale > 0 || dt.Precision > 0 {
				return da.Round(int32(dt.Scale)).Equal(db.Round(int32(dt.Scale)))
			}
			return da.Equal(db)
		}
	case dtypes.JSON:
		ja, aerr := json.Marshal(a)
		jb, berr := json.Marshal(b)
		if aerr == nil && berr == nil {
			return string(ja) == string(jb)
		}
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	if da, ok := toDecimal(a); ok {
		if db, ok := toDecimal(b); ok {
			return da.Equal(db)
		}
	}
	if ba, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return string(ba) == string(bb)
		}
	}
	return canonical(a, dt) == canonical(b, dt)
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	}
	return decimal.Decimal{}, false
}
