// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dtypes

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/shopspring/decimal"
)

// Enforce coerces every declared column of frame to its dtype, in place.
// Null cells pass untouched. A failed coercion returns a schema error
// identifying the column and row index.
func Enforce(frame *schema.Frame, declared map[string]Dtype) error {
	if frame == nil {
		return nil
	}
	for col, dt := range declared {
		if !frame.HasColumn(col) {
			continue
		}
		for i, row := range frame.Rows {
			v, present := row[col]
			if !present || v == nil {
				continue
			}
			coerced, err := Coerce(v, dt)
			if err != nil {
				return schema.NewCoercionError(col, i, v, dt.String())
			}
			row[col] = coerced
		}
	}
	return nil
}

// Coerce converts a single value to the declared dtype.
func Coerce(v interface{}, dt Dtype) (interface{}, error) {
	switch dt.Base {
	case Int:
		return coerceInt(v)
	case Float:
		return coerceFloat(v)
	case Bool:
		return coerceBool(v)
	case Str:
		return coerceString(v)
	case Bytes:
		return coerceBytes(v)
	case UUID:
		return coerceUUID(v)
	case Numeric:
		return coerceNumeric(v, dt)
	case JSON:
		return coerceJSON(v)
	case Datetime:
		t, aware, err := ParseDatetime(v)
		if err != nil {
			return nil, err
		}
		return NormalizeTime(t, aware, dt)
	case Object:
		return v, nil
	}
	return nil, errUncoercible
}

var errUncoercible = strconv.ErrSyntax

func coerceInt(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float32:
		return intFromFloat(float64(n))
	case float64:
		return intFromFloat(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return nil, err
		}
		return parsed, nil
	case decimal.Decimal:
		if !n.IsInteger() {
			return nil, errUncoercible
		}
		return n.IntPart(), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, err
		}
		return parsed, nil
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, errUncoercible
}

func intFromFloat(f float64) (interface{}, error) {
	if f != math.Trunc(f) {
		return nil, errUncoercible
	}
	return int64(f), nil
}

func coerceFloat(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return parsed, nil
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, err
		}
		return parsed, nil
	}
	return nil, errUncoercible
}

// coerceBool accepts the conservative set only: native bools, 0/1, and
// the four true/false spellings. Other truthy strings are rejected.
func coerceBool(v interface{}) (interface{}, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int:
		return boolFromInt(int64(b))
	case int64:
		return boolFromInt(b)
	case float64:
		if b != math.Trunc(b) {
			return nil, errUncoercible
		}
		return boolFromInt(int64(b))
	case string:
		switch b {
		case "true", "True", "1":
			return true, nil
		case "false", "False", "0":
			return false, nil
		}
	}
	return nil, errUncoercible
}

func boolFromInt(n int64) (interface{}, error) {
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return nil, errUncoercible
}

func coerceString(v interface{}) (interface{}, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case bool:
		return strconv.FormatBool(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case int:
		return strconv.Itoa(s), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case uuid.UUID:
		return s.String(), nil
	case decimal.Decimal:
		return s.String(), nil
	}
	return nil, errUncoercible
}

func coerceBytes(v interface{}) (interface{}, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, err
		}
		return decoded, nil
	}
	return nil, errUncoercible
}

func coerceUUID(v interface{}) (interface{}, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, nil
	case string:
		if len(u) != 36 {
			return nil, errUncoercible
		}
		parsed, err := uuid.Parse(u)
		if err != nil {
			return nil, err
		}
		return parsed, nil
	case []byte:
		parsed, err := uuid.FromBytes(u)
		if err != nil {
			return nil, err
		}
		return parsed, nil
	}
	return nil, errUncoercible
}

func coerceNumeric(v interface{}, dt Dtype) (interface{}, error) {
	var d decimal.Decimal
	switch n := v.(type) {
	case decimal.Decimal:
		d = n
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case float64:
		d = decimal.NewFromFloat(n)
	case float32:
		d = decimal.NewFromFloat32(n)
	case json.Number:
		parsed, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil, err
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return nil, err
		}
		d = parsed
	default:
		return nil, errUncoercible
	}
	if dt.Scale > 0 || dt.Precision > 0 {
		d = d.Round(int32(dt.Scale))
	}
	return d, nil
}

func coerceJSON(v interface{}) (interface{}, error) {
	switch j := v.(type) {
	case map[string]interface{}, []interface{}:
		return j, nil
	case string:
		var decoded interface{}
		if err := json.Unmarshal([]byte(j), &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	case []byte:
		var decoded interface{}
		if err := json.Unmarshal(j, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}
	// Scalars are valid JSON documents.
	if _, err := json.Marshal(v); err != nil {
		return nil, err
	}
	return v, nil
}
