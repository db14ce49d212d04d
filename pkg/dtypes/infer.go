// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dtypes

import (
	"math"

	"github.com/google/uuid"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/shopspring/decimal"
)

// Infer determines the logical dtype of a column from its non-null
// values. The rules apply in order: datetime-like with uniform awareness,
// all Decimal, mixed int+float with a non-integer, any map or slice,
// all UUID, all bytes, then the scalar kinds, else object.
func Infer(values []interface{}) Dtype {
	var nonNull []interface{}
	for _, v := range values {
		if v != nil {
			nonNull = append(nonNull, v)
		}
	}
	if len(nonNull) == 0 {
		return Dtype{Base: Object}
	}

	if dt, ok := inferDatetime(nonNull); ok {
		return dt
	}

	allDecimal := true
	for _, v := range nonNull {
		if _, ok := v.(decimal.Decimal); !ok {
			allDecimal = false
			break
		}
	}
	if allDecimal {
		return Dtype{Base: Numeric}
	}

	if dt, ok := inferNumbers(nonNull); ok {
		return dt
	}

	for _, v := range nonNull {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return Dtype{Base: JSON}
		}
	}

	allUUID := true
	for _, v := range nonNull {
		switch val := v.(type) {
		case uuid.UUID:
		case string:
			if _, err := uuid.Parse(val); err != nil || len(val) != 36 {
				allUUID = false
			}
		default:
			allUUID = false
		}
		if !allUUID {
			break
		}
	}
	if allUUID {
		return Dtype{Base: UUID}
	}

	allBytes := true
	for _, v := range nonNull {
		if _, ok := v.([]byte); !ok {
			allBytes = false
			break
		}
	}
	if allBytes {
		return Dtype{Base: Bytes}
	}

	allBool := true
	for _, v := range nonNull {
		if _, ok := v.(bool); !ok {
			allBool = false
			break
		}
	}
	if allBool {
		return Dtype{Base: Bool}
	}

	allString := true
	for _, v := range nonNull {
		if _, ok := v.(string); !ok {
			allString = false
			break
		}
	}
	if allString {
		return Dtype{Base: Str}
	}

	return Dtype{Base: Object}
}

func inferDatetime(values []interface{}) (Dtype, bool) {
	anyAware := false
	awareness := map[bool]bool{}
	for _, v := range values {
		_, aware, err := ParseDatetime(v)
		if err != nil {
			return Dtype{}, false
		}
		awareness[aware] = true
		if aware {
			anyAware = true
		}
	}
	if len(awareness) > 1 {
		// Mixed awareness is not datetime-like; inference falls through.
		return Dtype{}, false
	}
	return DatetimeRegime(anyAware), true
}

func inferNumbers(values []interface{}) (Dtype, bool) {
	anyFloat, anyInt, anyNonInteger := false, false, false
	for _, v := range values {
		switch n := v.(type) {
		case int, int32, int64:
			anyInt = true
		case float32:
			anyFloat = true
			if float64(n) != math.Trunc(float64(n)) {
				anyNonInteger = true
			}
		case float64:
			anyFloat = true
			if n != math.Trunc(n) {
				anyNonInteger = true
			}
		default:
			return Dtype{}, false
		}
	}
	switch {
	case anyInt && anyFloat && anyNonInteger:
		return Dtype{Base: Numeric}, true
	case anyFloat:
		return Dtype{Base: Float}, true
	case anyInt:
		return Dtype{Base: Int}, true
	}
	return Dtype{}, false
}

// InferFrame infers dtypes for every frame column absent from declared.
func InferFrame(frame *schema.Frame, declared map[string]Dtype) map[string]Dtype {
	out := map[string]Dtype{}
	for _, col := range frame.Columns {
		if _, ok := declared[col]; ok {
			continue
		}
		values := make([]interface{}, 0, len(frame.Rows))
		for _, row := range frame.Rows {
			values = append(values, row[col])
		}
		out[col] = Infer(values)
	}
	return out
}
