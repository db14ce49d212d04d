// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dtypes implements the engine's logical type system: a closed set
// of dtype strings, inference over observed values, and coercion of row
// batches to declared dtypes.
package dtypes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meerschaum/mrsm/pkg/schema"
)

// Base is the family of a logical dtype.
type Base string

const (
	Int      Base = "int"
	Float    Base = "float"
	Bool     Base = "bool"
	Str      Base = "str"
	Bytes    Base = "bytes"
	UUID     Base = "uuid"
	Numeric  Base = "numeric"
	JSON     Base = "json"
	Datetime Base = "datetime"
	Object   Base = "object"
)

// Dtype is a parsed logical dtype. Precision/Scale apply to numeric;
// TZ applies to datetime ("" = naive, "UTC", or an IANA zone name).
type Dtype struct {
	Base      Base
	Precision int
	Scale     int
	TZ        string
}

var scalarBases = map[Base]bool{
	Int: true, Float: true, Bool: true, Str: true, Bytes: true,
	UUID: true, Numeric: true, JSON: true, Datetime: true, Object: true,
}

// Parse reads a dtype string from the closed set. Accepted forms:
// the bare bases, numeric(precision,scale), datetime[ns],
// datetime[ns, UTC], and datetime[ns, <zone>].
func Parse(s string) (Dtype, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "numeric"):
		rest := strings.TrimPrefix(s, "numeric")
		if rest == "" {
			return Dtype{Base: Numeric}, nil
		}
		if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
			return Dtype{}, fmt.Errorf("invalid numeric dtype %q", s)
		}
		parts := strings.Split(rest[1:len(rest)-1], ",")
		if len(parts) != 2 {
			return Dtype{}, fmt.Errorf("invalid numeric dtype %q", s)
		}
		precision, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return Dtype{}, fmt.Errorf("invalid numeric precision in %q", s)
		}
		scale, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return Dtype{}, fmt.Errorf("invalid numeric scale in %q", s)
		}
		return Dtype{Base: Numeric, Precision: precision, Scale: scale}, nil
	case strings.HasPrefix(s, "datetime"):
		rest := strings.TrimPrefix(s, "datetime")
		if rest == "" || rest == "[ns]" {
			return Dtype{Base: Datetime}, nil
		}
		if !strings.HasPrefix(rest, "[ns,") || !strings.HasSuffix(rest, "]") {
			return Dtype{}, fmt.Errorf("invalid datetime dtype %q", s)
		}
		zone := strings.TrimSpace(rest[4 : len(rest)-1])
		if zone == "" {
			return Dtype{}, fmt.Errorf("invalid datetime dtype %q", s)
		}
		return Dtype{Base: Datetime, TZ: zone}, nil
	}
	base := Base(s)
	if !scalarBases[base] || base == Numeric || base == Datetime {
		return Dtype{}, fmt.Errorf("unknown dtype %q", s)
	}
	return Dtype{Base: base}, nil
}

// MustParse is Parse for compile-time-constant dtype strings.
func MustParse(s string) Dtype {
	dt, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return dt
}

func (dt Dtype) String() string {
	switch dt.Base {
	case Numeric:
		if dt.Precision != 0 || dt.Scale != 0 {
			return fmt.Sprintf("numeric(%d,%d)", dt.Precision, dt.Scale)
		}
		return "numeric"
	case Datetime:
		if dt.TZ != "" {
			return fmt.Sprintf("datetime[ns, %s]", dt.TZ)
		}
		return "datetime[ns]"
	}
	return string(dt.Base)
}

// Aware reports whether a datetime dtype carries a timezone.
func (dt Dtype) Aware() bool {
	return dt.Base == Datetime && dt.TZ != ""
}

// ParseMap parses a column → dtype-string map, failing with a schema
// error on the first string outside the closed set.
func ParseMap(declared map[string]string) (map[string]Dtype, error) {
	out := make(map[string]Dtype, len(declared))
	for col, s := range declared {
		dt, err := Parse(s)
		if err != nil {
			return nil, schema.NewError(schema.KindSchema, "parse dtypes", err)
		}
		out[col] = dt
	}
	return out, nil
}
