// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"strings"
)

// Parameters is the free-form mapping persisted with a pipe. The engine
// reads the recognised keys below; everything else passes through.
type Parameters map[string]interface{}

// Column roles the engine understands.
const (
	RoleDatetime = "datetime"
	RoleID       = "id"
	RolePrimary  = "primary"
	RoleValue    = "value"
)

func (p Parameters) subMap(key string) map[string]interface{} {
	if p == nil {
		return nil
	}
	m, _ := p[key].(map[string]interface{})
	return m
}

func (p Parameters) boolOr(key string, def bool) bool {
	if p == nil {
		return def
	}
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
	}
	return def
}

// Columns returns the role → column-name mapping.
func (p Parameters) Columns() map[string]string {
	out := map[string]string{}
	for role, v := range p.subMap("columns") {
		if name, ok := v.(string); ok && name != "" {
			out[role] = name
		}
	}
	return out
}

// DatetimeColumn returns the ordering axis column name, or "".
func (p Parameters) DatetimeColumn() string {
	return p.Columns()[RoleDatetime]
}

// Indices returns the index name → column list mapping. The legacy
// spelling "indexes" is accepted and merged, with "indices" winning.
func (p Parameters) Indices() map[string][]string {
	out := map[string][]string{}
	for _, key := range []string{"indexes", "indices"} {
		for name, v := range p.subMap(key) {
			switch cols := v.(type) {
			case string:
				out[name] = []string{cols}
			case []string:
				out[name] = append([]string(nil), cols...)
			case []interface{}:
				var names []string
				for _, c := range cols {
					if s, ok := c.(string); ok {
						names = append(names, s)
					}
				}
				out[name] = names
			}
		}
	}
	return out
}

// Dtypes returns the declared column → dtype-string mapping.
func (p Parameters) Dtypes() map[string]string {
	out := map[string]string{}
	for col, v := range p.subMap("dtypes") {
		if s, ok := v.(string); ok {
			out[col] = s
		}
	}
	return out
}

// Tags returns the pipe's tags in declaration order.
func (p Parameters) Tags() []string {
	if p == nil {
		return nil
	}
	raw, _ := p["tags"].([]interface{})
	var tags []string
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	if tags == nil {
		if strs, ok := p["tags"].([]string); ok {
			tags = append(tags, strs...)
		}
	}
	return tags
}

// Target returns the configured physical table name, or "".
func (p Parameters) Target() string {
	if p == nil {
		return ""
	}
	s, _ := p["target"].(string)
	return s
}

// Fetch returns the connector-specific fetch configuration.
func (p Parameters) Fetch() map[string]interface{} {
	return p.subMap("fetch")
}

func (p Parameters) Static() bool      { return p.boolOr("static", false) }
func (p Parameters) Upsert() bool      { return p.boolOr("upsert", false) }
func (p Parameters) Enforce() bool     { return p.boolOr("enforce", true) }
func (p Parameters) NullIndices() bool { return p.boolOr("null_indices", true) }

// UniqueColumns resolves the effective unique constraint:
// indices.primary if present, else datetime ∪ id ∪ primary from the
// column roles, else none (append-only).
func (p Parameters) UniqueColumns() []string {
	if primary, ok := p.Indices()["primary"]; ok && len(primary) > 0 {
		return primary
	}
	cols := p.Columns()
	var unique []string
	seen := map[string]bool{}
	for _, role := range []string{RoleDatetime, RoleID, RolePrimary} {
		if name := cols[role]; name != "" && !seen[name] {
			unique = append(unique, name)
			seen[name] = true
		}
	}
	return unique
}

// IndexColumns merges the column roles and declared indices into the full
// set of index name → columns to maintain on the target.
func (p Parameters) IndexColumns() map[string][]string {
	out := map[string][]string{}
	for role, name := range p.Columns() {
		if role == RoleValue || name == "" {
			continue
		}
		out[role] = []string{name}
	}
	for name, cols := range p.Indices() {
		if len(cols) > 0 {
			out[name] = cols
		}
	}
	return out
}

// ValidateTags rejects tags carrying the configured negation prefix.
func (p Parameters) ValidateTags(negationPrefix string) error {
	if negationPrefix == "" {
		return nil
	}
	for _, tag := range p.Tags() {
		if strings.HasPrefix(tag, negationPrefix) {
			return Errorf(KindConfig, "validate tags",
				"tag %q must not begin with the negation prefix %q", tag, negationPrefix)
		}
	}
	return nil
}
