// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package filter implements the filter-existing engine: partitioning a
// candidate batch against the rows already on the instance into unseen
// rows, in-place updates, and their union.
package filter

import (
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// Result partitions a candidate batch.
type Result struct {
	Unseen *schema.Frame
	Update *schema.Frame
	Delta  *schema.Frame
}

// Existing partitions candidate D against existing rows E on the unique
// columns U. Both frames must already be dtype-enforced so comparisons
// are type-stable. With empty U no dedup is possible and the whole batch
// is unseen. When nullIndices is false, candidate rows with any null in
// their U projection are always treated as new.
func Existing(
	candidate, existing *schema.Frame,
	unique []string,
	declared map[string]dtypes.Dtype,
	nullIndices bool,
) Result {
	unseen := &schema.Frame{Columns: append([]string(nil), candidate.Columns...)}
	update := &schema.Frame{Columns: append([]string(nil), candidate.Columns...)}

	if len(unique) == 0 {
		delta := candidate.Copy()
		return Result{Unseen: delta, Update: update, Delta: delta}
	}

	index := make(map[string]schema.Row, existing.Len())
	if existing != nil {
		for _, row := range existing.Rows {
			key, ok := JoinKey(row, unique, declared)
			if !ok {
				continue
			}
			index[key] = row
		}
	}

	for _, row := range candidate.Rows {
		key, keyComplete := JoinKey(row, unique, declared)
		if !keyComplete && !nullIndices {
			unseen.Rows = append(unseen.Rows, row)
			continue
		}
		match, seen := index[key]
		if !keyComplete || !seen {
			unseen.Rows = append(unseen.Rows, row)
			continue
		}
		if changedOutsideKey(row, match, unique, declared) {
			update.Rows = append(update.Rows, row)
		}
	}

	delta := &schema.Frame{Columns: append([]string(nil), candidate.Columns...)}
	delta.Rows = append(delta.Rows, unseen.Rows...)
	delta.Rows = append(delta.Rows, update.Rows...)
	return Result{Unseen: unseen, Update: update, Delta: delta}
}

// changedOutsideKey reports whether any non-unique column present in the
// candidate row differs from the existing row. Null and the backend's
// null sentinel compare equal; numeric equality respects declared scale.
func changedOutsideKey(candidate, existing schema.Row, unique []string,
	declared map[string]dtypes.Dtype,
) bool {
	uniqueSet := make(map[string]bool, len(unique))
	for _, col := range unique {
		uniqueSet[col] = true
	}
	for col, v := range candidate {
		if uniqueSet[col] {
			continue
		}
		if !ValuesEqual(v, existing[col], declared[col]) {
			return true
		}
	}
	return false
}
