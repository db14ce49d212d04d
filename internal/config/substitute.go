// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"fmt"
	"regexp"
	"strings"
)

// MRSM{a:b:c} references another node of the tree; the value is spliced
// in as a string. MRSM{!a:b:c} inserts the raw value without quoting
// transformations, replacing the whole cell when it is the entire value.
var substitutionPattern = regexp.MustCompile(`MRSM\{(!?)([^}]*)\}`)

// resolveSubstitutions rewrites every string leaf of the tree in place.
// References are resolved against the same tree, after file and env
// layering, so patches can redirect a symlinked value. The `_symlinks`
// subtree is left untouched so references round-trip through edit→save.
func resolveSubstitutions(t map[string]interface{}) {
	for key, v := range t {
		if key == "_symlinks" {
			continue
		}
		t[key] = resolveValue(t, v, 0)
	}
}

const maxSubstitutionDepth = 8

func resolveValue(root map[string]interface{}, v interface{}, depth int) interface{} {
	if depth > maxSubstitutionDepth {
		return v
	}
	switch val := v.(type) {
	case map[string]interface{}:
		for k, sub := range val {
			if k == "_symlinks" {
				continue
			}
			val[k] = resolveValue(root, sub, depth+1)
		}
		return val
	case []interface{}:
		for i, sub := range val {
			val[i] = resolveValue(root, sub, depth+1)
		}
		return val
	case string:
		return resolveString(root, val, depth)
	}
	return v
}

func resolveString(root map[string]interface{}, s string, depth int) interface{} {
	match := substitutionPattern.FindStringSubmatchIndex(s)
	if match == nil {
		return s
	}

	// A literal reference spanning the whole value replaces the cell.
	full := substitutionPattern.FindStringSubmatch(s)
	if full[1] == "!" && s == full[0] {
		target := lookupRef(root, full[2])
		if target == nil {
			return s
		}
		return resolveValue(root, target, depth+1)
	}

	out := substitutionPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := substitutionPattern.FindStringSubmatch(m)
		target := lookupRef(root, groups[2])
		if target == nil {
			return m
		}
		resolved := resolveValue(root, target, depth+1)
		return fmt.Sprint(resolved)
	})
	return out
}

func lookupRef(root map[string]interface{}, ref string) interface{} {
	var cur interface{} = root
	for _, seg := range strings.Split(ref, ":") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[strings.TrimSpace(seg)]
		if !ok {
			return nil
		}
	}
	return cur
}
