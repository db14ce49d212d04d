// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the layered configuration tree: compiled defaults,
// the config directory (one JSON or YAML file per top-level key), the
// MRSM_CONFIG and MRSM_PATCH environment patches, and a per-invocation
// patch, in that order.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// Keys holds the engine options resolved out of the tree.
var Keys ProgramConfig = defaultProgramConfig

type ProgramConfig struct {
	InstanceKeys      string `json:"instance"`
	RepositoryKeys    string `json:"default_repository"`
	TagNegationPrefix string `json:"tag_negation_prefix"`
	MaxIdentifier     int    `json:"max_identifier_length"`
	BacktrackMinutes  int    `json:"backtrack_minutes"`
	ChunkMinutes      int    `json:"chunk_minutes"`
	MaxRetries        int    `json:"max_retries"`
	RetryCapSeconds   int    `json:"retry_cap_seconds"`
	Workers           int    `json:"workers"`
	PoolSize          int    `json:"pool_size"`
	NoAsk             bool   `json:"noask"`
}

var defaultProgramConfig = ProgramConfig{
	InstanceKeys:      "sql:main",
	RepositoryKeys:    "api:mrsm",
	TagNegationPrefix: "_",
	MaxIdentifier:     64,
	BacktrackMinutes:  1440,
	ChunkMinutes:      1440,
	MaxRetries:        3,
	RetryCapSeconds:   60,
	Workers:           0,
	PoolSize:          8,
}

var (
	mu      sync.RWMutex
	tree    map[string]interface{}
	rawTree map[string]interface{}
)

// Defaults is the compiled base layer of the tree.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"meerschaum": map[string]interface{}{
			"instance":           "sql:main",
			"default_repository": "api:mrsm",
			"connectors": map[string]interface{}{
				"sql": map[string]interface{}{
					"default": map[string]interface{}{
						"flavor": "sqlite",
					},
					"main": map[string]interface{}{
						"flavor":   "sqlite",
						"database": filepath.Join(RootDir(), "sqlite", "mrsm.db"),
					},
					"local": map[string]interface{}{
						"flavor":   "sqlite",
						"database": filepath.Join(RootDir(), "sqlite", "mrsm_local.db"),
					},
				},
				"api": map[string]interface{}{
					"default": map[string]interface{}{
						"port":     8000,
						"protocol": "https",
					},
				},
			},
		},
		"system": map[string]interface{}{
			"connectors": map[string]interface{}{
				"sql": map[string]interface{}{
					"pool_size":    8,
					"max_retries":  3,
					"retry_cap":    60,
					"chunk_minutes": 1440,
				},
			},
			"experimental": map[string]interface{}{},
		},
		"pipes": map[string]interface{}{
			"parameters": map[string]interface{}{
				"columns": map[string]interface{}{},
			},
			"max_identifier_length": 64,
			"backtrack_minutes":     1440,
			"tag_negation_prefix":   "_",
		},
		"permissions": map[string]interface{}{
			"chaining": map[string]interface{}{
				"insecure_parent_instance": false,
			},
		},
		"jobs": map[string]interface{}{
			"timeout_seconds": 0,
			"min_seconds":     1,
		},
	}
}

// Init loads the tree from dir (a missing dir contributes nothing and is
// not created), applies the environment patches, resolves substitutions,
// validates, and fills Keys.
func Init(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	t := Defaults()
	if dir == "" {
		dir = ConfigDir()
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return schema.NewError(schema.KindConfig, "read config dir", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, sub, err := readConfigFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if key == "" {
			continue
		}
		if cur, ok := t[key].(map[string]interface{}); ok {
			if subMap, ok := sub.(map[string]interface{}); ok {
				t[key] = deepMerge(cur, subMap)
				continue
			}
		}
		t[key] = sub
	}

	for _, env := range []string{"MRSM_CONFIG", "MRSM_PATCH"} {
		if raw := os.Getenv(env); raw != "" {
			var patch map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &patch); err != nil {
				return schema.Errorf(schema.KindConfig, "parse "+env, "invalid JSON: %v", err)
			}
			t = deepMerge(t, patch)
		}
	}

	rawTree = t
	resolved := deepCopyMap(t)
	resolveSubstitutions(resolved)

	if err := validateTree(resolved); err != nil {
		return err
	}

	tree = resolved
	fillKeys(resolved)
	log.Debugf("Loaded configuration from %s", dir)
	return nil
}

func readConfigFile(path string) (string, interface{}, error) {
	ext := strings.ToLower(filepath.Ext(path))
	key := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, schema.NewError(schema.KindConfig, "read config file", err)
	}
	var sub interface{}
	switch ext {
	case ".json":
		err = json.Unmarshal(raw, &sub)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &sub)
	default:
		return "", nil, nil
	}
	if err != nil {
		return "", nil, schema.Errorf(schema.KindConfig, "parse config file", "%s: %v", path, err)
	}
	return key, sub, nil
}

// Patch merges patch on top of the loaded tree (per-invocation layer).
func Patch(patch map[string]interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if tree == nil {
		tree = Defaults()
	}
	if rawTree == nil {
		rawTree = Defaults()
	}
	rawTree = deepMerge(rawTree, patch)
	tree = deepMerge(tree, patch)
	fillKeys(tree)
}

// Get walks the tree by path segments.
func Get(path ...string) (interface{}, bool) {
	mu.RLock()
	defer mu.RUnlock()
	var cur interface{} = tree
	if cur == nil {
		cur = Defaults()
	}
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString returns the string at path, or def.
func GetString(def string, path ...string) string {
	v, ok := Get(path...)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// GetBool returns the bool at path, or def.
func GetBool(def bool, path ...string) bool {
	v, ok := Get(path...)
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// GetInt returns the integer at path, or def. JSON numbers arrive as
// float64 and are truncated.
func GetInt(def int, path ...string) int {
	v, ok := Get(path...)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func fillKeys(t map[string]interface{}) {
	k := defaultProgramConfig
	k.InstanceKeys = stringAt(t, k.InstanceKeys, "meerschaum", "instance")
	k.RepositoryKeys = stringAt(t, k.RepositoryKeys, "meerschaum", "default_repository")
	k.TagNegationPrefix = stringAt(t, k.TagNegationPrefix, "pipes", "tag_negation_prefix")
	k.MaxIdentifier = intAt(t, k.MaxIdentifier, "pipes", "max_identifier_length")
	k.BacktrackMinutes = intAt(t, k.BacktrackMinutes, "pipes", "backtrack_minutes")
	k.ChunkMinutes = intAt(t, k.ChunkMinutes, "system", "connectors", "sql", "chunk_minutes")
	k.MaxRetries = intAt(t, k.MaxRetries, "system", "connectors", "sql", "max_retries")
	k.RetryCapSeconds = intAt(t, k.RetryCapSeconds, "system", "connectors", "sql", "retry_cap")
	k.PoolSize = intAt(t, k.PoolSize, "system", "connectors", "sql", "pool_size")
	k.NoAsk = os.Getenv("MRSM_NOASK") != ""
	Keys = k
}

func stringAt(t map[string]interface{}, def string, path ...string) string {
	cur := walk(t, path)
	if s, ok := cur.(string); ok {
		return s
	}
	return def
}

func intAt(t map[string]interface{}, def int, path ...string) int {
	switch n := walk(t, path).(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func walk(t map[string]interface{}, path []string) interface{} {
	var cur interface{} = t
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

func deepMerge(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if sub, ok := v.(map[string]interface{}); ok {
			if cur, ok := out[k].(map[string]interface{}); ok {
				out[k] = deepMerge(cur, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}
