// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/meerschaum/mrsm/pkg/schema"
)

// Save writes the unresolved tree back to dir, one JSON file per
// top-level key. Because the raw layer is written, MRSM{...} references
// survive an edit→save round trip unresolved. No `_symlinks` key is
// written.
func Save(dir string) error {
	mu.RLock()
	raw := rawTree
	mu.RUnlock()
	if raw == nil {
		return schema.Errorf(schema.KindConfig, "save config", "configuration not initialised")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return schema.NewError(schema.KindConfig, "save config", err)
	}
	for key, sub := range raw {
		data, err := json.MarshalIndent(sub, "", "  ")
		if err != nil {
			return schema.NewError(schema.KindConfig, "save config", err)
		}
		path := filepath.Join(dir, key+".json")
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return schema.NewError(schema.KindConfig, "save config", err)
		}
	}
	return nil
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, sub := range val {
			out[i] = deepCopyValue(sub)
		}
		return out
	}
	return v
}
