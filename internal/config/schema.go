// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"strings"

	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSON schema for the `meerschaum` top-level key. Connector subtrees are
// free-form maps; only the shape of the key itself is pinned down.
const meerschaumSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "instance": { "type": "string", "pattern": "^[a-z0-9_]+:.+$" },
    "default_repository": { "type": "string" },
    "connectors": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": { "type": "object" }
      }
    }
  },
  "additionalProperties": true
}`

var compiledSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("meerschaum.schema.json", strings.NewReader(meerschaumSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("meerschaum.schema.json")
}()

func validateTree(t map[string]interface{}) error {
	sub, ok := t["meerschaum"]
	if !ok {
		return nil
	}
	if err := compiledSchema.Validate(sub); err != nil {
		return schema.NewError(schema.KindConfig, "validate config", err)
	}
	return nil
}
