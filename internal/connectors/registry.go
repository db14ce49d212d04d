// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package connectors

import (
	"fmt"
	"sync"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// Factory builds a connector of one type from its resolved attributes.
type Factory func(typ, label string, attributes map[string]interface{}) (Connector, error)

// Registry memoises connector construction per (type, label). Types are
// registered explicitly at startup; there is no import-side registration.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	cache     map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{},
		cache:     map[string]Connector{},
	}
}

// RegisterType installs the factory for a connector type. Re-registering
// a type replaces the factory; cached handles survive.
func (r *Registry) RegisterType(typ string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typ]; ok {
		log.Debugf("Replacing connector factory for type %q", typ)
	}
	r.factories[typ] = factory
}

// Get resolves type:label to a connector handle, constructing it at most
// once. Attributes come from the config tree with the type's `default`
// subtree merged underneath, else from MRSM_<TYPE>_<LABEL>.
func (r *Registry) Get(typ, label string) (Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := typ + ":" + label
	if conn, ok := r.cache[key]; ok {
		return conn, nil
	}

	factory, ok := r.factories[typ]
	if !ok {
		return nil, schema.Errorf(schema.KindConfig, "get connector",
			"unknown connector type %q", typ)
	}

	attributes, err := resolveAttributes(typ, label)
	if err != nil {
		return nil, err
	}

	conn, err := factory(typ, label, attributes)
	if err != nil {
		return nil, schema.NewError(schema.KindConnector,
			fmt.Sprintf("build connector %s", key), err)
	}
	r.cache[key] = conn
	return conn, nil
}

// GetFromKeys is Get over a packed type:label string.
func (r *Registry) GetFromKeys(keys string) (Connector, error) {
	typ, label, err := ParseConnectorKeys(keys)
	if err != nil {
		return nil, err
	}
	return r.Get(typ, label)
}

// Types lists the registered connector types.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for typ := range r.factories {
		out = append(out, typ)
	}
	return out
}

// resolveAttributes merges the per-label config subtree over the type's
// default subtree; absent both, the environment is consulted.
func resolveAttributes(typ, label string) (map[string]interface{}, error) {
	defaults, _ := config.Get("meerschaum", "connectors", typ, "default")
	labelled, hasLabel := config.Get("meerschaum", "connectors", typ, label)

	attributes := map[string]interface{}{}
	if m, ok := defaults.(map[string]interface{}); ok {
		for k, v := range m {
			attributes[k] = v
		}
	}
	if m, ok := labelled.(map[string]interface{}); ok {
		for k, v := range m {
			attributes[k] = v
		}
	} else if hasLabel {
		return nil, schema.Errorf(schema.KindConfig, "resolve connector",
			"config for %s:%s is not a mapping", typ, label)
	}

	if !hasLabel && label != "default" {
		env, ok := envConnectorAttributes(typ, label)
		if !ok && len(attributes) == 0 {
			return nil, schema.Errorf(schema.KindConfig, "resolve connector",
				"no configuration for connector %s:%s", typ, label)
		}
		for k, v := range env {
			attributes[k] = v
		}
	}
	return attributes, nil
}
