// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package plugin exposes user-supplied sources through the connector
// contracts. Plugins are plain Go values registered at startup; a
// plugin-typed connector's label names the plugin providing its rows.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// FetchFunc produces one batch sequence for a pipe.
type FetchFunc func(ctx context.Context, pipe *schema.Pipe, opts connectors.FetchOptions) (connectors.Batches, error)

// RegisterFunc contributes default parameters at pipe bootstrap.
type RegisterFunc func(ctx context.Context, pipe *schema.Pipe) (schema.Parameters, error)

// Plugin is a named source implementation.
type Plugin struct {
	Name     string
	Fetch    FetchFunc
	Register RegisterFunc
}

// Registry holds the installed plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: map[string]Plugin{}}
}

// Add installs a plugin, replacing any previous one of the same name.
func (r *Registry) Add(p Plugin) error {
	if p.Name == "" || p.Fetch == nil {
		return schema.Errorf(schema.KindPlugin, "add plugin",
			"a plugin needs a name and a fetch function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name] = p
	return nil
}

func (r *Registry) get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Factory adapts the plugin registry to the connector registry.
func Factory(plugins *Registry) connectors.Factory {
	return func(typ, label string, attributes map[string]interface{}) (connectors.Connector, error) {
		p, ok := plugins.get(label)
		if !ok {
			return nil, fmt.Errorf("plugin %q is not installed", label)
		}
		return &pluginConnector{typ: typ, label: label, plugin: p}, nil
	}
}

type pluginConnector struct {
	typ    string
	label  string
	plugin Plugin
}

func (c *pluginConnector) Type() string  { return c.typ }
func (c *pluginConnector) Label() string { return c.label }
func (c *pluginConnector) Keys() string  { return c.typ + ":" + c.label }

func (c *pluginConnector) Fetch(ctx context.Context, pipe *schema.Pipe,
	opts connectors.FetchOptions,
) (connectors.Batches, error) {
	batches, err := c.plugin.Fetch(ctx, pipe, opts)
	if err != nil {
		return nil, schema.NewError(schema.KindPlugin, "fetch "+c.Keys(), err)
	}
	return batches, nil
}

func (c *pluginConnector) RegisterParams(ctx context.Context, pipe *schema.Pipe) (schema.Parameters, error) {
	if c.plugin.Register == nil {
		return nil, nil
	}
	params, err := c.plugin.Register(ctx, pipe)
	if err != nil {
		return nil, schema.NewError(schema.KindPlugin, "register "+c.Keys(), err)
	}
	return params, nil
}
