// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Pipe is a named, addressable data stream. It is uniquely identified by
// the 4-tuple (connector, metric, location, instance); the location may be
// absent and is normalised to the empty string, never the string "None".
type Pipe struct {
	Connector string
	Metric    string
	Location  string
	Instance  string

	mu         sync.Mutex
	parameters Parameters

	// Surrogate id assigned by the instance on registration; 0 = unknown.
	ID int64
}

func NewPipe(connector, metric, location, instance string) *Pipe {
	return &Pipe{
		Connector:  connector,
		Metric:     metric,
		Location:   NormalizeLocation(location),
		Instance:   instance,
		parameters: Parameters{},
	}
}

// NormalizeLocation maps the textual null spellings to the empty string.
func NormalizeLocation(location string) string {
	switch strings.ToLower(location) {
	case "", "none", "null", "nil":
		return ""
	}
	return location
}

// KeysString renders the identity as connector_metric_location for
// messages and target derivation.
func (p *Pipe) KeysString() string {
	if p.Location == "" {
		return fmt.Sprintf("%s_%s", p.Connector, p.Metric)
	}
	return fmt.Sprintf("%s_%s_%s", p.Connector, p.Metric, p.Location)
}

func (p *Pipe) String() string {
	loc := p.Location
	if loc == "" {
		loc = "None"
	}
	return fmt.Sprintf("Pipe('%s', '%s', '%s')", p.Connector, p.Metric, loc)
}

// Parameters returns the live parameters map. Mutations must go through
// the Set* methods so they are serialised per pipe.
func (p *Pipe) Parameters() Parameters {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parameters == nil {
		p.parameters = Parameters{}
	}
	return p.parameters
}

// SetParameters replaces the whole parameter map.
func (p *Pipe) SetParameters(params Parameters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if params == nil {
		params = Parameters{}
	}
	p.parameters = params
}

// PatchParameters deep-merges patch into the current parameters.
func (p *Pipe) PatchParameters(patch Parameters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parameters == nil {
		p.parameters = Parameters{}
	}
	p.parameters = mergeMaps(p.parameters, patch)
}

// SetDtype records an inferred dtype for a column. Sync calls this while
// workers run concurrently, hence the pipe lock.
func (p *Pipe) SetDtype(column, dtype string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parameters == nil {
		p.parameters = Parameters{}
	}
	dtypes, _ := p.parameters["dtypes"].(map[string]interface{})
	if dtypes == nil {
		dtypes = map[string]interface{}{}
	}
	dtypes[column] = dtype
	p.parameters["dtypes"] = dtypes
}

func mergeMaps(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if sub, ok := v.(map[string]interface{}); ok {
			if cur, ok := out[k].(map[string]interface{}); ok {
				out[k] = mergeMaps(cur, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

type pipeWire struct {
	Connector string  `json:"connector"`
	Metric    string  `json:"metric"`
	Location  *string `json:"location,omitempty"`
	Instance  string  `json:"instance"`
}

func (p *Pipe) MarshalJSON() ([]byte, error) {
	w := pipeWire{Connector: p.Connector, Metric: p.Metric, Instance: p.Instance}
	if p.Location != "" {
		w.Location = &p.Location
	}
	return json.Marshal(w)
}

func (p *Pipe) UnmarshalJSON(data []byte) error {
	var w pipeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Connector = w.Connector
	p.Metric = w.Metric
	if w.Location != nil {
		p.Location = NormalizeLocation(*w.Location)
	} else {
		p.Location = ""
	}
	p.Instance = w.Instance
	return nil
}
