// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package memstore

import (
	"context"
	"sort"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// ListPipes enumerates registered pipes matching the key filters.
func (s *Store) ListPipes(ctx context.Context, filter connectors.PipeFilter) ([]*schema.Pipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepts := func(wanted []string, value string) bool {
		if len(wanted) == 0 {
			return true
		}
		for _, w := range wanted {
			if w == value {
				return true
			}
		}
		return false
	}

	var pipes []*schema.Pipe
	for key, rec := range s.pipes {
		connector, metric, location := splitPipeKey(key)
		if !accepts(filter.ConnectorKeys, connector) ||
			!accepts(filter.MetricKeys, metric) {
			continue
		}
		if len(filter.LocationKeys) > 0 {
			matched := false
			for _, loc := range filter.LocationKeys {
				if schema.NormalizeLocation(loc) == location {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		pipe := schema.NewPipe(connector, metric, location, s.Keys())
		pipe.ID = rec.id
		pipe.SetParameters(copyParams(rec.parameters))
		if !connectors.MatchTags(pipe.Parameters().Tags(), filter.Tags, config.Keys.TagNegationPrefix) {
			continue
		}
		pipes = append(pipes, pipe)
	}
	sort.Slice(pipes, func(i, j int) bool { return pipes[i].ID < pipes[j].ID })
	return pipes, nil
}
