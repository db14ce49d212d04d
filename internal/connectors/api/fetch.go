// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// Fetch pulls rows from a remote pipe. The fetch configuration may name
// a different remote triple (connector, metric, location); absent that,
// the pipe's own keys are read remotely.
func (c *Client) Fetch(ctx context.Context, pipe *schema.Pipe, opts connectors.FetchOptions,
) (connectors.Batches, error) {
	remote := pipe
	fetchCfg := pipe.Parameters().Fetch()
	if connector, ok := fetchCfg["connector"].(string); ok && connector != "" {
		metric, _ := fetchCfg["metric"].(string)
		location, _ := fetchCfg["location"].(string)
		if metric == "" {
			metric = pipe.Metric
		}
		remote = schema.NewPipe(connector, metric, location, pipe.Instance)
	}

	query := url.Values{}
	axisQuery(query, "begin", opts.Begin)
	axisQuery(query, "end", opts.End)
	paramsQuery(query, opts.Params)

	var wire *frameWire
	if err := c.do(ctx, http.MethodGet, c.pipePath(remote, "/data"), query, nil, &wire); err != nil {
		return nil, err
	}
	return connectors.NewFrameBatches(wire.frame()), nil
}
