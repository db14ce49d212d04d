// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// The client satisfies the full instance contract by delegation to the
// remote instance's pipe endpoints.

func (c *Client) RegisterPipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	return c.doTuple(ctx, http.MethodPost, c.pipePath(pipe, "/register"), nil,
		map[string]interface{}{"parameters": pipe.Parameters()})
}

func (c *Client) EditPipe(ctx context.Context, pipe *schema.Pipe, patch bool) schema.SuccessTuple {
	query := url.Values{"patch": []string{strconv.FormatBool(patch)}}
	return c.doTuple(ctx, http.MethodPatch, c.pipePath(pipe, "/edit"), query,
		map[string]interface{}{"parameters": pipe.Parameters()})
}

func (c *Client) DeletePipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	return c.doTuple(ctx, http.MethodDelete, c.pipePath(pipe, ""), nil, nil)
}

func (c *Client) GetPipeID(ctx context.Context, pipe *schema.Pipe) (int64, error) {
	var id *int64
	if err := c.do(ctx, http.MethodGet, c.pipePath(pipe, "/id"), nil, nil, &id); err != nil {
		return 0, err
	}
	if id == nil {
		return 0, nil
	}
	return *id, nil
}

func (c *Client) GetPipeAttributes(ctx context.Context, pipe *schema.Pipe) (schema.Parameters, error) {
	var params schema.Parameters
	if err := c.do(ctx, http.MethodGet, c.pipePath(pipe, "/attributes"), nil, nil, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func (c *Client) GetSyncTime(ctx context.Context, pipe *schema.Pipe, newest, roundDown bool,
	params map[string]interface{},
) (interface{}, error) {
	query := url.Values{
		"newest":     []string{strconv.FormatBool(newest)},
		"round_down": []string{strconv.FormatBool(roundDown)},
	}
	paramsQuery(query, params)

	var raw interface{}
	if err := c.do(ctx, http.MethodGet, c.pipePath(pipe, "/sync_time"), query, nil, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok {
		if t, _, err := dtypes.ParseDatetime(s); err == nil {
			return t, nil
		}
	}
	if f, ok := raw.(float64); ok {
		return int64(f), nil
	}
	return raw, nil
}

// frameWire is the row-set shape on the wire.
type frameWire struct {
	Columns []string     `json:"columns"`
	Rows    []schema.Row `json:"rows"`
}

func (w *frameWire) frame() *schema.Frame {
	if w == nil {
		return nil
	}
	return &schema.Frame{Columns: w.Columns, Rows: w.Rows}
}

func (c *Client) GetPipeData(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{}, limit int, order string,
) (*schema.Frame, error) {
	query := url.Values{}
	axisQuery(query, "begin", begin)
	axisQuery(query, "end", end)
	paramsQuery(query, params)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if order != "" {
		query.Set("order", order)
	}

	var wire *frameWire
	if err := c.do(ctx, http.MethodGet, c.pipePath(pipe, "/data"), query, nil, &wire); err != nil {
		return nil, err
	}
	return wire.frame(), nil
}

func (c *Client) GetPipeRowCount(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{}, remote bool,
) (int64, error) {
	query := url.Values{"remote": []string{strconv.FormatBool(remote)}}
	axisQuery(query, "begin", begin)
	axisQuery(query, "end", end)
	paramsQuery(query, params)

	var n int64
	if err := c.do(ctx, http.MethodGet, c.pipePath(pipe, "/rowcount"), query, nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Client) GetPipeColumnsTypes(ctx context.Context, pipe *schema.Pipe) (map[string]string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, c.pipePath(pipe, "/columns/types"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPipeColumnsIndices(ctx context.Context, pipe *schema.Pipe) (map[string][]string, error) {
	var out map[string][]string
	if err := c.do(ctx, http.MethodGet, c.pipePath(pipe, "/columns/indices"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SyncPipe(ctx context.Context, pipe *schema.Pipe, frame *schema.Frame,
	opts connectors.SyncOptions,
) (connectors.SyncStats, schema.SuccessTuple) {
	var stats connectors.SyncStats
	query := url.Values{
		"check_existing": []string{strconv.FormatBool(opts.CheckExisting)},
		"blocking":       []string{strconv.FormatBool(opts.Blocking)},
	}
	if opts.Upsert {
		query.Set("upsert", "true")
	}

	body := frameWire{Columns: frame.Columns, Rows: frame.Rows}
	var resp struct {
		Result schema.SuccessTuple   `json:"result"`
		Stats  connectors.SyncStats  `json:"stats"`
	}
	if err := c.do(ctx, http.MethodPost, c.pipePath(pipe, "/sync"), query, body, &resp); err != nil {
		return stats, schema.FailErr(err)
	}
	return resp.Stats, resp.Result
}

func (c *Client) DropPipe(ctx context.Context, pipe *schema.Pipe) schema.SuccessTuple {
	return c.doTuple(ctx, http.MethodDelete, c.pipePath(pipe, "/drop"), nil, nil)
}

func (c *Client) DropPipeIndices(ctx context.Context, pipe *schema.Pipe, columns []string) schema.SuccessTuple {
	return c.doTuple(ctx, http.MethodDelete, c.pipePath(pipe, "/indices"), nil,
		map[string]interface{}{"columns": columns})
}

func (c *Client) CreatePipeIndices(ctx context.Context, pipe *schema.Pipe, columns []string) schema.SuccessTuple {
	return c.doTuple(ctx, http.MethodPost, c.pipePath(pipe, "/indices"), nil,
		map[string]interface{}{"columns": columns})
}

func (c *Client) ClearPipe(ctx context.Context, pipe *schema.Pipe, begin, end interface{},
	params map[string]interface{},
) schema.SuccessTuple {
	query := url.Values{}
	axisQuery(query, "begin", begin)
	axisQuery(query, "end", end)
	paramsQuery(query, params)
	return c.doTuple(ctx, http.MethodDelete, c.pipePath(pipe, "/clear"), query, nil)
}
