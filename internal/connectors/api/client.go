// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api is the HTTP connector: it speaks the JSON wire protocol
// against a remote instance, so pipes can chain through an API parent.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// Client talks to a remote instance over HTTP.
type Client struct {
	typ   string
	label string

	baseURL  *url.URL
	http     *http.Client
	username string
	password string
	pool     int
}

// Factory builds api connectors. Recognised attributes: uri (or
// protocol/host/port), username, password, pool_size.
func Factory(typ, label string, attributes map[string]interface{}) (connectors.Connector, error) {
	uri, _ := attributes["uri"].(string)
	if uri == "" {
		protocol, _ := attributes["protocol"].(string)
		host, _ := attributes["host"].(string)
		if protocol == "" {
			protocol = "https"
		}
		if host == "" {
			return nil, fmt.Errorf("connector api:%s has no uri or host", label)
		}
		port := 8000
		if n, ok := attributes["port"].(float64); ok {
			port = int(n)
		}
		uri = fmt.Sprintf("%s://%s:%d", protocol, host, port)
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("connector api:%s has invalid uri: %w", label, err)
	}

	username, _ := attributes["username"].(string)
	password, _ := attributes["password"].(string)
	pool := 8
	if n, ok := attributes["pool_size"].(float64); ok && n > 0 {
		pool = int(n)
	}

	return &Client{
		typ:      typ,
		label:    label,
		baseURL:  parsed,
		http:     &http.Client{Timeout: 90 * time.Second},
		username: username,
		password: password,
		pool:     pool,
	}, nil
}

func (c *Client) Type() string  { return c.typ }
func (c *Client) Label() string { return c.label }
func (c *Client) Keys() string  { return c.typ + ":" + c.label }
func (c *Client) PoolSize() int { return c.pool }

// SecureTransport reports whether the connector speaks HTTPS; the
// chaining guard consults it before accepting an API parent instance.
func (c *Client) SecureTransport() bool {
	return strings.EqualFold(c.baseURL.Scheme, "https")
}

func (c *Client) pipePath(pipe *schema.Pipe, suffix string) string {
	location := pipe.Location
	if location == "" {
		location = "None"
	}
	return fmt.Sprintf("/mrsm/pipes/%s/%s/%s%s",
		url.PathEscape(pipe.Connector), url.PathEscape(pipe.Metric),
		url.PathEscape(location), suffix)
}

// do runs one JSON request and decodes the response into out (when
// non-nil). Non-2xx responses surface as connector errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values,
	body interface{}, out interface{},
) error {
	target := *c.baseURL
	target.Path = strings.TrimSuffix(target.Path, "/") + path
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return schema.NewError(schema.KindInternal, "encode request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return schema.NewError(schema.KindInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return schema.NewError(schema.KindCancelled, "api request", ctx.Err())
		}
		return schema.NewError(schema.KindConnector, "api request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.NewError(schema.KindConnector, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return schema.Errorf(schema.KindConnector, "api request",
			"%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return schema.NewError(schema.KindConnector, "decode response", err)
	}
	return nil
}

func (c *Client) doTuple(ctx context.Context, method, path string, query url.Values,
	body interface{},
) schema.SuccessTuple {
	var tuple schema.SuccessTuple
	if err := c.do(ctx, method, path, query, body, &tuple); err != nil {
		return schema.FailErr(err)
	}
	return tuple
}

func axisQuery(query url.Values, key string, v interface{}) {
	if v == nil {
		return
	}
	switch val := v.(type) {
	case time.Time:
		query.Set(key, val.Format(time.RFC3339Nano))
	default:
		query.Set(key, fmt.Sprint(val))
	}
}

func paramsQuery(query url.Values, params map[string]interface{}) {
	if len(params) == 0 {
		return
	}
	if raw, err := json.Marshal(params); err == nil {
		query.Set("params", string(raw))
	}
}
