// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conn, err := Factory("api", "test", map[string]interface{}{"uri": server.URL})
	require.NoError(t, err)
	return conn.(*Client)
}

func TestSecureTransport(t *testing.T) {
	conn, err := Factory("api", "test", map[string]interface{}{"uri": "https://host:8000"})
	require.NoError(t, err)
	assert.True(t, conn.(*Client).SecureTransport())

	conn, err = Factory("api", "test", map[string]interface{}{"uri": "http://host:8000"})
	require.NoError(t, err)
	assert.False(t, conn.(*Client).SecureTransport())
}

func TestFactoryFromParts(t *testing.T) {
	conn, err := Factory("api", "main", map[string]interface{}{
		"protocol": "https",
		"host":     "mrsm.example.com",
		"port":     8001.0,
	})
	require.NoError(t, err)
	client := conn.(*Client)
	assert.Equal(t, "https://mrsm.example.com:8001", client.baseURL.String())

	_, err = Factory("api", "bare", map[string]interface{}{})
	assert.Error(t, err)
}

func TestPipeEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mrsm/pipes/plugin:src/weather/None/register", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(schema.Succeed("registered"))
	})
	mux.HandleFunc("/mrsm/pipes/plugin:src/weather/None/id", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(int64(7))
	})
	mux.HandleFunc("/mrsm/pipes/plugin:src/weather/None/sync_time", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("newest"))
		json.NewEncoder(w).Encode("2024-01-05T00:00:00Z")
	})
	mux.HandleFunc("/mrsm/pipes/plugin:src/weather/None/data", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(frameWire{
			Columns: []string{"dt", "id"},
			Rows:    []schema.Row{{"dt": "2024-01-01", "id": 1.0}},
		})
	})
	mux.HandleFunc("/mrsm/pipes/plugin:src/weather/None/rowcount", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(int64(12))
	})

	client := newTestClient(t, mux)
	pipe := schema.NewPipe("plugin:src", "weather", "", "api:test")
	ctx := context.Background()

	tuple := client.RegisterPipe(ctx, pipe)
	require.True(t, tuple.Ok, tuple.Msg)

	id, err := client.GetPipeID(ctx, pipe)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	syncTime, err := client.GetSyncTime(ctx, pipe, true, false, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), syncTime)

	frame, err := client.GetPipeData(ctx, pipe, nil, nil, nil, 0, "")
	require.NoError(t, err)
	require.Equal(t, 1, frame.Len())
	assert.Equal(t, 1.0, frame.Rows[0]["id"])

	n, err := client.GetPipeRowCount(ctx, pipe, nil, nil, nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestErrorResponsesAreConnectorErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	pipe := schema.NewPipe("plugin:src", "weather", "", "api:test")

	_, err := client.GetPipeID(context.Background(), pipe)
	require.Error(t, err)
	assert.Equal(t, schema.KindConnector, schema.KindOf(err))
}

func TestFetchUsesRemoteTriple(t *testing.T) {
	var requested string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		json.NewEncoder(w).Encode(frameWire{Columns: []string{"id"}, Rows: []schema.Row{{"id": 1.0}}})
	})

	client := newTestClient(t, mux)
	pipe := schema.NewPipe("api:test", "local_metric", "", "sql:main")
	pipe.SetParameters(schema.Parameters{
		"fetch": map[string]interface{}{
			"connector": "sql:remote",
			"metric":    "power",
			"location":  "west",
		},
	})

	batches, err := client.Fetch(context.Background(), pipe, connectors.FetchOptions{})
	require.NoError(t, err)
	frame, err := batches.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, frame.Len())
	assert.Equal(t, "/mrsm/pipes/sql:remote/power/west/data", requested)
}
