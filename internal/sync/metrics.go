// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mrsm_sync_rows_inserted_total",
		Help: "Rows inserted through pipe syncs.",
	}, []string{"pipe"})

	rowsUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mrsm_sync_rows_updated_total",
		Help: "Rows updated in place through pipe syncs.",
	}, []string{"pipe"})

	rowsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mrsm_sync_rows_upserted_total",
		Help: "Rows written through upsert merges.",
	}, []string{"pipe"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mrsm_sync_duration_seconds",
		Help:    "Wall-clock duration of one pipe sync.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"pipe"})

	syncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mrsm_sync_errors_total",
		Help: "Failed pipe syncs by error kind.",
	}, []string{"pipe", "kind"})
)
