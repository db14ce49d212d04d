// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sync

import (
	"context"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// transientMarkers match driver-level failures worth retrying when the
// error carries no engine kind.
var transientMarkers = []string{
	"deadlock",
	"serialization failure",
	"connection reset",
	"connection refused",
	"broken pipe",
	"database is locked",
	"try restarting transaction",
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch schema.KindOf(err) {
	case schema.KindTransient:
		return true
	case schema.KindSchema, schema.KindConfig, schema.KindCancelled:
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetries runs attempt with exponential backoff on transient errors,
// checking cancellation between attempts.
func withRetries(ctx context.Context, op string, attempt func() error) error {
	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    time.Duration(config.Keys.RetryCapSeconds) * time.Second,
		Factor: 2,
		Jitter: true,
	}
	maxRetries := config.Keys.MaxRetries

	var err error
	for try := 0; ; try++ {
		if cerr := ctx.Err(); cerr != nil {
			return schema.NewError(schema.KindCancelled, op, cerr)
		}
		err = attempt()
		if err == nil || !isRetryable(err) || try >= maxRetries {
			return err
		}
		wait := b.Duration()
		log.Warnf("Transient failure in %s (attempt %d/%d), retrying in %s: %v",
			op, try+1, maxRetries, wait, err)
		select {
		case <-ctx.Done():
			return schema.NewError(schema.KindCancelled, op, ctx.Err())
		case <-time.After(wait):
		}
	}
}
