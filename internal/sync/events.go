// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sync

import (
	"encoding/json"
	"time"

	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/nats-io/nats.go"
)

// syncEvent is the wire form published after each pipe sync.
type syncEvent struct {
	Pipe     *schema.Pipe        `json:"pipe"`
	Result   schema.SuccessTuple `json:"result"`
	Duration float64             `json:"duration_seconds"`
	At       time.Time           `json:"at"`
}

// NewNATSHook connects to a NATS server and returns a post-sync hook
// publishing each result to subject. The connection reconnects forever.
func NewNATSHook(url, subject string) (PostHook, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, schema.NewError(schema.KindConnector, "connect nats", err)
	}
	return func(pipe *schema.Pipe, result schema.SuccessTuple, duration time.Duration, _ *Options) error {
		payload, err := json.Marshal(syncEvent{
			Pipe:     pipe,
			Result:   result,
			Duration: duration.Seconds(),
			At:       time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := conn.Publish(subject, payload); err != nil {
			log.Warnf("Could not publish sync event for %s: %v", pipe, err)
			return err
		}
		return nil
	}, nil
}
