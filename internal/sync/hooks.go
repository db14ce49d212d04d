// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sync

import (
	"time"

	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// PreHook runs before a pipe sync. Errors are logged, never fatal.
type PreHook func(pipe *schema.Pipe, opts *Options) error

// PostHook runs after a pipe sync with its result and duration.
type PostHook func(pipe *schema.Pipe, result schema.SuccessTuple, duration time.Duration, opts *Options) error

// Hooks is an explicit hook registry, built at startup and handed to the
// orchestrator. Registration is a call, not an import side effect.
type Hooks struct {
	pre  []PreHook
	post []PostHook
}

func NewHooks() *Hooks {
	return &Hooks{}
}

func (h *Hooks) RegisterPre(hook PreHook) {
	h.pre = append(h.pre, hook)
}

func (h *Hooks) RegisterPost(hook PostHook) {
	h.post = append(h.post, hook)
}

func (h *Hooks) runPre(pipe *schema.Pipe, opts *Options) {
	if h == nil {
		return
	}
	for _, hook := range h.pre {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("Pre-sync hook panicked for %s: %v", pipe, r)
				}
			}()
			if err := hook(pipe, opts); err != nil {
				log.Warnf("Pre-sync hook failed for %s: %v", pipe, err)
			}
		}()
	}
}

func (h *Hooks) runPost(pipe *schema.Pipe, result schema.SuccessTuple, duration time.Duration, opts *Options) {
	if h == nil {
		return
	}
	for _, hook := range h.post {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("Post-sync hook panicked for %s: %v", pipe, r)
				}
			}()
			if err := hook(pipe, result, duration, opts); err != nil {
				log.Warnf("Post-sync hook failed for %s: %v", pipe, err)
			}
		}()
	}
}
