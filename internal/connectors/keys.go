// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package connectors

import (
	"strings"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/pkg/schema"
)

// FormatKeys packs (type, label) into the wire form type:label.
func FormatKeys(typ, label string) string {
	return typ + ":" + label
}

// ParseConnectorKeys splits type:label. A bare type resolves to the
// conventional label "main".
func ParseConnectorKeys(keys string) (typ, label string, err error) {
	keys = strings.TrimSpace(keys)
	if keys == "" {
		return "", "", schema.Errorf(schema.KindConfig, "parse connector keys",
			"empty connector keys")
	}
	parts := strings.SplitN(keys, ":", 2)
	typ = parts[0]
	if len(parts) == 2 && parts[1] != "" {
		label = parts[1]
	} else {
		label = "main"
	}
	if typ == "" {
		return "", "", schema.Errorf(schema.KindConfig, "parse connector keys",
			"invalid connector keys %q", keys)
	}
	return typ, label, nil
}

// ParseInstanceKeys resolves keys (or the configured default instance)
// into an Instance handle, enforcing the chaining rule for API parents.
func ParseInstanceKeys(r *Registry, keys string) (Instance, error) {
	if strings.TrimSpace(keys) == "" {
		keys = config.Keys.InstanceKeys
	}
	conn, err := r.GetFromKeys(keys)
	if err != nil {
		return nil, err
	}
	inst, ok := conn.(Instance)
	if !ok {
		return nil, schema.Errorf(schema.KindConfig, "parse instance keys",
			"connector %q cannot act as an instance", keys)
	}
	if err := checkChaining(conn); err != nil {
		return nil, err
	}
	return inst, nil
}

// ParseRepoKeys resolves keys (or the configured default repository).
func ParseRepoKeys(r *Registry, keys string) (Connector, error) {
	if strings.TrimSpace(keys) == "" {
		keys = config.Keys.RepositoryKeys
	}
	return r.GetFromKeys(keys)
}

// MatchTags applies a tag filter: every bare wanted tag must be
// present, every negated one absent. An empty filter matches.
func MatchTags(tags, wanted []string, negationPrefix string) bool {
	if len(wanted) == 0 {
		return true
	}
	have := map[string]bool{}
	for _, tag := range tags {
		have[tag] = true
	}
	for _, want := range wanted {
		if negationPrefix != "" && strings.HasPrefix(want, negationPrefix) &&
			len(want) > len(negationPrefix) {
			if have[want[len(negationPrefix):]] {
				return false
			}
			continue
		}
		if !have[want] {
			return false
		}
	}
	return true
}

// Secure is implemented by connectors that can vouch for their transport
// (the API connector reports whether it speaks HTTPS).
type Secure interface {
	SecureTransport() bool
}

// checkChaining forbids an insecure API parent instance unless the
// config explicitly allows it.
func checkChaining(conn Connector) error {
	if conn.Type() != "api" {
		return nil
	}
	if s, ok := conn.(Secure); ok && s.SecureTransport() {
		return nil
	}
	if config.GetBool(false, "permissions", "chaining", "insecure_parent_instance") {
		return nil
	}
	return schema.Errorf(schema.KindConfig, "parse instance keys",
		"refusing insecure API connector %q as parent instance; "+
			"set permissions:chaining:insecure_parent_instance to allow", conn.Keys())
}
