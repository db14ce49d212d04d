// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package connectors

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/meerschaum/mrsm/pkg/log"
)

// envConnectorAttributes reads MRSM_<TYPE>_<LABEL>. The value is either
// a JSON object of attributes or a URI, which becomes {"uri": value}.
func envConnectorAttributes(typ, label string) (map[string]interface{}, bool) {
	name := "MRSM_" + strings.ToUpper(typ) + "_" + strings.ToUpper(label)
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return nil, false
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var attributes map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &attributes); err != nil {
			log.Warnf("Ignoring %s: invalid JSON object: %v", name, err)
			return nil, false
		}
		return attributes, true
	}
	return map[string]interface{}{"uri": raw}, true
}
