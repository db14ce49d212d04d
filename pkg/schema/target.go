// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TargetName resolves the physical table name for the pipe: the configured
// parameters.target if set, else connector_metric[_location] with ':'
// flattened to '_', truncated to maxLen with a stable hash suffix.
func (p *Pipe) TargetName(maxLen int) string {
	if target := p.Parameters().Target(); target != "" {
		return TruncateTarget(target, maxLen)
	}
	name := strings.ReplaceAll(p.Connector, ":", "_") + "_" + p.Metric
	if p.Location != "" {
		name += "_" + p.Location
	}
	return TruncateTarget(name, maxLen)
}

// TruncateTarget bounds name to maxLen identifier characters. A truncated
// name keeps a 8-hex xxhash suffix of the full name so collisions between
// long names remain distinguishable and the result is stable.
func TruncateTarget(name string, maxLen int) string {
	if maxLen <= 0 || len(name) <= maxLen {
		return name
	}
	suffix := fmt.Sprintf("_%08x", uint32(xxhash.Sum64String(name)))
	if maxLen <= len(suffix) {
		return suffix[1 : maxLen+1]
	}
	return name[:maxLen-len(suffix)] + suffix
}
