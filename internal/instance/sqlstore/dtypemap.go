// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package sqlstore

import (
	"fmt"
	"strings"

	"github.com/meerschaum/mrsm/pkg/dtypes"
)

// physicalType maps a logical dtype to the flavor's column type.
// numeric carries its declared precision and scale; uuid maps to the
// native type when the flavor has one, else CHAR(36).
func physicalType(dt dtypes.Dtype, flavor string) string {
	switch flavor {
	case "mysql":
		return mysqlType(dt)
	default:
		return sqliteType(dt)
	}
}

func sqliteType(dt dtypes.Dtype) string {
	switch dt.Base {
	case dtypes.Int:
		return "INTEGER"
	case dtypes.Float:
		return "REAL"
	case dtypes.Bool:
		return "INTEGER"
	case dtypes.Bytes:
		return "BLOB"
	case dtypes.UUID:
		return "CHAR(36)"
	case dtypes.Numeric:
		// sqlite keeps full precision only in text.
		return "TEXT"
	case dtypes.JSON:
		return "TEXT"
	case dtypes.Datetime:
		return "DATETIME"
	}
	return "TEXT"
}

func mysqlType(dt dtypes.Dtype) string {
	switch dt.Base {
	case dtypes.Int:
		return "BIGINT"
	case dtypes.Float:
		return "DOUBLE"
	case dtypes.Bool:
		return "TINYINT(1)"
	case dtypes.Bytes:
		return "BLOB"
	case dtypes.UUID:
		return "CHAR(36)"
	case dtypes.Numeric:
		precision, scale := dt.Precision, dt.Scale
		if precision <= 0 {
			precision, scale = 38, 12
		}
		return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
	case dtypes.JSON:
		return "JSON"
	case dtypes.Datetime:
		return "DATETIME(6)"
	}
	return "TEXT"
}

// quoteIdent quotes one identifier for the flavor.
func (s *Store) quoteIdent(name string) string {
	if s.flavor == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
