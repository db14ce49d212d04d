// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dtypes

import (
	"fmt"
	"strings"
	"time"
)

// Accepted textual datetime layouts, tried in order.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDatetime reads v into a time.Time and reports whether the value
// carried an explicit offset. Textual values without an offset are naive;
// time.Time values always count as aware.
func ParseDatetime(v interface{}) (t time.Time, aware bool, err error) {
	switch val := v.(type) {
	case time.Time:
		return val, true, nil
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range datetimeLayouts {
			t, perr := time.Parse(layout, s)
			if perr == nil {
				return t, layoutHasOffset(layout, s), nil
			}
		}
		return time.Time{}, false, fmt.Errorf("unparseable datetime %q", s)
	}
	return time.Time{}, false, fmt.Errorf("unsupported datetime value %T", v)
}

func layoutHasOffset(layout, s string) bool {
	if !strings.Contains(layout, "Z07:00") {
		return false
	}
	// RFC3339-family layouts only match when the offset is present,
	// so the raw string ends in Z or ±hh:mm.
	return strings.HasSuffix(s, "Z") || strings.ContainsAny(s[len(s)-6:], "+-")
}

// NormalizeTime converts t into the dtype's datetime regime:
//   - aware UTC: converted to UTC;
//   - aware zone Z: converted into Z;
//   - naive: converted to UTC first when the value was aware, then the
//     offset is stripped (the wall clock is kept in the UTC location).
//
// A naive value arriving at an aware regime is assumed UTC.
func NormalizeTime(t time.Time, aware bool, dt Dtype) (time.Time, error) {
	if dt.Base != Datetime {
		return t, fmt.Errorf("cannot normalise time to %s", dt)
	}
	if !dt.Aware() {
		if aware {
			t = t.UTC()
		}
		// Re-anchor the wall clock in UTC so naive values compare bytewise.
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(),
			t.Second(), t.Nanosecond(), time.UTC), nil
	}
	if !aware {
		// Naive into an aware regime: assume UTC.
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(),
			t.Second(), t.Nanosecond(), time.UTC)
	}
	if dt.TZ == "UTC" {
		return t.UTC(), nil
	}
	loc, err := time.LoadLocation(dt.TZ)
	if err != nil {
		return t, fmt.Errorf("unknown timezone %q: %w", dt.TZ, err)
	}
	return t.In(loc), nil
}

// DatetimeRegime picks the sticky regime for a fresh datetime column:
// aware UTC when any observed value carried an offset, else naive.
func DatetimeRegime(anyAware bool) Dtype {
	if anyAware {
		return Dtype{Base: Datetime, TZ: "UTC"}
	}
	return Dtype{Base: Datetime}
}
