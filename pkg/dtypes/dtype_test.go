// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dtypes

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{
		"int", "float", "bool", "str", "bytes", "uuid", "json", "object",
		"numeric", "numeric(20,10)",
		"datetime[ns]", "datetime[ns, UTC]", "datetime[ns, America/New_York]",
	} {
		dt, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, dt.String())
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, s := range []string{"integer", "text", "numeric(x,y)", "datetime[us]", ""} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestInferRules(t *testing.T) {
	cases := []struct {
		name   string
		values []interface{}
		want   string
	}{
		{"naive datetimes", []interface{}{"2024-01-01", "2024-01-02 03:04:05"}, "datetime[ns]"},
		{"aware datetimes", []interface{}{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00+02:00"}, "datetime[ns, UTC]"},
		{"decimals", []interface{}{decimal.NewFromInt(1), decimal.NewFromFloat(2.5)}, "numeric"},
		{"mixed int float noninteger", []interface{}{1, 2.5}, "numeric"},
		{"mixed int float integral", []interface{}{1, 2.0}, "float"},
		{"ints", []interface{}{1, 2, nil, 3}, "int"},
		{"json list", []interface{}{[]interface{}{"x"}}, "json"},
		{"json map", []interface{}{map[string]interface{}{"b": 1}}, "json"},
		{"uuids", []interface{}{uuid.New(), uuid.New().String()}, "uuid"},
		{"bytes", []interface{}{[]byte{1, 2}}, "bytes"},
		{"bools", []interface{}{true, false}, "bool"},
		{"strings", []interface{}{"a", "b"}, "str"},
		{"mixed scalars", []interface{}{"a", 1}, "object"},
		{"all null", []interface{}{nil, nil}, "object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Infer(tc.values).String())
		})
	}
}

func TestEnforceInt(t *testing.T) {
	frame := schema.NewFrame("x")
	frame.Append(schema.Row{"x": "7"})
	declared := map[string]Dtype{"x": MustParse("int")}
	require.NoError(t, Enforce(frame, declared))
	assert.Equal(t, int64(7), frame.Rows[0]["x"])

	bad := schema.NewFrame("x")
	bad.Append(schema.Row{"x": "abc"})
	err := Enforce(bad, declared)
	require.Error(t, err)
	assert.Equal(t, schema.KindSchema, schema.KindOf(err))
}

func TestEnforceBoolConservative(t *testing.T) {
	declared := map[string]Dtype{"b": MustParse("bool")}
	accepted := map[interface{}]bool{
		true: true, false: false, 1: true, 0: false,
		"true": true, "false": false, "True": true, "False": false,
		"1": true, "0": false,
	}
	for in, want := range accepted {
		frame := schema.NewFrame("b")
		frame.Append(schema.Row{"b": in})
		require.NoError(t, Enforce(frame, declared), "%v", in)
		assert.Equal(t, want, frame.Rows[0]["b"], "%v", in)
	}
	for _, in := range []interface{}{"yes", "no", "t", "TRUE", 2} {
		frame := schema.NewFrame("b")
		frame.Append(schema.Row{"b": in})
		assert.Error(t, Enforce(frame, declared), "%v", in)
	}

	// Nulls pass untouched.
	frame := schema.NewFrame("b")
	frame.Append(schema.Row{"b": nil})
	require.NoError(t, Enforce(frame, declared))
	assert.Nil(t, frame.Rows[0]["b"])
}

func TestEnforceUUIDAndBytes(t *testing.T) {
	id := uuid.New()
	frame := schema.NewFrame("u", "b")
	frame.Append(schema.Row{"u": id.String(), "b": "aGVsbG8="})
	declared := map[string]Dtype{"u": MustParse("uuid"), "b": MustParse("bytes")}
	require.NoError(t, Enforce(frame, declared))
	assert.Equal(t, id, frame.Rows[0]["u"])
	assert.Equal(t, []byte("hello"), frame.Rows[0]["b"])

	bad := schema.NewFrame("u")
	bad.Append(schema.Row{"u": "not-a-uuid"})
	assert.Error(t, Enforce(bad, map[string]Dtype{"u": MustParse("uuid")}))
}

func TestEnforceNumericScale(t *testing.T) {
	frame := schema.NewFrame("n")
	frame.Append(schema.Row{"n": "1.23456"})
	declared := map[string]Dtype{"n": MustParse("numeric(10,2)")}
	require.NoError(t, Enforce(frame, declared))
	d := frame.Rows[0]["n"].(decimal.Decimal)
	assert.True(t, d.Equal(decimal.RequireFromString("1.23")), d.String())
}

func TestNormalizeTimeRegimes(t *testing.T) {
	utcDt := MustParse("datetime[ns, UTC]")
	naiveDt := MustParse("datetime[ns]")

	// Aware value into a naive regime: convert to UTC, strip the offset.
	aware, awareFlag, err := ParseDatetime("2024-01-01T02:00:00+02:00")
	require.NoError(t, err)
	require.True(t, awareFlag)
	stripped, err := NormalizeTime(aware, true, naiveDt)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), stripped)

	// Naive value into an aware regime: assume UTC.
	naive, naiveFlag, err := ParseDatetime("2024-01-01 05:00:00")
	require.NoError(t, err)
	require.False(t, naiveFlag)
	promoted, err := NormalizeTime(naive, false, utcDt)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), promoted)

	// Aware into aware zone.
	zoned := MustParse("datetime[ns, America/New_York]")
	inZone, err := NormalizeTime(aware, true, zoned)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", inZone.Location().String())
	assert.True(t, inZone.Equal(aware))
}

func TestInferFrameSkipsDeclared(t *testing.T) {
	frame := schema.NewFrame("known", "fresh")
	frame.Append(schema.Row{"known": "x", "fresh": 1})
	declared := map[string]Dtype{"known": MustParse("str")}
	inferred := InferFrame(frame, declared)
	_, hasKnown := inferred["known"]
	assert.False(t, hasKnown)
	assert.Equal(t, "int", inferred["fresh"].String())
}
