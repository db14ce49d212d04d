// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLocation(t *testing.T) {
	assert.Equal(t, "", NormalizeLocation("None"))
	assert.Equal(t, "", NormalizeLocation("null"))
	assert.Equal(t, "", NormalizeLocation(""))
	assert.Equal(t, "west", NormalizeLocation("west"))
}

func TestPipeWireRoundTrip(t *testing.T) {
	pipe := NewPipe("plugin:noaa", "weather", "", "sql:main")
	raw, err := json.Marshal(pipe)
	require.NoError(t, err)
	assert.JSONEq(t, `{"connector":"plugin:noaa","metric":"weather","instance":"sql:main"}`, string(raw))

	var decoded Pipe
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, pipe.Connector, decoded.Connector)
	assert.Equal(t, "", decoded.Location)

	located := NewPipe("sql:main", "temp", "atlanta", "sql:main")
	raw, err = json.Marshal(located)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"location":"atlanta"`)
}

func TestSuccessTupleWire(t *testing.T) {
	raw, err := json.Marshal(Succeed("inserted %d", 3))
	require.NoError(t, err)
	assert.Equal(t, `[true,"inserted 3"]`, string(raw))

	var st SuccessTuple
	require.NoError(t, json.Unmarshal([]byte(`[false,"nope"]`), &st))
	assert.False(t, st.Ok)
	assert.Equal(t, "nope", st.Msg)
}

func TestUniqueColumnsPrecedence(t *testing.T) {
	params := Parameters{
		"columns": map[string]interface{}{"datetime": "dt", "id": "station"},
	}
	assert.Equal(t, []string{"dt", "station"}, params.UniqueColumns())

	params["indices"] = map[string]interface{}{
		"primary": []interface{}{"uid"},
	}
	assert.Equal(t, []string{"uid"}, params.UniqueColumns())

	assert.Empty(t, Parameters{}.UniqueColumns())
}

func TestIndicesAliasMerge(t *testing.T) {
	params := Parameters{
		"indexes": map[string]interface{}{"legacy": "a", "shared": "old"},
		"indices": map[string]interface{}{"shared": []interface{}{"new"}},
	}
	indices := params.Indices()
	assert.Equal(t, []string{"a"}, indices["legacy"])
	assert.Equal(t, []string{"new"}, indices["shared"])
}

func TestParameterFlags(t *testing.T) {
	params := Parameters{}
	assert.True(t, params.Enforce())
	assert.True(t, params.NullIndices())
	assert.False(t, params.Upsert())
	assert.False(t, params.Static())

	params = Parameters{"upsert": true, "enforce": false, "null_indices": false, "static": true}
	assert.True(t, params.Upsert())
	assert.False(t, params.Enforce())
	assert.False(t, params.NullIndices())
	assert.True(t, params.Static())
}

func TestTargetNameDerivation(t *testing.T) {
	pipe := NewPipe("plugin:noaa", "weather", "atlanta", "sql:main")
	assert.Equal(t, "plugin_noaa_weather_atlanta", pipe.TargetName(64))

	pipe = NewPipe("sql:main", "temp", "", "sql:main")
	assert.Equal(t, "sql_main_temp", pipe.TargetName(64))

	pipe.SetParameters(Parameters{"target": "readings"})
	assert.Equal(t, "readings", pipe.TargetName(64))
}

func TestTruncateTargetStable(t *testing.T) {
	long := "connector_with_a_very_long_name_metric_with_a_long_name_location"
	a := TruncateTarget(long, 32)
	b := TruncateTarget(long, 32)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, TruncateTarget(long+"_2", 32))
	assert.Equal(t, "short", TruncateTarget("short", 32))
}

func TestValidateTags(t *testing.T) {
	params := Parameters{"tags": []interface{}{"prod", "hourly"}}
	assert.NoError(t, params.ValidateTags("_"))

	params = Parameters{"tags": []interface{}{"_prod"}}
	err := params.ValidateTags("_")
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
}

func TestSetDtypeSerialised(t *testing.T) {
	pipe := NewPipe("a", "b", "", "memory:test")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			pipe.SetDtype("x", "int")
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		pipe.SetDtype("y", "float")
	}
	<-done
	dtypes := pipe.Parameters().Dtypes()
	assert.Equal(t, "int", dtypes["x"])
	assert.Equal(t, "float", dtypes["y"])
}
