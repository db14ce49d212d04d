// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func fires(t *testing.T, spec string, n int) []time.Time {
	t.Helper()
	sched, err := ParseSchedule(spec, testNow)
	require.NoError(t, err, spec)
	return sched.FirstN(testNow, n)
}

func TestIntervalStarting(t *testing.T) {
	got := fires(t, "every 10 seconds starting 2024-05-01", 3)
	want := []time.Time{
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 0, 0, 10, 0, time.UTC),
		time.Date(2024, 5, 1, 0, 0, 20, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestWeekdayAndInterval(t *testing.T) {
	got := fires(t, "mon-fri and every 2 days starting 2024-05-13", 4)
	want := []time.Time{
		time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
}

func TestAliases(t *testing.T) {
	got := fires(t, "daily starting 2024-05-01", 2)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}, got)

	got = fires(t, "hourly starting 2024-05-01 06:00:00", 2)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC),
	}, got)
}

func TestMonthly(t *testing.T) {
	got := fires(t, "monthly starting 2024-05-01", 3)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}, got)
}

func TestCronExpression(t *testing.T) {
	sched, err := ParseSchedule("30 9 * * *", testNow)
	require.NoError(t, err)
	first := sched.Next(testNow)
	assert.Equal(t, time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC), sched.Next(first))
}

func TestOrUnion(t *testing.T) {
	got := fires(t, "every 3 days or every 5 days starting 2024-05-01", 4)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC),
	}, got)
}

func TestMonthFilter(t *testing.T) {
	// April days are filtered out until the month matches.
	got := fires(t, "may and daily starting 2024-04-29", 3)
	assert.Equal(t, []time.Time{
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
	}, got)
}

func TestParseErrors(t *testing.T) {
	for _, spec := range []string{"", "every", "every x days", "fortnightly", "every 0 days"} {
		_, err := ParseSchedule(spec, testNow)
		assert.Error(t, err, spec)
	}
}
