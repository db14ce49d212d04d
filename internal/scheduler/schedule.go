// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/schema"
	"github.com/robfig/cron/v3"
)

// Schedule is a parsed schedule string. Next returns the first fire time
// strictly after the given instant (zero when the schedule is exhausted).
type Schedule struct {
	root     term
	Starting time.Time
}

type term interface {
	// next returns the first fire time strictly after t.
	next(t time.Time) time.Time
	// matches reports whether t itself satisfies the term.
	matches(t time.Time) bool
}

// ParseSchedule reads the schedule language: intervals (`every N units`),
// aliases (daily, hourly, ...), 5-field cron expressions, day-of-week
// ranges and month names, combined with and/& (intersection) or or/|
// (union), optionally followed by `starting <datetime>`. The default
// anchor for intervals is now.
func ParseSchedule(s string, now time.Time) (*Schedule, error) {
	raw := strings.TrimSpace(s)
	input := strings.ToLower(raw)
	if input == "" {
		return nil, schema.Errorf(schema.KindConfig, "parse schedule", "empty schedule")
	}

	starting := now
	explicitStart := false
	if idx := strings.Index(input, "starting "); idx >= 0 {
		// The datetime expression keeps its original casing (RFC3339 T/Z).
		startExpr := strings.TrimSpace(raw[idx+len("starting "):])
		input = strings.TrimSpace(input[:idx])
		if strings.EqualFold(startExpr, "now") {
			starting = now
		} else {
			t, _, err := dtypes.ParseDatetime(startExpr)
			if err != nil {
				return nil, schema.Errorf(schema.KindConfig, "parse schedule",
					"invalid starting datetime %q", startExpr)
			}
			starting = t.UTC()
		}
		explicitStart = true
	}
	starting = starting.UTC()

	// OR binds looser than AND.
	var orGroups []term
	for _, orPart := range splitAny(input, []string{" or ", "|"}) {
		var andTerms []term
		for _, clause := range splitAny(orPart, []string{" and ", "&"}) {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			t, err := parseClause(clause, starting)
			if err != nil {
				return nil, err
			}
			andTerms = append(andTerms, t)
		}
		switch len(andTerms) {
		case 0:
			return nil, schema.Errorf(schema.KindConfig, "parse schedule",
				"empty clause in %q", s)
		case 1:
			orGroups = append(orGroups, andTerms[0])
		default:
			orGroups = append(orGroups, &andTerm{terms: andTerms})
		}
	}

	var root term
	if len(orGroups) == 1 {
		root = orGroups[0]
	} else {
		root = &orTerm{terms: orGroups}
	}

	sched := &Schedule{root: root}
	if explicitStart {
		sched.Starting = starting
	}
	return sched, nil
}

// Next returns the first fire time strictly after t, never before the
// declared starting instant (which itself is eligible to fire).
func (s *Schedule) Next(after time.Time) time.Time {
	if !s.Starting.IsZero() && after.Before(s.Starting) {
		after = s.Starting.Add(-time.Nanosecond)
	}
	return s.root.next(after)
}

// FirstN lists the first n fire times after `after`, for reporting.
func (s *Schedule) FirstN(after time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	t := after
	for len(out) < n {
		t = s.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}

func splitAny(s string, seps []string) []string {
	parts := []string{s}
	for _, sep := range seps {
		var next []string
		for _, part := range parts {
			next = append(next, strings.Split(part, sep)...)
		}
		parts = next
	}
	return parts
}

var intervalUnits = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second,
	"minute": time.Minute, "minutes": time.Minute,
	"hour": time.Hour, "hours": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour,
	"week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

func parseClause(clause string, anchor time.Time) (term, error) {
	fields := strings.Fields(clause)

	if fields[0] == "every" {
		return parseInterval(fields, anchor)
	}

	switch clause {
	case "secondly":
		return &intervalTerm{every: time.Second, anchor: anchor}, nil
	case "minutely":
		return &intervalTerm{every: time.Minute, anchor: anchor}, nil
	case "hourly":
		return &intervalTerm{every: time.Hour, anchor: anchor}, nil
	case "daily":
		return &intervalTerm{every: 24 * time.Hour, anchor: anchor}, nil
	case "weekly":
		return &intervalTerm{every: 7 * 24 * time.Hour, anchor: anchor}, nil
	case "monthly":
		return &monthlyTerm{anchor: anchor}, nil
	}

	if t, ok := parseWeekdays(clause); ok {
		return t, nil
	}
	if t, ok := parseMonths(clause); ok {
		return t, nil
	}

	if sched, err := cron.ParseStandard(clause); err == nil {
		return &cronTerm{sched: sched}, nil
	}

	return nil, schema.Errorf(schema.KindConfig, "parse schedule",
		"unrecognised schedule clause %q", clause)
}

func parseInterval(fields []string, anchor time.Time) (term, error) {
	n := 1
	unitIdx := 1
	if len(fields) < 2 {
		return nil, schema.Errorf(schema.KindConfig, "parse schedule",
			"incomplete interval %q", strings.Join(fields, " "))
	}
	if parsed, err := strconv.Atoi(fields[1]); err == nil {
		n = parsed
		unitIdx = 2
	}
	if n <= 0 || unitIdx >= len(fields) {
		return nil, schema.Errorf(schema.KindConfig, "parse schedule",
			"invalid interval %q", strings.Join(fields, " "))
	}
	unit, ok := intervalUnits[fields[unitIdx]]
	if !ok {
		if fields[unitIdx] == "month" || fields[unitIdx] == "months" {
			return &monthlyTerm{anchor: anchor, every: n}, nil
		}
		return nil, schema.Errorf(schema.KindConfig, "parse schedule",
			"unknown interval unit %q", fields[unitIdx])
	}
	return &intervalTerm{every: time.Duration(n) * unit, anchor: anchor}, nil
}

func parseWeekdays(clause string) (term, bool) {
	set := map[time.Weekday]bool{}
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, fok := weekdayNames[strings.TrimSpace(lo)]
			to, tok := weekdayNames[strings.TrimSpace(hi)]
			if !fok || !tok {
				return nil, false
			}
			for d := from; ; d = (d + 1) % 7 {
				set[d] = true
				if d == to {
					break
				}
			}
			continue
		}
		d, ok := weekdayNames[part]
		if !ok {
			return nil, false
		}
		set[d] = true
	}
	if len(set) == 0 {
		return nil, false
	}
	return &weekdayTerm{days: set}, true
}

func parseMonths(clause string) (term, bool) {
	set := map[time.Month]bool{}
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, fok := monthNames[strings.TrimSpace(lo)]
			to, tok := monthNames[strings.TrimSpace(hi)]
			if !fok || !tok {
				return nil, false
			}
			for m := from; ; m = m%12 + 1 {
				set[m] = true
				if m == to {
					break
				}
			}
			continue
		}
		m, ok := monthNames[part]
		if !ok {
			return nil, false
		}
		set[m] = true
	}
	if len(set) == 0 {
		return nil, false
	}
	return &monthTerm{months: set}, true
}

/* terms */

type intervalTerm struct {
	every  time.Duration
	anchor time.Time
}

func (t *intervalTerm) next(after time.Time) time.Time {
	if after.Before(t.anchor) {
		return t.anchor
	}
	elapsed := after.Sub(t.anchor)
	steps := elapsed/t.every + 1
	return t.anchor.Add(steps * t.every)
}

func (t *intervalTerm) matches(at time.Time) bool {
	if at.Before(t.anchor) {
		return false
	}
	return at.Sub(t.anchor)%t.every == 0
}

type monthlyTerm struct {
	anchor time.Time
	every  int
}

func (t *monthlyTerm) step() int {
	if t.every <= 0 {
		return 1
	}
	return t.every
}

func (t *monthlyTerm) next(after time.Time) time.Time {
	fire := t.anchor
	for !fire.After(after) {
		fire = fire.AddDate(0, t.step(), 0)
	}
	return fire
}

func (t *monthlyTerm) matches(at time.Time) bool {
	fire := t.anchor
	for fire.Before(at) {
		fire = fire.AddDate(0, t.step(), 0)
	}
	return fire.Equal(at)
}

type cronTerm struct {
	sched cron.Schedule
}

func (t *cronTerm) next(after time.Time) time.Time {
	return t.sched.Next(after)
}

func (t *cronTerm) matches(at time.Time) bool {
	// Cron resolution is one minute.
	return t.sched.Next(at.Add(-time.Second)).Equal(at.Truncate(time.Minute))
}

type weekdayTerm struct {
	days map[time.Weekday]bool
}

func (t *weekdayTerm) next(after time.Time) time.Time {
	day := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, after.Location())
	for i := 0; i < 8; i++ {
		if day.After(after) && t.days[day.Weekday()] {
			return day
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

func (t *weekdayTerm) matches(at time.Time) bool {
	return t.days[at.Weekday()]
}

type monthTerm struct {
	months map[time.Month]bool
}

func (t *monthTerm) next(after time.Time) time.Time {
	month := time.Date(after.Year(), after.Month(), 1, 0, 0, 0, 0, after.Location())
	for i := 0; i < 13; i++ {
		if month.After(after) && t.months[month.Month()] {
			return month
		}
		month = month.AddDate(0, 1, 0)
	}
	return time.Time{}
}

func (t *monthTerm) matches(at time.Time) bool {
	return t.months[at.Month()]
}

type andTerm struct {
	terms []term
}

const maxIntersectionSteps = 100000

func (t *andTerm) next(after time.Time) time.Time {
	cursor := after
	for i := 0; i < maxIntersectionSteps; i++ {
		// The earliest proposal among the terms; matches() decides whether
		// the others accept it. Each next() is strictly after the cursor,
		// so the loop always advances.
		var candidate time.Time
		for _, sub := range t.terms {
			n := sub.next(cursor)
			if n.IsZero() {
				return time.Time{}
			}
			if candidate.IsZero() || n.Before(candidate) {
				candidate = n
			}
		}
		ok := true
		for _, sub := range t.terms {
			if !sub.matches(candidate) {
				ok = false
				break
			}
		}
		if ok {
			return candidate
		}
		cursor = candidate
	}
	return time.Time{}
}

func (t *andTerm) matches(at time.Time) bool {
	for _, sub := range t.terms {
		if !sub.matches(at) {
			return false
		}
	}
	return true
}

type orTerm struct {
	terms []term
}

func (t *orTerm) next(after time.Time) time.Time {
	var best time.Time
	for _, sub := range t.terms {
		n := sub.next(after)
		if n.IsZero() {
			continue
		}
		if best.IsZero() || n.Before(best) {
			best = n
		}
	}
	return best
}

func (t *orTerm) matches(at time.Time) bool {
	for _, sub := range t.terms {
		if sub.matches(at) {
			return true
		}
	}
	return false
}

// Describe renders the schedule's next fires, for debug logging.
func (s *Schedule) Describe(after time.Time, n int) string {
	fires := s.FirstN(after, n)
	parts := make([]string, len(fires))
	for i, f := range fires {
		parts[i] = f.Format(time.RFC3339)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
