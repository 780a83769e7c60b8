// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses 5-field cron expressions for the image scanner.
//
//	minute hour day-of-month month day-of-week
//
// Fields accept *, N, N-M, lists and /step. The shortcuts @hourly and
// @daily are also accepted. Next evaluates the schedule in the location
// of the time it is given, so newspaper drops can be scheduled in
// local wall-clock time.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression.
type Schedule struct {
	minute, hour, dayOfMonth, month, dayOfWeek uint64
}

var shortcuts = map[string]string{
	"@hourly": "0 * * * *",
	"@daily":  "0 0 * * *",
}

type fieldRange struct {
	name     string
	min, max int
}

var fieldRanges = [5]fieldRange{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Parse parses expression.
func Parse(expression string) (Schedule, error) {
	if expanded, ok := shortcuts[strings.TrimSpace(expression)]; ok {
		expression = expanded
	}
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	var sets [5]uint64
	for i, field := range fields {
		set, err := parseField(field, fieldRanges[i].min, fieldRanges[i].max)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", fieldRanges[i].name, err)
		}
		sets[i] = set
	}
	return Schedule{
		minute:     sets[0],
		hour:       sets[1],
		dayOfMonth: sets[2],
		month:      sets[3],
		dayOfWeek:  sets[4],
	}, nil
}

// MustParse is Parse for expressions known at compile time.
func MustParse(expression string) Schedule {
	schedule, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return schedule
}

func has(set uint64, value int) bool { return set&(1<<uint(value)) != 0 }

// Next returns the first matching minute strictly after t, in t's
// location. It gives up after searching five years.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	location := t.Location()
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		switch {
		case !has(s.month, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, location)
		case !has(s.dayOfMonth, t.Day()) || !has(s.dayOfWeek, int(t.Weekday())):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, location)
		case !has(s.hour, t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, location)
		case !has(s.minute, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron: no matching time within 5 years of %s", t.Format(time.RFC3339))
}

func parseField(field string, min, max int) (uint64, error) {
	var set uint64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, min, max)
		if err != nil {
			return 0, err
		}
		set |= bits
	}
	return set, nil
}

func parseTerm(term string, min, max int) (uint64, error) {
	base, stepText, stepped := strings.Cut(term, "/")
	step := 1
	if stepped {
		parsed, err := strconv.Atoi(stepText)
		if err != nil || parsed <= 0 {
			return 0, fmt.Errorf("invalid step %q", stepText)
		}
		step = parsed
	}

	low, high := min, max
	if base != "*" {
		lowText, highText, isRange := strings.Cut(base, "-")
		var err error
		if low, err = strconv.Atoi(lowText); err != nil {
			return 0, fmt.Errorf("invalid value %q", lowText)
		}
		high = low
		if isRange {
			if high, err = strconv.Atoi(highText); err != nil {
				return 0, fmt.Errorf("invalid value %q", highText)
			}
		} else if stepped {
			// "5/15" means 5 through max every 15.
			high = max
		}
	}
	if low > high {
		return 0, fmt.Errorf("range %d-%d is reversed", low, high)
	}
	if low < min || high > max {
		return 0, fmt.Errorf("value out of range [%d-%d]: %d-%d", min, max, low, high)
	}

	var set uint64
	for value := low; value <= high; value += step {
		set |= 1 << uint(value)
	}
	return set, nil
}
