package utils

import (
	"time"
)

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]struct{}, len(slice))
	out := make([]T, 0, len(slice))
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// TruncateToDate drops the clock part, keeping the calendar date in UTC.
func TruncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the current calendar date in UTC.
func Today() time.Time {
	return TruncateToDate(time.Now().UTC())
}

// DaysBetween returns b - a in whole calendar days.
func DaysBetween(a, b time.Time) int {
	a = TruncateToDate(a)
	b = TruncateToDate(b)
	return int(b.Sub(a).Hours() / 24)
}

// AbsDaysBetween is |DaysBetween(a, b)|.
func AbsDaysBetween(a, b time.Time) int {
	d := DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

// AddMonthsClamped moves t by n calendar months, clamping the day to the
// target month's last day (Jan 31 + 1 month = Feb 28/29).
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// MaxDate returns the latest non-nil date, or nil.
func MaxDate(dates ...*time.Time) *time.Time {
	var out *time.Time
	for _, d := range dates {
		if d == nil {
			continue
		}
		if out == nil || d.After(*out) {
			v := *d
			out = &v
		}
	}
	return out
}

// MinDate returns the earliest non-nil date, or nil.
func MinDate(dates ...*time.Time) *time.Time {
	var out *time.Time
	for _, d := range dates {
		if d == nil {
			continue
		}
		if out == nil || d.Before(*out) {
			v := *d
			out = &v
		}
	}
	return out
}
