package core

import (
	"strings"
	"time"
)

var NowFunc = time.Now // mockable

// Now returns the current time in UTC.
func Now() time.Time {
	return NowFunc().UTC()
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// StartOfDay returns midnight of t's calendar day in loc, as UTC.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).UTC()
}

// DaysBetween counts calendar days in loc from a to b (b after a gives a positive number).
func DaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	da := a.In(loc)
	db := b.In(loc)
	ya := time.Date(da.Year(), da.Month(), da.Day(), 0, 0, 0, 0, time.UTC)
	yb := time.Date(db.Year(), db.Month(), db.Day(), 0, 0, 0, 0, time.UTC)
	return int(yb.Sub(ya).Hours() / 24)
}

// PercentOf returns floor(value * percent / 100).
func PercentOf(value, percent int) int {
	return value * percent / 100
}
