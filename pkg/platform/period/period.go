// Package period computes collection-period windows. Daily and monthly
// scheme accounts settle against a calendar month, "collected today" checks
// against a calendar day, both reckoned in the business time zone rather
// than UTC. A window is half-open: From is inclusive, To is exclusive.
package period

import "time"

// Window is a half-open time interval [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Day returns the calendar-day window containing t, reckoned in loc.
func Day(t time.Time, loc *time.Location) Window {
	local := t.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{From: from, To: from.AddDate(0, 0, 1)}
}

// Month returns the calendar-month window containing t, reckoned in loc.
func Month(t time.Time, loc *time.Location) Window {
	local := t.In(loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Window{From: from, To: from.AddDate(0, 1, 0)}
}

// CivilDay maps an instant to the UTC-midnight representation of its
// calendar date in loc. Deposit dates are kept in this form so date-only
// values compare identically in Go and in SQL, whatever zone they were
// observed in.
func CivilDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return Day(a, loc).Contains(b)
}

// SameMonth reports whether a and b fall in the same calendar month in loc.
func SameMonth(a, b time.Time, loc *time.Location) bool {
	return Month(a, loc).Contains(b)
}
