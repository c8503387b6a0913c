// Package calendar implements month-length-aware arithmetic on civil dates.
package calendar

import (
	"time"

	"cloud.google.com/go/civil"
)

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Clamp builds a date, moving day back to the last day of the month when the
// month is shorter.
func Clamp(year int, month time.Month, day int) civil.Date {
	// normalise month overflow first
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	y, m := t.Year(), t.Month()
	if last := DaysIn(y, m); day > last {
		day = last
	}
	return civil.Date{Year: y, Month: m, Day: day}
}

// AddMonthsClamped adds n calendar months to d, clamping to month end.
// Jan 31 + 1 month is Feb 28 (or 29).
func AddMonthsClamped(d civil.Date, n int) civil.Date {
	return Clamp(d.Year, d.Month+time.Month(n), d.Day)
}

// AddMonthsAnchored adds n months to base, using anchorDay (not base.Day) as the
// day of month, clamped. Repeated calls from the same base never drift.
func AddMonthsAnchored(base civil.Date, n, anchorDay int) civil.Date {
	return Clamp(base.Year, base.Month+time.Month(n), anchorDay)
}

// AddYearsClamped adds n years, mapping Feb 29 to Feb 28 in non-leap years.
func AddYearsClamped(d civil.Date, n int) civil.Date {
	return Clamp(d.Year+n, d.Month, d.Day)
}

// Compare returns -1, 0 or +1.
func Compare(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// OnOrBefore reports a <= b.
func OnOrBefore(a, b civil.Date) bool { return !a.After(b) }

// InRange reports start <= d < end.
func InRange(d, start, end civil.Date) bool {
	return !d.Before(start) && d.Before(end)
}

// Today returns the current date in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (civil.Date, error) {
	return civil.ParseDate(s)
}
