package timeutil

import "time"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// Today returns the current date at UTC midnight
func Today() time.Time {
	return StartOfDay(Now())
}

// ParseDate parses a date string and returns a UTC time
func ParseDate(layout, value string) (time.Time, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Date builds a UTC date at midnight
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the start of the day (midnight) in UTC
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ToUTC converts a time.Time to UTC if it isn't already
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// DaysIn returns the number of calendar days in the given month
func DaysIn(year int, month time.Month) int {
	// day 0 of the following month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped advances t by the given number of calendar months,
// clamping the day-of-month to the target month's length. Unlike
// time.AddDate, Jan 31 + 1 month yields Feb 28/29, never Mar 2.
func AddMonthsClamped(t time.Time, months int) time.Time {
	t = StartOfDay(t)
	day := t.Day()
	anchor := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysIn(anchor.Year(), anchor.Month()); day > last {
		day = last
	}
	return time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, time.UTC)
}

// ClampDayOfMonth returns t with its day-of-month set to day, or to the
// month's last day when the month is shorter
func ClampDayOfMonth(t time.Time, day int) time.Time {
	t = StartOfDay(t)
	if last := DaysIn(t.Year(), t.Month()); day > last {
		day = last
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole days from a to b.
// Negative when b is before a. Both arguments are truncated to UTC midnight.
func DaysBetween(a, b time.Time) int {
	a = StartOfDay(a)
	b = StartOfDay(b)
	return int(b.Sub(a) / (24 * time.Hour))
}

// WholeMonthsBetween returns the number of complete calendar months from
// a to b. Partial trailing months are not counted; negative when b precedes a.
func WholeMonthsBetween(a, b time.Time) int {
	a = StartOfDay(a)
	b = StartOfDay(b)
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if months > 0 && b.Day() < a.Day() {
		months--
	} else if months < 0 && b.Day() > a.Day() {
		months++
	}
	return months
}

// MinDate returns the earlier of two times
func MinDate(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
