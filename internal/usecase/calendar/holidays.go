// Package calendar resolves U.S. market holidays and derives market status
// in the fixed business timezone.
package calendar

import "time"

// DateFormat is the ISO-8601 layout used for holiday keys and snapshot dates
const DateFormat = "2006-01-02"

// Holiday is a named market holiday resolved for a given year
type Holiday struct {
	Name     string
	Actual   time.Time // the rule date
	Observed time.Time // after the weekend shift
}

// Holidays returns the nine fixed-rule U.S. market holidays of a year.
//
// Fixed-date holidays falling on a Saturday are observed the preceding Friday,
// on a Sunday the following Monday. Nth-weekday holidays never fall on a weekend,
// and Thanksgiving has no shift rule at all.
func Holidays(year int) []Holiday {
	fixed := func(name string, month time.Month, day int) Holiday {
		actual := date(year, month, day)
		return Holiday{Name: name, Actual: actual, Observed: observed(actual)}
	}
	floating := func(name string, actual time.Time) Holiday {
		return Holiday{Name: name, Actual: actual, Observed: actual}
	}

	return []Holiday{
		fixed("New Year's Day", time.January, 1),
		floating("Martin Luther King Jr. Day", nthWeekday(year, time.January, time.Monday, 3)),
		floating("Presidents' Day", nthWeekday(year, time.February, time.Monday, 3)),
		floating("Memorial Day", lastWeekday(year, time.May, time.Monday)),
		fixed("Juneteenth", time.June, 19),
		fixed("Independence Day", time.July, 4),
		floating("Labor Day", nthWeekday(year, time.September, time.Monday, 1)),
		floating("Thanksgiving Day", nthWeekday(year, time.November, time.Thursday, 4)),
		fixed("Christmas Day", time.December, 25),
	}
}

// HolidaySet returns the observed holiday dates of a year, keyed by ISO date
// with the holiday name as value.
func HolidaySet(year int) map[string]string {
	set := make(map[string]string, 9)
	for _, h := range Holidays(year) {
		set[h.Observed.Format(DateFormat)] = h.Name
	}
	return set
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func observed(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}

// nthWeekday returns the n-th (1-based) given weekday of a month
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := date(year, month, 1)
	offset := int(weekday - first.Weekday())
	if offset < 0 {
		offset += 7
	}
	return first.AddDate(0, 0, offset+7*(n-1))
}

// lastWeekday returns the last given weekday of a month
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := date(year, month+1, 0)
	offset := int(last.Weekday() - weekday)
	if offset < 0 {
		offset += 7
	}
	return last.AddDate(0, 0, -offset)
}
