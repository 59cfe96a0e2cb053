package calendar

import (
	"fmt"
	"time"
)

// BusinessTimezone is the fixed UTC+9 clock used for every calendar and cutoff
// decision, independent of the exchange's own timezone.
var BusinessTimezone = time.FixedZone("UTC+9", 9*60*60)

// DefaultCloseCutoff is the local time at which the previous session's close
// is published by the price feed.
const DefaultCloseCutoff = 7*time.Hour + 20*time.Minute

// Status reasons
const (
	ReasonOpen    = "open"
	ReasonWeekend = "weekend"
	ReasonHoliday = "holiday"
)

// MarketStatus describes the market state at a point in time
type MarketStatus struct {
	Date                string // business-timezone date
	Open                bool
	Reason              string
	Holiday             string // holiday name when Reason is ReasonHoliday
	FreshCloseAvailable bool
}

// Calendar answers market questions for timestamps
type Calendar struct {
	loc    *time.Location
	cutoff time.Duration
}

// New creates a Calendar for the given location and daily close cutoff
func New(loc *time.Location, cutoff time.Duration) *Calendar {
	if loc == nil {
		loc = BusinessTimezone
	}
	return &Calendar{loc: loc, cutoff: cutoff}
}

// Default creates a Calendar in the business timezone with the 07:20 cutoff
func Default() *Calendar {
	return New(BusinessTimezone, DefaultCloseCutoff)
}

// ParseCutoff parses an "HH:MM" cutoff into a duration since midnight
func ParseCutoff(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Location returns the calendar's business timezone
func (c *Calendar) Location() *time.Location { return c.loc }

// Today returns the business-timezone date of now as YYYY-MM-DD
func (c *Calendar) Today(now time.Time) string {
	return now.In(c.loc).Format(DateFormat)
}

// HolidayName returns the name of the holiday observed on the business-timezone
// date of t, if any. The lookup uses the holiday set of that date's own year.
func (c *Calendar) HolidayName(t time.Time) (string, bool) {
	local := t.In(c.loc)
	name, ok := HolidaySet(local.Year())[local.Format(DateFormat)]
	return name, ok
}

// IsMarketOpen reports whether now falls on a business-timezone weekday that is
// not an observed holiday.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	return c.Status(now).Open
}

// HasFreshCloseAvailable reports whether a new previous-session close can be
// expected from the price feed.
//
// Logic:
//   - local weekday is Tuesday to Saturday (the sessions of Monday to Friday)
//   - local time is at or after the cutoff
//   - the previous local calendar day was not a holiday
func (c *Calendar) HasFreshCloseAvailable(now time.Time) bool {
	local := now.In(c.loc)

	switch local.Weekday() {
	case time.Sunday, time.Monday:
		return false
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	if local.Sub(midnight) < c.cutoff {
		return false
	}

	if _, holiday := c.HolidayName(midnight.AddDate(0, 0, -1)); holiday {
		return false
	}
	return true
}

// Status returns the full market status at now
func (c *Calendar) Status(now time.Time) MarketStatus {
	local := now.In(c.loc)
	status := MarketStatus{
		Date:                local.Format(DateFormat),
		Open:                true,
		Reason:              ReasonOpen,
		FreshCloseAvailable: c.HasFreshCloseAvailable(now),
	}

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		status.Open = false
		status.Reason = ReasonWeekend
		return status
	}

	if name, ok := c.HolidayName(local); ok {
		status.Open = false
		status.Reason = ReasonHoliday
		status.Holiday = name
	}
	return status
}
