// Package alarm decides which portfolio reminders are due at a given minute.
// Delivery is left to the notification collaborator.
package alarm

import (
	"slices"
	"time"

	"github.com/simaogato/dipledger-backend/internal/domain"
)

var defaultWeekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// Matches reports whether cfg fires at now, evaluated at minute granularity in loc
func Matches(cfg *domain.AlarmConfig, now time.Time, loc *time.Location) bool {
	if cfg == nil || !cfg.Enabled {
		return false
	}

	at, err := time.Parse("15:04", cfg.Time)
	if err != nil {
		return false
	}

	local := now.In(loc)
	weekdays := cfg.Weekdays
	if len(weekdays) == 0 {
		weekdays = defaultWeekdays
	}
	if !slices.Contains(weekdays, local.Weekday()) {
		return false
	}

	return local.Hour() == at.Hour() && local.Minute() == at.Minute()
}

// Due returns the open portfolios whose alarm fires at now
func Due(portfolios []*domain.Portfolio, now time.Time, loc *time.Location) []*domain.Portfolio {
	var due []*domain.Portfolio
	for _, p := range portfolios {
		if p == nil || p.IsClosed {
			continue
		}
		if Matches(p.AlarmConfig, now, loc) {
			due = append(due, p)
		}
	}
	return due
}
