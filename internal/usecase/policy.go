package usecase

import (
	"time"

	"github.com/semmidev/dbbackup/internal/domain"
)

// WeeklyDay is the only weekday on which weekly schedules run.
const WeeklyDay = time.Sunday

// IsDue reports whether schedule should start a run at now, evaluated in loc.
// The same-period guard is checked before the time-of-day gate, so a schedule
// fires at most once per period however often it is polled.
func IsDue(s domain.ScheduleDefinition, now time.Time, loc *time.Location) bool {
	if !s.Active {
		return false
	}

	local := now.In(loc)

	if s.LastRun != nil && samePeriod(s.Recurrence, s.LastRun.In(loc), local) {
		return false
	}

	switch s.Recurrence {
	case domain.Daily:
	case domain.Weekly:
		if local.Weekday() != WeeklyDay {
			return false
		}
	case domain.Monthly:
		if local.Day() != 1 {
			return false
		}
	default:
		return false
	}

	return !local.Before(s.TimeOfDay.On(local))
}

// PeriodKey names the period now falls in, e.g. "daily:2025-06-01" or "monthly:2025-06".
func PeriodKey(s domain.ScheduleDefinition, now time.Time, loc *time.Location) string {
	local := now.In(loc)
	if s.Recurrence == domain.Monthly {
		return string(s.Recurrence) + ":" + local.Format("2006-01")
	}
	return string(s.Recurrence) + ":" + local.Format("2006-01-02")
}

// NextRun is the next instant at which the schedule becomes due. A schedule that
// is due already returns now; an inactive one returns the zero time.
func NextRun(s domain.ScheduleDefinition, now time.Time, loc *time.Location) time.Time {
	if !s.Active {
		return time.Time{}
	}
	if IsDue(s, now, loc) {
		return now.In(loc).Truncate(time.Minute)
	}

	local := now.In(loc)
	for i := 0; i <= 62; i++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+i, 0, 0, 0, 0, loc)
		at := s.TimeOfDay.On(day)
		if !at.After(local) {
			continue
		}
		if IsDue(s, at, loc) {
			return at
		}
	}
	return time.Time{}
}

func samePeriod(r domain.Recurrence, a, b time.Time) bool {
	if r == domain.Monthly {
		return a.Year() == b.Year() && a.Month() == b.Month()
	}
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
