package domain

import (
	"context"
	"fmt"
	"time"
)

type Recurrence string

const (
	Daily   Recurrence = "daily"
	Weekly  Recurrence = "weekly"
	Monthly Recurrence = "monthly"
)

func ParseRecurrence(s string) (Recurrence, error) {
	switch Recurrence(s) {
	case Daily, Weekly, Monthly:
		return Recurrence(s), nil
	}
	return "", Validationf("recurrence", "unknown recurrence %q (want daily, weekly or monthly)", s)
}

// TimeOfDay is an hour:minute wall clock time in the scheduler's fixed timezone.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, Validationf("time_of_day", "invalid time %q (want HH:MM)", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant of this time of day on the calendar date of day.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

type ScheduleDefinition struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Environment Environment `json:"environment"`
	Recurrence  Recurrence  `json:"schedule_type"`
	TimeOfDay   TimeOfDay   `json:"time"`
	Active      bool        `json:"is_active"`
	LastRun     *time.Time  `json:"last_run"`
	CreatedBy   *string     `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	// ClaimedPeriod is the schedule period a tick has claimed for a run.
	ClaimedPeriod string `json:"-"`
}

func (s *ScheduleDefinition) Validate() error {
	if s.Name == "" {
		return Validationf("schedule", "name is required")
	}
	if _, err := ParseEnvironment(string(s.Environment)); err != nil {
		return err
	}
	if _, err := ParseRecurrence(string(s.Recurrence)); err != nil {
		return err
	}
	if s.TimeOfDay.Hour < 0 || s.TimeOfDay.Hour > 23 || s.TimeOfDay.Minute < 0 || s.TimeOfDay.Minute > 59 {
		return Validationf("schedule", "invalid time of day %s", s.TimeOfDay)
	}
	return nil
}

type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, s *ScheduleDefinition) error
	GetSchedule(ctx context.Context, id string) (*ScheduleDefinition, error)
	ListSchedules(ctx context.Context, activeOnly bool) ([]ScheduleDefinition, error)
	UpdateSchedule(ctx context.Context, s *ScheduleDefinition) error
	DeleteSchedule(ctx context.Context, id string) error
	// ClaimSchedule records period as claimed and reports whether this caller won the claim.
	ClaimSchedule(ctx context.Context, id, period string) (bool, error)
	ReleaseSchedule(ctx context.Context, id, period string) error
	MarkScheduleRun(ctx context.Context, id string, at time.Time) error
}
