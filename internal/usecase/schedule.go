package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/semmidev/dbbackup/internal/domain"
)

// BackupRunner starts a backup. *Backup satisfies it.
type BackupRunner interface {
	RunBackup(ctx context.Context, req BackupRequest) (*domain.BackupRecord, error)
}

// InterruptRecoverer fails records abandoned by a dead process. *Backup satisfies it.
type InterruptRecoverer interface {
	RecoverInterrupted(ctx context.Context) (int, error)
}

// ScheduleTick starts every active schedule that is due. Running it twice in
// the same period starts nothing new: a schedule must win a claim on the
// period before its backup is launched.
type ScheduleTick struct {
	schedules domain.ScheduleRepository
	backups   domain.BackupRepository
	runner    BackupRunner
	metrics   Metrics
	logger    Logger
	loc       *time.Location
	now       func() time.Time
}

func NewScheduleTick(
	schedules domain.ScheduleRepository,
	backups domain.BackupRepository,
	runner BackupRunner,
	metrics Metrics,
	logger Logger,
	loc *time.Location,
) *ScheduleTick {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleTick{
		schedules: schedules,
		backups:   backups,
		runner:    runner,
		metrics:   metrics,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// Execute matches the scheduler job signature.
func (uc *ScheduleTick) Execute(ctx context.Context) error {
	_, err := uc.RunDue(ctx)
	return err
}

// RunDue returns the records started by this tick.
func (uc *ScheduleTick) RunDue(ctx context.Context) ([]domain.BackupRecord, error) {
	// An abandoned run would otherwise block its schedule as still running.
	if r, ok := uc.runner.(InterruptRecoverer); ok {
		if _, err := r.RecoverInterrupted(ctx); err != nil {
			uc.logger.Errorf("Failed to recover interrupted backups: %v", err)
		}
	}

	schedules, err := uc.schedules.ListSchedules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	now := uc.now()
	started := make([]domain.BackupRecord, 0)
	var errs []error

	for _, s := range schedules {
		if !IsDue(s, now, uc.loc) {
			continue
		}

		rec, err := uc.runOne(ctx, s, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", s.Name, err))
			continue
		}
		if rec != nil {
			started = append(started, *rec)
		}
	}

	return started, errors.Join(errs...)
}

func (uc *ScheduleTick) runOne(ctx context.Context, s domain.ScheduleDefinition, now time.Time) (*domain.BackupRecord, error) {
	running, err := uc.backups.FindInProgressBySchedule(ctx, s.Name)
	if err != nil {
		return nil, err
	}
	if running != nil {
		hazard := domain.NewError(domain.KindConcurrencyHazard, "schedule tick",
			fmt.Sprintf("previous run %s is still in progress", running.ID), nil)
		uc.logger.Warnf("[%s] Skipping schedule %s: %v", s.Environment, s.Name, hazard)
		uc.metrics.ScheduleSkipped("still_running")
		return nil, nil
	}

	period := PeriodKey(s, now, uc.loc)
	won, err := uc.schedules.ClaimSchedule(ctx, s.ID, period)
	if err != nil {
		return nil, err
	}
	if !won {
		uc.metrics.ScheduleSkipped("claimed")
		return nil, nil
	}

	uc.logger.Infof("[%s] === Triggered scheduled backup %s (%s) ===", s.Environment, s.Name, period)
	rec, err := uc.runner.RunBackup(ctx, BackupRequest{
		Environment:  string(s.Environment),
		Kind:         domain.KindScheduled,
		Actor:        s.CreatedBy,
		Notes:        "Scheduled backup: " + s.Name,
		ScheduleID:   s.ID,
		ScheduleName: s.Name,
		Period:       period,
	})
	if err != nil {
		if rerr := uc.schedules.ReleaseSchedule(context.WithoutCancel(ctx), s.ID, period); rerr != nil {
			uc.logger.Errorf("[%s] Failed to release schedule %s: %v", s.Environment, s.Name, rerr)
		}
		return nil, err
	}
	return rec, nil
}

// ScheduleInput carries the editable fields of a schedule.
type ScheduleInput struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
	Recurrence  string `json:"schedule_type"`
	Time        string `json:"time"`
	Active      *bool  `json:"is_active"`
}

type ScheduleView struct {
	domain.ScheduleDefinition
	NextRun *time.Time `json:"next_run"`
}

// Schedules manages schedule definitions.
type Schedules struct {
	repo domain.ScheduleRepository
	loc  *time.Location
	now  func() time.Time
}

func NewSchedules(repo domain.ScheduleRepository, loc *time.Location) *Schedules {
	if loc == nil {
		loc = time.UTC
	}
	return &Schedules{repo: repo, loc: loc, now: time.Now}
}

func (uc *Schedules) Create(ctx context.Context, in ScheduleInput, actor *string) (*ScheduleView, error) {
	s := &domain.ScheduleDefinition{Active: true, CreatedBy: actor}
	if err := apply(s, in); err != nil {
		return nil, err
	}
	if err := uc.repo.CreateSchedule(ctx, s); err != nil {
		return nil, err
	}
	return uc.view(*s), nil
}

func (uc *Schedules) Update(ctx context.Context, id string, in ScheduleInput) (*ScheduleView, error) {
	s, err := uc.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(s, in); err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateSchedule(ctx, s); err != nil {
		return nil, err
	}
	return uc.view(*s), nil
}

func (uc *Schedules) Get(ctx context.Context, id string) (*ScheduleView, error) {
	s, err := uc.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	return uc.view(*s), nil
}

func (uc *Schedules) List(ctx context.Context) ([]ScheduleView, error) {
	schedules, err := uc.repo.ListSchedules(ctx, false)
	if err != nil {
		return nil, err
	}
	views := make([]ScheduleView, 0, len(schedules))
	for _, s := range schedules {
		views = append(views, *uc.view(s))
	}
	return views, nil
}

func (uc *Schedules) Delete(ctx context.Context, id string) error {
	return uc.repo.DeleteSchedule(ctx, id)
}

func (uc *Schedules) view(s domain.ScheduleDefinition) *ScheduleView {
	v := &ScheduleView{ScheduleDefinition: s}
	if next := NextRun(s, uc.now(), uc.loc); !next.IsZero() {
		v.NextRun = &next
	}
	return v
}

// apply copies the non-empty fields of in onto s.
func apply(s *domain.ScheduleDefinition, in ScheduleInput) error {
	if in.Name != "" {
		s.Name = in.Name
	}
	if in.Environment != "" {
		env, err := domain.ParseEnvironment(in.Environment)
		if err != nil {
			return err
		}
		s.Environment = env
	}
	if in.Recurrence != "" {
		r, err := domain.ParseRecurrence(in.Recurrence)
		if err != nil {
			return err
		}
		s.Recurrence = r
	}
	if in.Time != "" {
		t, err := domain.ParseTimeOfDay(in.Time)
		if err != nil {
			return err
		}
		s.TimeOfDay = t
	}
	if in.Active != nil {
		s.Active = *in.Active
	}
	return s.Validate()
}
