package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semmidev/dbbackup/internal/domain"
)

const scheduleColumns = `id, name, environment, schedule_type, hour, minute, is_active,
	last_run, claimed_period, created_by, created_at, updated_at`

func (s *Store) CreateSchedule(ctx context.Context, sc *domain.ScheduleDefinition) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := s.now()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Name, string(sc.Environment), string(sc.Recurrence), sc.TimeOfDay.Hour, sc.TimeOfDay.Minute,
		sc.Active, nullTime(sc.LastRun), sc.ClaimedPeriod, nullString(sc.CreatedBy),
		formatTime(sc.CreatedAt), formatTime(sc.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return domain.NewError(domain.KindValidation, "create schedule", "schedule name already exists: "+sc.Name, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*domain.ScheduleDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("get schedule", "schedule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return sc, nil
}

func (s *Store) ListSchedules(ctx context.Context, activeOnly bool) ([]domain.ScheduleDefinition, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]domain.ScheduleDefinition, 0)
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

// UpdateSchedule rewrites the editable fields. last_run and the claim are left alone.
func (s *Store) UpdateSchedule(ctx context.Context, sc *domain.ScheduleDefinition) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	sc.UpdatedAt = s.now()

	res, err := s.db.ExecContext(ctx, `UPDATE schedules
		SET name = ?, environment = ?, schedule_type = ?, hour = ?, minute = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		sc.Name, string(sc.Environment), string(sc.Recurrence), sc.TimeOfDay.Hour, sc.TimeOfDay.Minute,
		sc.Active, formatTime(sc.UpdatedAt), sc.ID,
	)
	if isUniqueViolation(err) {
		return domain.NewError(domain.KindValidation, "update schedule", "schedule name already exists: "+sc.Name, err)
	}
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return expectRow(res, "update schedule", sc.ID)
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return expectRow(res, "delete schedule", id)
}

// ClaimSchedule is a conditional update; only one caller per period sees true.
func (s *Store) ClaimSchedule(ctx context.Context, id, period string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET claimed_period = ? WHERE id = ? AND is_active = TRUE AND claimed_period <> ?`,
		period, id, period,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ReleaseSchedule(ctx context.Context, id, period string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET claimed_period = '' WHERE id = ? AND claimed_period = ?`, id, period)
	if err != nil {
		return fmt.Errorf("failed to release schedule: %w", err)
	}
	return nil
}

func (s *Store) MarkScheduleRun(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET last_run = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}
	return expectRow(res, "mark schedule run", id)
}

func expectRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return domain.NotFoundf(op, "schedule %s not found", id)
	}
	return nil
}

func scanSchedule(row rowScanner) (*domain.ScheduleDefinition, error) {
	var (
		sc                   domain.ScheduleDefinition
		env, recurrence      string
		lastRun, createdBy   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&sc.ID, &sc.Name, &env, &recurrence, &sc.TimeOfDay.Hour, &sc.TimeOfDay.Minute,
		&sc.Active, &lastRun, &sc.ClaimedPeriod, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sc.Environment = domain.Environment(env)
	sc.Recurrence = domain.Recurrence(recurrence)
	sc.CreatedBy = stringPtr(createdBy)

	if sc.LastRun, err = parseNullTime(lastRun); err != nil {
		return nil, fmt.Errorf("invalid last_run %q: %w", lastRun.String, err)
	}
	if sc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if sc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return &sc, nil
}
