package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/semmidev/dbbackup/internal/domain"
)

const backupColumns = `id, filename, environment, file_size, database_version, backup_type,
	status, progress, created_by, schedule_name, notes, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) CreateBackup(ctx context.Context, b *domain.BackupRecord) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	if b.Status == "" {
		b.Status = domain.StatusInProgress
	}
	if b.DatabaseVersion == "" {
		b.DatabaseVersion = domain.UnknownVersion
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO backups (`+backupColumns+`, heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Filename, string(b.Environment), b.FileSize, b.DatabaseVersion, string(b.Kind),
		string(b.Status), b.Progress, nullString(b.CreatedBy), b.ScheduleName, b.Notes,
		formatTime(b.CreatedAt), nullTime(b.FinishedAt), formatTime(b.CreatedAt),
	)
	if isUniqueViolation(err) {
		return domain.NewError(domain.KindValidation, "create backup", "filename collision: "+b.Filename, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert backup: %w", err)
	}
	return nil
}

func (s *Store) GetBackup(ctx context.Context, id string) (*domain.BackupRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backupColumns+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("get backup", "backup %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	return b, nil
}

// ListBackups returns matching records, newest first.
func (s *Store) ListBackups(ctx context.Context, filter domain.BackupFilter) ([]domain.BackupRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Environment != "" {
		where = append(where, "environment = ?")
		args = append(args, string(filter.Environment))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		where = append(where, "backup_type = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.ScheduleName != "" {
		where = append(where, "schedule_name = ?")
		args = append(args, filter.ScheduleName)
	}
	if !filter.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(filter.CreatedBefore))
	}
	if !filter.StaleBefore.IsZero() {
		where = append(where, "COALESCE(heartbeat_at, created_at) < ?")
		args = append(args, formatTime(filter.StaleBefore))
	}

	query := `SELECT ` + backupColumns + ` FROM backups`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	records := make([]domain.BackupRecord, 0)
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		records = append(records, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return records, nil
}

// UpdateProgress is a no-op once the record is terminal or when p does not advance it.
// An accepted update also refreshes the heartbeat.
func (s *Store) UpdateProgress(ctx context.Context, id string, p int) error {
	if p > 100 {
		p = 100
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET progress = ?, heartbeat_at = ? WHERE id = ? AND status = ? AND progress < ?`,
		p, formatTime(s.now()), id, string(domain.StatusInProgress), p,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// Touch refreshes the heartbeat of an in-progress record.
func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET heartbeat_at = ? WHERE id = ? AND status = ?`,
		formatTime(s.now()), id, string(domain.StatusInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to touch backup: %w", err)
	}
	return nil
}

func (s *Store) CompleteBackup(ctx context.Context, id string, size int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backups SET status = ?, progress = 100, file_size = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusCompleted), size, formatTime(at), id, string(domain.StatusInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to complete backup: %w", err)
	}
	return s.checkTransition(ctx, res, "complete backup", id)
}

func (s *Store) FailBackup(ctx context.Context, id string, notes string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backups SET status = ?, notes = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusFailed), notes, formatTime(at), id, string(domain.StatusInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to fail backup: %w", err)
	}
	return s.checkTransition(ctx, res, "fail backup", id)
}

func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	if n == 0 {
		return domain.NotFoundf("delete backup", "backup %s not found", id)
	}
	return nil
}

func (s *Store) FindInProgressBySchedule(ctx context.Context, scheduleName string) (*domain.BackupRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backupColumns+` FROM backups
		WHERE schedule_name = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`,
		scheduleName, string(domain.StatusInProgress),
	)
	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find running backup: %w", err)
	}
	return b, nil
}

// checkTransition explains why a status update touched no row.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM backups WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf(op, "backup %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return domain.Validationf(op, "backup %s is already %s", id, status)
}

func scanBackup(row rowScanner) (*domain.BackupRecord, error) {
	var (
		b                     domain.BackupRecord
		env, kind, status     string
		createdBy, finishedAt sql.NullString
		createdAt             string
	)
	err := row.Scan(&b.ID, &b.Filename, &env, &b.FileSize, &b.DatabaseVersion, &kind,
		&status, &b.Progress, &createdBy, &b.ScheduleName, &b.Notes, &createdAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	b.Environment = domain.Environment(env)
	b.Kind = domain.BackupKind(kind)
	b.Status = domain.BackupStatus(status)
	b.CreatedBy = stringPtr(createdBy)

	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if b.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, fmt.Errorf("invalid finished_at %q: %w", finishedAt.String, err)
	}
	return &b, nil
}
