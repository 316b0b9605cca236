package domain

import (
	"context"
	"fmt"
	"time"
)

type Environment string

const (
	EnvLocal      Environment = "local"
	EnvProduction Environment = "production"
)

func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvLocal, EnvProduction:
		return Environment(s), nil
	}
	return "", Validationf("environment", "unknown environment %q (want local or production)", s)
}

// Code is the 3-letter environment code used in dump filenames.
func (e Environment) Code() string {
	if len(e) < 3 {
		return string(e)
	}
	return string(e)[:3]
}

type BackupKind string

const (
	KindManual    BackupKind = "manual"
	KindScheduled BackupKind = "scheduled"
)

type BackupStatus string

const (
	StatusInProgress BackupStatus = "in_progress"
	StatusCompleted  BackupStatus = "completed"
	StatusFailed     BackupStatus = "failed"
)

// UnknownVersion is recorded when the server version cannot be detected.
const UnknownVersion = "Unknown"

// BackupRecord is one backup attempt. Filename is the only link to the dump on disk.
type BackupRecord struct {
	ID              string       `json:"id"`
	Filename        string       `json:"filename"`
	Environment     Environment  `json:"environment"`
	FileSize        int64        `json:"file_size"`
	DatabaseVersion string       `json:"database_version"`
	Kind            BackupKind   `json:"backup_type"`
	Status          BackupStatus `json:"status"`
	Progress        int          `json:"progress"`
	CreatedBy       *string      `json:"created_by"`
	ScheduleName    string       `json:"schedule_name,omitempty"`
	Notes           string       `json:"notes"`
	CreatedAt       time.Time    `json:"created_at"`
	FinishedAt      *time.Time   `json:"finished_at"`
}

func (b *BackupRecord) IsTerminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusFailed
}

func (b *BackupRecord) SizeDisplay() string {
	return FormatSize(b.FileSize)
}

// FormatSize renders a byte count as "12.3 MB".
func FormatSize(n int64) string {
	if n == 0 {
		return "0 B"
	}
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f PB", size)
}

type BackupFilter struct {
	Environment   Environment
	Status        BackupStatus
	Kind          BackupKind
	ScheduleName  string
	CreatedBefore time.Time
	// StaleBefore matches records whose last heartbeat is older than this.
	StaleBefore time.Time
	Limit       int
	Offset      int
}

type BackupRepository interface {
	CreateBackup(ctx context.Context, b *BackupRecord) error
	GetBackup(ctx context.Context, id string) (*BackupRecord, error)
	ListBackups(ctx context.Context, filter BackupFilter) ([]BackupRecord, error)
	// UpdateProgress only applies while the record is in progress and p exceeds the stored value.
	UpdateProgress(ctx context.Context, id string, p int) error
	// Touch marks an in-progress record as still owned by a live run.
	Touch(ctx context.Context, id string) error
	CompleteBackup(ctx context.Context, id string, size int64, at time.Time) error
	FailBackup(ctx context.Context, id string, notes string, at time.Time) error
	DeleteBackup(ctx context.Context, id string) error
	// FindInProgressBySchedule returns the running record of a schedule, or nil.
	FindInProgressBySchedule(ctx context.Context, scheduleName string) (*BackupRecord, error)
}
