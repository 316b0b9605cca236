package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/semmidev/dbbackup/internal/domain"
)

// BackupDeleter removes a record together with its dump. *Backup satisfies it.
type BackupDeleter interface {
	Delete(ctx context.Context, id string) error
}

type CleanupReport struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Cleanup enforces retention: terminal records older than the retention window
// are deleted through the normal file-first delete, then remote targets are pruned.
type Cleanup struct {
	backups       domain.BackupRepository
	deleter       BackupDeleter
	uploadTargets []UploadTarget
	logger        Logger
	retentionDays int
	loc           *time.Location
	now           func() time.Time
}

func NewCleanup(
	backups domain.BackupRepository,
	deleter BackupDeleter,
	uploadTargets []UploadTarget,
	logger Logger,
	retentionDays int,
	loc *time.Location,
) *Cleanup {
	if loc == nil {
		loc = time.UTC
	}
	return &Cleanup{
		backups:       backups,
		deleter:       deleter,
		uploadTargets: uploadTargets,
		logger:        logger,
		retentionDays: retentionDays,
		loc:           loc,
		now:           time.Now,
	}
}

func (uc *Cleanup) Execute(ctx context.Context) error {
	_, err := uc.Run(ctx)
	return err
}

func (uc *Cleanup) Run(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	if uc.retentionDays <= 0 {
		uc.logger.Infof("Cleanup disabled (retention_days = %d)", uc.retentionDays)
		return report, nil
	}

	uc.logger.Infof("Starting cleanup, retention: %d days", uc.retentionDays)

	if r, ok := uc.deleter.(InterruptRecoverer); ok {
		if _, err := r.RecoverInterrupted(ctx); err != nil {
			uc.logger.Errorf("Failed to recover interrupted backups: %v", err)
		}
	}
	cutoff := uc.now().AddDate(0, 0, -uc.retentionDays)

	for _, status := range []domain.BackupStatus{domain.StatusCompleted, domain.StatusFailed} {
		records, err := uc.backups.ListBackups(ctx, domain.BackupFilter{Status: status, CreatedBefore: cutoff})
		if err != nil {
			return report, fmt.Errorf("list expired backups: %w", err)
		}

		for _, rec := range records {
			uc.logger.Infof("[%s] Deleting expired backup: %s", rec.Environment, rec.Filename)
			if err := uc.deleter.Delete(ctx, rec.ID); err != nil {
				uc.logger.Errorf("[%s] Failed to delete %s: %v", rec.Environment, rec.Filename, err)
				report.Failed++
				continue
			}
			report.Deleted++
		}
	}

	if len(uc.uploadTargets) > 0 {
		uc.cleanupTargets(ctx, cutoff)
	}

	uc.logger.Infof("Cleanup completed: %d deleted, %d failed", report.Deleted, report.Failed)
	return report, nil
}

func (uc *Cleanup) cleanupTargets(ctx context.Context, cutoff time.Time) {
	var wg sync.WaitGroup

	for _, target := range uc.uploadTargets {
		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			if err := uc.cleanupTarget(ctx, t, cutoff); err != nil {
				uc.logger.Errorf("Cleanup failed for %s: %v", t.Name, err)
			}
		}(target)
	}

	wg.Wait()
}

func (uc *Cleanup) cleanupTarget(ctx context.Context, target UploadTarget, cutoff time.Time) error {
	files, err := target.Storage.GetOldFiles(ctx, cutoff)
	if err != nil {
		files, err = uc.fallbackListFiles(ctx, target, cutoff)
	}
	if errors.Is(err, errors.ErrUnsupported) {
		uc.logger.Infof("Skipping cleanup for %s: retention is not supported", target.Name)
		return nil
	}
	if err != nil {
		return err
	}

	deleted := 0
	for _, filename := range files {
		uc.logger.Infof("Deleting old backup from %s: %s", target.Name, filename)

		if err := target.Storage.Delete(ctx, filename); err != nil {
			uc.logger.Errorf("Failed to delete %s from %s: %v", filename, target.Name, err)
		} else {
			deleted++
		}
	}

	uc.logger.Infof("Deleted %d old backup(s) from %s", deleted, target.Name)
	return nil
}

// fallbackListFiles dates remote files by the timestamp in their name.
func (uc *Cleanup) fallbackListFiles(ctx context.Context, target UploadTarget, cutoff time.Time) ([]string, error) {
	files, err := target.Storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	oldFiles := make([]string, 0)
	for _, filename := range files {
		timestamp, err := extractTimestamp(filename, uc.loc)
		if err != nil {
			uc.logger.Warnf("Could not parse timestamp from %s: %v", filename, err)
			continue
		}

		if timestamp.Before(cutoff) {
			oldFiles = append(oldFiles, filename)
		}
	}

	return oldFiles, nil
}
