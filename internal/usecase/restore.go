package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/dbbackup/internal/domain"
)

// Confirmation tokens a caller must type before an irreversible restore.
const (
	ConfirmDrop              = "DROP"
	ConfirmProduction        = "RESTORE PRODUCTION"
	ConfirmDropAndProduction = "DROP AND RESTORE PRODUCTION"
)

type RestoreRequest struct {
	// File is a dump path. BackupID selects a completed backup instead.
	File         string
	BackupID     string
	Environment  string
	Mode         string
	Confirmation string
}

type RestoreResult struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	File     string        `json:"file"`
	Duration time.Duration `json:"duration"`
}

type Restore struct {
	backup  *Backup
	metrics Metrics
	logger  Logger
	timeout time.Duration
}

func NewRestore(backup *Backup, metrics Metrics, logger Logger, timeout time.Duration) *Restore {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Restore{backup: backup, metrics: metrics, logger: logger, timeout: timeout}
}

// RequiredConfirmation is the token needed for env and mode, or "" if none.
func RequiredConfirmation(env domain.Environment, mode domain.RestoreMode) string {
	switch {
	case mode == domain.RestoreDrop && env == domain.EnvProduction:
		return ConfirmDropAndProduction
	case mode == domain.RestoreDrop:
		return ConfirmDrop
	case env == domain.EnvProduction:
		return ConfirmProduction
	}
	return ""
}

// ValidateRestore checks every precondition of a restore without side effects.
// It only reads: the same input always yields the same result.
func (uc *Restore) ValidateRestore(req RestoreRequest) (Target, domain.RestoreMode, error) {
	target, err := uc.backup.target(req.Environment)
	if err != nil {
		return Target{}, "", err
	}
	mode, err := domain.ParseRestoreMode(req.Mode)
	if err != nil {
		return Target{}, "", err
	}

	if req.File == "" {
		return Target{}, "", domain.Validationf("restore", "backup file is required")
	}
	if !strings.EqualFold(filepath.Ext(req.File), DumpExtension) {
		return Target{}, "", domain.Validationf("restore", "backup file must have the %s extension: %s", DumpExtension, req.File)
	}

	info, err := os.Stat(req.File)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Target{}, "", domain.Validationf("restore", "backup file not found: %s", req.File)
	case err != nil:
		return Target{}, "", domain.NewError(domain.KindFileSystem, "restore", "cannot read backup file", err)
	case !info.Mode().IsRegular():
		return Target{}, "", domain.Validationf("restore", "backup file is not a regular file: %s", req.File)
	}

	if want := RequiredConfirmation(target.Environment, mode); want != "" && req.Confirmation != want {
		return Target{}, "", domain.Validationf("restore", "confirmation %q is required to restore %s in %s mode",
			want, target.Environment, mode)
	}

	return target, mode, nil
}

// RunRestore resolves the source dump, validates the request and runs psql.
// Validation failures return before any process is started.
func (uc *Restore) RunRestore(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	if req.BackupID != "" {
		path, _, err := uc.backup.DownloadPath(ctx, req.BackupID)
		if err != nil {
			return nil, err
		}
		req.File = path
	}

	target, mode, err := uc.ValidateRestore(req)
	if err != nil {
		return nil, err
	}

	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	uc.logger.Warnf("[%s] Restoring %s in %s mode", target.Environment, req.File, mode)
	res, err := target.Database.Restore(ctx, req.File, mode)

	result := &RestoreResult{File: req.File, Duration: res.Duration}
	uc.metrics.RestoreFinished(string(target.Environment), string(mode), err == nil)
	if err != nil {
		result.Message = fmt.Sprintf("Restore failed: %v", err)
		uc.logger.Errorf("[%s] %s", target.Environment, result.Message)
		return result, err
	}

	result.Success = true
	result.Message = fmt.Sprintf("Restored %s into %s in %s", filepath.Base(req.File), target.Environment,
		res.Duration.Round(time.Second))
	uc.logger.Infof("[%s] %s", target.Environment, result.Message)
	return result, nil
}
