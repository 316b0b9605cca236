package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/semmidev/dbbackup/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// LocalStorage is an environment's dump directory.
type LocalStorage interface {
	domain.Storage
	GetPath(filename string) string
	ListFiles(ctx context.Context, suffix string) ([]domain.DumpFile, error)
}

// Target binds an environment to its database and dump directory.
type Target struct {
	Environment domain.Environment
	Database    domain.Database
	Storage     LocalStorage
}

// Pool runs tasks off the caller's goroutine with per-key cancellation.
type Pool interface {
	Submit(key string, task func(ctx context.Context)) error
	Cancel(key string) bool
}

type Metrics interface {
	BackupStarted(env, kind string)
	BackupFinished(env, kind, status string, size int64, took time.Duration)
	RestoreFinished(env, mode string, ok bool)
	ScheduleSkipped(reason string)
}

type nopMetrics struct{}

func (nopMetrics) BackupStarted(string, string) {}
func (nopMetrics) BackupFinished(string, string, string, int64, time.Duration) {}
func (nopMetrics) RestoreFinished(string, string, bool) {}
func (nopMetrics) ScheduleSkipped(string) {}

type BackupRequest struct {
	Environment string
	Kind        domain.BackupKind
	Actor       *string
	Notes       string

	// Set for scheduled runs only.
	ScheduleID   string
	ScheduleName string
	Period       string
}

type ProgressReport struct {
	ID       string              `json:"id"`
	Status   domain.BackupStatus `json:"status"`
	Progress int                 `json:"progress"`
	Message  string              `json:"message"`
}

type Backup struct {
	targets   map[domain.Environment]Target
	backups   domain.BackupRepository
	schedules domain.ScheduleRepository
	pool      Pool
	tracker   *Tracker
	publisher *Publisher
	metrics   Metrics
	logger    Logger
	loc       *time.Location
	timeout   time.Duration
	now       func() time.Time
}

func NewBackup(
	targets []Target,
	backups domain.BackupRepository,
	schedules domain.ScheduleRepository,
	pool Pool,
	tracker *Tracker,
	publisher *Publisher,
	metrics Metrics,
	logger Logger,
	loc *time.Location,
	timeout time.Duration,
) *Backup {
	byEnv := make(map[domain.Environment]Target, len(targets))
	for _, t := range targets {
		byEnv[t.Environment] = t
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Backup{
		targets:   byEnv,
		backups:   backups,
		schedules: schedules,
		pool:      pool,
		tracker:   tracker,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		loc:       loc,
		timeout:   timeout,
		now:       time.Now,
	}
}

// RunBackup validates req, creates an in-progress record and hands the dump to
// the worker pool. It returns without waiting; callers poll Progress.
func (uc *Backup) RunBackup(ctx context.Context, req BackupRequest) (*domain.BackupRecord, error) {
	rec, target, err := uc.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *rec

	// The record may wait for a free worker; keep its heartbeat alive meanwhile.
	queued, dequeue := context.WithCancel(context.WithoutCancel(ctx))
	go uc.tracker.KeepAlive(queued, rec.ID)

	err = uc.pool.Submit(rec.ID, func(taskCtx context.Context) {
		dequeue()
		_ = uc.execute(taskCtx, rec, target, req)
	})
	if err != nil {
		dequeue()
		cause := fmt.Errorf("failed to queue backup: %w", err)
		uc.fail(ctx, rec, req, cause)
		return nil, cause
	}

	return &snapshot, nil
}

// RunBackupSync runs the whole backup on the caller's goroutine and returns the
// terminal record. A failed run also returns its cause.
func (uc *Backup) RunBackupSync(ctx context.Context, req BackupRequest) (*domain.BackupRecord, error) {
	rec, target, err := uc.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	runErr := uc.execute(ctx, rec, target, req)

	final, err := uc.backups.GetBackup(context.WithoutCancel(ctx), rec.ID)
	if err != nil {
		return rec, errors.Join(runErr, err)
	}
	return final, runErr
}

func (uc *Backup) prepare(ctx context.Context, req BackupRequest) (*domain.BackupRecord, Target, error) {
	target, err := uc.target(req.Environment)
	if err != nil {
		return nil, Target{}, err
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.KindManual
	}
	if kind != domain.KindManual && kind != domain.KindScheduled {
		return nil, Target{}, domain.Validationf("backup_type", "unknown backup type %q", kind)
	}
	if kind == domain.KindScheduled && req.ScheduleName == "" {
		return nil, Target{}, domain.Validationf("backup_type", "scheduled backups need a schedule name")
	}

	version := target.Database.Version(ctx)
	now := uc.now().In(uc.loc)
	filename := BuildFilename(now, version, target.Environment, kind)

	exists, err := target.Storage.Exists(ctx, filename)
	if err != nil {
		return nil, Target{}, domain.NewError(domain.KindFileSystem, "run backup", "failed to check backup directory", err)
	}
	if exists {
		return nil, Target{}, domain.Validationf("run backup", "filename collision: %s", filename)
	}

	rec := &domain.BackupRecord{
		Filename:        filename,
		Environment:     target.Environment,
		DatabaseVersion: version,
		Kind:            kind,
		Status:          domain.StatusInProgress,
		Progress:        0,
		CreatedBy:       req.Actor,
		ScheduleName:    req.ScheduleName,
		Notes:           req.Notes,
		CreatedAt:       now,
	}
	if err := uc.backups.CreateBackup(ctx, rec); err != nil {
		return nil, Target{}, err
	}

	uc.logger.Infof("[%s] Created %s backup record %s: %s", target.Environment, kind, rec.ID, filename)
	return rec, target, nil
}

// execute is the only writer of the record's terminal status.
func (uc *Backup) execute(ctx context.Context, rec *domain.BackupRecord, target Target, req BackupRequest) error {
	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	env, kind := string(rec.Environment), string(rec.Kind)

	// Another process may have recovered the record as interrupted while it was queued.
	if cur, err := uc.backups.GetBackup(context.WithoutCancel(ctx), rec.ID); err == nil && cur.IsTerminal() {
		uc.logger.Warnf("[%s] Backup %s was finalized as %s before it started, skipping", env, rec.Filename, cur.Status)
		return domain.NewError(domain.KindConcurrencyHazard, "run backup",
			fmt.Sprintf("backup %s is already %s", rec.ID, cur.Status), nil)
	}

	start := uc.now()
	uc.metrics.BackupStarted(env, kind)
	uc.logger.Infof("[%s] Starting backup %s", env, rec.Filename)

	path := target.Storage.GetPath(rec.Filename)
	proc, err := target.Database.StartDump(ctx, path)
	if err != nil {
		uc.metrics.BackupFinished(env, kind, string(domain.StatusFailed), 0, uc.now().Sub(start))
		return uc.fail(ctx, rec, req, err)
	}

	uc.tracker.Track(ctx, rec.ID, proc)

	if _, err := proc.Wait(); err != nil {
		uc.removePartial(path)
		uc.metrics.BackupFinished(env, kind, string(domain.StatusFailed), 0, uc.now().Sub(start))
		return uc.fail(ctx, rec, req, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		err = domain.NewError(domain.KindFileSystem, "run backup", "dump file missing after pg_dump", err)
	} else if info.Size() == 0 {
		err = domain.NewError(domain.KindToolExecutionFailed, "run backup", "pg_dump produced an empty file", nil)
	}
	if err != nil {
		uc.removePartial(path)
		uc.metrics.BackupFinished(env, kind, string(domain.StatusFailed), 0, uc.now().Sub(start))
		return uc.fail(ctx, rec, req, err)
	}

	finCtx := context.WithoutCancel(ctx)
	if err := uc.backups.CompleteBackup(finCtx, rec.ID, info.Size(), uc.now()); err != nil {
		uc.logger.Errorf("[%s] Failed to finalize backup %s: %v", env, rec.ID, err)
		return err
	}
	if rec.Kind == domain.KindScheduled && req.ScheduleID != "" {
		if err := uc.schedules.MarkScheduleRun(finCtx, req.ScheduleID, uc.now()); err != nil {
			uc.logger.Errorf("[%s] Failed to record run of schedule %s: %v", env, req.ScheduleName, err)
		}
	}

	took := uc.now().Sub(start)
	uc.metrics.BackupFinished(env, kind, string(domain.StatusCompleted), info.Size(), took)
	uc.logger.Infof("[%s] Backup completed in %s: %s (%s)",
		env, took.Round(time.Second), rec.Filename, domain.FormatSize(info.Size()))

	if err := uc.publisher.Publish(finCtx, path, rec.Filename); err != nil {
		uc.logger.Warnf("[%s] Backup %s is stored locally but publishing failed: %v", env, rec.Filename, err)
	}
	return nil
}

// fail finalizes the record as failed. A scheduled run gives its period claim
// back so the next tick can retry; last_run is left untouched.
func (uc *Backup) fail(ctx context.Context, rec *domain.BackupRecord, req BackupRequest, cause error) error {
	finCtx := context.WithoutCancel(ctx)

	notes := cause.Error()
	if rec.Notes != "" {
		notes = rec.Notes + "\n" + notes
	}
	if err := uc.backups.FailBackup(finCtx, rec.ID, notes, uc.now()); err != nil {
		uc.logger.Errorf("[%s] Failed to mark backup %s as failed: %v", rec.Environment, rec.ID, err)
	}

	if rec.Kind == domain.KindScheduled && req.ScheduleID != "" && req.Period != "" {
		if err := uc.schedules.ReleaseSchedule(finCtx, req.ScheduleID, req.Period); err != nil {
			uc.logger.Errorf("[%s] Failed to release schedule %s: %v", rec.Environment, req.ScheduleName, err)
		}
	}

	uc.logger.Errorf("[%s] Backup %s failed: %v", rec.Environment, rec.Filename, cause)
	uc.publisher.Notify(fmt.Sprintf("❌ Backup failed\n\n📁 File: %s\n🌐 Environment: %s\n⚠️ %s",
		rec.Filename, rec.Environment, cause))
	return cause
}

func (uc *Backup) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		uc.logger.Warnf("Failed to remove partial dump %s: %v", path, err)
	}
}

func (uc *Backup) Progress(ctx context.Context, id string) (*ProgressReport, error) {
	rec, err := uc.backups.GetBackup(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &ProgressReport{ID: rec.ID, Status: rec.Status, Progress: rec.Progress}
	switch rec.Status {
	case domain.StatusCompleted:
		report.Message = "Backup completed successfully"
	case domain.StatusFailed:
		report.Message = rec.Notes
	default:
		report.Message = fmt.Sprintf("Backup in progress (%d%%)", rec.Progress)
	}
	return report, nil
}

func (uc *Backup) Get(ctx context.Context, id string) (*domain.BackupRecord, error) {
	return uc.backups.GetBackup(ctx, id)
}

func (uc *Backup) List(ctx context.Context, filter domain.BackupFilter) ([]domain.BackupRecord, error) {
	return uc.backups.ListBackups(ctx, filter)
}

// DownloadPath returns the dump path of a completed backup whose file is on disk.
func (uc *Backup) DownloadPath(ctx context.Context, id string) (string, *domain.BackupRecord, error) {
	rec, err := uc.backups.GetBackup(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if rec.Status != domain.StatusCompleted {
		return "", nil, domain.NotFoundf("download", "backup %s is %s", id, rec.Status)
	}

	target, ok := uc.targets[rec.Environment]
	if !ok {
		return "", nil, domain.NotFoundf("download", "environment %s is not configured", rec.Environment)
	}
	exists, err := target.Storage.Exists(ctx, rec.Filename)
	if err != nil {
		return "", nil, domain.NewError(domain.KindFileSystem, "download", "failed to check dump file", err)
	}
	if !exists {
		return "", nil, domain.NotFoundf("download", "dump file %s is missing", rec.Filename)
	}
	return target.Storage.GetPath(rec.Filename), rec, nil
}

// Delete removes the dump file first and the record only once that succeeded,
// so a record always points at any file left behind. A completed record whose
// file is already gone is reported as a filesystem error and kept.
func (uc *Backup) Delete(ctx context.Context, id string) error {
	rec, err := uc.backups.GetBackup(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == domain.StatusInProgress {
		return domain.NewError(domain.KindConcurrencyHazard, "delete backup", "backup "+id+" is still running", nil)
	}

	target, ok := uc.targets[rec.Environment]
	if !ok {
		return domain.NewError(domain.KindFileSystem, "delete backup",
			fmt.Sprintf("no backup directory for environment %s", rec.Environment), nil)
	}

	err = target.Storage.Delete(ctx, rec.Filename)
	if err != nil && !(rec.Status == domain.StatusFailed && errors.Is(err, fs.ErrNotExist)) {
		return domain.NewError(domain.KindFileSystem, "delete backup", "failed to remove "+rec.Filename, err)
	}

	if err := uc.backups.DeleteBackup(ctx, id); err != nil {
		return err
	}
	uc.logger.Infof("[%s] Deleted backup %s", rec.Environment, rec.Filename)

	if err := uc.publisher.Unpublish(ctx, rec.Filename); err != nil {
		uc.logger.Warnf("[%s] Failed to remove %s from upload targets: %v", rec.Environment, rec.Filename, err)
	}
	return nil
}

// InterruptedNote is appended to records recovered from a dead process.
const InterruptedNote = "interrupted: process exited before the run finished"

// RecoverInterrupted fails every in-progress record whose heartbeat has gone
// silent for longer than the tracker's stale window. Such a record belongs to
// a process that died mid-run. Its partial dump is removed and its schedule
// claim released so the schedule can run again.
func (uc *Backup) RecoverInterrupted(ctx context.Context) (int, error) {
	cutoff := uc.now().Add(-uc.tracker.StaleAfter())
	orphans, err := uc.backups.ListBackups(ctx, domain.BackupFilter{
		Status:      domain.StatusInProgress,
		StaleBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("list interrupted backups: %w", err)
	}

	recovered := 0
	for _, rec := range orphans {
		notes := InterruptedNote
		if rec.Notes != "" {
			notes = rec.Notes + "\n" + notes
		}
		if err := uc.backups.FailBackup(ctx, rec.ID, notes, uc.now()); err != nil {
			// Finalized by its owner in the meantime.
			if errors.Is(err, domain.ErrValidation) {
				continue
			}
			return recovered, err
		}
		recovered++
		uc.logger.Warnf("[%s] Recovered interrupted backup %s", rec.Environment, rec.Filename)

		if target, ok := uc.targets[rec.Environment]; ok {
			uc.removePartial(target.Storage.GetPath(rec.Filename))
		}
		if rec.ScheduleName != "" {
			if err := uc.releaseByName(ctx, rec.ScheduleName); err != nil {
				uc.logger.Errorf("[%s] Failed to release schedule %s: %v", rec.Environment, rec.ScheduleName, err)
			}
		}
	}
	return recovered, nil
}

func (uc *Backup) releaseByName(ctx context.Context, name string) error {
	schedules, err := uc.schedules.ListSchedules(ctx, false)
	if err != nil {
		return err
	}
	for _, s := range schedules {
		if s.Name == name && s.ClaimedPeriod != "" {
			return uc.schedules.ReleaseSchedule(ctx, s.ID, s.ClaimedPeriod)
		}
	}
	return nil
}

// Cancel stops a queued or running backup. The run is finalized as failed.
func (uc *Backup) Cancel(id string) bool {
	return uc.pool.Cancel(id)
}

// ListDumpFiles lists the dumps present in an environment's directory, newest first.
func (uc *Backup) ListDumpFiles(ctx context.Context, environment string) ([]domain.DumpFile, error) {
	target, err := uc.target(environment)
	if err != nil {
		return nil, err
	}
	files, err := target.Storage.ListFiles(ctx, DumpExtension)
	if err != nil {
		return nil, domain.NewError(domain.KindFileSystem, "list dump files", "failed to read backup directory", err)
	}
	return files, nil
}

func (uc *Backup) Environments() []domain.Environment {
	envs := make([]domain.Environment, 0, len(uc.targets))
	for env := range uc.targets {
		envs = append(envs, env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i] < envs[j] })
	return envs
}

func (uc *Backup) target(environment string) (Target, error) {
	env, err := domain.ParseEnvironment(strings.TrimSpace(environment))
	if err != nil {
		return Target{}, err
	}
	target, ok := uc.targets[env]
	if !ok {
		return Target{}, domain.Validationf("environment", "environment %s is not configured", env)
	}
	return target, nil
}
