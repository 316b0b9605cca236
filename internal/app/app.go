package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/semmidev/dbbackup/internal/adapter/compressor"
	"github.com/semmidev/dbbackup/internal/adapter/database"
	"github.com/semmidev/dbbackup/internal/adapter/httpapi"
	"github.com/semmidev/dbbackup/internal/adapter/repository"
	"github.com/semmidev/dbbackup/internal/adapter/storage"
	"github.com/semmidev/dbbackup/internal/config"
	"github.com/semmidev/dbbackup/internal/domain"
	"github.com/semmidev/dbbackup/internal/infrastructure/logger"
	"github.com/semmidev/dbbackup/internal/infrastructure/metrics"
	"github.com/semmidev/dbbackup/internal/infrastructure/process"
	"github.com/semmidev/dbbackup/internal/infrastructure/scheduler"
	"github.com/semmidev/dbbackup/internal/infrastructure/worker"
	"github.com/semmidev/dbbackup/internal/usecase"
)

// App owns every long-lived component. The CLI builds one per invocation.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	Backups   *usecase.Backup
	Restore   *usecase.Restore
	Schedules *usecase.Schedules
	Tick      *usecase.ScheduleTick
	Cleanup   *usecase.Cleanup

	store     *repository.Store
	pool      *worker.Pool
	scheduler *scheduler.Scheduler
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.Debugf("Starting %s", cfg.App.Name)

	store, err := repository.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	targets, err := initializeTargets(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	comp, err := compressor.NewGzipLevel(cfg.Backup.CompressLevel)
	if err != nil {
		store.Close()
		return nil, err
	}
	uploadTargets := initializeUploadTargets(cfg, log)
	publisher := usecase.NewPublisher(uploadTargets, comp, cfg.Backup.Compress, log)

	loc := cfg.Location()
	m := metrics.New()
	pool := worker.New(cfg.Backup.Workers, 0)
	tracker := usecase.NewTracker(store, cfg.Backup.PollInterval, cfg.Backup.ProgressStep, log)

	backups := usecase.NewBackup(targets, store, store, pool, tracker, publisher, m, log, loc, cfg.Backup.Timeout)
	if n, err := backups.RecoverInterrupted(context.Background()); err != nil {
		log.Errorf("Failed to recover interrupted backups: %v", err)
	} else if n > 0 {
		log.Warnf("Marked %d interrupted backup(s) as failed", n)
	}

	return &App{
		Config:    cfg,
		Logger:    log,
		Metrics:   m,
		Backups:   backups,
		Restore:   usecase.NewRestore(backups, m, log, cfg.Backup.Timeout),
		Schedules: usecase.NewSchedules(store, loc),
		Tick:      usecase.NewScheduleTick(store, store, backups, m, log, loc),
		Cleanup:   usecase.NewCleanup(store, backups, uploadTargets, log, cfg.Backup.RetentionDays, loc),
		store:     store,
		pool:      pool,
		scheduler: scheduler.New(loc, log.Named("scheduler")),
	}, nil
}

func initializeTargets(cfg *config.Config) ([]usecase.Target, error) {
	runner := process.NewRunner()
	tools := database.Tools{PgDump: cfg.Backup.PgDumpPath, Psql: cfg.Backup.PsqlPath}

	var targets []usecase.Target
	for _, env := range []domain.Environment{domain.EnvLocal, domain.EnvProduction} {
		envCfg, ok := cfg.Environment(env)
		if !ok {
			continue
		}

		local, err := storage.NewLocal(envCfg.BackupDir)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", env, err)
		}

		targets = append(targets, usecase.Target{
			Environment: env,
			Database:    database.NewPostgreSQL(string(env), envCfg.Connection(), tools, runner),
			Storage:     local,
		})
	}
	return targets, nil
}

func initializeUploadTargets(cfg *config.Config, log *logger.Logger) []usecase.UploadTarget {
	var targets []usecase.UploadTarget

	for _, targetCfg := range cfg.GetEnabledUploadTargets() {
		var stor domain.Storage
		var err error

		switch targetCfg.Type {
		case "gdrive":
			stor, err = storage.NewGDrive(&targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize Google Drive: %v", err)
				continue
			}
			log.Debugf("Google Drive upload enabled")

		case "s3":
			stor, err = storage.NewS3(&targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize S3: %v", err)
				continue
			}
			log.Debugf("S3 upload enabled (bucket: %s)", targetCfg.Bucket)

		case "telegram":
			stor, err = storage.NewTelegram(&targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize Telegram: %v", err)
				continue
			}
			log.Debugf("Telegram upload enabled")

		case "local":
			if targetCfg.Path == "" {
				log.Errorf("Local upload target needs a path")
				continue
			}
			stor, err = storage.NewLocal(targetCfg.Path)
			if err != nil {
				log.Errorf("Failed to initialize local mirror: %v", err)
				continue
			}
			log.Debugf("Local mirror enabled (%s)", targetCfg.Path)

		default:
			log.Warnf("Unknown upload target type: %s", targetCfg.Type)
			continue
		}

		targets = append(targets, usecase.UploadTarget{
			Name:    targetCfg.Type,
			Storage: stor,
		})
	}

	return targets
}

// Serve runs the HTTP API and, when enabled, the in-process scheduler until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a.Config.Scheduler.Enabled {
		if err := a.scheduler.AddJob("schedule-tick", a.Config.Scheduler.Tick, a.Tick.Execute); err != nil {
			return fmt.Errorf("failed to schedule tick: %w", err)
		}
		if err := a.scheduler.AddJob("cleanup", a.Config.Scheduler.Cleanup, a.Cleanup.Execute); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
		a.scheduler.Start()
		a.Logger.Infof("Scheduler started (timezone %s), next tick at %s",
			a.Config.App.Timezone, a.scheduler.Next("schedule-tick").Format(time.RFC3339))
	}

	router := httpapi.NewRouter(httpapi.Services{
		Backups:   a.Backups,
		Restore:   a.Restore,
		Schedules: a.Schedules,
		Tick:      a.Tick,
		Metrics:   a.Metrics.Handler(),
	}, a.Logger.Named("http"))

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Infof("HTTP API listening on %s", a.Config.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Shutdown stops the scheduler, cancels running backups and waits for them to
// be finalized before the store is closed.
func (a *App) Shutdown() {
	a.Logger.Debugf("Shutting down application...")
	a.scheduler.Stop()

	if n := a.pool.Running(); n > 0 {
		a.Logger.Infof("Waiting for %d running backup(s) to finish...", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.pool.Shutdown(ctx); err != nil {
		a.Logger.Warnf("Backups still running at shutdown: %v", err)
	}

	if err := a.store.Close(); err != nil {
		a.Logger.Warnf("Failed to close store: %v", err)
	}
	a.Logger.Close()
}

// WaitIdle blocks until every submitted backup has been finalized.
func (a *App) WaitIdle() {
	a.pool.Wait()
}
