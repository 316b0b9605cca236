// Package httpapi exposes the backup orchestrator over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbbackup/internal/domain"
	"github.com/semmidev/dbbackup/internal/infrastructure/logger"
	"github.com/semmidev/dbbackup/internal/usecase"
)

type BackupService interface {
	RunBackup(ctx context.Context, req usecase.BackupRequest) (*domain.BackupRecord, error)
	Get(ctx context.Context, id string) (*domain.BackupRecord, error)
	List(ctx context.Context, filter domain.BackupFilter) ([]domain.BackupRecord, error)
	Progress(ctx context.Context, id string) (*usecase.ProgressReport, error)
	DownloadPath(ctx context.Context, id string) (string, *domain.BackupRecord, error)
	Delete(ctx context.Context, id string) error
	Cancel(id string) bool
	ListDumpFiles(ctx context.Context, environment string) ([]domain.DumpFile, error)
	Environments() []domain.Environment
}

type RestoreService interface {
	RunRestore(ctx context.Context, req usecase.RestoreRequest) (*usecase.RestoreResult, error)
}

type ScheduleService interface {
	Create(ctx context.Context, in usecase.ScheduleInput, actor *string) (*usecase.ScheduleView, error)
	Update(ctx context.Context, id string, in usecase.ScheduleInput) (*usecase.ScheduleView, error)
	Get(ctx context.Context, id string) (*usecase.ScheduleView, error)
	List(ctx context.Context) ([]usecase.ScheduleView, error)
	Delete(ctx context.Context, id string) error
}

type TickRunner interface {
	RunDue(ctx context.Context) ([]domain.BackupRecord, error)
}

// Services are the usecases served by the router. Metrics may be nil.
type Services struct {
	Backups   BackupService
	Restore   RestoreService
	Schedules ScheduleService
	Tick      TickRunner
	Metrics   http.Handler
}

func NewRouter(svc Services, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AccessLog(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if svc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(svc.Metrics))
	}

	backups := NewBackupHandler(svc.Backups)
	restore := NewRestoreHandler(svc.Restore)
	schedules := NewScheduleHandler(svc.Schedules, svc.Tick)

	api := r.Group("/api")
	{
		api.POST("/backups", backups.Create)
		api.GET("/backups", backups.List)
		api.GET("/backups/:id", backups.Get)
		api.GET("/backups/:id/progress", backups.Progress)
		api.GET("/backups/:id/download", backups.Download)
		api.POST("/backups/:id/cancel", backups.Cancel)
		api.DELETE("/backups/:id", backups.Delete)

		api.GET("/environments", backups.Environments)
		api.GET("/environments/:env/files", backups.Files)

		api.POST("/restore", restore.Restore)

		api.GET("/schedules", schedules.List)
		api.POST("/schedules", schedules.Create)
		api.POST("/schedules/run-due", schedules.RunDue)
		api.GET("/schedules/:id", schedules.Get)
		api.PUT("/schedules/:id", schedules.Update)
		api.DELETE("/schedules/:id", schedules.Delete)
	}

	return r
}
