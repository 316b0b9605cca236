package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbbackup/internal/domain"
	"github.com/semmidev/dbbackup/internal/usecase"
)

type BackupHandler struct {
	backups BackupService
}

func NewBackupHandler(backups BackupService) *BackupHandler {
	return &BackupHandler{backups: backups}
}

type createBackupRequest struct {
	Environment string  `json:"environment" binding:"required"`
	Notes       string  `json:"notes"`
	Actor       *string `json:"actor"`
}

// Create starts a manual backup and returns immediately with the in-progress record.
func (h *BackupHandler) Create(c *gin.Context) {
	var req createBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	rec, err := h.backups.RunBackup(c.Request.Context(), usecase.BackupRequest{
		Environment: req.Environment,
		Kind:        domain.KindManual,
		Actor:       req.Actor,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, rec)
}

func (h *BackupHandler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	records, err := h.backups.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": records, "count": len(records)})
}

func parseFilter(c *gin.Context) (domain.BackupFilter, error) {
	var f domain.BackupFilter

	if env := c.Query("environment"); env != "" {
		e, err := domain.ParseEnvironment(env)
		if err != nil {
			return f, err
		}
		f.Environment = e
	}
	switch s := domain.BackupStatus(c.Query("status")); s {
	case "":
	case domain.StatusInProgress, domain.StatusCompleted, domain.StatusFailed:
		f.Status = s
	default:
		return f, domain.Validationf("status", "unknown status %q", s)
	}
	switch k := domain.BackupKind(c.Query("backup_type")); k {
	case "":
	case domain.KindManual, domain.KindScheduled:
		f.Kind = k
	default:
		return f, domain.Validationf("backup_type", "unknown backup type %q", k)
	}

	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, domain.Validationf(name, "%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return f, nil
}

func (h *BackupHandler) Get(c *gin.Context) {
	rec, err := h.backups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *BackupHandler) Progress(c *gin.Context) {
	report, err := h.backups.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *BackupHandler) Download(c *gin.Context) {
	path, rec, err := h.backups.DownloadPath(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Type", "application/sql")
	c.FileAttachment(path, rec.Filename)
}

func (h *BackupHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.backups.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if rec.IsTerminal() || !h.backups.Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "backup " + id + " is not running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Cancellation requested"})
}

func (h *BackupHandler) Delete(c *gin.Context) {
	if err := h.backups.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted"})
}

func (h *BackupHandler) Environments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"environments": h.backups.Environments()})
}

// Files lists the dump files on disk for one environment.
func (h *BackupHandler) Files(c *gin.Context) {
	files, err := h.backups.ListDumpFiles(c.Request.Context(), c.Param("env"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}
