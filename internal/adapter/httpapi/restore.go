package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbbackup/internal/usecase"
)

type RestoreHandler struct {
	restore RestoreService
}

func NewRestoreHandler(restore RestoreService) *RestoreHandler {
	return &RestoreHandler{restore: restore}
}

type restoreRequest struct {
	File         string `json:"file"`
	BackupID     string `json:"backup_id"`
	Environment  string `json:"environment" binding:"required"`
	Mode         string `json:"mode"`
	Confirmation string `json:"confirmation"`
}

// Restore runs synchronously. A psql failure returns 500 with the result body.
func (h *RestoreHandler) Restore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	result, err := h.restore.RunRestore(c.Request.Context(), usecase.RestoreRequest{
		File:         req.File,
		BackupID:     req.BackupID,
		Environment:  req.Environment,
		Mode:         req.Mode,
		Confirmation: req.Confirmation,
	})
	if err != nil {
		if result != nil {
			c.JSON(statusFor(err), result)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
