package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbbackup/internal/domain"
)

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConcurrencyHazard:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if kind := domain.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	c.JSON(statusFor(err), body)
}
