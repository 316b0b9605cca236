package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbbackup/internal/infrastructure/logger"
)

// AccessLog logs one structured line per request.
func AccessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"ip", c.ClientIP(),
			"latency", time.Since(start),
		}
		if status >= 500 {
			log.Errorw("request", fields...)
			return
		}
		log.Infow("request", fields...)
	}
}
