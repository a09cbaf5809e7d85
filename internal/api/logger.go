package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Criminal-Justice-Comps/Fairness/internal/logging"
)

// requestLogger logs one line per request through slog.
func requestLogger() gin.HandlerFunc {
	logger := logging.Component("api")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"elapsed", time.Since(start))
	}
}
