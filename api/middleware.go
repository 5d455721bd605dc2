package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

// APIKeyHeader carries the shared secret of the prediction endpoint.
const APIKeyHeader = "X-API-KEY"

// APIKeyAuth rejects requests whose X-API-KEY header does not match key.
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(APIKeyHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Invalid or missing API Key"})
			return
		}
		c.Next()
	}
}

// RequestLogger writes one access log entry per request.
func RequestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []any{
			"http.method", c.Request.Method,
			"http.route", route,
			"http.status", c.Writer.Status(),
			"http.client_ip", c.ClientIP(),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			if last := c.Errors.Last(); last != nil {
				fields = append([]any{last.Err}, fields...)
			}
			logger.Error("[access]", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("[access]", fields...)
		default:
			logger.Info("[access]", fields...)
		}
	}
}

// Recovery turns a panic in a handler into a 500 response.
func Recovery(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := errors.NewPanicError(c.FullPath(), r)
				logger.Error("Panic occurred", err, "panic", fmt.Sprint(r))
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
			}
		}()
		c.Next()
	}
}
