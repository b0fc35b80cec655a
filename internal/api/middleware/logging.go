package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "request_id"
)

// quietRoutes are probe and scrape endpoints logged at debug only.
var quietRoutes = map[string]struct{}{
	"/health":               {},
	"/health/ready":         {},
	"/api/v1/health":        {},
	"/api/v1/health/ready":  {},
	"/internal/metrics":     {},
	"/api/v1/events":        {},
	"/api/v1/system/status": {},
}

// RequestLogger tags each request with an id and logs one line when it
// finishes. Request bodies are never logged: draws, redemptions and
// withdrawals carry codes.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		startedAt := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		route := c.FullPath()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("latency", time.Since(startedAt)),
			zap.String("client_ip", c.ClientIP()),
		}
		if route == "" {
			fields = append(fields, zap.String("path", c.Request.URL.Path))
		}
		if actor, ok := GetActor(c); ok {
			fields = append(fields, zap.String("user_id", actor.UserID.String()))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		logger.Log(requestLevel(route, status), "http request completed", fields...)
	}
}

// RequestID returns the id RequestLogger assigned, or "" outside it.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	}
	if _, quiet := quietRoutes[route]; quiet {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
