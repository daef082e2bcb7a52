package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/SUF145/call-geo/common/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey     contextKey = "request_id"
	RequestLoggerKey contextKey = "request_logger"

	requestIDHeader = "X-Request-ID"
)

// RequestLogging adds a request id and a scoped logger to every request.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		r := c.Request

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, requestID)

		reqLogger := logger.RequestLogger(r.Context(), r.Method, r.URL.Path, r.RemoteAddr, r.UserAgent(), requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = context.WithValue(ctx, RequestLoggerKey, reqLogger)
		c.Request = r.WithContext(ctx)

		if shouldSkipMetrics(r.URL.Path) {
			c.Next()
			return
		}

		reqLogger.Debug("incoming request", "query", r.URL.RawQuery)
		c.Next()

		reqLogger.Info("request completed",
			"status_code", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes_written", c.Writer.Size(),
		)
	}
}

// GetRequestLogger retrieves logger from request context
func GetRequestLogger(ctx context.Context) *slog.Logger {
	if reqLogger, ok := ctx.Value(RequestLoggerKey).(*slog.Logger); ok {
		return reqLogger
	}
	return logger.WithContext(ctx)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}
