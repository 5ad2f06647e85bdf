package rest

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ratingarena/server/internal/infrastructure/logger"
)

const (
	RequestIDHeader     = "X-Request-ID"
	ContextKeyRequestID = "request_id"
	ContextKeyCallerID  = "caller_id"
)

// GetCallerID returns the opaque caller identifier a handler stashed on the
// gin context after parsing the request body, or "" if none was set yet.
func GetCallerID(c *gin.Context) string {
	callerID, exists := c.Get(ContextKeyCallerID)
	if !exists {
		return ""
	}
	return callerID.(string)
}

type LoggingMiddleware struct {
	logger *logger.Logger
}

func NewLoggingMiddleware(log *logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: log,
	}
}

func (m *LoggingMiddleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(RequestIDHeader, requestID)

		callerID := GetCallerID(c)
		if callerID == "" {
			callerID = "anonymous"
		}

		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		method := c.Request.Method
		clientIP := c.ClientIP()
		userAgent := c.Request.UserAgent()

		m.logger.Info("request started",
			"request_id", requestID,
			"method", method,
			"path", path,
			"query", query,
			"client_ip", clientIP,
			"user_agent", userAgent,
			"caller_id", callerID,
		)

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		responseSize := c.Writer.Size()

		level := "info"
		if statusCode >= 500 {
			level = "error"
		} else if statusCode >= 400 {
			level = "warn"
		}

		logArgs := []any{
			"request_id", requestID,
			"method", method,
			"path", path,
			"status", statusCode,
			"duration_ms", duration.Milliseconds(),
			"response_size", responseSize,
			"client_ip", clientIP,
			"caller_id", callerID,
		}

		if len(c.Errors) > 0 {
			logArgs = append(logArgs, "errors", c.Errors.String())
		}

		switch level {
		case "error":
			m.logger.Error("request completed", logArgs...)
		case "warn":
			m.logger.Warn("request completed", logArgs...)
		default:
			m.logger.Info("request completed", logArgs...)
		}
	}
}

func GetRequestID(c *gin.Context) string {
	requestID, exists := c.Get(ContextKeyRequestID)
	if !exists {
		return ""
	}
	return requestID.(string)
}
