package daemon

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// CorrelationMiddleware tags every request with an id, reusing the caller's
// X-Request-ID when present, and logs the request at debug level.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if len(requestID) == 0 {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		started := time.Now()
		c.Next()

		LogWithRequestID(c).WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(started).String(),
		}).Debugln("Status request")
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func LogWithRequestID(c *gin.Context) *logrus.Entry {
	return logrus.WithField(requestIDKey, GetRequestID(c))
}
