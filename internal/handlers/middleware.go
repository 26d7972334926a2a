package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veylan/synapnode/pkg/Logger"
)

// identityKey is the gin context key the hotkey middleware stores the caller
// identity under.
const identityKey = "hotkey"

// HotkeyHeader carries the caller's peer identity on every inbound request.
const HotkeyHeader = "X-Hotkey"

// IdentityMiddleware extracts the peer identity used for admission. Requests
// without one are refused before any admission state is touched.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hotkey := c.GetHeader(HotkeyHeader)
		if hotkey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + HotkeyHeader + " header"})
			c.Abort()
			return
		}
		c.Set(identityKey, hotkey)
		c.Next()
	}
}

// RequestLoggerMiddleware logs incoming requests.
func RequestLoggerMiddleware(logger *Logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logger.Infof("[%s] %s %s %d %s %s",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
		return ""
	})
}

// ErrorHandlerMiddleware handles panics so one bad request never takes the
// serving loop down.
func ErrorHandlerMiddleware(logger *Logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Errorf("panic recovered: %v", recovered)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

func callerIdentity(c *gin.Context) string {
	return c.GetString(identityKey)
}
