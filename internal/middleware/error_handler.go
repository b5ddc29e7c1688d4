package middleware

import (
	"github.com/gin-gonic/gin"
	"support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

// ErrorHandler превращает ошибки, добавленные через c.Error, в JSON ответ
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		statusCode := errors.HTTPStatusFromError(err.Err)
		if statusCode >= 500 {
			log.Error("Request failed", "path", c.Request.URL.Path, "status", statusCode, "error", err.Err)
		}

		c.JSON(statusCode, gin.H{
			"error": err.Error(),
		})
	}
}
