package middleware

import (
	"runtime/debug"

	"github.com/SUF145/call-geo/common/response"
	"github.com/gin-gonic/gin"
)

// Recovery turns handler panics into a 500 with a logged stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				GetRequestLogger(c.Request.Context()).Error("Panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)
				response.InternalServerError(c.Writer, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
