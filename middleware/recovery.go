package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 envelope and logs it with the
// caller's user id and route. http.ErrAbortHandler is re-raised so net/http
// can drop the connection of an aborted SSE stream quietly.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			log.Error("panic recovered",
				zap.Any("error", r),
				zap.String("trace_id", GetTraceID(c)),
				zap.Int64("user_id", GetUserID(c)),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Stack("stack"),
			)
			abort(c, http.StatusInternalServerError, "internal server error")
		}()
		c.Next()
	}
}
