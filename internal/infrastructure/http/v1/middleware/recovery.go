// Package middleware provides the gin middleware chain of the API.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
	"tradeledger/pkg/logger"
)

// Recovery converts a panic in a handler into an INTERNAL_ERROR response.
// It sits outside ErrorHandler, whose post-processing never runs when the
// chain unwinds, so it renders the body itself. The stack goes to the log;
// the client only sees the request id. A posting interrupted this way has
// not committed, since its transaction rolls back with the unwinding.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			requestID := appctx.GetRequestID(ctx)

			logger.Error(ctx, "handler panicked",
				"route", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{"request_id": requestID},
			})
		}()
		c.Next()
	}
}
