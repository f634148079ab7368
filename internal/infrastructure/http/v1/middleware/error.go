package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
	"tradeledger/pkg/logger"
)

// ErrorHandler renders the last error registered on the context as
// {code, message, details}. Ledger rule violations (insufficient funds,
// over-delivery, payments exceeding the grand total) arrive here as 422
// AppErrors with their amounts in details. Internal causes are logged,
// never returned; the client gets the request id to quote instead.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		ctx := c.Request.Context()
		err := c.Errors.Last().Err

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(ctx, "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			c.JSON(appErr.HTTPStatus, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
			return
		}

		logger.Error(ctx, "unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{"request_id": appctx.GetRequestID(ctx)},
		})
	}
}
