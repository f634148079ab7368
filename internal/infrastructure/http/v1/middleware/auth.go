package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
)

// JWTValidator validates bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// UserContext resolves the caller from the bearer token and stores it in the
// request context, where it becomes the submittedBy of ledger entries.
// A missing or invalid token is rejected with 401.
func UserContext(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, reason := bearerToken(c.GetHeader("Authorization"))
		if reason != "" {
			abortUnauthorized(c, reason)
			return
		}

		user, err := validator.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// DevUser stores a fixed user; used when the server runs without a JWT secret
// in development mode.
func DevUser(username string) gin.HandlerFunc {
	return func(c *gin.Context) {
		setUser(c, &appctx.UserContext{UserID: username, Username: username})
		c.Next()
	}
}

// bearerToken extracts the token of an "Authorization: Bearer ..." header,
// or returns the reason it cannot.
func bearerToken(header string) (token, reason string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", "invalid authorization header format"
	}
	return token, ""
}

func setUser(c *gin.Context, user *appctx.UserContext) {
	ctx := c.Request.Context()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", user.UserID))
	c.Request = c.Request.WithContext(appctx.WithUser(ctx, user))
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
