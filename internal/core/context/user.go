// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// SystemUser is recorded as submittedBy when no caller identity is present
// (CLI maintenance jobs, background worker).
const SystemUser = "system"

// UserContext is the caller identity taken from the bearer token.
type UserContext struct {
	UserID   string
	Username string
	Roles    []string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// SubmittedBy returns the label stored on ledger entries and registry rows.
// Prefers the username, falls back to the user id, then to SystemUser.
func SubmittedBy(ctx context.Context) string {
	u := GetUser(ctx)
	switch {
	case u == nil:
		return SystemUser
	case u.Username != "":
		return u.Username
	case u.UserID != "":
		return u.UserID
	default:
		return SystemUser
	}
}
