package http

import (
	"context"
	"errors"
)

type contextKey string

const userIDKey contextKey = "user-id"

var ErrUnauthenticated = errors.New("unauthenticated")

// WithUserID stores the authenticated caller on the request context.
func WithUserID(ctx context.Context, userID int32) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext returns the user ID injected by the auth middleware.
func GetUserIDFromContext(ctx context.Context) (int32, error) {
	userID, ok := ctx.Value(userIDKey).(int32)
	if !ok || userID <= 0 {
		return 0, ErrUnauthenticated
	}
	return userID, nil
}
