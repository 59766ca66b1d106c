package server

import (
	"context"

	"cipherchat/internal/domain"
)

type ctxKey string

const userIDKey ctxKey = "cipherchat.userID"

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, id domain.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx returns the authenticated user id.
func UserIDFromCtx(ctx context.Context) (domain.UserID, bool) {
	id, ok := ctx.Value(userIDKey).(domain.UserID)
	return id, ok && id != ""
}
