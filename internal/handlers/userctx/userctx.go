package userctx

import (
	"context"
)

type ctxKey string

const accountKey ctxKey = "account"

// Create a new context with the authenticated account id
func New(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountKey, accountID)
}

// Extract the account id from the context
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountKey).(string)
	return id, ok && id != ""
}
