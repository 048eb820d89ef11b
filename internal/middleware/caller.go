package middleware

import "context"

type callerCtxKey struct{}

type callerHolder struct {
	userID string
}

func withCallerHolder(ctx context.Context, h *callerHolder) context.Context {
	return context.WithValue(ctx, callerCtxKey{}, h)
}

func callerHolderFrom(ctx context.Context) *callerHolder {
	h, _ := ctx.Value(callerCtxKey{}).(*callerHolder)
	return h
}
