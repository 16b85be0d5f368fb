package api

import "context"

type contextKey int

const ctxKeyOwner contextKey = 0

// WithOwner returns ctx carrying the authenticated owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxKeyOwner, owner)
}

// OwnerFrom returns the owner stored by WithOwner.
func OwnerFrom(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ctxKeyOwner).(string)
	return owner, ok && owner != ""
}
