package grid

import "context"

type contextKey string

const (
	ctxKeyUser      contextKey = "edit_user"
	ctxKeyIPAddress contextKey = "edit_ip"
)

// ContextWithUser adds the editing user to ctx for the edit log.
func ContextWithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

// ContextWithIPAddress adds the client address to ctx for the edit log.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// UserFromContext returns the editing user, if any.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUser).(string); ok {
		return v
	}
	return ""
}

// IPAddressFromContext returns the client address, if any.
func IPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}
