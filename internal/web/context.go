package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/JonMunkholm/visualedit/internal/grid"
)

// UserHeader names the editing user, set by the host application.
const UserHeader = "X-User"

type gridCtxKey struct{}

// WithRequestMetadata adds the editing user and client address to ctx for
// the edit log. RemoteAddr has already been rewritten by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = grid.ContextWithIPAddress(ctx, clientIP(r))
	if user := strings.TrimSpace(r.Header.Get(UserHeader)); user != "" {
		ctx = grid.ContextWithUser(ctx, user)
	}
	return ctx
}

func contextWithController(ctx context.Context, c *grid.Controller) context.Context {
	return context.WithValue(ctx, gridCtxKey{}, c)
}

// controllerFromContext returns the controller stored by Server.gridCtx.
func controllerFromContext(ctx context.Context) *grid.Controller {
	c, _ := ctx.Value(gridCtxKey{}).(*grid.Controller)
	return c
}
