package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/contextkeys"
)

// RequireRole rejects callers whose role does not match exactly
func RequireRole(role auth.RoleName) Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *Failure) {
		authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.Context)
		if !ok {
			return ctx, Unauthenticated("authentication required")
		}
		if !authCtx.HasRole(role) {
			return ctx, Forbidden("insufficient role")
		}
		return ctx, nil
	}
}

// RequirePermission rejects callers whose role does not grant the permission
func RequirePermission(permission auth.Permission) Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *Failure) {
		authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.Context)
		if !ok {
			return ctx, Unauthenticated("authentication required")
		}
		if !authCtx.HasPermission(permission) {
			return ctx, Forbidden("insufficient permissions")
		}
		return ctx, nil
	}
}

// RequireAnyPermission passes when the caller holds at least one of the
// listed permissions
func RequireAnyPermission(permissions ...auth.Permission) Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *Failure) {
		authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.Context)
		if !ok {
			return ctx, Unauthenticated("authentication required")
		}
		for _, p := range permissions {
			if authCtx.HasPermission(p) {
				return ctx, nil
			}
		}
		return ctx, Forbidden("insufficient permissions")
	}
}
