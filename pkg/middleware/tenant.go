package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/contextkeys"
)

// AccountStore loads tenant accounts for request scoping
type AccountStore interface {
	GetAccount(id int64) (*accounts.Account, error)
	GetAccountBySlug(slug string) (*accounts.Account, error)
}

// ResolveTenant loads the authenticated user's account and seeds the tenant
// query filter. Must run after Authenticate.
func ResolveTenant(store AccountStore) Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *Failure) {
		authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.Context)
		if !ok {
			return ctx, Unauthenticated("authentication required")
		}

		account, err := store.GetAccount(authCtx.User.AccountID)
		if err != nil {
			return ctx, NotFound("account not found")
		}

		ctx = contextkeys.WithAccount(ctx, account)
		ctx = contextkeys.WithTenantFilter(ctx, TenantFilter{AccountID: account.ID})
		return ctx, nil
	}
}

// ResolveTenantBySlug resolves the tenant named by the {accountSlug} path
// variable and rejects callers whose session belongs to a different account.
// Must run after Authenticate.
func ResolveTenantBySlug(store AccountStore) Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *Failure) {
		authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.Context)
		if !ok {
			return ctx, Unauthenticated("authentication required")
		}

		slug := mux.Vars(r)["accountSlug"]
		account, err := store.GetAccountBySlug(slug)
		if err != nil {
			return ctx, NotFound("account not found")
		}

		if account.ID != authCtx.User.AccountID {
			return ctx, Forbidden("access to this account is not permitted")
		}

		ctx = contextkeys.WithAccount(ctx, account)
		ctx = contextkeys.WithTenantFilter(ctx, TenantFilter{AccountID: account.ID})
		return ctx, nil
	}
}

// AccountStatus rejects requests against suspended or deleted accounts.
// Must run after a tenant resolution stage.
func AccountStatus() Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *Failure) {
		account, ok := ctx.Value(contextkeys.AccountKey).(*accounts.Account)
		if !ok {
			return ctx, NotFound("account not found")
		}
		if account.IsDeleted {
			return ctx, NotFound("account not found")
		}
		if !account.IsActive {
			return ctx, Forbidden("account is suspended")
		}
		return ctx, nil
	}
}

// RestrictToOwner narrows the tenant filter to the caller's own resources
// unless the caller is an admin. Admins see the whole tenant.
func RestrictToOwner() Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *Failure) {
		authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.Context)
		if !ok {
			return ctx, Unauthenticated("authentication required")
		}
		filter, ok := ctx.Value(contextkeys.TenantFilterKey).(TenantFilter)
		if !ok {
			return ctx, NotFound("account not found")
		}

		if !authCtx.IsAdmin() {
			ownerID := authCtx.User.ID
			filter.OwnerID = &ownerID
			ctx = contextkeys.WithTenantFilter(ctx, filter)
		}
		return ctx, nil
	}
}
