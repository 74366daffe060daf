package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/contextkeys"
	"github.com/platinummonkey/quill/pkg/httputil"
)

// Stage is one step of the authorization pipeline. It returns an enriched
// context to pass to the next stage, or a *Failure terminating the request.
type Stage func(ctx context.Context, r *http.Request) (context.Context, *Failure)

// Failure is a terminal pipeline rejection mapped onto the response envelope
type Failure struct {
	Status  int
	Message string
	Data    interface{}
}

// Unauthenticated builds a 401 failure
func Unauthenticated(message string) *Failure {
	return &Failure{Status: http.StatusUnauthorized, Message: message}
}

// Forbidden builds a 403 failure
func Forbidden(message string) *Failure {
	return &Failure{Status: http.StatusForbidden, Message: message}
}

// NotFound builds a 404 failure
func NotFound(message string) *Failure {
	return &Failure{Status: http.StatusNotFound, Message: message}
}

// Pipeline interprets an ordered list of stages as HTTP middleware. Stages
// run in order and fail fast: the first failure writes the envelope and the
// wrapped handler never runs.
func Pipeline(stages ...Stage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, stage := range stages {
				newCtx, failure := stage(ctx, r)
				if failure != nil {
					if failure.Data != nil {
						httputil.WriteErrorData(w, failure.Status, failure.Message, failure.Data)
					} else {
						httputil.WriteErrorMessage(w, failure.Status, failure.Message)
					}
					return
				}
				ctx = newCtx
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFilter scopes every subsequent resource query to the tenant, and
// optionally to an owning user. A lookup through an owner-constrained filter
// makes foreign and nonexistent resources indistinguishable: both surface
// as not found.
type TenantFilter struct {
	AccountID int64
	OwnerID   *int64
}

// GetAuthContext extracts the authenticated identity from a request
func GetAuthContext(r *http.Request) *auth.Context {
	if authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.Context); ok {
		return authCtx
	}
	return nil
}

// GetAccount extracts the resolved tenant account from a request
func GetAccount(r *http.Request) *accounts.Account {
	if account, ok := r.Context().Value(contextkeys.AccountKey).(*accounts.Account); ok {
		return account
	}
	return nil
}

// GetTenantFilter extracts the tenant query filter from a request
func GetTenantFilter(r *http.Request) (TenantFilter, bool) {
	filter, ok := r.Context().Value(contextkeys.TenantFilterKey).(TenantFilter)
	return filter, ok
}
