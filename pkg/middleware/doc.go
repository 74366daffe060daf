// Package middleware implements the per-request authorization pipeline as an
// ordered list of stages interpreted over a request-context accumulator.
// Each stage either enriches the context (identity, tenant account, tenant
// query filter) or terminates the request with a typed failure. Routes
// compose their own chains:
//
//	middleware.Pipeline(
//		middleware.Authenticate(tokens, users),
//		middleware.ResolveTenant(accounts),
//		middleware.AccountStatus(),
//		middleware.RequirePermission(auth.PermissionNotesCreate),
//		middleware.RestrictToOwner(),
//	)
//
// The package also carries the Redis-backed rate limiter applied to the
// login endpoint.
package middleware
