// Package api exposes the HTTP surface: registration and login, the
// note CRUD endpoints, and the subscription/billing endpoints.
//
// Every route is guarded by a per-route authorization pipeline composed
// from the stages in pkg/middleware. A typical notes route chains
// authenticate, tenant resolution, account status, permission check, and
// ownership restriction before the handler runs. Responses use the
// envelope from pkg/httputil on both success and failure.
package api
