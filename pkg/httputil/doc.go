// Package httputil contains shared HTTP plumbing: the response envelope
// written by every endpoint, JSON and path-parameter helpers, and the base
// middleware (logging, panic recovery, request IDs, body limits).
package httputil
