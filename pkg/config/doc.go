// Package config loads the application configuration from QUILL_* environment
// variables. Secrets have no defaults: the process refuses to start when the
// database URL, the session token secret, or the payment gateway credentials
// are missing.
package config
