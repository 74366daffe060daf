package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers a panic in a background goroutine and logs it with
// the full stack trace. Call it in a defer; the panic is swallowed, not
// re-raised, so long-running loops like the subscription sweeper survive.
func RecoverPanic(logger *Logger, operation string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("operation", operation).
			WithField("stack", string(debug.Stack())).
			Error("panic recovered")
	}
}
