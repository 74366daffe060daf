package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the API server and then releases registered
// resources in reverse registration order, so dependencies close after
// the code that uses them.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	hooks []ShutdownFunc
}

// NewShutdownManager creates a shutdown manager for the given server.
// A zero timeout defaults to 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc adds a resource hook. Hooks run after the HTTP
// server has drained, last registered first.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains the server
// and runs the hooks within the configured timeout.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()
	return sm.drain(ctx)
}

// drain stops accepting requests, waits for in-flight ones, then runs
// the hooks. A hook failure does not stop the remaining hooks.
func (sm *ShutdownManager) drain(ctx context.Context) error {
	var errs []error

	if sm.server != nil {
		sm.logger.Info("draining HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("server drain failed")
			errs = append(errs, fmt.Errorf("server drain: %w", err))
		}
	}

	sm.mu.Lock()
	hooks := make([]ShutdownFunc, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		if err := sm.runHook(ctx, i, hooks[i]); err != nil {
			errs = append(errs, err)
			if errors.Is(err, context.DeadlineExceeded) {
				sm.logger.Warn("shutdown timeout reached, abandoning remaining hooks")
				break
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("shutdown complete")
	return nil
}

// runHook guards against hooks that ignore their context
func (sm *ShutdownManager) runHook(ctx context.Context, index int, fn ShutdownFunc) error {
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			sm.logger.WithError(err).Errorf("shutdown hook %d failed", index)
			return fmt.Errorf("shutdown hook %d: %w", index, err)
		}
		return nil
	case <-ctx.Done():
		sm.logger.Warnf("shutdown hook %d did not finish in time", index)
		return fmt.Errorf("shutdown hook %d: %w", index, ctx.Err())
	}
}
