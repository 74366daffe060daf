package observability

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShutdownManager(server *http.Server, timeout time.Duration) *ShutdownManager {
	return NewShutdownManager(NewLogger(ErrorLevel, io.Discard), server, timeout)
}

func TestDrainStopsServerBeforeHooks(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.NotFoundHandler()}
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		server.Serve(listener)
	}()

	var order []string
	sm := newShutdownManager(server, time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		order = append(order, "db")
		return nil
	})

	require.NoError(t, sm.drain(context.Background()))

	select {
	case <-serveDone:
	case <-time.After(time.Second):
		t.Fatal("server did not stop serving")
	}
	assert.Equal(t, []string{"db"}, order)
}

func TestHooksRunInReverseRegistrationOrder(t *testing.T) {
	var order []string
	record := func(name string) ShutdownFunc {
		return func(ctx context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	sm := newShutdownManager(nil, time.Second)
	sm.RegisterShutdownFunc(record("db"))
	sm.RegisterShutdownFunc(record("redis"))
	sm.RegisterShutdownFunc(record("sweeper"))

	require.NoError(t, sm.drain(context.Background()))
	assert.Equal(t, []string{"sweeper", "redis", "db"}, order)
}

func TestHookFailureDoesNotStopRemainingHooks(t *testing.T) {
	var dbClosed atomic.Bool

	sm := newShutdownManager(nil, time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		dbClosed.Store(true)
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return errors.New("tracer export failed")
	})

	err := sm.drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracer export failed")
	assert.True(t, dbClosed.Load(), "later-registered failure must not skip earlier hooks")
}

func TestHookErrorsAreJoined(t *testing.T) {
	sm := newShutdownManager(nil, time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return errors.New("db close failed")
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return errors.New("redis close failed")
	})

	err := sm.drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db close failed")
	assert.Contains(t, err.Error(), "redis close failed")
}

func TestStalledHookHitsTimeout(t *testing.T) {
	var skipped atomic.Bool

	sm := newShutdownManager(nil, time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		skipped.Store(true)
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		select {} // never returns
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sm.drain(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "drain must return once the deadline passes")
	assert.False(t, skipped.Load(), "remaining hooks are abandoned after the deadline")
}

func TestZeroTimeoutDefaults(t *testing.T) {
	sm := newShutdownManager(nil, 0)
	assert.Equal(t, 30*time.Second, sm.timeout)
}

func TestDrainWithNoServerOrHooks(t *testing.T) {
	sm := newShutdownManager(nil, time.Second)
	assert.NoError(t, sm.drain(context.Background()))
}
