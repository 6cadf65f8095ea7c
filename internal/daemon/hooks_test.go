// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencourse-labs/mediagate/internal/config"
	"github.com/opencourse-labs/mediagate/internal/log"
)

func startedManager(t *testing.T) (Manager, func() error) {
	t.Helper()

	mgr, err := NewManager(config.ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: 2 * time.Second,
	}, Deps{
		Logger:     log.WithComponent("test"),
		Config:     config.AppConfig{},
		APIHandler: http.NotFoundHandler(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- mgr.Start(ctx)
	}()

	stop := func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(3 * time.Second):
			t.Fatal("manager.Start did not return after cancellation")
			return nil
		}
	}
	return mgr, stop
}

func TestManager_ShutdownHooksRunInReverseOrder(t *testing.T) {
	mgr, stop := startedManager(t)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	mgr.RegisterShutdownHook("cache", record("cache"))
	mgr.RegisterShutdownHook("policy-watcher", record("policy-watcher"))
	mgr.RegisterShutdownHook("telemetry", record("telemetry"))

	require.NoError(t, stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"telemetry", "policy-watcher", "cache"}, order)
}

func TestManager_ShutdownHookFailureIsReported(t *testing.T) {
	mgr, stop := startedManager(t)

	mgr.RegisterShutdownHook("cache", func(context.Context) error {
		return errors.New("redis connection already gone")
	})

	err := stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook cache")
	assert.Contains(t, err.Error(), "redis connection already gone")
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	mgr, stop := startedManager(t)

	var calls int
	mgr.RegisterShutdownHook("once", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, stop())
	// A second shutdown after the first completed is a no-op.
	require.NoError(t, mgr.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}
