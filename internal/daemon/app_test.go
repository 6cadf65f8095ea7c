// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/policy"
)

type fakeManager struct {
	startErr  error
	starts    atomic.Int32
	shutdowns atomic.Int32
}

func (f *fakeManager) Start(ctx context.Context) error {
	f.starts.Add(1)
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeManager) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	return nil
}

func (f *fakeManager) RegisterShutdownHook(string, ShutdownHook) {}

func TestApp_Run_MissingManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil)

	if err := app.Run(context.Background()); !errors.Is(err, ErrMissingManager) {
		t.Fatalf("Run() error = %v, want %v", err, ErrMissingManager)
	}
}

func TestApp_Run_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := &fakeManager{}
	// No policy path configured: the watcher start is a logged no-op.
	app := NewApp(log.WithComponent("test"), mgr, policy.NewStore(""))

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}

	if got := mgr.starts.Load(); got != 1 {
		t.Errorf("manager starts = %d, want 1", got)
	}
}

func TestApp_Run_PropagatesManagerError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bindErr := errors.New("bind: address already in use")
	mgr := &fakeManager{startErr: bindErr}
	app := NewApp(log.WithComponent("test"), mgr, nil)

	if err := app.Run(context.Background()); !errors.Is(err, bindErr) {
		t.Fatalf("Run() error = %v, want %v", err, bindErr)
	}
	if got := mgr.shutdowns.Load(); got != 1 {
		t.Errorf("manager shutdowns = %d, want 1", got)
	}
}
