// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opencourse-labs/mediagate/internal/policy"
)

// App owns the long-lived runtime around the servers: the policy
// watcher and the reload signal. Server lifecycle is delegated to
// Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	policies     *policy.Store
	reloadSignal os.Signal
}

// NewApp creates the runtime orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, policies *policy.Store) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		policies:     policies,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts the owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// The policy watcher is best-effort: a missing inotify descriptor
	// must not keep the gateway from serving.
	if a.policies != nil {
		if err := a.policies.Watch(ctx); err != nil {
			a.logger.Warn().
				Err(err).
				Str("event", "policy.watcher_start_failed").
				Msg("failed to start policy watcher")
		}
	}

	// SIGHUP forces a policy reload without waiting for the watcher.
	if a.policies != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "policy.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading link policy")

					if err := a.policies.Load(); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "policy.reload_failed").
							Msg("policy reload failed")
					}
				}
			}
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
