// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/opencourse-labs/mediagate/internal/config"
)

// Deps contains the dependencies the daemon Manager runs with. Everything
// is injected so tests can swap handlers for stubs.
type Deps struct {
	// Logger is the structured logger for the daemon.
	Logger zerolog.Logger

	// Config is the resolved gateway configuration.
	Config config.AppConfig

	// APIHandler serves the playback API and the stream proxy.
	APIHandler http.Handler

	// MetricsHandler serves Prometheus metrics on its own listener
	// so the scrape endpoint never shares a port with media traffic.
	// Nil disables the metrics server.
	MetricsHandler http.Handler
}

// Validate checks that the required dependencies are present.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
