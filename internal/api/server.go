// SPDX-License-Identifier: MIT

// Package api exposes the HTTP surface of the playback gateway: the
// authenticated link endpoint, the token-gated streaming endpoint and the
// operational probes. Handlers translate between the wire and the playback
// domain; policy lives in the domain packages.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/opencourse-labs/mediagate/internal/api/middleware"
	"github.com/opencourse-labs/mediagate/internal/audit"
	"github.com/opencourse-labs/mediagate/internal/health"
	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/playback"
	"github.com/opencourse-labs/mediagate/internal/provider"
	"github.com/opencourse-labs/mediagate/internal/ratelimit"
	"github.com/opencourse-labs/mediagate/internal/token"
)

// Config carries the request-facing settings the server needs.
type Config struct {
	// APIToken guards the link endpoints. When empty the server fails
	// closed unless AuthAnonymous is set.
	APIToken      string
	AuthAnonymous bool

	// AllowedOrigins feeds the CORS layer. Empty means localhost dev
	// defaults.
	AllowedOrigins []string

	// TracingService names this server in spans. Empty disables tracing.
	TracingService string

	// IPRequestsPerMin caps raw per-IP request volume ahead of the
	// per-user window. Zero keeps the middleware default.
	IPRequestsPerMin int
}

// Deps are the collaborators the handlers dispatch into.
type Deps struct {
	Playback *playback.Service
	Registry *provider.Registry
	Codec    *token.Codec
	Limiter  *ratelimit.Limiter
	Health   *health.Manager
	Audit    *audit.Logger
}

// Server wires the HTTP handlers to the playback domain.
type Server struct {
	cfg      Config
	playback *playback.Service
	registry *provider.Registry
	codec    *token.Codec
	limiter  *ratelimit.Limiter
	health   *health.Manager
	audit    *audit.Logger
	logger   zerolog.Logger
}

// NewServer builds the server. Playback, Registry and Codec are required;
// the other collaborators fall back to working defaults.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Playback == nil {
		return nil, errors.New("api: playback service is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("api: provider registry is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("api: token codec is required")
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(ratelimit.DefaultConfig())
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger()
	}

	return &Server{
		cfg:      cfg,
		playback: deps.Playback,
		registry: deps.Registry,
		codec:    deps.Codec,
		limiter:  deps.Limiter,
		health:   deps.Health,
		audit:    deps.Audit,
		logger:   log.WithComponent("api"),
	}, nil
}

// Routes assembles the middleware stack and the route table.
func (s *Server) Routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		EnableRateLimit:       true,
		RateLimitPerMin:       s.cfg.IPRequestsPerMin,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api/media", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/play", s.handlePlay)
	})

	// Stream access is authorized by the signed token alone: media
	// elements cannot attach headers, so the URL must carry everything.
	r.Get("/media/stream", s.handleStream)
	r.Head("/media/stream", s.handleStream)

	return r
}
