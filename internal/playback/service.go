// SPDX-License-Identifier: MIT

// Package playback issues play links: either a provider-native deep
// link the client opens directly, or a proxy URL carrying a signed
// token for the stream endpoint. Which of the two a provider gets is a
// policy decision, not code.
package playback

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencourse-labs/mediagate/internal/audit"
	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/media"
	"github.com/opencourse-labs/mediagate/internal/metrics"
	"github.com/opencourse-labs/mediagate/internal/policy"
	"github.com/opencourse-labs/mediagate/internal/provider"
	"github.com/opencourse-labs/mediagate/internal/telemetry"
	"github.com/opencourse-labs/mediagate/internal/token"
)

// Request is one play-link request. Transient; built and discarded per
// call. Bounds come from the media package so the stream side re-checks
// the same numbers.
type Request struct {
	FileID    string
	Provider  media.Provider
	StartSec  int
	ExpirySec int // 0 means media.ExpiryDefault

	// UserID and ModuleID bind the issued token to an audit subject.
	UserID   string
	ModuleID string

	// RemoteAddr is carried through to the audit trail.
	RemoteAddr string
}

// Link is the issued play link.
type Link struct {
	PlayURL  string    `json:"playUrl"`
	StartSec int       `json:"start_sec"`
	ExpiryAt time.Time `json:"expiry_at"`
	IsProxy  bool      `json:"is_proxy"`
}

// Config wires a Service.
type Config struct {
	Registry *provider.Registry
	Codec    *token.Codec
	Policy   *policy.Store
	Audit    *audit.Logger

	// PublicURL is the externally reachable base of this gateway, used
	// to build proxy URLs.
	PublicURL string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service issues play links.
type Service struct {
	registry *provider.Registry
	codec    *token.Codec
	policy   *policy.Store
	audit    *audit.Logger
	base     *url.URL
	clock    func() time.Time
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("playback: registry is required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("playback: token codec is required")
	}
	base, err := url.Parse(cfg.PublicURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("playback: public URL %q is not absolute", cfg.PublicURL)
	}

	pol := cfg.Policy
	if pol == nil {
		pol = policy.NewStore("")
	}
	aud := cfg.Audit
	if aud == nil {
		aud = audit.NewLogger()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		registry: cfg.Registry,
		codec:    cfg.Codec,
		policy:   pol,
		audit:    aud,
		base:     base,
		clock:    clock,
		logger:   log.WithComponent("playback"),
		tracer:   telemetry.Tracer("mediagate/playback"),
	}, nil
}

// GenerateSignedLink validates the request and issues a play link. The
// provider's policy mode picks direct or proxy delivery; providers that
// cannot produce a direct link for the file fall back to proxy.
func (s *Service) GenerateSignedLink(ctx context.Context, req Request) (*Link, error) {
	ctx, span := s.tracer.Start(ctx, "playback.issue_link")
	defer span.End()

	if req.ExpirySec == 0 {
		req.ExpirySec = media.ExpiryDefault
	}

	if reason, err := validate(req); err != nil {
		metrics.IncLinkRejected(reason)
		s.audit.LinkRejected(ctx, actor(req), req.RemoteAddr, reason)
		span.SetStatus(codes.Error, "request rejected")
		span.SetAttributes(telemetry.ErrorAttributes(reason)...)
		return nil, err
	}
	if !s.registry.Has(req.Provider) {
		metrics.IncLinkRejected("provider_disabled")
		s.audit.LinkRejected(ctx, actor(req), req.RemoteAddr, "provider_disabled")
		span.SetStatus(codes.Error, "provider disabled")
		span.SetAttributes(telemetry.ErrorAttributes("provider_disabled")...)
		return nil, fmt.Errorf("%w: provider %s is not enabled", media.ErrValidation, req.Provider)
	}

	ttl := time.Duration(req.ExpirySec) * time.Second
	expiryAt := s.clock().Add(ttl)
	fileRef := audit.FileRef(req.Provider, req.FileID)

	if s.policy.Mode(req.Provider) == policy.ModeDirect {
		if link, ok := s.directLink(ctx, req); ok {
			metrics.IncLinkIssued(req.Provider.String(), false)
			s.audit.LinkIssued(ctx, actor(req), req.Provider, req.FileID, string(policy.ModeDirect), req.RemoteAddr)
			span.SetAttributes(telemetry.PlaybackAttributes(req.Provider.String(), string(policy.ModeDirect), fileRef, req.StartSec)...)
			return &Link{
				PlayURL:  link,
				StartSec: req.StartSec,
				ExpiryAt: expiryAt,
				IsProxy:  false,
			}, nil
		}
		s.logger.Debug().
			Str("event", "playback.direct_unavailable").
			Str("provider", req.Provider.String()).
			Msg("direct link unavailable, falling back to proxy")
	}

	raw, err := s.codec.Issue(token.Payload{
		FileID:   req.FileID,
		Provider: req.Provider,
		StartSec: req.StartSec,
		UserID:   req.UserID,
		ModuleID: req.ModuleID,
	}, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token issue failed")
		return nil, fmt.Errorf("issue playback token: %w", err)
	}

	metrics.IncLinkIssued(req.Provider.String(), true)
	s.audit.LinkIssued(ctx, actor(req), req.Provider, req.FileID, string(policy.ModeProxy), req.RemoteAddr)
	span.SetAttributes(telemetry.PlaybackAttributes(req.Provider.String(), string(policy.ModeProxy), fileRef, req.StartSec)...)

	return &Link{
		PlayURL:  s.streamURL(raw, req.StartSec),
		StartSec: req.StartSec,
		ExpiryAt: expiryAt,
		IsProxy:  true,
	}, nil
}

// directLink asks the adapter for a native link and pins the start time
// onto it as a media fragment.
func (s *Service) directLink(ctx context.Context, req Request) (string, bool) {
	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return "", false
	}
	link, ok := adapter.DirectLink(ctx, req.FileID, req.StartSec)
	if !ok {
		return "", false
	}
	if req.StartSec > 0 {
		link += "#t=" + strconv.Itoa(req.StartSec)
	}
	return link, true
}

// streamURL builds the proxy URL for a signed token. The start offset is
// mirrored into the query string for players that read it; the stream
// endpoint itself trusts only the copy inside the token.
func (s *Service) streamURL(rawToken string, startSec int) string {
	u := *s.base
	u.Path = joinPath(u.Path, "/media/stream")
	q := url.Values{}
	q.Set("token", rawToken)
	if startSec > 0 {
		q.Set("start", strconv.Itoa(startSec))
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

func joinPath(base, suffix string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + suffix
}

func validate(req Request) (string, error) {
	if req.FileID == "" || len(req.FileID) > media.FileIDMaxLen {
		return "file_id", fmt.Errorf("%w: file_id must be 1-%d characters", media.ErrValidation, media.FileIDMaxLen)
	}
	if !req.Provider.Valid() {
		return "provider", fmt.Errorf("%w: unknown provider %q", media.ErrValidation, string(req.Provider))
	}
	if req.StartSec < 0 || req.StartSec > media.StartSecMax {
		return "start", fmt.Errorf("%w: start must be within 0-%d seconds", media.ErrValidation, media.StartSecMax)
	}
	if req.ExpirySec < media.ExpiryMinSec || req.ExpirySec > media.ExpiryMaxSec {
		return "expiry", fmt.Errorf("%w: expiry must be within %d-%d seconds", media.ErrValidation, media.ExpiryMinSec, media.ExpiryMaxSec)
	}
	if req.UserID == "" {
		return "user_id", fmt.Errorf("%w: user_id is required", media.ErrValidation)
	}
	return "", nil
}

func actor(req Request) string {
	if req.UserID != "" {
		return req.UserID
	}
	return "anonymous"
}
