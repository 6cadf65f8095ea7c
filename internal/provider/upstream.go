// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencourse-labs/mediagate/internal/media"
	"github.com/opencourse-labs/mediagate/internal/platform/httpx"
	platformnet "github.com/opencourse-labs/mediagate/internal/platform/net"
	"github.com/opencourse-labs/mediagate/internal/telemetry"
)

const (
	probeTimeout    = 10 * time.Second
	maxErrorBody    = 4 << 10
	maxJSONBody     = 1 << 20
	maxRedirectHops = 5
)

// UpstreamClient is the shared HTTP layer for remote backends. It owns
// outbound policy enforcement (the initial URL and every redirect hop),
// tracing and status-to-taxonomy mapping. Adapters own URL construction
// and auth headers. Requests are never retried here: a ranged media
// fetch is not idempotent-cheap, and the player retries on its own.
type UpstreamClient struct {
	provider media.Provider
	policy   platformnet.OutboundPolicy
	probe    *http.Client
	stream   *http.Client
	log      zerolog.Logger
}

// NewUpstreamClient builds the client pair for one backend: a short-lived
// probe client for metadata and a streaming client without a
// whole-exchange timeout for media bodies.
func NewUpstreamClient(p media.Provider, policy platformnet.OutboundPolicy, headerTimeout time.Duration, logger zerolog.Logger) *UpstreamClient {
	probe := httpx.NewClient(probeTimeout)
	stream := httpx.NewStreamingClient(headerTimeout)
	for _, c := range []*http.Client{probe, stream} {
		c.Transport = otelhttp.NewTransport(c.Transport)
		c.CheckRedirect = redirectValidator(policy)
	}
	return &UpstreamClient{
		provider: p,
		policy:   policy,
		probe:    probe,
		stream:   stream,
		log:      logger,
	}
}

// redirectValidator re-checks the outbound policy on every hop. Backends
// hand out 302s to per-tenant download hosts; each target must pass the
// same allowlist as the first request or the redirect is refused.
func redirectValidator(policy platformnet.OutboundPolicy) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirectHops {
			return fmt.Errorf("stopped after %d redirects", maxRedirectHops)
		}
		if _, err := platformnet.ValidateOutboundURL(req.Context(), req.URL.String(), policy); err != nil {
			return fmt.Errorf("redirect to %s refused: %w", platformnet.SanitizeURL(req.URL.String()), err)
		}
		return nil
	}
}

// GetJSON fetches a metadata document and decodes it into v. Any status
// other than 200 is mapped into the error taxonomy.
func (c *UpstreamClient) GetJSON(ctx context.Context, op, rawURL string, header http.Header, v any) error {
	resp, err := c.do(ctx, c.probe, op, rawURL, header)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return c.statusError(op, resp) // statusError closes the body
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(v); err != nil {
		return &media.ProviderError{
			Sentinel: media.ErrUpstream,
			Provider: c.provider,
			Op:       op,
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// GetStream opens a media body. When rng is non-nil a Range header is
// sent; the caller still has to cope with a 200 from backends that
// ignore ranges. On success the caller owns resp.Body.
func (c *UpstreamClient) GetStream(ctx context.Context, op, rawURL string, header http.Header, rng *media.ByteRange) (*http.Response, error) {
	if rng != nil {
		if header == nil {
			header = http.Header{}
		} else {
			header = header.Clone()
		}
		header.Set("Range", rangeHeaderValue(*rng))
	}

	resp, err := c.do(ctx, c.stream, op, rawURL, header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, c.statusError(op, resp)
	}
	return resp, nil
}

func (c *UpstreamClient) do(ctx context.Context, hc *http.Client, op, rawURL string, header http.Header) (*http.Response, error) {
	validated, err := platformnet.ValidateOutboundURL(ctx, rawURL, c.policy)
	if err != nil {
		c.log.Warn().Err(err).
			Str("provider", string(c.provider)).
			Str("op", op).
			Str("url", platformnet.SanitizeURL(rawURL)).
			Msg("outbound url refused by policy")
		return nil, &media.ProviderError{
			Sentinel: media.ErrUpstream,
			Provider: c.provider,
			Op:       op,
			Err:      err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validated, nil)
	if err != nil {
		return nil, &media.ProviderError{
			Sentinel: media.ErrUpstream,
			Provider: c.provider,
			Op:       op,
			Err:      err,
		}
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &media.ProviderError{
			Sentinel: media.ErrUpstream,
			Provider: c.provider,
			Op:       op,
			Err:      err,
		}
	}

	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.UpstreamAttributes(string(c.provider), op, resp.StatusCode)...)
	return resp, nil
}

// statusError drains up to maxErrorBody of the response for the log-side
// error and maps the status into the taxonomy. Upstream auth failures
// (401/403) are server misconfiguration, not a client problem, so they
// map to the upstream class rather than the auth class.
func (c *UpstreamClient) statusError(op string, resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		sentinel = media.ErrNotFound
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		sentinel = media.ErrUnsatisfiable
	default:
		sentinel = media.ErrUpstream
	}

	return &media.ProviderError{
		Sentinel: sentinel,
		Provider: c.provider,
		Op:       op,
		Status:   resp.StatusCode,
		Err:      fmt.Errorf("upstream said: %s", firstLine(detail)),
	}
}

func rangeHeaderValue(rng media.ByteRange) string {
	if rng.OpenEnded() {
		return fmt.Sprintf("bytes=%d-", rng.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End)
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' || c == '\r' {
			return string(b[:i])
		}
	}
	return string(b)
}
