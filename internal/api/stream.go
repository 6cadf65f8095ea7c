// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/media"
	"github.com/opencourse-labs/mediagate/internal/metrics"
	"github.com/opencourse-labs/mediagate/internal/ratelimit"
	"github.com/opencourse-labs/mediagate/internal/telemetry"
)

// handleStream serves media bytes for a signed playback token.
//
//	GET /media/stream?token=...
//
// The handler runs a strict gate order: token, rate limit, range parse,
// upstream dispatch. Every token failure collapses into one uniform 401 so
// the response never reveals which check failed. Once the status line is
// out, a failing copy can only be logged and the connection closed; the
// status never changes mid-stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "stream")
	clientIP := ratelimit.GetClientIP(r)

	payload := s.codec.Verify(r.URL.Query().Get("token"))
	metrics.IncTokenVerification(payload != nil)
	if payload == nil {
		metrics.IncStreamRequest("unknown", http.StatusUnauthorized)
		s.audit.TokenRejected(ctx, clientIP)
		logger.Warn().
			Str("event", "stream.token_rejected").
			Str("remote_addr", clientIP).
			Msg("stream token rejected")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		return
	}

	providerTag := payload.Provider.String()

	// A leaked play URL should not let one client drain the window of
	// everyone behind the same NAT: the limiter keys on the token's user.
	key := ratelimit.ClientKey(r, payload.UserID)
	if d := s.limiter.Allow(key); !d.Allowed {
		metrics.IncStreamRequest(providerTag, http.StatusTooManyRequests)
		s.writeRateLimited(w, r, key, "/media/stream", d)
		return
	}

	rng, err := media.ParseRange(r.Header.Get("Range"))
	if err != nil {
		metrics.IncStreamRequest(providerTag, http.StatusBadRequest)
		logger.Warn().Err(err).
			Str("event", "stream.bad_range").
			Str("range", r.Header.Get("Range")).
			Msg("unparseable range header")
		writeError(w, err)
		return
	}

	adapter, err := s.registry.Get(payload.Provider)
	if err != nil {
		metrics.IncStreamRequest(providerTag, media.HTTPStatus(err))
		logger.Error().Err(err).
			Str("event", "stream.no_adapter").
			Str("provider", providerTag).
			Msg("no adapter for token provider")
		writeError(w, err)
		return
	}

	var result *media.StreamResult
	if rng == nil {
		result, err = adapter.StreamFullFile(ctx, payload.FileID)
	} else {
		result, err = adapter.StreamFileRange(ctx, payload.FileID, *rng)
	}
	if err != nil {
		status := media.HTTPStatus(err)
		metrics.IncStreamRequest(providerTag, status)
		metrics.IncUpstreamError(providerTag, media.ErrorClass(err))
		logger.Warn().Err(err).
			Str("event", "stream.open_failed").
			Str("provider", providerTag).
			Int("status", status).
			Msg("upstream open failed")
		writeStreamError(w, err)
		return
	}
	defer func() { _ = result.Close() }()

	status := http.StatusOK
	if result.ContentRange != "" {
		status = http.StatusPartialContent
	}

	h := w.Header()
	h.Set("Content-Type", result.ContentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "private, no-store")
	if result.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(result.ContentLength, 10))
	}
	if result.ContentRange != "" {
		h.Set("Content-Range", result.ContentRange)
	}
	if result.Filename != "" {
		h.Set("Content-Disposition", contentDisposition(result.Filename))
	}

	metrics.IncStreamRequest(providerTag, status)
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	s.audit.StreamStart(ctx, payload.UserID, payload.Provider, payload.FileID, clientIP, r.Header.Get("Range"))

	begin := time.Now()
	sent, copyErr := io.Copy(w, result.Stream)
	elapsed := time.Since(begin)

	metrics.AddStreamBytes(providerTag, sent)
	metrics.ObserveStreamDuration(providerTag, elapsed)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.StreamAttributes(providerTag, r.Header.Get("Range"), status, sent)...)

	if copyErr != nil {
		reason := "upstream_error"
		if isClientDisconnect(ctx, copyErr) {
			reason = "client_disconnect"
		}
		metrics.IncStreamAbort(providerTag, reason)
		s.audit.StreamAbort(ctx, payload.UserID, payload.Provider, payload.FileID, reason, sent)
		span.RecordError(copyErr)
		span.SetAttributes(telemetry.ErrorAttributes(reason)...)
		logger.Warn().Err(copyErr).
			Str("event", "stream.abort").
			Str("provider", providerTag).
			Str("reason", reason).
			Int64("bytes_sent", sent).
			Msg("stream terminated early")
		return
	}

	s.audit.StreamComplete(ctx, payload.UserID, payload.Provider, payload.FileID, sent, elapsed)
	logger.Debug().
		Str("event", "stream.complete").
		Str("provider", providerTag).
		Int64("bytes_sent", sent).
		Dur("duration", elapsed).
		Msg("stream finished")
}

// isClientDisconnect reports whether a copy failure is the client going
// away rather than the upstream breaking.
func isClientDisconnect(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset")
}

// contentDisposition builds an inline disposition, dropping characters
// that would break the quoted-string form.
func contentDisposition(name string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return -1
		}
		return r
	}, name)
	return `inline; filename="` + clean + `"`
}
