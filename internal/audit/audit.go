// SPDX-License-Identifier: MIT

// Package audit provides structured audit logging for security-sensitive
// operations. It follows the WHO/WHAT/WHEN pattern for compliance and
// forensics: who asked for a link, which stream was served, what was
// rejected and why.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/media"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Link API events
	EventLinkIssued   EventType = "link.issued"
	EventLinkRejected EventType = "link.rejected"

	// Stream events
	EventTokenRejected  EventType = "token.rejected"
	EventStreamStart    EventType = "stream.start"
	EventStreamComplete EventType = "stream.complete"
	EventStreamAbort    EventType = "stream.abort"

	// Access events
	EventAuthFailure  EventType = "auth.failure"
	EventAPIRateLimit EventType = "api.ratelimit"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Actor      string            `json:"actor"`    // WHO: user ID, caller principal, or client key
	Action     string            `json:"action"`   // WHAT: human-readable action description
	Resource   string            `json:"resource"` // provider-qualified file reference
	Result     string            `json:"result"`   // success, failure, denied
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Details    map[string]string `json:"details,omitempty"`
}

// Logger writes audit events through the structured log with a
// log_type marker so they can be split off into a separate sink.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	auditLogger := log.WithComponent("audit").With().
		Str("log_type", "audit").
		Logger()

	return &Logger{logger: auditLogger}
}

// FileRef builds the resource reference for a provider file. The raw
// file ID is hashed so local paths and third-party IDs never land in
// the audit trail verbatim.
func FileRef(provider media.Provider, fileID string) string {
	sum := sha256.Sum256([]byte(fileID))
	return provider.String() + "/" + hex.EncodeToString(sum[:])[:16]
}

// Log writes an audit event.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		logEvent.Str("remote_addr", event.RemoteAddr)
	}
	if event.RequestID != "" {
		logEvent.Str("request_id", event.RequestID)
	}
	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// LogCtx logs an audit event, filling the request ID from the context
// when the event does not carry one.
func (l *Logger) LogCtx(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(ctx)
	}
	l.Log(event)
}

// LinkIssued records a successfully issued play link.
func (l *Logger) LinkIssued(ctx context.Context, actor string, provider media.Provider, fileID, mode, remoteAddr string) {
	l.LogCtx(ctx, Event{
		Type:       EventLinkIssued,
		Actor:      actor,
		Action:     "issued play link",
		Resource:   FileRef(provider, fileID),
		Result:     "success",
		RemoteAddr: remoteAddr,
		Details: map[string]string{
			"mode": mode,
		},
	})
}

// LinkRejected records a play request that failed validation.
func (l *Logger) LinkRejected(ctx context.Context, actor, remoteAddr, reason string) {
	l.LogCtx(ctx, Event{
		Type:       EventLinkRejected,
		Actor:      actor,
		Action:     "rejected play request",
		Resource:   "link",
		Result:     "failure",
		RemoteAddr: remoteAddr,
		Details: map[string]string{
			"reason": reason,
		},
	})
}

// TokenRejected records a stream request with a missing or invalid token.
func (l *Logger) TokenRejected(ctx context.Context, remoteAddr string) {
	l.LogCtx(ctx, Event{
		Type:       EventTokenRejected,
		Actor:      remoteAddr,
		Action:     "rejected playback token",
		Resource:   "stream",
		Result:     "denied",
		RemoteAddr: remoteAddr,
	})
}

// StreamStart records the beginning of a proxied stream.
func (l *Logger) StreamStart(ctx context.Context, actor string, provider media.Provider, fileID, remoteAddr, rangeSpec string) {
	details := map[string]string{}
	if rangeSpec != "" {
		details["range"] = rangeSpec
	}
	l.LogCtx(ctx, Event{
		Type:       EventStreamStart,
		Actor:      actor,
		Action:     "started stream",
		Resource:   FileRef(provider, fileID),
		Result:     "success",
		RemoteAddr: remoteAddr,
		Details:    details,
	})
}

// StreamComplete records a stream that ran to the end of its response.
func (l *Logger) StreamComplete(ctx context.Context, actor string, provider media.Provider, fileID string, bytesSent int64, duration time.Duration) {
	l.LogCtx(ctx, Event{
		Type:     EventStreamComplete,
		Actor:    actor,
		Action:   "completed stream",
		Resource: FileRef(provider, fileID),
		Result:   "success",
		Details: map[string]string{
			"bytes_sent":  strconv.FormatInt(bytesSent, 10),
			"duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
		},
	})
}

// StreamAbort records a stream cut short after headers were sent.
func (l *Logger) StreamAbort(ctx context.Context, actor string, provider media.Provider, fileID, reason string, bytesSent int64) {
	l.LogCtx(ctx, Event{
		Type:     EventStreamAbort,
		Actor:    actor,
		Action:   "aborted stream",
		Resource: FileRef(provider, fileID),
		Result:   "failure",
		Details: map[string]string{
			"reason":     reason,
			"bytes_sent": strconv.FormatInt(bytesSent, 10),
		},
	})
}

// AuthFailure records a failed API authentication attempt.
func (l *Logger) AuthFailure(ctx context.Context, remoteAddr, endpoint, reason string) {
	l.LogCtx(ctx, Event{
		Type:       EventAuthFailure,
		Actor:      remoteAddr,
		Action:     "authentication failed",
		Resource:   endpoint,
		Result:     "failure",
		RemoteAddr: remoteAddr,
		Details: map[string]string{
			"reason": reason,
		},
	})
}

// RateLimitExceeded records a rate-limited request.
func (l *Logger) RateLimitExceeded(ctx context.Context, clientKey, endpoint string, retryAfter time.Duration) {
	l.LogCtx(ctx, Event{
		Type:     EventAPIRateLimit,
		Actor:    clientKey,
		Action:   "rate limit exceeded",
		Resource: endpoint,
		Result:   "denied",
		Details: map[string]string{
			"retry_after_s": strconv.FormatInt(int64(math.Ceil(retryAfter.Seconds())), 10),
		},
	})
}
