// SPDX-License-Identifier: MIT

package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/media"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger()
	assert.NotNil(t, logger)
}

func TestFileRef(t *testing.T) {
	ref := FileRef(media.ProviderDrive, "abc123")
	assert.True(t, strings.HasPrefix(ref, "drive/"))
	assert.Len(t, ref, len("drive/")+16)

	// Stable for the same input, distinct across inputs, and never
	// contains the raw ID.
	assert.Equal(t, ref, FileRef(media.ProviderDrive, "abc123"))
	assert.NotEqual(t, ref, FileRef(media.ProviderDrive, "abc124"))
	assert.NotEqual(t, ref, FileRef(media.ProviderLocal, "abc123"))
	assert.NotContains(t, FileRef(media.ProviderLocal, "courses/2024/lesson1.mp4"), "lesson1")
}

func TestLogger_Log(t *testing.T) {
	logger := NewLogger()

	event := Event{
		Type:       EventLinkIssued,
		Actor:      "user-42",
		Action:     "issued play link",
		Resource:   "drive/abcdef0123456789",
		Result:     "success",
		RemoteAddr: "192.168.1.100",
		RequestID:  "req-123",
		Details: map[string]string{
			"mode": "proxy",
		},
	}

	// Should not panic.
	logger.Log(event)

	// Missing timestamp is set automatically.
	logger.Log(Event{
		Type:     EventTokenRejected,
		Actor:    "10.0.0.1",
		Action:   "rejected playback token",
		Resource: "stream",
		Result:   "denied",
	})
}

func TestLogger_LogCtx(t *testing.T) {
	logger := NewLogger()

	ctx := log.ContextWithRequestID(context.Background(), "req-456")
	logger.LogCtx(ctx, Event{
		Type:     EventStreamStart,
		Actor:    "user-7",
		Action:   "started stream",
		Resource: "local/0011223344556677",
		Result:   "success",
	})
}

func TestLogger_LinkEvents(t *testing.T) {
	logger := NewLogger()
	ctx := context.Background()

	logger.LinkIssued(ctx, "user-42", media.ProviderDrive, "file-1", "direct", "10.0.0.1:1234")
	logger.LinkRejected(ctx, "user-42", "10.0.0.1:1234", "unknown provider")
}

func TestLogger_StreamEvents(t *testing.T) {
	logger := NewLogger()
	ctx := context.Background()

	logger.TokenRejected(ctx, "10.0.0.2:5678")
	logger.StreamStart(ctx, "user-7", media.ProviderLocal, "courses/lesson1.mp4", "10.0.0.2:5678", "bytes=0-99")
	logger.StreamComplete(ctx, "user-7", media.ProviderLocal, "courses/lesson1.mp4", 1048576, 2500*time.Millisecond)
	logger.StreamAbort(ctx, "user-7", media.ProviderLocal, "courses/lesson1.mp4", "client disconnected", 65536)
}

func TestLogger_AccessEvents(t *testing.T) {
	logger := NewLogger()
	ctx := context.Background()

	logger.AuthFailure(ctx, "192.168.1.51:999", "/api/media/play", "invalid token")
	logger.RateLimitExceeded(ctx, "user:42", "/api/media/play", 37500*time.Millisecond)
}
