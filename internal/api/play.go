// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/media"
	"github.com/opencourse-labs/mediagate/internal/metrics"
	"github.com/opencourse-labs/mediagate/internal/playback"
	"github.com/opencourse-labs/mediagate/internal/ratelimit"
)

// handlePlay issues a signed playback link.
//
//	GET /api/media/play?file_id=...&provider=...&start=...&expiry=...
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "play")
	q := r.URL.Query()

	// The LMS names the learner; server-to-server callers without a user
	// mapping fall back to a pseudonymous ID derived from their API token.
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		if p, ok := principalFrom(ctx); ok {
			userID = p.ID
		}
	}

	key := ratelimit.ClientKey(r, userID)
	if d := s.limiter.Allow(key); !d.Allowed {
		s.writeRateLimited(w, r, key, "/api/media/play", d)
		return
	}

	req := playback.Request{
		FileID:     q.Get("file_id"),
		UserID:     userID,
		ModuleID:   strings.TrimSpace(q.Get("module_id")),
		RemoteAddr: ratelimit.GetClientIP(r),
	}

	if p, err := media.ParseProvider(q.Get("provider")); err == nil {
		req.Provider = p
	} else {
		// Pass the raw value through so every refused link runs one audit
		// and metrics path inside the service.
		req.Provider = media.Provider(q.Get("provider"))
	}

	var err error
	if req.StartSec, err = intParam(q, "start"); err != nil {
		s.rejectPlay(w, r, userID, "start")
		return
	}
	if req.ExpirySec, err = intParam(q, "expiry"); err != nil {
		s.rejectPlay(w, r, userID, "expiry")
		return
	}

	link, err := s.playback.GenerateSignedLink(ctx, req)
	if err != nil {
		logger.Warn().Err(err).
			Str("event", "play.rejected").
			Str("provider", string(req.Provider)).
			Msg("playback link refused")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// intParam reads an optional integer query parameter, zero when absent.
func intParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// rejectPlay answers a request that failed before it could reach the
// service, with the same instrumentation the service applies.
func (s *Server) rejectPlay(w http.ResponseWriter, r *http.Request, actor, reason string) {
	if actor == "" {
		actor = "anonymous"
	}
	metrics.IncLinkRejected(reason)
	s.audit.LinkRejected(r.Context(), actor, ratelimit.GetClientIP(r), reason)
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":  "invalid request",
		"detail": reason + " must be an integer",
	})
}
