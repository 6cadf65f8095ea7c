// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"

	"github.com/opencourse-labs/mediagate/internal/auth"
	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/ratelimit"
)

// ctxPrincipalKey stores the authenticated principal in the request context.
type ctxPrincipalKey struct{}

// principalFrom returns the principal the auth middleware attached, if any.
func principalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey{}).(auth.Principal)
	return p, ok
}

// authMiddleware enforces the static API token on the link endpoints.
// Streaming stays outside this gate: it is authorized by the signed
// playback token instead.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" {
			if s.cfg.AuthAnonymous {
				// Auth explicitly disabled.
				next.ServeHTTP(w, r)
				return
			}
			// Fail closed: no token configured and anonymous access not
			// explicitly enabled.
			log.FromContext(r.Context()).Error().
				Str("event", "auth.fail_closed").
				Msg("MEDIAGATE_API_TOKEN not set and MEDIAGATE_AUTH_ANONYMOUS!=true, denying access")
			s.audit.AuthFailure(r.Context(), ratelimit.GetClientIP(r), r.URL.Path, "fail_closed")
			writeUnauthorized(w)
			return
		}

		reqToken := auth.ExtractToken(r)
		logger := log.WithComponentFromContext(r.Context(), "auth")

		if reqToken == "" {
			logger.Warn().Str("event", "auth.missing_header").Msg("authorization header missing")
			s.audit.AuthFailure(r.Context(), ratelimit.GetClientIP(r), r.URL.Path, "missing_credentials")
			writeUnauthorized(w)
			return
		}

		if !auth.AuthorizeToken(reqToken, s.cfg.APIToken) {
			logger.Warn().Str("event", "auth.invalid_token").Msg("invalid api token")
			s.audit.AuthFailure(r.Context(), ratelimit.GetClientIP(r), r.URL.Path, "invalid_token")
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), ctxPrincipalKey{}, auth.NewPrincipal(reqToken, ""))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
