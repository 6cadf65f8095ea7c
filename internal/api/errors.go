// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/opencourse-labs/mediagate/internal/media"
	"github.com/opencourse-labs/mediagate/internal/ratelimit"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a taxonomy error onto the wire. Clients get the class
// message; provider paths and upstream detail stay in the server logs.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, media.HTTPStatus(err), errorBody(err))
}

// writeStreamError is writeError plus the RFC 9110 rule that a 416 names
// the actual resource size.
func writeStreamError(w http.ResponseWriter, err error) {
	var unsat *media.UnsatisfiableRangeError
	if errors.As(err, &unsat) {
		w.Header().Set("Content-Range", media.UnsatisfiableContentRange(unsat.Size))
	}
	writeError(w, err)
}

// writeUnauthorized writes a 401 Unauthorized response.
func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
}

// writeRateLimited answers 429 with the seconds until the window resets,
// in both the Retry-After header and the body.
func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request, key, endpoint string, d ratelimit.Decision) {
	retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	s.audit.RateLimitExceeded(r.Context(), key, endpoint, d.RetryAfter)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":      "rate limit exceeded",
		"retryAfter": retryAfter,
	})
}

func errorBody(err error) map[string]string {
	body := map[string]string{"error": media.PublicMessage(err)}
	if errors.Is(err, media.ErrValidation) {
		if detail := validationDetail(err); detail != "" {
			body["detail"] = detail
		}
	}
	return body
}

// validationDetail pulls the reason out of a validation error. Validation
// messages never carry paths or upstream responses, so they are safe to
// return verbatim.
func validationDetail(err error) string {
	if _, after, ok := strings.Cut(err.Error(), media.ErrValidation.Error()+": "); ok {
		return after
	}
	return ""
}
