// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func corsHandler(origins []string) http.Handler {
	return CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORS_AllowedOrigin(t *testing.T) {
	h := corsHandler([]string{"https://lms.campus.example"})

	req := httptest.NewRequest(http.MethodGet, "/api/media/play", nil)
	req.Header.Set("Origin", "https://lms.campus.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://lms.campus.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestCORS_BlockedOrigin(t *testing.T) {
	h := corsHandler([]string{"https://lms.campus.example"})

	req := httptest.NewRequest(http.MethodGet, "/api/media/play", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q, want unset for blocked origin", got)
	}
	// The request itself still reaches the handler; the browser does
	// the blocking.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCORS_Wildcard(t *testing.T) {
	h := corsHandler([]string{"*"})

	req := httptest.NewRequest(http.MethodGet, "/api/media/play", nil)
	req.Header.Set("Origin", "https://anything.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anything.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := corsHandler(nil)

	req := httptest.NewRequest(http.MethodOptions, "/media/stream", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Range") {
		t.Fatalf("Allow-Headers = %q, must include Range for media players", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Content-Range") {
		t.Fatalf("Expose-Headers = %q, must include Content-Range", got)
	}
}

func TestCORS_NoOriginHeader(t *testing.T) {
	h := corsHandler([]string{"https://lms.campus.example"})

	req := httptest.NewRequest(http.MethodGet, "/api/media/play", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	// Backend-to-backend callers get the friendly wildcard.
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}
