// SPDX-License-Identifier: MIT

// Package ratelimit implements the fixed-window request limiter for the
// media endpoint group. Windows live in process memory only: counts are
// not shared across instances and reset on restart. That is a documented
// limitation of this deployment model, not an oversight.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "ratelimit_exceeded_total",
			Help:      "Total rate limit rejections",
		},
		[]string{"limit_type", "group"},
	)
)

// Clock supplies the current time. Tests inject a fake.
type Clock func() time.Time

// Config holds rate limiting configuration.
type Config struct {
	// Window is the fixed interval tracked per client key.
	Window time.Duration
	// Limit is the number of requests allowed per key per window.
	Limit int
	// Group names the endpoint group for metric labels.
	Group string

	// GlobalRate smooths process-wide bursts before the per-key windows.
	// Zero disables the global bucket.
	GlobalRate  rate.Limit
	GlobalBurst int

	// CleanupInterval controls how often elapsed windows are evicted.
	CleanupInterval time.Duration

	// Clock defaults to time.Now.
	Clock Clock
}

// DefaultConfig returns the limits for the media endpoint group.
func DefaultConfig() Config {
	return Config{
		Window: 60 * time.Second,
		Limit:  60,
		Group:  "media",

		GlobalRate:  200,
		GlobalBurst: 400,

		CleanupInterval: 5 * time.Minute,
	}
}

// window is one client's counter for the current fixed interval.
type window struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter tracks fixed windows per client key.
type Limiter struct {
	cfg   Config
	clock Clock

	global *rate.Limiter

	mu          sync.Mutex
	windows     map[string]*window
	lastCleanup time.Time
}

// New creates a limiter from config, filling zero fields with defaults.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Group == "" {
		cfg.Group = def.Group
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	l := &Limiter{
		cfg:         cfg,
		clock:       clock,
		windows:     make(map[string]*window),
		lastCleanup: clock(),
	}
	if cfg.GlobalRate > 0 {
		l.global = rate.NewLimiter(cfg.GlobalRate, cfg.GlobalBurst)
	}
	return l
}

// Allow records one request for key and decides whether it may proceed.
// The count never exceeds the configured limit; the rejected request is
// not added to the window.
func (l *Limiter) Allow(key string) Decision {
	now := l.clock()

	if l.global != nil && !l.global.AllowN(now, 1) {
		rateLimitExceeded.WithLabelValues("global", l.cfg.Group).Inc()
		return Decision{RetryAfter: time.Second, ResetAt: now.Add(time.Second)}
	}

	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cfg.Window)}
		l.windows[key] = w
	}

	if w.count >= l.cfg.Limit {
		resetAt := w.resetAt
		l.mu.Unlock()
		rateLimitExceeded.WithLabelValues("per_client", l.cfg.Group).Inc()
		return Decision{
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}
	}

	w.count++
	d := Decision{
		Allowed:   true,
		Remaining: l.cfg.Limit - w.count,
		ResetAt:   w.resetAt,
	}
	l.mu.Unlock()

	l.maybeCleanup(now)
	return d
}

// maybeCleanup evicts elapsed windows once per cleanup interval.
func (l *Limiter) maybeCleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) < l.cfg.CleanupInterval {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	l.lastCleanup = now
}

// ClientKey derives the limiter key for a request: the authenticated user
// when known, else the client IP. Keying by user keeps NAT'd classrooms
// from starving each other.
func ClientKey(r *http.Request, userID string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + GetClientIP(r)
}

// GetClientIP extracts the real client IP from the request.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2".
	// The first entry is the original client.
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			xff = xff[:idx]
		}
		xff = strings.TrimSpace(xff)
		if xff != "" {
			return xff
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
