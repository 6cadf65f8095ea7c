// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus instruments for the playback
// domain: link issuance, streaming sessions and upstream behavior.
// HTTP-level request metrics live in the middleware layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LinksIssuedTotal counts signed links handed out, split by provider
	// and by whether the client got a direct provider URL or a proxy URL.
	LinksIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_links_issued_total",
		Help: "Playback links issued by provider and delivery mode",
	}, []string{"provider", "mode"})

	// LinkRejectionsTotal counts refused link requests by taxonomy class.
	LinkRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_link_rejections_total",
		Help: "Refused link requests by error class",
	}, []string{"reason"})

	// TokenVerificationsTotal tracks stream-token verification outcomes.
	TokenVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_token_verifications_total",
		Help: "Stream token verification outcomes",
	}, []string{"result"})

	// StreamRequestsTotal counts stream requests by provider and final
	// HTTP status.
	StreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_stream_requests_total",
		Help: "Stream requests by provider and response status",
	}, []string{"provider", "status"})

	// StreamBytesTotal counts media bytes delivered to clients.
	StreamBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_stream_bytes_total",
		Help: "Media bytes sent to clients by provider",
	}, []string{"provider"})

	// StreamDuration observes how long a streaming response stayed open.
	// Buckets run long: playback sessions are minutes, not milliseconds.
	StreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediagate_stream_duration_seconds",
		Help:    "Wall time a streaming response stayed open",
		Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900, 1800, 3600},
	}, []string{"provider"})

	// StreamAbortsTotal counts streams that ended before the requested
	// window was fully sent.
	StreamAbortsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_stream_aborts_total",
		Help: "Streams terminated early by reason",
	}, []string{"provider", "reason"})

	// UpstreamErrorsTotal counts backend failures by taxonomy class.
	UpstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_upstream_errors_total",
		Help: "Backend failures by provider and error class",
	}, []string{"provider", "class"})

	// MetaProbeDuration observes metadata probe latency per provider.
	MetaProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediagate_meta_probe_duration_seconds",
		Help:    "Metadata probe latency by provider",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)

// IncLinkIssued records one issued link.
func IncLinkIssued(provider string, proxy bool) {
	mode := "direct"
	if proxy {
		mode = "proxy"
	}
	LinksIssuedTotal.WithLabelValues(provider, mode).Inc()
}

// IncLinkRejected records one refused link request.
func IncLinkRejected(reason string) {
	LinkRejectionsTotal.WithLabelValues(reason).Inc()
}

// IncTokenVerification records a token verification outcome.
func IncTokenVerification(ok bool) {
	result := "rejected"
	if ok {
		result = "ok"
	}
	TokenVerificationsTotal.WithLabelValues(result).Inc()
}

// IncStreamRequest records a finished stream request.
func IncStreamRequest(provider string, status int) {
	StreamRequestsTotal.WithLabelValues(provider, strconv.Itoa(status)).Inc()
}

// AddStreamBytes records media bytes sent to a client.
func AddStreamBytes(provider string, n int64) {
	if n > 0 {
		StreamBytesTotal.WithLabelValues(provider).Add(float64(n))
	}
}

// ObserveStreamDuration records how long a stream stayed open.
func ObserveStreamDuration(provider string, d time.Duration) {
	StreamDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// IncStreamAbort records an early stream termination.
func IncStreamAbort(provider, reason string) {
	StreamAbortsTotal.WithLabelValues(provider, reason).Inc()
}

// IncUpstreamError records a backend failure.
func IncUpstreamError(provider, class string) {
	UpstreamErrorsTotal.WithLabelValues(provider, class).Inc()
}

// ObserveMetaProbe records one metadata probe.
func ObserveMetaProbe(provider string, d time.Duration) {
	MetaProbeDuration.WithLabelValues(provider).Observe(d.Seconds())
}
