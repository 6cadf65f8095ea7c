// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across the gateway's spans. File identifiers
// never appear here; spans carry the same hashed reference the audit
// trail uses.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Playback link attributes
	PlaybackProviderKey = "playback.provider"
	PlaybackModeKey     = "playback.mode"
	PlaybackStartKey    = "playback.start_sec"
	PlaybackFileRefKey  = "playback.file_ref"

	// Stream delivery attributes
	StreamProviderKey = "stream.provider"
	StreamRangeKey    = "stream.range"
	StreamBytesKey    = "stream.bytes_sent"
	StreamStatusKey   = "stream.status"

	// Upstream call attributes
	UpstreamProviderKey = "upstream.provider"
	UpstreamOpKey       = "upstream.op"
	UpstreamStatusKey   = "upstream.status"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PlaybackAttributes creates link-issuance span attributes.
func PlaybackAttributes(provider, mode, fileRef string, startSec int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PlaybackProviderKey, provider),
		attribute.String(PlaybackModeKey, mode),
		attribute.String(PlaybackFileRefKey, fileRef),
		attribute.Int(PlaybackStartKey, startSec),
	}
}

// StreamAttributes creates stream-delivery span attributes. Empty values
// are skipped so cold paths stay cheap.
func StreamAttributes(provider, rangeSpec string, status int, bytesSent int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if provider != "" {
		attrs = append(attrs, attribute.String(StreamProviderKey, provider))
	}
	if rangeSpec != "" {
		attrs = append(attrs, attribute.String(StreamRangeKey, rangeSpec))
	}
	attrs = append(attrs,
		attribute.Int(StreamStatusKey, status),
		attribute.Int64(StreamBytesKey, bytesSent),
	)
	return attrs
}

// UpstreamAttributes creates provider-call span attributes.
func UpstreamAttributes(provider, op string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(UpstreamProviderKey, provider),
		attribute.String(UpstreamOpKey, op),
		attribute.Int(UpstreamStatusKey, status),
	}
}

// ErrorAttributes creates error span attributes from a taxonomy class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
