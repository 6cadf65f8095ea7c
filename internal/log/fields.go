// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldSessionID     = "session_id"
	FieldUserID        = "user_id"
	FieldModuleID      = "module_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Media / stream fields
	FieldProvider    = "provider"
	FieldFileID      = "file_id"
	FieldRangeStart  = "range_start"
	FieldRangeEnd    = "range_end"
	FieldBytesSent   = "bytes_sent"
	FieldContentType = "content_type"

	// HTTP fields
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldRemoteAddr = "remote_addr"
	FieldUserAgent  = "user_agent"
	FieldDurationMS = "duration_ms"

	// Upstream fields
	FieldBaseURL        = "base_url"
	FieldUpstreamStatus = "upstream_status"
)
