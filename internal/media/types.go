// SPDX-License-Identifier: MIT

// Package media holds the shared domain model for playback links and
// streaming: provider identity, request bounds, byte ranges and the
// error taxonomy the HTTP layer maps to status codes.
package media

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// Provider identifies a media backend variant.
type Provider string

const (
	ProviderDrive Provider = "drive"
	ProviderGraph Provider = "graph"
	ProviderLocal Provider = "local"
)

// Valid reports whether p is a known provider tag.
func (p Provider) Valid() bool {
	switch p {
	case ProviderDrive, ProviderGraph, ProviderLocal:
		return true
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}

// ParseProvider maps a wire value to a provider tag. The public API accepts
// the product names (google_drive, onedrive) as well as the internal tags.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "google_drive", "drive":
		return ProviderDrive, nil
	case "onedrive", "graph":
		return ProviderGraph, nil
	case "local":
		return ProviderLocal, nil
	}
	return "", fmt.Errorf("%w: unknown provider %q", ErrValidation, s)
}

// Request bounds enforced at the play endpoint and re-checked when a
// token comes back through the stream endpoint.
const (
	FileIDMaxLen  = 256
	StartSecMax   = 86400
	ExpiryMinSec  = 60
	ExpiryMaxSec  = 3600
	ExpiryDefault = 300
)

// StreamResult is what an adapter hands back for one stream request.
// ContentRange is set only for partial responses. ContentLength is -1
// when the size is unknown.
type StreamResult struct {
	Stream        io.ReadCloser
	ContentType   string
	ContentLength int64
	ContentRange  string
	Filename      string
}

// Close releases the underlying stream. Safe on a nil result.
func (r *StreamResult) Close() error {
	if r == nil || r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

// videoTypes overrides for extensions the platform mime table gets wrong
// or does not know.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".vtt":  "text/vtt",
	".srt":  "application/x-subrip",
}

// ContentTypeByName resolves a content type from a file name, preferring the
// curated media table over the platform mime registry.
func ContentTypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
