// SPDX-License-Identifier: MIT

package provider

import (
	"fmt"
	"io"
	"net/http"

	"github.com/opencourse-labs/mediagate/internal/media"
)

// limitedBody caps reads at the resolved range length while closing the
// underlying upstream body.
type limitedBody struct {
	io.Reader
	io.Closer
}

// FullResult wraps an upstream 200 for a whole-file fetch.
func (c *UpstreamClient) FullResult(resp *http.Response, info *FileInfo) *media.StreamResult {
	length := info.Size
	if length < 0 {
		length = resp.ContentLength
	}
	return &media.StreamResult{
		Stream:        resp.Body,
		ContentType:   contentType(resp, info),
		ContentLength: length,
		Filename:      info.Name,
	}
}

// RangeResult adapts an upstream response to the resolved range
// [start,end]. A 206 body is passed through as-is. Some backends answer
// a ranged request with a plain 200 and the whole file; in that case the
// bytes before start are drained here so the client still receives
// exactly the requested window.
func (c *UpstreamClient) RangeResult(resp *http.Response, start, end int64, info *FileInfo) (*media.StreamResult, error) {
	length := end - start + 1

	if resp.StatusCode == http.StatusOK && start > 0 {
		c.log.Warn().
			Str("provider", string(c.provider)).
			Int64("skip_bytes", start).
			Msg("upstream ignored range request, discarding prefix")
		if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
			_ = resp.Body.Close()
			return nil, &media.ProviderError{
				Sentinel: media.ErrUpstream,
				Provider: c.provider,
				Op:       "range.skip",
				Err:      fmt.Errorf("discard %d prefix bytes: %w", start, err),
			}
		}
	}

	return &media.StreamResult{
		Stream:        limitedBody{Reader: io.LimitReader(resp.Body, length), Closer: resp.Body},
		ContentType:   contentType(resp, info),
		ContentLength: length,
		ContentRange:  media.ContentRange(start, end, info.Size),
		Filename:      info.Name,
	}, nil
}

// contentType prefers the probed metadata over the response header so
// the type a client sees does not change between HEAD-style probes and
// the stream itself.
func contentType(resp *http.Response, info *FileInfo) string {
	if info.ContentType != "" {
		return info.ContentType
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
