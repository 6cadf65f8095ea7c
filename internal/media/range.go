// SPDX-License-Identifier: MIT

package media

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is a single parsed byte range. End is -1 for open-ended
// ranges ("bytes=100-"), meaning "to end of file".
type ByteRange struct {
	Start int64
	End   int64
}

// OpenEnded reports whether the range runs to end of file.
func (r ByteRange) OpenEnded() bool {
	return r.End < 0
}

// ParseRange parses a Range header value of the form "bytes=<start>-<end>"
// where <end> is optional. A missing header yields (nil, nil). Anything
// else (suffix ranges, multiple ranges, non-bytes units, garbage) wraps
// ErrValidation so the handler answers 400.
func ParseRange(header string) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("%w: unsupported range unit in %q", ErrValidation, header)
	}

	spec := header[len(prefix):]
	if strings.Contains(spec, ",") {
		return nil, fmt.Errorf("%w: multiple ranges not supported", ErrValidation)
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return nil, fmt.Errorf("%w: malformed range %q", ErrValidation, header)
	}

	startStr := strings.TrimSpace(spec[:dash])
	endStr := strings.TrimSpace(spec[dash+1:])

	if startStr == "" {
		// Suffix ranges ("bytes=-500") are outside the supported grammar.
		return nil, fmt.Errorf("%w: suffix ranges not supported", ErrValidation)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("%w: malformed range start %q", ErrValidation, startStr)
	}

	end := int64(-1)
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil, fmt.Errorf("%w: malformed range end %q", ErrValidation, endStr)
		}
	}

	return &ByteRange{Start: start, End: end}, nil
}

// Resolve bounds the range against the total size. The end is clamped to
// the last byte; a start at or past the end of file is unsatisfiable.
func (r ByteRange) Resolve(size int64) (start, end int64, err error) {
	if size < 0 {
		return 0, 0, fmt.Errorf("%w: unknown file size", ErrUnsatisfiable)
	}
	if r.Start >= size {
		return 0, 0, &UnsatisfiableRangeError{Size: size}
	}
	end = r.End
	if end < 0 || end >= size {
		end = size - 1
	}
	return r.Start, end, nil
}

// ContentRange formats the Content-Range header for a 206 response.
func ContentRange(start, end, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, total)
}

// UnsatisfiableContentRange formats the Content-Range header for a 416.
func UnsatisfiableContentRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}
