// SPDX-License-Identifier: MIT

package media

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		want      *ByteRange
		wantError bool
	}{
		{
			name:   "no header",
			header: "",
			want:   nil,
		},
		{
			name:   "bounded range",
			header: "bytes=0-99",
			want:   &ByteRange{Start: 0, End: 99},
		},
		{
			name:   "open ended",
			header: "bytes=900-",
			want:   &ByteRange{Start: 900, End: -1},
		},
		{
			name:   "single byte",
			header: "bytes=5-5",
			want:   &ByteRange{Start: 5, End: 5},
		},
		{
			name:   "whitespace tolerated",
			header: " bytes=10-20",
			want:   &ByteRange{Start: 10, End: 20},
		},
		{
			name:      "suffix range unsupported",
			header:    "bytes=-500",
			wantError: true,
		},
		{
			name:      "multiple ranges unsupported",
			header:    "bytes=0-1,5-9",
			wantError: true,
		},
		{
			name:      "non-bytes unit",
			header:    "items=0-10",
			wantError: true,
		},
		{
			name:      "end before start",
			header:    "bytes=100-50",
			wantError: true,
		},
		{
			name:      "missing dash",
			header:    "bytes=100",
			wantError: true,
		},
		{
			name:      "garbage",
			header:    "bytes=abc-def",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header)
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error for %q, got none", tt.header)
				}
				if !errors.Is(err, ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil range, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a range, got nil")
			}
			if got.Start != tt.want.Start || got.End != tt.want.End {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestByteRangeResolve(t *testing.T) {
	tests := []struct {
		name      string
		rng       ByteRange
		size      int64
		wantStart int64
		wantEnd   int64
		wantError bool
	}{
		{
			name:      "first hundred",
			rng:       ByteRange{Start: 0, End: 99},
			size:      1000,
			wantStart: 0,
			wantEnd:   99,
		},
		{
			name:      "open ended tail",
			rng:       ByteRange{Start: 900, End: -1},
			size:      1000,
			wantStart: 900,
			wantEnd:   999,
		},
		{
			name:      "end clamped to last byte",
			rng:       ByteRange{Start: 0, End: 5000},
			size:      1000,
			wantStart: 0,
			wantEnd:   999,
		},
		{
			name:      "start beyond eof",
			rng:       ByteRange{Start: 2000, End: -1},
			size:      1000,
			wantError: true,
		},
		{
			name:      "start at eof",
			rng:       ByteRange{Start: 1000, End: -1},
			size:      1000,
			wantError: true,
		},
		{
			name:      "unknown size",
			rng:       ByteRange{Start: 0, End: 10},
			size:      -1,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := tt.rng.Resolve(tt.size)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				if !errors.Is(err, ErrUnsatisfiable) {
					t.Errorf("expected ErrUnsatisfiable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("got %d-%d, want %d-%d", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestResolveReportsSizeForUnsatisfiableStart(t *testing.T) {
	_, _, err := ByteRange{Start: 2000, End: -1}.Resolve(1000)
	var ure *UnsatisfiableRangeError
	if !errors.As(err, &ure) {
		t.Fatalf("expected UnsatisfiableRangeError, got %v", err)
	}
	if ure.Size != 1000 {
		t.Fatalf("Size = %d, want 1000", ure.Size)
	}
}

func TestContentRangeFormat(t *testing.T) {
	if got := ContentRange(0, 99, 1000); got != "bytes 0-99/1000" {
		t.Errorf("ContentRange() = %q", got)
	}
	if got := UnsatisfiableContentRange(1000); got != "bytes */1000" {
		t.Errorf("UnsatisfiableContentRange() = %q", got)
	}
}
