// SPDX-License-Identifier: MIT

// Package local serves media files from a directory on the gateway host.
// File identifiers are slash-separated paths relative to the configured
// root; anything that could escape the root is rejected before the
// filesystem is touched.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/opencourse-labs/mediagate/internal/media"
)

// Config holds the local backend settings.
type Config struct {
	// Root is the media directory. It must exist at startup.
	Root string
}

// Adapter streams files from the local media root.
type Adapter struct {
	root string // absolute, symlink-resolved
	log  zerolog.Logger
}

// New resolves the media root once so later containment checks compare
// against a stable base even when the root itself is a symlink.
func New(cfg Config, logger zerolog.Logger) (*Adapter, error) {
	if cfg.Root == "" {
		return nil, errors.New("local: media root is required")
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("local: resolve media root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("local: media root %s: %w", abs, err)
	}
	return &Adapter{root: real, log: logger}, nil
}

func (a *Adapter) Name() media.Provider { return media.ProviderLocal }

// StreamFullFile opens the whole file.
func (a *Adapter) StreamFullFile(_ context.Context, fileID string) (*media.StreamResult, error) {
	f, info, err := a.open(fileID)
	if err != nil {
		return nil, err
	}
	return &media.StreamResult{
		Stream:        f,
		ContentType:   media.ContentTypeByName(info.Name()),
		ContentLength: info.Size(),
		Filename:      info.Name(),
	}, nil
}

// StreamFileRange opens one byte range of the file.
func (a *Adapter) StreamFileRange(_ context.Context, fileID string, rng media.ByteRange) (*media.StreamResult, error) {
	f, info, err := a.open(fileID)
	if err != nil {
		return nil, err
	}

	start, end, err := rng.Resolve(info.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	length := end - start + 1

	return &media.StreamResult{
		Stream:        fileSection{SectionReader: io.NewSectionReader(f, start, length), file: f},
		ContentType:   media.ContentTypeByName(info.Name()),
		ContentLength: length,
		ContentRange:  media.ContentRange(start, end, info.Size()),
		Filename:      info.Name(),
	}, nil
}

// DirectLink always declines: local files are only reachable through the
// streaming proxy.
func (a *Adapter) DirectLink(context.Context, string, int) (string, bool) {
	return "", false
}

// fileSection reads one byte window of an open file and closes the file
// when the stream is done.
type fileSection struct {
	*io.SectionReader
	file *os.File
}

func (s fileSection) Close() error { return s.file.Close() }

// open resolves fileID safely and opens it. Directories are reported as
// missing files so their existence does not leak through error classes.
func (a *Adapter) open(fileID string) (*os.File, os.FileInfo, error) {
	path, err := a.resolve(fileID)
	if err != nil {
		return nil, nil, err
	}

	// #nosec G304 -- path is contained within the media root by resolve
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, a.wrap(media.ErrNotFound, "open", err)
		}
		return nil, nil, a.wrap(media.ErrUpstream, "open", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, a.wrap(media.ErrUpstream, "stat", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, a.wrap(media.ErrNotFound, "open", errors.New("path is a directory"))
	}
	return f, info, nil
}

// resolve maps a file identifier to a real path under the root. The
// traversal checks run on the raw identifier before any filesystem
// access; symlink escapes are caught by the containment check afterward.
func (a *Adapter) resolve(fileID string) (string, error) {
	if fileID == "" || len(fileID) > media.FileIDMaxLen {
		return "", a.wrap(media.ErrValidation, "resolve", errors.New("file id length out of bounds"))
	}
	if isPathTraversal(fileID) {
		a.log.Warn().Str("event", "media.path_escape").Msg("traversal sequence in file id")
		return "", a.wrap(media.ErrValidation, "resolve", errors.New("traversal sequence in file id"))
	}

	normalized := norm.NFC.String(fileID)
	if strings.ContainsRune(normalized, '\\') || strings.HasPrefix(normalized, "/") {
		return "", a.wrap(media.ErrValidation, "resolve", errors.New("file id must be a relative slash path"))
	}

	full := filepath.Join(a.root, filepath.FromSlash(normalized))

	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", a.wrap(media.ErrNotFound, "resolve", err)
		}
		return "", a.wrap(media.ErrUpstream, "resolve", err)
	}

	rel, err := filepath.Rel(a.root, real)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		a.log.Warn().
			Str("event", "media.path_escape").
			Str("resolved_path", real).
			Msg("resolved path escapes media root")
		return "", a.wrap(media.ErrValidation, "resolve", errors.New("path escapes media root"))
	}

	return real, nil
}

func (a *Adapter) wrap(sentinel error, op string, err error) error {
	return &media.ProviderError{
		Sentinel: sentinel,
		Provider: media.ProviderLocal,
		Op:       op,
		Err:      err,
	}
}

// isPathTraversal performs robust checks against path traversal attempts.
// The raw input and every decode pass are each checked for dangerous
// sequences, so an escape caught in encoded form never survives to a
// later pass where the marker bytes are gone.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 4; i++ {
		if containsDanger(decoded) {
			return true
		}
		next := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			next = d
		} else if d2, err2 := url.QueryUnescape(decoded); err2 == nil {
			// Fallback for stray '+' or query-style encoding.
			next = d2
		}
		if next == decoded {
			break
		}
		decoded = next
	}

	// Normalize and check once more for dot-dot.
	return strings.Contains(strings.ToLower(norm.NFC.String(decoded)), "..")
}

var dangerSubstrings = []string{
	"..",        // parent traversal
	"..\\",      // windows-style backslash
	"%00",       // encoded NUL
	"%c0%ae",    // overlong UTF-8 for '.'
	"%e0%80%ae", // another overlong variant
}

func containsDanger(s string) bool {
	lower := strings.ToLower(s)
	for _, pat := range dangerSubstrings {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return strings.IndexByte(s, 0x00) >= 0
}
