// SPDX-License-Identifier: MIT

// Package policy decides, per provider, whether play links point the
// client straight at the backend or through the streaming proxy. The
// decision lives in a small YAML file so operators flip providers
// between modes without a redeploy; the store reloads the file on
// change and swaps the parsed table atomically.
package policy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/media"
)

// Mode is a link delivery mode.
type Mode string

const (
	// ModeDirect hands the client a provider-native deep link.
	ModeDirect Mode = "direct"
	// ModeProxy routes playback through /media/stream. This is the
	// fallback for providers the file does not mention.
	ModeProxy Mode = "proxy"
)

// ParseMode maps a file value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDirect, ModeProxy:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown link mode %q (direct, proxy)", s)
}

const (
	maxPolicyFileSize = 256 << 10
	debounceDelay     = 500 * time.Millisecond
)

// fileSchema mirrors the policy YAML file.
//
//	providers:
//	  google_drive: direct
//	  onedrive: proxy
type fileSchema struct {
	Providers map[string]string `yaml:"providers"`
}

type snapshot struct {
	modes map[media.Provider]Mode
}

// Store holds the current link policy and keeps it fresh from disk.
// Reads are lock-free; a failed reload keeps the previous table.
type Store struct {
	path    string
	logger  zerolog.Logger
	current atomic.Pointer[snapshot]
	watcher *fsnotify.Watcher
}

// NewStore creates a store for the given policy file. An empty path
// means every provider is proxied and Load/Watch are no-ops.
func NewStore(path string) *Store {
	s := &Store{
		path:   path,
		logger: log.WithComponent("policy"),
	}
	s.current.Store(&snapshot{modes: map[media.Provider]Mode{}})
	return s
}

// Path returns the policy file path, empty when unconfigured.
func (s *Store) Path() string {
	return s.path
}

// Mode returns the delivery mode for p. Providers absent from the file
// default to proxy, the safe mode.
func (s *Store) Mode(p media.Provider) Mode {
	snap := s.current.Load()
	if m, ok := snap.modes[p]; ok {
		return m
	}
	return ModeProxy
}

// Modes returns a copy of the configured table.
func (s *Store) Modes() map[media.Provider]Mode {
	snap := s.current.Load()
	out := make(map[media.Provider]Mode, len(snap.modes))
	for p, m := range snap.modes {
		out[p] = m
	}
	return out
}

// Load parses the policy file and swaps it in. On any error the
// previous table stays active and the error is returned, so a bad edit
// never blanks the policy.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	modes, err := parseFile(s.path)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("event", "policy.reload_failed").
			Str("path", s.path).
			Msg("policy file rejected, keeping previous table")
		return err
	}

	s.current.Store(&snapshot{modes: modes})

	s.logger.Info().
		Str("event", "policy.reload_success").
		Str("path", s.path).
		Interface("providers", modes).
		Msg("link policy loaded")
	return nil
}

func parseFile(path string) (map[media.Provider]Mode, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied policy path
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(io.LimitReader(f, maxPolicyFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxPolicyFileSize {
		return nil, fmt.Errorf("policy file %s exceeds %d bytes", path, maxPolicyFileSize)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var file fileSchema
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	modes := make(map[media.Provider]Mode, len(file.Providers))
	for name, raw := range file.Providers {
		p, err := media.ParseProvider(name)
		if err != nil {
			return nil, fmt.Errorf("policy file %s: %w", path, err)
		}
		m, err := ParseMode(raw)
		if err != nil {
			return nil, fmt.Errorf("policy file %s, provider %s: %w", path, name, err)
		}
		modes[p] = m
	}
	return modes, nil
}

// Watch reloads the policy whenever the file changes, debounced so an
// editor's write burst triggers one reload. The watcher stops when ctx
// is cancelled. No-op without a configured path.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		s.logger.Info().
			Str("event", "policy.watcher_disabled").
			Msg("no policy file configured, all providers proxied")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	if err := watcher.Add(s.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch policy file: %w", err)
	}

	s.logger.Info().
		Str("event", "policy.watcher_started").
		Str("path", s.path).
		Msg("watching policy file for changes")

	go s.watchLoop(ctx)
	return nil
}

func (s *Store) watchLoop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("event", "policy.watcher_stopped").Msg("policy watcher stopped")
			if debounce != nil {
				debounce.Stop()
			}
			_ = s.watcher.Close()
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			// Write and Create cover both in-place edits and the
			// rename dance editors do on save.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					_ = s.Load()
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().
				Err(err).
				Str("event", "policy.watcher_error").
				Msg("policy watcher error")
		}
	}
}

// Close stops the watcher if one is running.
func (s *Store) Close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}
