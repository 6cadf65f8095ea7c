// SPDX-License-Identifier: MIT

// Package provider defines the capability contract shared by the media
// backends. Each backend is a variant behind the Adapter interface,
// selected once per request by its provider tag; nothing dispatches on
// concrete types.
package provider

import (
	"context"
	"fmt"

	"github.com/opencourse-labs/mediagate/internal/media"
)

// Adapter translates a stable file identifier into bytes from one backend.
type Adapter interface {
	// Name returns the provider tag this adapter serves.
	Name() media.Provider

	// StreamFullFile opens the whole file.
	StreamFullFile(ctx context.Context, fileID string) (*media.StreamResult, error)

	// StreamFileRange opens one byte range. The range is resolved against
	// the real file size; a start beyond EOF yields ErrUnsatisfiable.
	StreamFileRange(ctx context.Context, fileID string, rng media.ByteRange) (*media.StreamResult, error)

	// DirectLink returns a provider-native deep link for the file when the
	// backend supports client-facing links. The second return is false
	// when the file must be proxied.
	DirectLink(ctx context.Context, fileID string, startSec int) (string, bool)
}

// Registry holds the configured adapters keyed by provider tag.
type Registry struct {
	adapters map[media.Provider]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[media.Provider]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for p. A valid but unconfigured provider is a
// server-side problem, not a client error.
func (r *Registry) Get(p media.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s not configured", media.ErrUpstream, p)
	}
	return a, nil
}

// Has reports whether p has a configured adapter.
func (r *Registry) Has(p media.Provider) bool {
	_, ok := r.adapters[p]
	return ok
}

// Providers lists the configured provider tags.
func (r *Registry) Providers() []media.Provider {
	out := make([]media.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
