// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opencourse-labs/mediagate/internal/cache"
	"github.com/opencourse-labs/mediagate/internal/media"
)

// FileInfo is the metadata a backend reports for one file.
type FileInfo struct {
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Name        string `json:"name"`
	WebURL      string `json:"web_url,omitempty"`
}

// MetaCache caches metadata probes and collapses concurrent probes for the
// same file into a single upstream call.
type MetaCache struct {
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewMetaCache wraps c with probe deduplication. A nil c disables caching
// but keeps the deduplication.
func NewMetaCache(c cache.Cache, ttl time.Duration) *MetaCache {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &MetaCache{cache: c, ttl: ttl}
}

// Resolve returns the metadata for fileID, probing the backend on a miss.
// Concurrent callers for the same key share one probe; its result and
// error reach all of them.
func (m *MetaCache) Resolve(ctx context.Context, p media.Provider, fileID string, probe func(context.Context) (*FileInfo, error)) (*FileInfo, error) {
	key := fmt.Sprintf("meta:%s:%s", p, fileID)

	if raw, ok := m.cache.Get(ctx, key); ok {
		var info FileInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			return &info, nil
		}
		// Corrupt entry: drop it and fall through to a fresh probe.
		m.cache.Delete(ctx, key)
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		info, err := probe(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(info); err == nil {
			m.cache.Set(ctx, key, raw, m.ttl)
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*FileInfo), nil
}

// Forget drops the cached metadata for one file, forcing the next Resolve
// to probe again.
func (m *MetaCache) Forget(ctx context.Context, p media.Provider, fileID string) {
	key := fmt.Sprintf("meta:%s:%s", p, fileID)
	m.group.Forget(key)
	m.cache.Delete(ctx, key)
}
