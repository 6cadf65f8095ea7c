// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencourse-labs/mediagate/internal/cache"
	"github.com/opencourse-labs/mediagate/internal/media"
)

func TestResolveCachesProbeResult(t *testing.T) {
	mc := NewMetaCache(cache.NewMemoryCache(0), time.Minute)
	ctx := context.Background()

	var probes atomic.Int32
	probe := func(context.Context) (*FileInfo, error) {
		probes.Add(1)
		return &FileInfo{Size: 1000, Name: "lesson1.mp4", ContentType: "video/mp4"}, nil
	}

	for i := 0; i < 3; i++ {
		info, err := mc.Resolve(ctx, media.ProviderDrive, "abc", probe)
		if err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
		if info.Size != 1000 || info.Name != "lesson1.mp4" {
			t.Fatalf("Resolve #%d returned %+v", i, info)
		}
	}
	if got := probes.Load(); got != 1 {
		t.Fatalf("probe ran %d times, want 1", got)
	}
}

func TestResolveKeysIncludeProvider(t *testing.T) {
	mc := NewMetaCache(cache.NewMemoryCache(0), time.Minute)
	ctx := context.Background()

	var probes atomic.Int32
	probe := func(context.Context) (*FileInfo, error) {
		probes.Add(1)
		return &FileInfo{Size: 1}, nil
	}

	if _, err := mc.Resolve(ctx, media.ProviderDrive, "abc", probe); err != nil {
		t.Fatal(err)
	}
	if _, err := mc.Resolve(ctx, media.ProviderGraph, "abc", probe); err != nil {
		t.Fatal(err)
	}
	if got := probes.Load(); got != 2 {
		t.Fatalf("same file id on two providers must probe twice, got %d", got)
	}
}

func TestResolveCollapsesConcurrentProbes(t *testing.T) {
	mc := NewMetaCache(nil, time.Minute)
	ctx := context.Background()

	var probes atomic.Int32
	release := make(chan struct{})
	probe := func(context.Context) (*FileInfo, error) {
		probes.Add(1)
		<-release
		return &FileInfo{Size: 1000}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mc.Resolve(ctx, media.ProviderDrive, "abc", probe)
		}(i)
	}

	// Give the goroutines a moment to pile onto the in-flight probe.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := probes.Load(); got != 1 {
		t.Fatalf("probe ran %d times, want 1", got)
	}
}

func TestResolveDropsCorruptCacheEntry(t *testing.T) {
	store := cache.NewMemoryCache(0)
	mc := NewMetaCache(store, time.Minute)
	ctx := context.Background()

	store.Set(ctx, "meta:drive:abc", []byte("{not json"), time.Minute)

	info, err := mc.Resolve(ctx, media.ProviderDrive, "abc", func(context.Context) (*FileInfo, error) {
		return &FileInfo{Size: 7}, nil
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Size != 7 {
		t.Fatalf("Resolve returned %+v, want fresh probe result", info)
	}
}

func TestResolveProbeErrorNotCached(t *testing.T) {
	mc := NewMetaCache(cache.NewMemoryCache(0), time.Minute)
	ctx := context.Background()

	var probes atomic.Int32
	boom := errors.New("probe failed")
	probe := func(context.Context) (*FileInfo, error) {
		probes.Add(1)
		return nil, boom
	}

	for i := 0; i < 2; i++ {
		if _, err := mc.Resolve(ctx, media.ProviderDrive, "abc", probe); !errors.Is(err, boom) {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
	}
	if got := probes.Load(); got != 2 {
		t.Fatalf("failed probes must not be cached, got %d probes", got)
	}
}

func TestForgetForcesReprobe(t *testing.T) {
	mc := NewMetaCache(cache.NewMemoryCache(0), time.Minute)
	ctx := context.Background()

	var probes atomic.Int32
	probe := func(context.Context) (*FileInfo, error) {
		probes.Add(1)
		return &FileInfo{Size: 1000}, nil
	}

	if _, err := mc.Resolve(ctx, media.ProviderDrive, "abc", probe); err != nil {
		t.Fatal(err)
	}
	mc.Forget(ctx, media.ProviderDrive, "abc")
	if _, err := mc.Resolve(ctx, media.ProviderDrive, "abc", probe); err != nil {
		t.Fatal(err)
	}
	if got := probes.Load(); got != 2 {
		t.Fatalf("probe ran %d times after Forget, want 2", got)
	}
}
