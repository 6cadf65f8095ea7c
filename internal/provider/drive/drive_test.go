// SPDX-License-Identifier: MIT

package drive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencourse-labs/mediagate/internal/cache"
	"github.com/opencourse-labs/mediagate/internal/media"
	platformnet "github.com/opencourse-labs/mediagate/internal/platform/net"
	"github.com/opencourse-labs/mediagate/internal/provider"
)

// fakeDrive emulates the two Drive v3 endpoints the adapter uses:
// metadata (files.get) and content (alt=media).
type fakeDrive struct {
	content     []byte
	meta        string
	metaStatus  int
	ignoreRange bool

	metaHits    atomic.Int32
	contentHits atomic.Int32
	lastAuth    atomic.Value // string
	lastRange   atomic.Value // string
	lastQuery   atomic.Value // url.Values
}

func (f *fakeDrive) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/drive/v3/files/") {
			http.NotFound(w, r)
			return
		}
		f.lastAuth.Store(r.Header.Get("Authorization"))
		f.lastQuery.Store(r.URL.Query())

		if r.URL.Query().Get("alt") == "media" {
			f.contentHits.Add(1)
			f.lastRange.Store(r.Header.Get("Range"))
			if f.ignoreRange {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(f.content)
				return
			}
			http.ServeContent(w, r, "lesson1.mp4", time.Unix(1700000000, 0), bytes.NewReader(f.content))
			return
		}

		f.metaHits.Add(1)
		status := f.metaStatus
		if status == 0 {
			status = http.StatusOK
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"not found"}}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.meta))
	})
}

func lessonBytes() []byte {
	b := make([]byte, 1000)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func defaultFake() *fakeDrive {
	return &fakeDrive{
		content: lessonBytes(),
		meta:    `{"name":"lesson1.mp4","mimeType":"video/mp4","size":"1000"}`,
	}
}

func testPolicy(t *testing.T, serverURL string) platformnet.OutboundPolicy {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return platformnet.OutboundPolicy{
		Enabled: true,
		Allow: platformnet.OutboundAllowlist{
			CIDRs:   []string{"127.0.0.0/8"},
			Ports:   []int{port},
			Schemes: []string{"http"},
		},
	}
}

func newTestAdapter(t *testing.T, f *fakeDrive, cfg Config) (*Adapter, *httptest.Server) {
	t.Helper()
	s := httptest.NewServer(f.handler())
	t.Cleanup(s.Close)

	cfg.BaseURL = s.URL
	meta := provider.NewMetaCache(cache.NewMemoryCache(0), time.Minute)
	a := New(cfg, testPolicy(t, s.URL), meta, time.Second, zerolog.Nop())
	return a, s
}

func TestStreamFileRangeWindow(t *testing.T) {
	f := defaultFake()
	a, _ := newTestAdapter(t, f, Config{Token: "tkn"})

	res, err := a.StreamFileRange(context.Background(), "abc", media.ByteRange{Start: 100, End: 199})
	if err != nil {
		t.Fatalf("StreamFileRange: %v", err)
	}
	defer func() { _ = res.Close() }()

	got, err := io.ReadAll(res.Stream)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, lessonBytes()[100:200]) {
		t.Fatal("window bytes differ")
	}
	if res.ContentRange != "bytes 100-199/1000" {
		t.Fatalf("ContentRange = %q", res.ContentRange)
	}
	if res.ContentType != "video/mp4" {
		t.Fatalf("ContentType = %q", res.ContentType)
	}
	if r, _ := f.lastRange.Load().(string); r != "bytes=100-199" {
		t.Fatalf("upstream Range = %q", r)
	}
}

func TestStreamFullFile(t *testing.T) {
	f := defaultFake()
	a, _ := newTestAdapter(t, f, Config{Token: "tkn"})

	res, err := a.StreamFullFile(context.Background(), "abc")
	if err != nil {
		t.Fatalf("StreamFullFile: %v", err)
	}
	defer func() { _ = res.Close() }()

	got, err := io.ReadAll(res.Stream)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1000 {
		t.Fatalf("read %d bytes, want 1000", len(got))
	}
	if res.ContentLength != 1000 {
		t.Fatalf("ContentLength = %d", res.ContentLength)
	}
	if res.Filename != "lesson1.mp4" {
		t.Fatalf("Filename = %q", res.Filename)
	}
}

func TestRangeBeyondEOFSkipsContentRequest(t *testing.T) {
	f := defaultFake()
	a, _ := newTestAdapter(t, f, Config{Token: "tkn"})

	_, err := a.StreamFileRange(context.Background(), "abc", media.ByteRange{Start: 2000, End: -1})
	if !errors.Is(err, media.ErrUnsatisfiable) {
		t.Fatalf("got %v, want unsatisfiable", err)
	}
	var ure *media.UnsatisfiableRangeError
	if !errors.As(err, &ure) || ure.Size != 1000 {
		t.Fatalf("error must carry probed size 1000: %v", err)
	}
	if f.contentHits.Load() != 0 {
		t.Fatal("unsatisfiable range must not trigger a content request")
	}
}

func TestUpstreamIgnoringRangeStillWindows(t *testing.T) {
	f := defaultFake()
	f.ignoreRange = true
	a, _ := newTestAdapter(t, f, Config{Token: "tkn"})

	res, err := a.StreamFileRange(context.Background(), "abc", media.ByteRange{Start: 900, End: -1})
	if err != nil {
		t.Fatalf("StreamFileRange: %v", err)
	}
	defer func() { _ = res.Close() }()

	got, err := io.ReadAll(res.Stream)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, lessonBytes()[900:]) {
		t.Fatal("client window must be exact even when upstream ignores the range")
	}
	if res.ContentRange != "bytes 900-999/1000" {
		t.Fatalf("ContentRange = %q", res.ContentRange)
	}
}

func TestMetadataProbeIsCached(t *testing.T) {
	f := defaultFake()
	a, _ := newTestAdapter(t, f, Config{Token: "tkn"})

	for i := 0; i < 3; i++ {
		res, err := a.StreamFileRange(context.Background(), "abc", media.ByteRange{Start: 0, End: 9})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		_, _ = io.Copy(io.Discard, res.Stream)
		_ = res.Close()
	}
	if got := f.metaHits.Load(); got != 1 {
		t.Fatalf("metadata probed %d times, want 1", got)
	}
	if got := f.contentHits.Load(); got != 3 {
		t.Fatalf("content fetched %d times, want 3", got)
	}
}

func TestBearerTokenPreferredOverAPIKey(t *testing.T) {
	f := defaultFake()
	a, _ := newTestAdapter(t, f, Config{Token: "tkn", APIKey: "k"})

	res, err := a.StreamFullFile(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Close()

	if auth, _ := f.lastAuth.Load().(string); auth != "Bearer tkn" {
		t.Fatalf("Authorization = %q", auth)
	}
	q, _ := f.lastQuery.Load().(url.Values)
	if q.Get("key") != "" {
		t.Fatal("key param must be omitted when a bearer token is set")
	}
}

func TestAPIKeyUsedWithoutToken(t *testing.T) {
	f := defaultFake()
	a, _ := newTestAdapter(t, f, Config{APIKey: "k"})

	res, err := a.StreamFullFile(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Close()

	if auth, _ := f.lastAuth.Load().(string); auth != "" {
		t.Fatalf("Authorization = %q, want empty", auth)
	}
	q, _ := f.lastQuery.Load().(url.Values)
	if q.Get("key") != "k" {
		t.Fatalf("key param = %q", q.Get("key"))
	}
}

func TestDocumentWithoutSizeIsNotFound(t *testing.T) {
	f := defaultFake()
	f.meta = `{"name":"syllabus","mimeType":"application/vnd.google-apps.document"}`
	a, _ := newTestAdapter(t, f, Config{Token: "tkn"})

	_, err := a.StreamFullFile(context.Background(), "doc1")
	if !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("got %v, want not-found", err)
	}
}

func TestUpstream404IsNotFound(t *testing.T) {
	f := defaultFake()
	f.metaStatus = http.StatusNotFound
	a, _ := newTestAdapter(t, f, Config{Token: "tkn"})

	_, err := a.StreamFullFile(context.Background(), "gone")
	if !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("got %v, want not-found", err)
	}
}

func TestDirectLink(t *testing.T) {
	a := New(Config{BaseURL: "http://unused", LinkBase: "https://drive.google.com"}, platformnet.OutboundPolicy{}, provider.NewMetaCache(nil, 0), time.Second, zerolog.Nop())

	link, ok := a.DirectLink(context.Background(), "abc 123", 65)
	if !ok {
		t.Fatal("drive must offer direct links")
	}
	if link != "https://drive.google.com/file/d/abc%20123/preview" {
		t.Fatalf("link = %q", link)
	}
}
