// SPDX-License-Identifier: MIT

// Package drive streams files out of Google Drive via the v3 REST API.
// Files are addressed by their Drive file id; ranged playback maps
// directly onto ranged alt=media downloads.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencourse-labs/mediagate/internal/media"
	platformnet "github.com/opencourse-labs/mediagate/internal/platform/net"
	"github.com/opencourse-labs/mediagate/internal/provider"
)

// Config holds the Drive backend settings.
type Config struct {
	// BaseURL is the API endpoint, overridable for tests.
	BaseURL string
	// LinkBase is the host used for client-facing preview links.
	LinkBase string
	// Token is the OAuth2 bearer token for private files. When set it
	// takes precedence over APIKey.
	Token string
	// APIKey authenticates requests for public files via query parameter.
	APIKey string
}

// Adapter is the Google Drive backend.
type Adapter struct {
	cfg  Config
	up   *provider.UpstreamClient
	meta *provider.MetaCache
	log  zerolog.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds the Drive adapter. headerTimeout bounds upstream
// time-to-first-byte for content requests.
func New(cfg Config, policy platformnet.OutboundPolicy, meta *provider.MetaCache, headerTimeout time.Duration, logger zerolog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com"
	}
	if cfg.LinkBase == "" {
		cfg.LinkBase = "https://drive.google.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.LinkBase = strings.TrimRight(cfg.LinkBase, "/")

	return &Adapter{
		cfg:  cfg,
		up:   provider.NewUpstreamClient(media.ProviderDrive, policy, headerTimeout, logger),
		meta: meta,
		log:  logger,
	}
}

func (a *Adapter) Name() media.Provider { return media.ProviderDrive }

// driveFile is the metadata subset requested from the API. Drive
// serializes size as a decimal string, not a JSON number.
type driveFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     string `json:"size"`
}

func (a *Adapter) probe(fileID string) func(context.Context) (*provider.FileInfo, error) {
	return func(ctx context.Context) (*provider.FileInfo, error) {
		var f driveFile
		if err := a.up.GetJSON(ctx, "files.get", a.metaURL(fileID), a.header(), &f); err != nil {
			return nil, err
		}
		if f.Size == "" {
			// Docs, sheets and folders have no binary content to stream.
			return nil, &media.ProviderError{
				Sentinel: media.ErrNotFound,
				Provider: media.ProviderDrive,
				Op:       "files.get",
				Err:      errors.New("file has no binary content"),
			}
		}
		size, err := strconv.ParseInt(f.Size, 10, 64)
		if err != nil {
			return nil, &media.ProviderError{
				Sentinel: media.ErrUpstream,
				Provider: media.ProviderDrive,
				Op:       "files.get",
				Err:      fmt.Errorf("parse size %q: %w", f.Size, err),
			}
		}
		info := &provider.FileInfo{Size: size, Name: f.Name, ContentType: f.MimeType}
		if info.ContentType == "" {
			info.ContentType = media.ContentTypeByName(f.Name)
		}
		return info, nil
	}
}

// StreamFullFile opens the whole file.
func (a *Adapter) StreamFullFile(ctx context.Context, fileID string) (*media.StreamResult, error) {
	info, err := a.meta.Resolve(ctx, media.ProviderDrive, fileID, a.probe(fileID))
	if err != nil {
		return nil, err
	}
	resp, err := a.up.GetStream(ctx, "files.download", a.contentURL(fileID), a.header(), nil)
	if err != nil {
		return nil, err
	}
	return a.up.FullResult(resp, info), nil
}

// StreamFileRange opens one byte range. The range is resolved against
// the probed size before any content request goes out.
func (a *Adapter) StreamFileRange(ctx context.Context, fileID string, rng media.ByteRange) (*media.StreamResult, error) {
	info, err := a.meta.Resolve(ctx, media.ProviderDrive, fileID, a.probe(fileID))
	if err != nil {
		return nil, err
	}
	start, end, err := rng.Resolve(info.Size)
	if err != nil {
		return nil, err
	}

	resolved := media.ByteRange{Start: start, End: end}
	resp, err := a.up.GetStream(ctx, "files.download", a.contentURL(fileID), a.header(), &resolved)
	if err != nil {
		return nil, err
	}
	return a.up.RangeResult(resp, start, end, info)
}

// DirectLink returns the public preview URL. Whether a viewer can
// actually use it depends on the file's sharing settings, which is a
// policy decision made upstream of the adapter.
func (a *Adapter) DirectLink(_ context.Context, fileID string, _ int) (string, bool) {
	return a.cfg.LinkBase + "/file/d/" + url.PathEscape(fileID) + "/preview", true
}

func (a *Adapter) metaURL(fileID string) string {
	q := url.Values{}
	q.Set("fields", "name,mimeType,size")
	q.Set("supportsAllDrives", "true")
	a.addKey(q)
	return a.cfg.BaseURL + "/drive/v3/files/" + url.PathEscape(fileID) + "?" + q.Encode()
}

func (a *Adapter) contentURL(fileID string) string {
	q := url.Values{}
	q.Set("alt", "media")
	q.Set("supportsAllDrives", "true")
	a.addKey(q)
	return a.cfg.BaseURL + "/drive/v3/files/" + url.PathEscape(fileID) + "?" + q.Encode()
}

func (a *Adapter) addKey(q url.Values) {
	if a.cfg.Token == "" && a.cfg.APIKey != "" {
		q.Set("key", a.cfg.APIKey)
	}
}

func (a *Adapter) header() http.Header {
	if a.cfg.Token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.cfg.Token)
	return h
}
