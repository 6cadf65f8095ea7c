// SPDX-License-Identifier: MIT

// Package config loads and validates the gateway configuration with the
// precedence ENV > YAML file > defaults. Secrets are carried in memory
// only and masked whenever a config value reaches a log stream.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/opencourse-labs/mediagate/internal/media"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address the API server listens on (e.g. ":8080").
	ListenAddr string

	// ReadTimeout bounds reading the entire request, including the body.
	ReadTimeout time.Duration

	// WriteTimeout bounds response writes. Zero means no write deadline,
	// which streaming responses require: a playback session must be able
	// to outlive any fixed timeout.
	WriteTimeout time.Duration

	// IdleTimeout is the keep-alive idle bound.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// MaxHeaderBytes caps request header size.
	MaxHeaderBytes int
}

// DriveConfig holds the Google Drive backend settings.
type DriveConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"baseURL"`
	// Token is the OAuth2 bearer for private files.
	Token string `yaml:"token"`
	// APIKey authenticates public-file requests when no token is set.
	APIKey string `yaml:"apiKey"`
}

// GraphConfig holds the Microsoft Graph (OneDrive) backend settings.
type GraphConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"baseURL"`
	DriveID string `yaml:"driveID"`
	Token   string `yaml:"token"`
}

// LocalConfig holds the local-disk backend settings.
type LocalConfig struct {
	Enabled bool `yaml:"enabled"`
	// Root is the media directory served by the local adapter.
	Root string `yaml:"root"`
}

// CacheConfig selects the metadata cache backend.
type CacheConfig struct {
	// Backend is one of "memory", "redis" or "off".
	Backend string `yaml:"backend"`
	// RedisAddr is the host:port of the redis server.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	// MetaTTL is how long provider metadata probes stay cached.
	MetaTTL time.Duration `yaml:"metaTTL"`
}

// TelemetryConfig holds OTLP tracing settings.
type TelemetryConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Exporter string  `yaml:"exporter"` // "grpc" or "http"
	Endpoint string  `yaml:"endpoint"`
	Sampling float64 `yaml:"sampling"`
}

// RateLimitConfig holds the media endpoint group limits.
type RateLimitConfig struct {
	// Window is the fixed interval per client key.
	Window time.Duration `yaml:"window"`
	// Limit is the allowed requests per key per window.
	Limit int `yaml:"limit"`
	// GlobalRPS smooths process-wide bursts; zero disables.
	GlobalRPS   int `yaml:"globalRPS"`
	GlobalBurst int `yaml:"globalBurst"`
}

// AppConfig is the resolved gateway configuration.
type AppConfig struct {
	// PublicURL is the externally reachable base URL of this gateway,
	// used to build proxy playback links (e.g. "https://media.example.edu").
	PublicURL string

	// APIToken authenticates the LMS collaborator on /api/ routes.
	// Empty disables caller auth, which is refused unless AuthAnonymous
	// opts in explicitly.
	APIToken string

	// AuthAnonymous explicitly allows running without an APIToken.
	AuthAnonymous bool

	// TokenSecret signs playback tokens. Required, at least 32 bytes.
	TokenSecret string
	// TokenIssuer is stamped into every issued token.
	TokenIssuer string

	// PolicyFile is the per-provider link policy YAML, hot-reloaded.
	// Empty means every provider uses its built-in default mode.
	PolicyFile string

	// AllowedOrigins is the CORS allowlist for browser players.
	AllowedOrigins []string

	// UpstreamHeaderTimeout bounds upstream time-to-first-byte.
	UpstreamHeaderTimeout time.Duration

	LogLevel string

	MetricsEnabled bool
	MetricsAddr    string

	Drive DriveConfig
	Graph GraphConfig
	Local LocalConfig

	RateLimit RateLimitConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig

	Server ServerConfig
}

// Defaults returns the baseline configuration before file and ENV merges.
func Defaults() AppConfig {
	return AppConfig{
		PublicURL:   "http://localhost:8080",
		TokenIssuer: "mediagate",
		LogLevel:    "info",

		MetricsEnabled: true,
		MetricsAddr:    ":9090",

		UpstreamHeaderTimeout: 15 * time.Second,

		Local: LocalConfig{Enabled: true, Root: "/var/lib/mediagate/media"},

		RateLimit: RateLimitConfig{
			Window:      60 * time.Second,
			Limit:       60,
			GlobalRPS:   200,
			GlobalBurst: 400,
		},

		Cache: CacheConfig{
			Backend: "memory",
			MetaTTL: 60 * time.Second,
		},

		Telemetry: TelemetryConfig{
			Exporter: "grpc",
			Endpoint: "localhost:4317",
			Sampling: 0.1,
		},

		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxHeaderBytes:  1 << 20,
		},
	}
}

// Validate checks the configuration for startup. It collects every
// problem instead of stopping at the first so an operator fixes one
// deploy, not one variable per deploy.
func (c *AppConfig) Validate() error {
	var problems []string

	if len(c.TokenSecret) < 32 {
		problems = append(problems, "token secret must be at least 32 bytes (MEDIAGATE_TOKEN_SECRET)")
	}
	if c.APIToken == "" && !c.AuthAnonymous {
		problems = append(problems, "api token not set; set MEDIAGATE_API_TOKEN or explicitly allow anonymous access")
	}

	if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("public URL %q is not an absolute URL", c.PublicURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		problems = append(problems, fmt.Sprintf("public URL scheme %q must be http or https", u.Scheme))
	}

	if !c.Drive.Enabled && !c.Graph.Enabled && !c.Local.Enabled {
		problems = append(problems, "no provider enabled; enable at least one of drive, graph, local")
	}
	if c.Local.Enabled {
		if c.Local.Root == "" {
			problems = append(problems, "local provider enabled without a media root")
		} else if info, err := os.Stat(c.Local.Root); err != nil {
			problems = append(problems, fmt.Sprintf("media root %q: %v", c.Local.Root, err))
		} else if !info.IsDir() {
			problems = append(problems, fmt.Sprintf("media root %q is not a directory", c.Local.Root))
		}
	}
	if c.Drive.Enabled && c.Drive.Token == "" && c.Drive.APIKey == "" {
		problems = append(problems, "drive provider enabled without a token or API key")
	}
	if c.Graph.Enabled {
		if c.Graph.Token == "" {
			problems = append(problems, "graph provider enabled without a token")
		}
		if c.Graph.DriveID == "" {
			problems = append(problems, "graph provider enabled without a drive ID")
		}
	}

	if c.RateLimit.Limit <= 0 {
		problems = append(problems, "rate limit must be positive")
	}
	if c.RateLimit.Window <= 0 {
		problems = append(problems, "rate window must be positive")
	}

	switch c.Cache.Backend {
	case "memory", "off":
	case "redis":
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "cache backend redis requires a redis address")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown cache backend %q (memory, redis, off)", c.Cache.Backend))
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "grpc", "http":
		default:
			problems = append(problems, fmt.Sprintf("unknown telemetry exporter %q (grpc, http)", c.Telemetry.Exporter))
		}
		if c.Telemetry.Sampling < 0 || c.Telemetry.Sampling > 1 {
			problems = append(problems, "telemetry sampling must be within [0,1]")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// EnabledProviders lists the provider tags this configuration turns on.
func (c *AppConfig) EnabledProviders() []media.Provider {
	var out []media.Provider
	if c.Drive.Enabled {
		out = append(out, media.ProviderDrive)
	}
	if c.Graph.Enabled {
		out = append(out, media.ProviderGraph)
	}
	if c.Local.Enabled {
		out = append(out, media.ProviderLocal)
	}
	return out
}
