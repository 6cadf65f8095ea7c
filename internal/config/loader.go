// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// maxConfigFileSize caps the config file read. A gateway config is a few
// kilobytes; anything larger is a wrong path.
const maxConfigFileSize = 1 << 20

// FileConfig mirrors the YAML config file. All fields are optional;
// pointers distinguish "absent" from zero values during the merge.
type FileConfig struct {
	PublicURL      *string   `yaml:"publicURL"`
	APIToken       *string   `yaml:"apiToken"`
	AuthAnonymous  *bool     `yaml:"authAnonymous"`
	TokenSecret    *string   `yaml:"tokenSecret"`
	TokenIssuer    *string   `yaml:"tokenIssuer"`
	PolicyFile     *string   `yaml:"policyFile"`
	AllowedOrigins []string  `yaml:"allowedOrigins"`
	LogLevel       *string   `yaml:"logLevel"`

	UpstreamHeaderTimeout *time.Duration `yaml:"upstreamHeaderTimeout"`

	Metrics *struct {
		Enabled *bool   `yaml:"enabled"`
		Listen  *string `yaml:"listen"`
	} `yaml:"metrics"`

	Server *struct {
		Listen          *string        `yaml:"listen"`
		ReadTimeout     *time.Duration `yaml:"readTimeout"`
		WriteTimeout    *time.Duration `yaml:"writeTimeout"`
		IdleTimeout     *time.Duration `yaml:"idleTimeout"`
		ShutdownTimeout *time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Providers *struct {
		Drive *DriveConfig `yaml:"drive"`
		Graph *GraphConfig `yaml:"graph"`
		Local *LocalConfig `yaml:"local"`
	} `yaml:"providers"`

	RateLimit *RateLimitConfig `yaml:"rateLimit"`
	Cache     *CacheConfig     `yaml:"cache"`
	Telemetry *TelemetryConfig `yaml:"telemetry"`
}

// Loader resolves configuration with the precedence ENV > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path skips the file layer.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load resolves the configuration. The file is parsed strictly: unknown
// keys are an error, so a typo fails startup instead of silently keeping
// a default.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.Local.Root); err == nil {
		cfg.Local.Root = abs
	}

	return cfg, nil
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var fileCfg FileConfig
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: nothing to merge.
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fileCfg, nil
}

// mergeFileConfig overlays present file values onto cfg.
func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	setString(&cfg.PublicURL, f.PublicURL)
	setString(&cfg.APIToken, f.APIToken)
	setBool(&cfg.AuthAnonymous, f.AuthAnonymous)
	setString(&cfg.TokenSecret, f.TokenSecret)
	setString(&cfg.TokenIssuer, f.TokenIssuer)
	setString(&cfg.PolicyFile, f.PolicyFile)
	setString(&cfg.LogLevel, f.LogLevel)
	setDuration(&cfg.UpstreamHeaderTimeout, f.UpstreamHeaderTimeout)
	if len(f.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = f.AllowedOrigins
	}

	if f.Metrics != nil {
		setBool(&cfg.MetricsEnabled, f.Metrics.Enabled)
		setString(&cfg.MetricsAddr, f.Metrics.Listen)
	}

	if f.Server != nil {
		setString(&cfg.Server.ListenAddr, f.Server.Listen)
		setDuration(&cfg.Server.ReadTimeout, f.Server.ReadTimeout)
		setDuration(&cfg.Server.WriteTimeout, f.Server.WriteTimeout)
		setDuration(&cfg.Server.IdleTimeout, f.Server.IdleTimeout)
		setDuration(&cfg.Server.ShutdownTimeout, f.Server.ShutdownTimeout)
	}

	if f.Providers != nil {
		if f.Providers.Drive != nil {
			cfg.Drive = *f.Providers.Drive
		}
		if f.Providers.Graph != nil {
			cfg.Graph = *f.Providers.Graph
		}
		if f.Providers.Local != nil {
			cfg.Local = *f.Providers.Local
		}
	}

	if f.RateLimit != nil {
		if f.RateLimit.Window > 0 {
			cfg.RateLimit.Window = f.RateLimit.Window
		}
		if f.RateLimit.Limit > 0 {
			cfg.RateLimit.Limit = f.RateLimit.Limit
		}
		if f.RateLimit.GlobalRPS > 0 {
			cfg.RateLimit.GlobalRPS = f.RateLimit.GlobalRPS
		}
		if f.RateLimit.GlobalBurst > 0 {
			cfg.RateLimit.GlobalBurst = f.RateLimit.GlobalBurst
		}
	}
	if f.Cache != nil {
		if f.Cache.Backend != "" {
			cfg.Cache.Backend = f.Cache.Backend
		}
		if f.Cache.RedisAddr != "" {
			cfg.Cache.RedisAddr = f.Cache.RedisAddr
		}
		if f.Cache.RedisPassword != "" {
			cfg.Cache.RedisPassword = f.Cache.RedisPassword
		}
		if f.Cache.RedisDB != 0 {
			cfg.Cache.RedisDB = f.Cache.RedisDB
		}
		if f.Cache.MetaTTL > 0 {
			cfg.Cache.MetaTTL = f.Cache.MetaTTL
		}
	}
	if f.Telemetry != nil {
		cfg.Telemetry.Enabled = f.Telemetry.Enabled
		if f.Telemetry.Exporter != "" {
			cfg.Telemetry.Exporter = f.Telemetry.Exporter
		}
		if f.Telemetry.Endpoint != "" {
			cfg.Telemetry.Endpoint = f.Telemetry.Endpoint
		}
		if f.Telemetry.Sampling > 0 {
			cfg.Telemetry.Sampling = f.Telemetry.Sampling
		}
	}
}

// mergeEnvConfig overlays MEDIAGATE_* environment variables, the highest
// precedence layer.
func mergeEnvConfig(cfg *AppConfig) {
	cfg.PublicURL = ParseString("MEDIAGATE_PUBLIC_URL", cfg.PublicURL)
	cfg.APIToken = ParseString("MEDIAGATE_API_TOKEN", cfg.APIToken)
	cfg.AuthAnonymous = ParseBool("MEDIAGATE_AUTH_ANONYMOUS", cfg.AuthAnonymous)
	cfg.TokenSecret = ParseString("MEDIAGATE_TOKEN_SECRET", cfg.TokenSecret)
	cfg.TokenIssuer = ParseString("MEDIAGATE_TOKEN_ISSUER", cfg.TokenIssuer)
	cfg.PolicyFile = ParseString("MEDIAGATE_POLICY_FILE", cfg.PolicyFile)
	cfg.AllowedOrigins = ParseStringList("MEDIAGATE_ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.LogLevel = ParseString("MEDIAGATE_LOG_LEVEL", cfg.LogLevel)
	cfg.UpstreamHeaderTimeout = ParseDuration("MEDIAGATE_UPSTREAM_HEADER_TIMEOUT", cfg.UpstreamHeaderTimeout)

	cfg.MetricsEnabled = ParseBool("MEDIAGATE_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("MEDIAGATE_METRICS_LISTEN", cfg.MetricsAddr)

	cfg.Server.ListenAddr = ParseString("MEDIAGATE_LISTEN", cfg.Server.ListenAddr)
	cfg.Server.ReadTimeout = ParseDuration("MEDIAGATE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = ParseDuration("MEDIAGATE_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = ParseDuration("MEDIAGATE_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = ParseDuration("MEDIAGATE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Drive.Enabled = ParseBool("MEDIAGATE_DRIVE_ENABLED", cfg.Drive.Enabled)
	cfg.Drive.BaseURL = ParseString("MEDIAGATE_DRIVE_BASE_URL", cfg.Drive.BaseURL)
	cfg.Drive.Token = ParseString("MEDIAGATE_DRIVE_TOKEN", cfg.Drive.Token)
	cfg.Drive.APIKey = ParseString("MEDIAGATE_DRIVE_API_KEY", cfg.Drive.APIKey)

	cfg.Graph.Enabled = ParseBool("MEDIAGATE_GRAPH_ENABLED", cfg.Graph.Enabled)
	cfg.Graph.BaseURL = ParseString("MEDIAGATE_GRAPH_BASE_URL", cfg.Graph.BaseURL)
	cfg.Graph.DriveID = ParseString("MEDIAGATE_GRAPH_DRIVE_ID", cfg.Graph.DriveID)
	cfg.Graph.Token = ParseString("MEDIAGATE_GRAPH_TOKEN", cfg.Graph.Token)

	cfg.Local.Enabled = ParseBool("MEDIAGATE_LOCAL_ENABLED", cfg.Local.Enabled)
	cfg.Local.Root = ParseString("MEDIAGATE_MEDIA_ROOT", cfg.Local.Root)

	cfg.RateLimit.Window = ParseDuration("MEDIAGATE_RATE_WINDOW", cfg.RateLimit.Window)
	cfg.RateLimit.Limit = ParseInt("MEDIAGATE_RATE_LIMIT", cfg.RateLimit.Limit)
	cfg.RateLimit.GlobalRPS = ParseInt("MEDIAGATE_RATE_GLOBAL_RPS", cfg.RateLimit.GlobalRPS)
	cfg.RateLimit.GlobalBurst = ParseInt("MEDIAGATE_RATE_GLOBAL_BURST", cfg.RateLimit.GlobalBurst)

	cfg.Cache.Backend = ParseString("MEDIAGATE_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.RedisAddr = ParseString("MEDIAGATE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString("MEDIAGATE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt("MEDIAGATE_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.MetaTTL = ParseDuration("MEDIAGATE_META_TTL", cfg.Cache.MetaTTL)

	cfg.Telemetry.Enabled = ParseBool("MEDIAGATE_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString("MEDIAGATE_OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString("MEDIAGATE_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Sampling = ParseFloat("MEDIAGATE_OTEL_SAMPLING", cfg.Telemetry.Sampling)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *time.Duration) {
	if src != nil {
		*dst = *src
	}
}
