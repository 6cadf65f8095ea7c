// SPDX-License-Identifier: MIT

package config

import (
	"strings"
	"testing"

	"github.com/opencourse-labs/mediagate/internal/media"
)

// validConfig returns a configuration that passes Validate, rooted in a
// temp dir so the local provider check succeeds.
func validConfig(t *testing.T) AppConfig {
	t.Helper()
	cfg := Defaults()
	cfg.TokenSecret = strings.Repeat("s", 32)
	cfg.APIToken = "test-api-token"
	cfg.Local.Root = t.TempDir()
	return cfg
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidateProblems(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{
			name:    "short token secret",
			mutate:  func(c *AppConfig) { c.TokenSecret = "short" },
			wantErr: "token secret must be at least 32 bytes",
		},
		{
			name:    "missing api token",
			mutate:  func(c *AppConfig) { c.APIToken = "" },
			wantErr: "api token not set",
		},
		{
			name: "anonymous access allows empty api token",
			mutate: func(c *AppConfig) {
				c.APIToken = ""
				c.AuthAnonymous = true
			},
		},
		{
			name:    "relative public URL",
			mutate:  func(c *AppConfig) { c.PublicURL = "/play" },
			wantErr: "not an absolute URL",
		},
		{
			name:    "non-http public URL",
			mutate:  func(c *AppConfig) { c.PublicURL = "ftp://media.example" },
			wantErr: `scheme "ftp"`,
		},
		{
			name: "no provider enabled",
			mutate: func(c *AppConfig) {
				c.Local.Enabled = false
			},
			wantErr: "no provider enabled",
		},
		{
			name:    "missing media root",
			mutate:  func(c *AppConfig) { c.Local.Root = "/nonexistent/mediagate-test-root" },
			wantErr: "media root",
		},
		{
			name: "drive without credentials",
			mutate: func(c *AppConfig) {
				c.Drive.Enabled = true
			},
			wantErr: "drive provider enabled without a token or API key",
		},
		{
			name: "drive with api key only is fine",
			mutate: func(c *AppConfig) {
				c.Drive.Enabled = true
				c.Drive.APIKey = "k"
			},
		},
		{
			name: "graph without drive id",
			mutate: func(c *AppConfig) {
				c.Graph.Enabled = true
				c.Graph.Token = "t"
			},
			wantErr: "graph provider enabled without a drive ID",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *AppConfig) { c.RateLimit.Limit = 0 },
			wantErr: "rate limit must be positive",
		},
		{
			name:    "negative rate window",
			mutate:  func(c *AppConfig) { c.RateLimit.Window = -1 },
			wantErr: "rate window must be positive",
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *AppConfig) { c.Cache.Backend = "memcached" },
			wantErr: "unknown cache backend",
		},
		{
			name:    "redis backend without address",
			mutate:  func(c *AppConfig) { c.Cache.Backend = "redis" },
			wantErr: "requires a redis address",
		},
		{
			name: "telemetry sampling out of range",
			mutate: func(c *AppConfig) {
				c.Telemetry.Enabled = true
				c.Telemetry.Sampling = 1.5
			},
			wantErr: "sampling must be within [0,1]",
		},
		{
			name: "unknown telemetry exporter",
			mutate: func(c *AppConfig) {
				c.Telemetry.Enabled = true
				c.Telemetry.Exporter = "stdout"
			},
			wantErr: "unknown telemetry exporter",
		},
		{
			name: "disabled telemetry skips exporter check",
			mutate: func(c *AppConfig) {
				c.Telemetry.Enabled = false
				c.Telemetry.Exporter = "stdout"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig(t)
	cfg.TokenSecret = ""
	cfg.APIToken = ""
	cfg.RateLimit.Limit = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"token secret", "api token", "rate limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %v missing %q", err, want)
		}
	}
}

func TestEnabledProviders(t *testing.T) {
	cfg := validConfig(t)
	cfg.Drive.Enabled = true
	cfg.Graph.Enabled = true

	got := cfg.EnabledProviders()
	want := []media.Provider{media.ProviderDrive, media.ProviderGraph, media.ProviderLocal}
	if len(got) != len(want) {
		t.Fatalf("EnabledProviders() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EnabledProviders() = %v, want %v", got, want)
		}
	}
}

func TestSummaryMasksSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.Drive.Enabled = true
	cfg.Drive.Token = "drive-oauth-token"
	cfg.Cache.RedisPassword = "hunter2"

	sum := cfg.Summary()
	for k, v := range sum {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(s, "drive-oauth-token") || strings.Contains(s, "hunter2") || strings.Contains(s, cfg.TokenSecret) {
			t.Errorf("summary key %q leaks a secret: %q", k, s)
		}
	}
}
