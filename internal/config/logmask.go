// SPDX-License-Identifier: MIT

package config

// mask replaces a secret with a fixed marker. Length is deliberately not
// preserved; even the size of a credential stays out of the logs.
func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Summary returns a loggable view of the configuration with every secret
// masked. Startup logging must go through this, never through the raw
// AppConfig.
func (c *AppConfig) Summary() map[string]any {
	return map[string]any{
		"public_url":       c.PublicURL,
		"listen":           c.Server.ListenAddr,
		"metrics_enabled":  c.MetricsEnabled,
		"metrics_listen":   c.MetricsAddr,
		"api_token":        mask(c.APIToken),
		"token_secret":     mask(c.TokenSecret),
		"token_issuer":     c.TokenIssuer,
		"policy_file":      c.PolicyFile,
		"log_level":        c.LogLevel,
		"drive_enabled":    c.Drive.Enabled,
		"drive_token":      mask(c.Drive.Token),
		"drive_api_key":    mask(c.Drive.APIKey),
		"graph_enabled":    c.Graph.Enabled,
		"graph_drive_id":   c.Graph.DriveID,
		"graph_token":      mask(c.Graph.Token),
		"local_enabled":    c.Local.Enabled,
		"media_root":       c.Local.Root,
		"rate_window":      c.RateLimit.Window.String(),
		"rate_limit":       c.RateLimit.Limit,
		"cache_backend":    c.Cache.Backend,
		"redis_addr":       c.Cache.RedisAddr,
		"redis_password":   mask(c.Cache.RedisPassword),
		"meta_ttl":         c.Cache.MetaTTL.String(),
		"telemetry":        c.Telemetry.Enabled,
		"allowed_origins":  c.AllowedOrigins,
	}
}
