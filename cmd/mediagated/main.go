// SPDX-License-Identifier: MIT

// mediagated is the signed-link media gateway daemon. It issues
// short-lived playback links for course media and proxies ranged
// streams from the configured storage backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/opencourse-labs/mediagate/internal/api"
	"github.com/opencourse-labs/mediagate/internal/audit"
	"github.com/opencourse-labs/mediagate/internal/cache"
	"github.com/opencourse-labs/mediagate/internal/config"
	"github.com/opencourse-labs/mediagate/internal/daemon"
	"github.com/opencourse-labs/mediagate/internal/health"
	mglog "github.com/opencourse-labs/mediagate/internal/log"
	"github.com/opencourse-labs/mediagate/internal/playback"
	platformnet "github.com/opencourse-labs/mediagate/internal/platform/net"
	"github.com/opencourse-labs/mediagate/internal/policy"
	"github.com/opencourse-labs/mediagate/internal/provider"
	"github.com/opencourse-labs/mediagate/internal/provider/drive"
	"github.com/opencourse-labs/mediagate/internal/provider/graph"
	"github.com/opencourse-labs/mediagate/internal/provider/local"
	"github.com/opencourse-labs/mediagate/internal/ratelimit"
	"github.com/opencourse-labs/mediagate/internal/telemetry"
	"github.com/opencourse-labs/mediagate/internal/token"
	"github.com/opencourse-labs/mediagate/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Load configuration with precedence ENV > file > defaults before the
	// logger is pinned, so the configured level applies from the start.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	cfg, err := config.NewLoader(effectiveConfigPath).Load()
	if err != nil {
		mglog.Configure(mglog.Config{Level: "info", Service: "mediagate"})
		fallback := mglog.WithComponent("daemon")
		fallback.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	mglog.Configure(mglog.Config{Level: cfg.LogLevel, Service: "mediagate"})
	logger := mglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.invalid").
			Msg("configuration rejected")
	}

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Fields(cfg.Summary()).
		Msg("starting mediagate")

	providerNames := make([]string, 0, 3)
	for _, p := range cfg.EnabledProviders() {
		providerNames = append(providerNames, p.String())
	}
	logger.Info().Msgf("→ Public URL: %s", cfg.PublicURL)
	logger.Info().Msgf("→ Providers: %s", strings.Join(providerNames, ", "))
	if cfg.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().
			Str("security", "weak").
			Msg("→ API token: NOT configured (anonymous mode). Set MEDIAGATE_API_TOKEN for production.")
	}
	if cfg.PolicyFile != "" {
		logger.Info().Msgf("→ Link policy: %s (hot reload)", cfg.PolicyFile)
	} else {
		logger.Info().Msg("→ Link policy: built-in defaults, every provider proxied")
	}
	logger.Info().Msgf("→ Metadata cache: %s", cfg.Cache.Backend)
	if cfg.MetricsEnabled {
		logger.Info().Msgf("→ Metrics: %s", cfg.MetricsAddr)
	} else {
		logger.Info().Msg("→ Metrics: disabled")
	}

	// Tracing is optional; a dead collector endpoint must not block playback.
	var tel *telemetry.Provider
	tracingService := ""
	if cfg.Telemetry.Enabled {
		tel, err = telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    "mediagate",
			ServiceVersion: version.Version,
			Environment:    config.ParseString("MEDIAGATE_ENVIRONMENT", "production"),
			ExporterType:   cfg.Telemetry.Exporter,
			Endpoint:       cfg.Telemetry.Endpoint,
			SamplingRate:   cfg.Telemetry.Sampling,
		})
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "telemetry.init_failed").
				Msg("telemetry initialization failed, continuing without tracing")
			tel = nil
		} else {
			tracingService = "mediagate"
			logger.Info().
				Str("endpoint", cfg.Telemetry.Endpoint).
				Float64("sampling", cfg.Telemetry.Sampling).
				Msg("telemetry initialized")
		}
	}

	var metaBackend cache.Cache
	var redisCache *cache.RedisCache
	switch cfg.Cache.Backend {
	case "redis":
		redisCache, err = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, mglog.WithComponent("cache"))
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "cache.connect_failed").
				Msg("redis cache unavailable")
		}
		metaBackend = redisCache
	case "off":
		metaBackend = cache.NewNoOpCache()
	default:
		metaBackend = cache.NewMemoryCache(5 * time.Minute)
	}
	meta := provider.NewMetaCache(metaBackend, cfg.Cache.MetaTTL)

	var adapters []provider.Adapter
	if cfg.Drive.Enabled {
		adapters = append(adapters, drive.New(drive.Config{
			BaseURL: cfg.Drive.BaseURL,
			Token:   cfg.Drive.Token,
			APIKey:  cfg.Drive.APIKey,
		}, drivePolicy(cfg.Drive), meta, cfg.UpstreamHeaderTimeout, mglog.WithComponent("drive")))
	}
	if cfg.Graph.Enabled {
		adapters = append(adapters, graph.New(graph.Config{
			BaseURL: cfg.Graph.BaseURL,
			DriveID: cfg.Graph.DriveID,
			Token:   cfg.Graph.Token,
		}, graphPolicy(cfg.Graph), meta, cfg.UpstreamHeaderTimeout, mglog.WithComponent("graph")))
	}
	if cfg.Local.Enabled {
		localAdapter, err := local.New(local.Config{Root: cfg.Local.Root}, mglog.WithComponent("local"))
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "provider.local_failed").
				Msg("local media root rejected")
		}
		adapters = append(adapters, localAdapter)
	}
	registry := provider.NewRegistry(adapters...)

	codec, err := token.New(token.Config{
		Secret: []byte(cfg.TokenSecret),
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "token.codec_failed").
			Msg("token codec rejected configuration")
	}

	// A broken policy file fails startup; a broken edit later only logs,
	// because the watcher keeps the last good snapshot.
	policies := policy.NewStore(cfg.PolicyFile)
	if err := policies.Load(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "policy.load_failed").
			Msg("link policy rejected")
	}

	auditTrail := audit.NewLogger()

	playbackSvc, err := playback.New(playback.Config{
		Registry:  registry,
		Codec:     codec,
		Policy:    policies,
		Audit:     auditTrail,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "playback.init_failed").
			Msg("playback service rejected configuration")
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window:      cfg.RateLimit.Window,
		Limit:       cfg.RateLimit.Limit,
		Group:       "media",
		GlobalRate:  rate.Limit(cfg.RateLimit.GlobalRPS),
		GlobalBurst: cfg.RateLimit.GlobalBurst,
	})

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewProviderChecker(func() []string {
		tags := registry.Providers()
		out := make([]string, 0, len(tags))
		for _, p := range tags {
			out = append(out, p.String())
		}
		return out
	}))
	if cfg.Local.Enabled {
		hm.RegisterChecker(health.NewDirChecker("media_root", cfg.Local.Root))
	}
	if cfg.PolicyFile != "" {
		hm.RegisterChecker(health.NewFileChecker("policy_file", cfg.PolicyFile))
	}
	if redisCache != nil {
		hm.RegisterChecker(health.NewPingChecker("redis", redisCache.HealthCheck))
	}

	srv, err := api.NewServer(api.Config{
		APIToken:       cfg.APIToken,
		AuthAnonymous:  cfg.AuthAnonymous,
		AllowedOrigins: cfg.AllowedOrigins,
		TracingService: tracingService,
	}, api.Deps{
		Playback: playbackSvc,
		Registry: registry,
		Codec:    codec,
		Limiter:  limiter,
		Health:   hm,
		Audit:    auditTrail,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "api.init_failed").
			Msg("API server rejected configuration")
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:         logger,
		Config:         cfg,
		APIHandler:     srv.Routes(),
		MetricsHandler: promhttp.Handler(),
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation_failed").
			Msg("failed to create daemon manager")
	}

	mgr.RegisterShutdownHook("policy-store", func(context.Context) error {
		policies.Close()
		return nil
	})
	if stopper, ok := metaBackend.(interface{ Stop() }); ok {
		mgr.RegisterShutdownHook("meta-cache", func(context.Context) error {
			stopper.Stop()
			return nil
		})
	}
	if redisCache != nil {
		mgr.RegisterShutdownHook("redis-cache", func(context.Context) error {
			return redisCache.Close()
		})
	}
	if tel != nil {
		mgr.RegisterShutdownHook("telemetry", tel.Shutdown)
	}

	app := daemon.NewApp(logger, mgr, policies)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}

// drivePolicy admits the Drive API host plus the rotating content hosts
// Drive redirects downloads to.
func drivePolicy(cfg config.DriveConfig) platformnet.OutboundPolicy {
	allow := platformnet.OutboundAllowlist{
		Hosts:    []string{"www.googleapis.com"},
		Suffixes: []string{"googleusercontent.com"},
		Ports:    []int{443},
		Schemes:  []string{"https"},
	}
	admitBaseURL(&allow, cfg.BaseURL)
	return platformnet.OutboundPolicy{Enabled: true, Allow: allow}
}

// graphPolicy admits the Graph API host plus the per-tenant download
// hosts its pre-authenticated redirects point at.
func graphPolicy(cfg config.GraphConfig) platformnet.OutboundPolicy {
	allow := platformnet.OutboundAllowlist{
		Hosts:    []string{"graph.microsoft.com"},
		Suffixes: []string{"sharepoint.com", "1drv.com"},
		Ports:    []int{443},
		Schemes:  []string{"https"},
	}
	admitBaseURL(&allow, cfg.BaseURL)
	return platformnet.OutboundPolicy{Enabled: true, Allow: allow}
}

// admitBaseURL extends the allowlist when an operator points a provider
// at a non-default endpoint, e.g. a mock API in a staging environment.
func admitBaseURL(allow *platformnet.OutboundAllowlist, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return
	}
	allow.Hosts = append(allow.Hosts, u.Hostname())
	if ip := net.ParseIP(u.Hostname()); ip != nil {
		allow.CIDRs = append(allow.CIDRs, u.Hostname())
	}
	if strings.EqualFold(u.Scheme, "http") {
		allow.Schemes = append(allow.Schemes, "http")
		allow.Ports = append(allow.Ports, 80)
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			allow.Ports = append(allow.Ports, n)
		}
	}
}
