// SPDX-License-Identifier: MIT

package health

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/opencourse-labs/mediagate/internal/config"
	"github.com/opencourse-labs/mediagate/internal/log"
)

// PerformStartupChecks validates the environment before the server starts
// taking traffic. Validate has already checked the config values; this
// layer checks the world the config points at.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	// 1. Listen addresses
	if err := checkListenAddr(logger, "api", cfg.Server.ListenAddr); err != nil {
		return err
	}
	if cfg.MetricsEnabled {
		if err := checkListenAddr(logger, "metrics", cfg.MetricsAddr); err != nil {
			return err
		}
	}

	// 2. Public URL
	u, err := url.Parse(cfg.PublicURL)
	if err != nil {
		return fmt.Errorf("invalid public URL %q: %w", cfg.PublicURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("public URL scheme must be http or https, got %q", u.Scheme)
	}
	logger.Info().Str("url", cfg.PublicURL).Msg("✓ Public URL is valid")

	// 3. Media root, when the local backend is on
	if cfg.Local.Enabled {
		if err := checkMediaRoot(logger, cfg.Local.Root); err != nil {
			return fmt.Errorf("media root check failed: %w", err)
		}
	}

	// 4. Policy file, when configured
	if cfg.PolicyFile != "" {
		if err := checkFileReadable(cfg.PolicyFile); err != nil {
			return fmt.Errorf("policy file %s: %w", cfg.PolicyFile, err)
		}
		logger.Info().Str("path", cfg.PolicyFile).Msg("✓ Policy file is readable")
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, name, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s listen address %q: %w", name, addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid %s listen port %q in %q", name, port, addr)
	}
	logger.Info().Str("addr", addr).Msgf("✓ %s listen address is valid", name)
	return nil
}

// checkMediaRoot verifies the root exists and can be listed. The media
// root is read-only for the gateway, so no write probe runs here.
func checkMediaRoot(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	f, err := os.Open(path) // #nosec G304 -- operator-configured path
	if err != nil {
		return fmt.Errorf("directory is not readable: %s (%v)", path, err)
	}
	_ = f.Close()

	logger.Info().Str("path", path).Msg("✓ Media root is readable")
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return f.Close()
}
