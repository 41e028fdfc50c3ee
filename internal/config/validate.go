package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxPort = 65535

// validateConfig checks the resolved configuration. Alias targets are stat'ed,
// nothing is created.
func validateConfig(cfg BuildConfiguration) error {
	if strings.TrimSpace(cfg.Server.Host) == "" {
		return configErrorf("server.host", nil, "bind host cannot be empty")
	}
	if err := validatePort("server.port", cfg.Server.Port); err != nil {
		return err
	}
	if err := validatePort("server.hmr.port", cfg.Server.HMRPort); err != nil {
		return err
	}
	if cfg.Server.Port == cfg.Server.HMRPort {
		return configErrorf("server.hmr.port", nil, "must differ from server.port (%d)", cfg.Server.Port)
	}
	if cfg.Server.Watch.PollIntervalMs <= 0 {
		return configErrorf("server.watch.interval", nil, "must be a positive number of milliseconds, got %d", cfg.Server.Watch.PollIntervalMs)
	}

	if !filepath.IsAbs(cfg.CacheDir) {
		return configErrorf("cacheDir", nil, "must be absolute, got %q", cfg.CacheDir)
	}

	if !cfg.Test.Environment.Valid() {
		return configErrorf("test.environment", nil, "must be %q or %q, got %q", EnvironmentDOM, EnvironmentNode, cfg.Test.Environment)
	}
	if cfg.Test.SetupFile == "" {
		return configErrorf("test.setupFiles", nil, "setup entry path cannot be empty")
	}

	for i, d := range cfg.Plugins {
		if strings.TrimSpace(d.Name) == "" {
			return configErrorf(fmt.Sprintf("plugins[%d]", i), nil, "plugin name cannot be empty")
		}
	}

	return validateAliases(cfg.Aliases)
}

func validatePort(field string, port int) error {
	if port <= 0 || port > maxPort {
		return configErrorf(field, nil, "must be between 1 and %d, got %d", maxPort, port)
	}
	return nil
}

func validateAliases(aliases map[string]string) error {
	for alias, target := range aliases {
		if strings.TrimSpace(alias) == "" {
			return configErrorf("resolve.alias", nil, "alias name cannot be empty")
		}
		info, err := os.Stat(target)
		if err != nil {
			return configErrorf(aliasField(alias), err, "target %s does not exist", target)
		}
		if !info.IsDir() {
			return configErrorf(aliasField(alias), nil, "target %s is not a directory", target)
		}
	}
	return nil
}
