// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Kiln.
//
// Configuration is loaded from a single optional file specified by:
//   - the KILN_CONFIG environment variable, or
//   - the --config flag passed to the command.
//
// There is no search-path discovery. When no file is specified, the
// built-in defaults apply. Everything a daemon or client touches on
// disk (runtime directory, cache root) flows from this struct — nothing
// reads ambient global paths, so tests inject temporary directories by
// constructing a Config directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Kiln.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Toolchain configures the external build toolchain.
	Toolchain ToolchainConfig `yaml:"toolchain"`

	// Daemon configures the task daemon lifecycle.
	Daemon DaemonConfig `yaml:"daemon"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// RuntimeDir holds the daemon's socket and PID files.
	// Default: ~/.kiln/run
	RuntimeDir string `yaml:"runtime_dir"`

	// CacheRoot holds per-key artifact directories and the toolchain
	// version cache file.
	// Default: <user cache dir>/kiln/tasks
	CacheRoot string `yaml:"cache_root"`
}

// ToolchainConfig configures the external build toolchain.
type ToolchainConfig struct {
	// Binary is the toolchain executable name or path.
	// Default: moon
	Binary string `yaml:"binary"`

	// VersionTTLSeconds bounds how often the toolchain binary is
	// spawned purely to query its version. Default: 43200 (12 hours).
	// The KILN_TOOLCHAIN_VERSION_TTL_SECS environment variable
	// overrides this at probe time.
	VersionTTLSeconds int `yaml:"version_ttl_seconds"`
}

// DaemonConfig configures the task daemon lifecycle.
type DaemonConfig struct {
	// StartTimeoutMS is how long `kiln daemon start` polls for the
	// spawned daemon to answer Ping before giving up. Default: 3000.
	StartTimeoutMS int `yaml:"start_timeout_ms"`
}

// Default returns the default configuration. These defaults are the
// operative configuration for most installs — unlike a required config
// file, Kiln runs entirely on defaults unless the user points
// KILN_CONFIG at an override file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = filepath.Join(homeDir, ".cache")
	}

	return &Config{
		Paths: PathsConfig{
			RuntimeDir: filepath.Join(homeDir, ".kiln", "run"),
			CacheRoot:  filepath.Join(cacheDir, "kiln", "tasks"),
		},
		Toolchain: ToolchainConfig{
			Binary:            "moon",
			VersionTTLSeconds: int((12 * time.Hour).Seconds()),
		},
		Daemon: DaemonConfig{
			StartTimeoutMS: 3000,
		},
	}
}

// Load reads configuration from the given path. If path is empty, the
// KILN_CONFIG environment variable is consulted; if that is also empty,
// the defaults are returned. File values override defaults field by
// field (zero values in the file leave the default in place for paths
// and the toolchain binary).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("KILN_CONFIG")
	}
	configuration := Default()
	if path == "" {
		return configuration, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, configuration); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	configuration.fillZeroes()
	return configuration, nil
}

// fillZeroes restores defaults for fields the file left unset. A YAML
// file that only overrides paths must not silently clear the toolchain
// binary or the TTL.
func (c *Config) fillZeroes() {
	defaults := Default()
	if c.Paths.RuntimeDir == "" {
		c.Paths.RuntimeDir = defaults.Paths.RuntimeDir
	}
	if c.Paths.CacheRoot == "" {
		c.Paths.CacheRoot = defaults.Paths.CacheRoot
	}
	if c.Toolchain.Binary == "" {
		c.Toolchain.Binary = defaults.Toolchain.Binary
	}
	if c.Toolchain.VersionTTLSeconds <= 0 {
		c.Toolchain.VersionTTLSeconds = defaults.Toolchain.VersionTTLSeconds
	}
	if c.Daemon.StartTimeoutMS <= 0 {
		c.Daemon.StartTimeoutMS = defaults.Daemon.StartTimeoutMS
	}
}

// SocketPath returns the daemon's Unix socket path under the runtime
// directory. The KILN_SOCKET environment variable overrides it, which
// the test suite and the --socket flag both rely on.
func (c *Config) SocketPath() string {
	if override := os.Getenv("KILN_SOCKET"); override != "" {
		return override
	}
	return filepath.Join(c.Paths.RuntimeDir, "kiln-taskd.sock")
}

// PIDPath returns the daemon's PID file path under the runtime
// directory.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "kiln-taskd.pid")
}

// VersionTTL returns the toolchain version probe TTL as a Duration.
func (c *Config) VersionTTL() time.Duration {
	return time.Duration(c.Toolchain.VersionTTLSeconds) * time.Second
}

// StartTimeout returns the daemon start readiness timeout as a
// Duration.
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.Daemon.StartTimeoutMS) * time.Millisecond
}
