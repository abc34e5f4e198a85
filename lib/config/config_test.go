// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	configuration := Default()

	if configuration.Toolchain.Binary != "moon" {
		t.Errorf("Toolchain.Binary = %q, want %q", configuration.Toolchain.Binary, "moon")
	}
	if got := configuration.VersionTTL(); got != 12*time.Hour {
		t.Errorf("VersionTTL() = %v, want %v", got, 12*time.Hour)
	}
	if got := configuration.StartTimeout(); got != 3*time.Second {
		t.Errorf("StartTimeout() = %v, want %v", got, 3*time.Second)
	}
	if configuration.Paths.RuntimeDir == "" {
		t.Error("Paths.RuntimeDir is empty")
	}
	if configuration.Paths.CacheRoot == "" {
		t.Error("Paths.CacheRoot is empty")
	}
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	t.Setenv("KILN_CONFIG", "")

	configuration, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if configuration.Toolchain.Binary != "moon" {
		t.Errorf("Toolchain.Binary = %q, want default", configuration.Toolchain.Binary)
	}
}

func TestLoadFilePartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiln.yaml")
	content := "paths:\n  runtime_dir: /tmp/kiln-test-run\ntoolchain:\n  version_ttl_seconds: 60\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	configuration, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if configuration.Paths.RuntimeDir != "/tmp/kiln-test-run" {
		t.Errorf("RuntimeDir = %q, want override", configuration.Paths.RuntimeDir)
	}
	if configuration.VersionTTL() != time.Minute {
		t.Errorf("VersionTTL() = %v, want 1m", configuration.VersionTTL())
	}
	// Fields the file did not mention keep their defaults.
	if configuration.Toolchain.Binary != "moon" {
		t.Errorf("Toolchain.Binary = %q, want default %q", configuration.Toolchain.Binary, "moon")
	}
	if configuration.Paths.CacheRoot == "" {
		t.Error("CacheRoot cleared by partial override")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiln.yaml")
	if err := os.WriteFile(path, []byte("toolchain:\n  binary: moon-nightly\n"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("KILN_CONFIG", path)

	configuration, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if configuration.Toolchain.Binary != "moon-nightly" {
		t.Errorf("Toolchain.Binary = %q, want %q", configuration.Toolchain.Binary, "moon-nightly")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiln.yaml")
	if err := os.WriteFile(path, []byte(":\n  - not yaml"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load of malformed YAML succeeded, want error")
	}
}

func TestSocketPathOverride(t *testing.T) {
	configuration := Default()
	t.Setenv("KILN_SOCKET", "/tmp/alt.sock")
	if got := configuration.SocketPath(); got != "/tmp/alt.sock" {
		t.Errorf("SocketPath() = %q, want env override", got)
	}

	t.Setenv("KILN_SOCKET", "")
	want := filepath.Join(configuration.Paths.RuntimeDir, "kiln-taskd.sock")
	if got := configuration.SocketPath(); got != want {
		t.Errorf("SocketPath() = %q, want %q", got, want)
	}
}
