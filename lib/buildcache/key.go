// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package buildcache

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/kilnworks/kiln/lib/clock"
	"github.com/kilnworks/kiln/lib/task"
)

// cacheFormatVersion is folded into every key first. Bumping it
// invalidates every previously cached artifact at once.
const cacheFormatVersion = "kiln-task-v1"

// versionOverrideEnv supplies the toolchain version verbatim and
// bypasses probing entirely.
const versionOverrideEnv = "KILN_TOOLCHAIN_VERSION"

// versionTTLEnv overrides the configured probe TTL, in seconds.
const versionTTLEnv = "KILN_TOOLCHAIN_VERSION_TTL_SECS"

// VersionFileName is the toolchain-version cache file under the cache
// root. Its modification time is the TTL clock.
const VersionFileName = "toolchain-version.txt"

// VersionStore persists the probed toolchain version between
// invocations. The production implementation is a plain file under the
// cache root; tests substitute an in-memory store.
type VersionStore interface {
	// Read returns the stored version and the time it was stored.
	Read() (content string, storedAt time.Time, err error)

	// Write stores the version, stamping the current time.
	Write(content string) error
}

// FileVersionStore stores the version in a file whose mtime serves as
// the store timestamp, making the TTL window survive daemon restarts
// and visible to out-of-band inspection.
type FileVersionStore struct {
	Path string
}

func (s FileVersionStore) Read() (string, time.Time, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return "", time.Time{}, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", time.Time{}, err
	}
	return strings.TrimSpace(string(data)), info.ModTime(), nil
}

func (s FileVersionStore) Write(content string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, []byte(content+"\n"), 0o644)
}

// Keyer derives reproducible cache keys for a task's buildable state.
type Keyer struct {
	// Toolchain answers version probes.
	Toolchain Toolchain

	// Versions caches the probed toolchain version across invocations.
	Versions VersionStore

	// TTL bounds how often the toolchain is spawned purely to query
	// its version.
	TTL time.Duration

	// Clock supplies "now" for the TTL check.
	Clock clock.Clock
}

// ComputeKey digests the task's buildable state: the cache format
// version, the task's identity strings, the entry path relative to the
// workspace, the task file's own freshness signature, the signatures
// of every present build manifest, and the toolchain version when one
// is available. The digest is hex-encoded BLAKE3.
func (k *Keyer) ComputeKey(t task.Task, workspaceDir, entryRelative string) string {
	hasher := blake3.New()

	io.WriteString(hasher, cacheFormatVersion)
	io.WriteString(hasher, t.ID)
	io.WriteString(hasher, t.Selector)
	io.WriteString(hasher, t.Path)
	io.WriteString(hasher, entryRelative)

	writeFileSignature(hasher, t.Path)
	for _, name := range manifestNames {
		writeFileSignature(hasher, filepath.Join(workspaceDir, name))
	}

	if version := k.toolchainVersion(); version != "" {
		io.WriteString(hasher, version)
	}

	return hex.EncodeToString(hasher.Sum(nil))
}

// toolchainVersion returns the version string to fold into the key, or
// "" when none can be determined (a failed probe weakens cache
// invalidation but must not fail the build).
//
// Order: environment override verbatim; stored version younger than
// the TTL; fresh probe, persisted for future calls.
func (k *Keyer) toolchainVersion() string {
	if override := strings.TrimSpace(os.Getenv(versionOverrideEnv)); override != "" {
		return override
	}

	ttl := k.TTL
	if raw := os.Getenv(versionTTLEnv); raw != "" {
		if seconds, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64); err == nil {
			ttl = time.Duration(seconds) * time.Second
		}
	}

	now := k.Clock.Now()
	if stored, storedAt, err := k.Versions.Read(); err == nil && stored != "" {
		if now.Sub(storedAt) <= ttl {
			return stored
		}
	}

	version, err := k.Toolchain.Version()
	if err != nil || version == "" {
		return ""
	}
	// Best-effort persist: a read-only cache dir costs extra probes,
	// not correctness.
	_ = k.Versions.Write(version)
	return version
}
