// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildcache maps a task's buildable state to a materialized
// executable artifact on local disk. An artifact is rebuilt only on
// cache miss, explicit force, or key change; everything else is a copy
// already sitting under the per-key cache directory.
package buildcache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilnworks/kiln/lib/task"
)

// ErrNoWorkspace reports a task with no enclosing build workspace.
// Callers run such tasks uncached through the toolchain's run mode.
var ErrNoWorkspace = errors.New("task has no enclosing build workspace")

// artifactName is the file name of the cached executable inside its
// per-key directory.
const artifactName = "task-bin"

// buildOutputDir is where the toolchain's release build places
// binaries, relative to the workspace root.
var buildOutputDir = filepath.Join("_build", "native", "release", "build")

// Artifact is the result of ensuring a buildable task has a usable
// binary.
type Artifact struct {
	// CacheKey is the hex digest addressing this artifact.
	CacheKey string

	// BinaryPath is the executable under the per-key cache directory.
	// Deterministic for a fixed key.
	BinaryPath string

	// Rebuilt reports whether this call triggered a rebuild.
	Rebuilt bool
}

// Cache materializes built task binaries under per-key directories.
type Cache struct {
	// Root is the artifact cache root directory.
	Root string

	// Keyer derives cache keys.
	Keyer *Keyer

	// Toolchain performs builds.
	Toolchain Toolchain
}

// ResolveWorkspace locates the build workspace enclosing the task and
// the entry path relative to it. Returns ErrNoWorkspace when no
// ancestor of the task's directory carries a module manifest.
func ResolveWorkspace(t task.Task) (workspaceDir, entryRelative string, err error) {
	start := filepath.Dir(t.Path)
	workspaceDir, ok := FindWorkspaceRoot(start)
	if !ok {
		return "", "", ErrNoWorkspace
	}
	entryRelative, err = filepath.Rel(workspaceDir, t.Path)
	if err != nil {
		return "", "", fmt.Errorf("relativizing %s against workspace %s: %w", t.Path, workspaceDir, err)
	}
	return workspaceDir, entryRelative, nil
}

// EnsureBuilt returns a usable artifact for the task, building it if
// the per-key artifact does not exist or force is set. The artifact is
// published atomically (written to a temp name, then renamed), so a
// crash mid-copy never leaves a truncated file that a later call would
// treat as valid.
func (c *Cache) EnsureBuilt(t task.Task, force bool) (Artifact, error) {
	workspaceDir, entryRelative, err := ResolveWorkspace(t)
	if err != nil {
		return Artifact{}, err
	}

	key := c.Keyer.ComputeKey(t, workspaceDir, entryRelative)
	artifactDir := filepath.Join(c.Root, key)
	binaryPath := filepath.Join(artifactDir, artifactName)

	if !force {
		if info, err := os.Stat(binaryPath); err == nil && info.Mode().IsRegular() {
			return Artifact{CacheKey: key, BinaryPath: binaryPath, Rebuilt: false}, nil
		}
	}

	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("creating cache dir %s: %w", artifactDir, err)
	}
	if err := c.Toolchain.Build(workspaceDir, entryRelative); err != nil {
		return Artifact{}, err
	}

	built, err := findBuiltBinary(workspaceDir)
	if err != nil {
		return Artifact{}, err
	}
	if err := publish(built, binaryPath); err != nil {
		return Artifact{}, err
	}
	return Artifact{CacheKey: key, BinaryPath: binaryPath, Rebuilt: true}, nil
}

// publish copies the built binary into the cache atomically: write to
// a temp name in the same directory, set the executable bit, rename
// into place.
func publish(source, destination string) error {
	input, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening built binary %s: %w", source, err)
	}
	defer input.Close()

	temp := fmt.Sprintf("%s.tmp.%d", destination, os.Getpid())
	output, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temp, err)
	}
	if _, err := io.Copy(output, input); err != nil {
		output.Close()
		os.Remove(temp)
		return fmt.Errorf("copying %s -> %s: %w", source, temp, err)
	}
	if err := output.Close(); err != nil {
		os.Remove(temp)
		return fmt.Errorf("closing %s: %w", temp, err)
	}
	if err := os.Rename(temp, destination); err != nil {
		os.Remove(temp)
		return fmt.Errorf("publishing %s: %w", destination, err)
	}
	return nil
}

// findBuiltBinary locates the binary the toolchain just produced:
// first by the name the workspace manifest declares, then by scanning
// the build output directory for the first executable file.
func findBuiltBinary(workspaceDir string) (string, error) {
	outputDir := filepath.Join(workspaceDir, buildOutputDir)
	if _, err := os.Stat(outputDir); err != nil {
		return "", fmt.Errorf("build output directory missing: %s", outputDir)
	}

	name, err := packageName(workspaceDir)
	if err != nil {
		return "", err
	}
	if name != "" {
		for _, candidate := range []string{name + ".exe", name} {
			path := filepath.Join(outputDir, candidate)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return path, nil
			}
		}
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", outputDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(outputDir, entry.Name())
		if strings.HasSuffix(entry.Name(), ".exe") || isExecutable(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no executable build output in %s", outputDir)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
