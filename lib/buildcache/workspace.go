// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package buildcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// moduleManifests mark a build workspace root, in lookup order.
var moduleManifests = []string{"moon.mod.json", "moon.mod"}

// packageManifests accompany moduleManifests in the cache key. Their
// presence or absence changes which tasks share a key.
var packageManifests = []string{"moon.pkg.json", "moon.pkg"}

// manifestNames is the fixed list of build-manifest filenames folded
// into the cache key, in digest order.
var manifestNames = []string{"moon.mod.json", "moon.mod", "moon.pkg.json", "moon.pkg"}

// FindWorkspaceRoot walks upward from start looking for a module
// manifest. Returns ok=false when no ancestor carries one, in which
// case the task is workspace-less and always runs uncached through the
// toolchain's run mode.
func FindWorkspaceRoot(start string) (string, bool) {
	dir := start
	for {
		for _, name := range moduleManifests {
			if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.Mode().IsRegular() {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// packageName extracts the declared package name from the workspace's
// moon.mod.json. The manifest may carry comments and trailing commas
// (the toolchain tolerates them), so the bytes run through a JSONC
// translation before strict decoding. Returns "" when the manifest is
// absent or carries no usable name.
//
// The name's last path segment is used, with dots flattened to
// hyphens, matching the binary the toolchain emits.
func packageName(workspaceDir string) (string, error) {
	path := filepath.Join(workspaceDir, "moon.mod.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	var manifest struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &manifest); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	name := strings.TrimSpace(manifest.Name)
	if name == "" {
		return "", nil
	}
	if index := strings.LastIndex(name, "/"); index >= 0 {
		name = name[index+1:]
	}
	return strings.ReplaceAll(name, ".", "-"), nil
}
