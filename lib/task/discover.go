// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// generatedDirs are build-output subtrees excluded from discovery by
// name. Artifacts under them are compiler output, not task definitions.
var generatedDirs = map[string]bool{
	"_build":     true,
	".mooncakes": true,
}

// Discover walks the project's task root and returns every task
// definition found, sorted by ID for deterministic iteration (the sort
// also yields a stable display order for ambiguity reporting). A
// missing task root returns an empty slice, not an error.
func Discover(projectRoot string) ([]Task, error) {
	root, err := canonicalRoot(projectRoot)
	if err != nil {
		return nil, err
	}
	taskRoot := RootDir(root)
	if _, err := os.Stat(taskRoot); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat task root %s: %w", taskRoot, err)
	}

	var tasks []Task
	err = filepath.WalkDir(taskRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal: one bad
			// directory must not hide every other task.
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		relative, relErr := filepath.Rel(taskRoot, path)
		if relErr != nil {
			return nil
		}
		if entry.IsDir() {
			if generatedDirs[entry.Name()] {
				return fs.SkipDir
			}
			if depth(relative) > maxWalkDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), Extension) {
			return nil
		}
		parsed, parseErr := parse(taskRoot, path)
		if parseErr != nil {
			return parseErr
		}
		tasks = append(tasks, parsed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// ResolveFast resolves a selector without walking the tree. It builds
// up to three candidate paths directly from the selector string and
// returns the first that exists as a file, parsed in isolation. Returns
// nil when no candidate exists — callers fall back to Discover+Select.
//
// This trades a small risk of missing a task whose id does not match
// its literal path shape for an O(1) lookup in the common case.
func ResolveFast(projectRoot, selector string) (*Task, error) {
	root, err := canonicalRoot(projectRoot)
	if err != nil {
		return nil, err
	}
	taskRoot := RootDir(root)
	if _, err := os.Stat(taskRoot); err != nil {
		return nil, nil
	}

	needle := strings.TrimSpace(selector)
	if scope, rest, ok := splitScope(needle); ok && strings.EqualFold(scope, Namespace) {
		needle = rest
	}
	if needle == "" {
		return nil, nil
	}

	var candidates []string
	base := filepath.Join(taskRoot, filepath.FromSlash(needle))
	if strings.EqualFold(filepath.Ext(needle), Extension) {
		candidates = append(candidates, base)
	} else {
		candidates = append(candidates, base+Extension, filepath.Join(base, entryStem+Extension))
	}
	if strings.Contains(needle, ":") {
		rewritten := filepath.Join(taskRoot, filepath.FromSlash(strings.ReplaceAll(needle, ":", "/")))
		candidates = append(candidates, rewritten+Extension, filepath.Join(rewritten, entryStem+Extension))
	}

	for _, candidate := range candidates {
		info, statErr := os.Stat(candidate)
		if statErr != nil || info.IsDir() {
			continue
		}
		parsed, parseErr := parse(taskRoot, candidate)
		if parseErr != nil {
			return nil, parseErr
		}
		return &parsed, nil
	}
	return nil, nil
}

// parse derives a task's identity from its location and reads its
// metadata header.
func parse(taskRoot, path string) (Task, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Task{}, fmt.Errorf("reading task %s: %w", path, err)
	}
	meta := parseMetadata(string(content))

	relative, err := filepath.Rel(taskRoot, path)
	if err != nil {
		relative = path
	}
	relative = filepath.ToSlash(relative)

	selector := strings.TrimSuffix(relative, filepath.Ext(relative))
	selector = strings.TrimSuffix(selector, "/"+entryStem)

	stem := strings.TrimSuffix(filepath.Base(relative), filepath.Ext(relative))
	name := stem
	if stem == entryStem {
		if parent := filepath.Base(filepath.Dir(relative)); parent != "." {
			name = parent
		}
	}
	if selector == "" || selector == entryStem {
		selector = name
	}

	title := meta.title
	if title == "" {
		title = strings.ReplaceAll(name, "-", " ")
	}

	return Task{
		ID:           Namespace + ":" + selector,
		Selector:     selector,
		Name:         name,
		Title:        title,
		Description:  meta.description,
		Tags:         meta.tags,
		Path:         path,
		RelativePath: relative,
	}, nil
}

// canonicalRoot makes projectRoot absolute and resolves symlinks where
// possible. Canonicalization failures fall back to the absolute path —
// a project on a disappearing mount should fail later with a clear
// walk error, not here.
func canonicalRoot(projectRoot string) (string, error) {
	absolute, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("resolving project root %s: %w", projectRoot, err)
	}
	if resolved, err := filepath.EvalSymlinks(absolute); err == nil {
		return resolved, nil
	}
	return absolute, nil
}

// depth counts the path components of a relative path.
func depth(relative string) int {
	if relative == "." || relative == "" {
		return 0
	}
	return strings.Count(filepath.ToSlash(relative), "/") + 1
}
