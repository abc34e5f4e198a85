// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package task discovers task-definition files under a project's task
// root and resolves user-supplied selectors to exactly one task.
//
// A task is a single compilable MoonBit program file under
// <project>/.ai/tasks. Its identity (id, selector, display name) is a
// pure function of its location relative to the task root: two
// discovery passes over an unchanged tree produce identical ids, and
// nothing here is ever persisted.
package task

import "path/filepath"

// Extension is the task-definition file extension.
const Extension = ".mbt"

// Namespace is the id prefix for every discovered task ("ai:<selector>").
const Namespace = "ai"

// entryStem is the generic entry-point file stem. A trailing
// "/<entryStem>" segment collapses out of selectors, and a file named
// entryStem takes its display name from the parent directory.
const entryStem = "main"

// maxWalkDepth bounds discovery below the task root so a stray symlink
// or vendored tree cannot send the walk into pathological recursion.
const maxWalkDepth = 12

// Task is one task-definition file found under the task root.
type Task struct {
	// ID is the globally stable namespaced identifier, e.g.
	// "ai:dev/check". Derived from the file's relative path.
	ID string `json:"id"`

	// Selector is the path-like identifier relative to the task root,
	// with a trailing "/main" segment collapsed so that "foo/main.mbt"
	// and "foo.mbt" denote the same task shape.
	Selector string `json:"selector"`

	// Name is the short display name: the file stem, or the parent
	// directory name when the stem is the generic entry-point name.
	Name string `json:"name"`

	// Title is the human title from the metadata header, defaulting to
	// the name with hyphens spaced out.
	Title string `json:"title"`

	// Description is free text from the metadata header.
	Description string `json:"description,omitempty"`

	// Tags are labels from the metadata header.
	Tags []string `json:"tags,omitempty"`

	// Path is the absolute path of the task file.
	Path string `json:"path"`

	// RelativePath is the path relative to the task root, always
	// forward-slashed.
	RelativePath string `json:"relative_path"`
}

// RootDir returns the task root for a project: <projectRoot>/.ai/tasks.
func RootDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".ai", "tasks")
}
