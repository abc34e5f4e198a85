// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package task

import "strings"

// metadata holds the parsed leading comment header of a task file:
//
//	// title: Fast Open
//	// description: Open the app quickly
//	// tags: [tooling, fast]
//
// Parsing stops at the first non-comment, non-blank line, so only the
// header participates.
type metadata struct {
	title       string
	description string
	tags        []string
}

func parseMetadata(content string) metadata {
	var meta metadata
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		comment, ok := strings.CutPrefix(line, "//")
		if !ok {
			break
		}
		key, value, ok := strings.Cut(strings.TrimSpace(comment), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "title":
			meta.title = stripQuotes(value)
		case "description":
			meta.description = stripQuotes(value)
		case "tags":
			meta.tags = parseTags(value)
		}
	}
	return meta
}

// parseTags accepts "[a, b]" or a bare comma list, with optional quotes
// around the whole value or individual entries.
func parseTags(value string) []string {
	inner := strings.TrimSpace(stripQuotes(value))
	if strings.HasPrefix(inner, "[") && strings.HasSuffix(inner, "]") {
		inner = inner[1 : len(inner)-1]
	}
	var tags []string
	for _, part := range strings.Split(inner, ",") {
		tag := strings.TrimSpace(stripQuotes(part))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func stripQuotes(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return trimmed[1 : len(trimmed)-1]
		}
	}
	return trimmed
}
