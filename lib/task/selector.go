// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"strings"
)

// AmbiguousError reports a selector that matched more than one task.
// It lists every candidate's id so the caller can instruct the user to
// pick a fully qualified selector. Ambiguity is terminal: the first
// match is never silently chosen.
type AmbiguousError struct {
	Selector   string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	var message strings.Builder
	fmt.Fprintf(&message, "task %q is ambiguous.\nMatches:\n", e.Selector)
	for _, id := range e.Candidates {
		fmt.Fprintf(&message, "  - %s\n", id)
	}
	message.WriteString("Try one of the full selectors above.")
	return message.String()
}

// Select maps a user-supplied selector to exactly one task from the
// discovered set. Returns (nil, nil) when nothing matches, the task
// when exactly one matches, and *AmbiguousError when several do.
//
// Matching is case-insensitive on id, selector, and name, with a
// normalized comparison (see Normalize) as a second chance, so
// "Dev-Check", "dev_check", and "dev check" are equivalent. A selector
// carrying the "ai" scope ("ai:name" or "ai/name") restricts matching
// to the unscoped remainder against selector and name.
func Select(tasks []Task, selector string) (*Task, error) {
	needle := strings.TrimSpace(selector)
	if needle == "" {
		return nil, nil
	}

	var matches []*Task
	if scope, rest, ok := splitScope(needle); ok && strings.EqualFold(scope, Namespace) {
		normalized := Normalize(rest)
		for i := range tasks {
			t := &tasks[i]
			if strings.EqualFold(t.Selector, rest) ||
				strings.EqualFold(t.Name, rest) ||
				Normalize(t.Selector) == normalized {
				matches = append(matches, t)
			}
		}
	} else {
		normalized := Normalize(needle)
		for i := range tasks {
			t := &tasks[i]
			if strings.EqualFold(t.ID, needle) ||
				strings.EqualFold(t.Selector, needle) ||
				strings.EqualFold(t.Name, needle) ||
				Normalize(t.Selector) == normalized ||
				Normalize(t.Name) == normalized {
				matches = append(matches, t)
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	}

	ids := make([]string, len(matches))
	for i, match := range matches {
		ids[i] = match.ID
	}
	return nil, &AmbiguousError{Selector: selector, Candidates: ids}
}

// Normalize lower-cases the selector and collapses every run of
// non-alphanumeric characters to a single "-", trimming leading and
// trailing separators.
func Normalize(raw string) string {
	var normalized strings.Builder
	pendingSeparator := false
	for _, r := range strings.ToLower(raw) {
		isAlphanumeric := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlphanumeric {
			pendingSeparator = normalized.Len() > 0
			continue
		}
		if pendingSeparator {
			normalized.WriteByte('-')
			pendingSeparator = false
		}
		normalized.WriteRune(r)
	}
	return normalized.String()
}

// splitScope splits "scope:rest" or "scope/rest" into its parts.
// Returns ok=false when the selector has no separator or either side
// is empty.
func splitScope(selector string) (scope, rest string, ok bool) {
	trimmed := strings.TrimSpace(selector)
	for _, separator := range []string{":", "/"} {
		left, right, found := strings.Cut(trimmed, separator)
		if !found {
			continue
		}
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if left != "" && right != "" {
			return left, right, true
		}
	}
	return "", "", false
}
