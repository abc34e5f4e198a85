// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"strings"
	"testing"
)

func selectionSet() []Task {
	return []Task{
		{ID: "ai:dev/build", Selector: "dev/build", Name: "build"},
		{ID: "ai:dev/check", Selector: "dev/check", Name: "check"},
		{ID: "ai:noop", Selector: "noop", Name: "noop"},
	}
}

func TestSelectUniqueByNormalization(t *testing.T) {
	for _, selector := range []string{"dev-check", "dev_check", "dev check", "Dev-Check", "dev/check"} {
		selected, err := Select(selectionSet(), selector)
		if err != nil {
			t.Fatalf("Select(%q): %v", selector, err)
		}
		if selected == nil || selected.ID != "ai:dev/check" {
			t.Errorf("Select(%q) = %+v, want ai:dev/check", selector, selected)
		}
	}
}

func TestSelectByIDAndName(t *testing.T) {
	selected, err := Select(selectionSet(), "ai:dev/build")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected == nil || selected.ID != "ai:dev/build" {
		t.Errorf("by id: got %+v", selected)
	}

	selected, err = Select(selectionSet(), "CHECK")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected == nil || selected.ID != "ai:dev/check" {
		t.Errorf("by case-insensitive name: got %+v", selected)
	}
}

func TestSelectScopedSelector(t *testing.T) {
	selected, err := Select(selectionSet(), "ai:noop")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected == nil || selected.ID != "ai:noop" {
		t.Errorf("scoped: got %+v", selected)
	}
}

func TestSelectNoMatch(t *testing.T) {
	selected, err := Select(selectionSet(), "missing")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected != nil {
		t.Errorf("Select(missing) = %+v, want nil", selected)
	}
}

func TestSelectEmptySelector(t *testing.T) {
	selected, err := Select(selectionSet(), "   ")
	if err != nil || selected != nil {
		t.Errorf("Select(blank) = (%+v, %v), want (nil, nil)", selected, err)
	}
}

func TestSelectAmbiguousListsAllCandidates(t *testing.T) {
	tasks := []Task{
		{ID: "ai:dev/check", Selector: "dev/check", Name: "dev"},
		{ID: "ai:dev/build", Selector: "dev/build", Name: "dev"},
	}

	selected, err := Select(tasks, "dev")
	if selected != nil {
		t.Fatalf("ambiguous selector resolved to %+v", selected)
	}
	var ambiguous *AmbiguousError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want *AmbiguousError", err)
	}
	if len(ambiguous.Candidates) != 2 {
		t.Errorf("candidates = %v, want both ids", ambiguous.Candidates)
	}
	message := ambiguous.Error()
	for _, id := range []string{"ai:dev/check", "ai:dev/build"} {
		if !strings.Contains(message, id) {
			t.Errorf("ambiguity message missing %s:\n%s", id, message)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Dev-Check", "dev-check"},
		{"dev_check", "dev-check"},
		{"dev   check", "dev-check"},
		{"dev--__--check", "dev-check"},
		{"--dev-check--", "dev-check"},
		{"", ""},
		{"---", ""},
		{"Flow/Open", "flow-open"},
	}
	for _, testCase := range cases {
		if got := Normalize(testCase.in); got != testCase.want {
			t.Errorf("Normalize(%q) = %q, want %q", testCase.in, got, testCase.want)
		}
	}
}
