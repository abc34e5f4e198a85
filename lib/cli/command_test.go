// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	var ran []string
	root := &Command{
		Name: "kiln",
		Subcommands: []*Command{
			{Name: "run", Run: func(args []string) error {
				ran = args
				return nil
			}},
		},
	}

	if err := root.Execute([]string{"run", "ai:noop", "--", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ran) != 3 || ran[0] != "ai:noop" {
		t.Errorf("subcommand args = %v", ran)
	}
}

func TestExecuteUnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "kiln",
		Subcommands: []*Command{
			{Name: "daemon", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"daemont"})
	if err == nil {
		t.Fatal("Execute of unknown command succeeded")
	}
	if !strings.Contains(err.Error(), `did you mean "daemon"`) {
		t.Errorf("error %q does not suggest %q", err, "daemon")
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var noCache bool
	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.BoolVar(&noCache, "no-cache", false, "bypass the build cache")
			return flags
		},
		Run: func(args []string) error { return nil },
	}

	if err := command.Execute([]string{"--no-cache", "selector"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !noCache {
		t.Error("--no-cache not parsed")
	}
}

func TestPrintHelpListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "kiln",
		Summary: "warm task daemon",
		Subcommands: []*Command{
			{Name: "run", Summary: "run a task"},
			{Name: "daemon", Summary: "manage the daemon"},
		},
	}

	var output strings.Builder
	root.PrintHelp(&output)
	help := output.String()
	for _, want := range []string{"run", "daemon", "warm task daemon"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"run", "run", 0},
		{"run", "runs", 1},
		{"status", "staus", 1},
		{"stop", "start", 3},
	}
	for _, testCase := range cases {
		if got := levenshtein(testCase.a, testCase.b); got != testCase.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", testCase.a, testCase.b, got, testCase.want)
		}
	}
}
