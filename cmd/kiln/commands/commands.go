// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete Kiln CLI command tree.
package commands

import (
	"fmt"

	"github.com/kilnworks/kiln/lib/cli"
	"github.com/kilnworks/kiln/lib/config"
	"github.com/kilnworks/kiln/lib/version"
)

// Root builds and returns the complete Kiln CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "kiln",
		Description: `Kiln: a warm runner for project tasks.

Discovers compilable task files under .ai/tasks, builds them through a
content-addressed cache, and executes them either directly or through a
persistent daemon that keeps the toolchain warm.`,
		Subcommands: []*cli.Command{
			runCommand(),
			listCommand(),
			daemonCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("kiln %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Run a task by name",
				Command:     "kiln run noop",
			},
			{
				Description: "Run a task through the daemon with arguments",
				Command:     "kiln run --daemon dev-check -- --fix src/",
			},
			{
				Description: "List discovered tasks",
				Command:     "kiln list",
			},
			{
				Description: "Start the task daemon",
				Command:     "kiln daemon start",
			},
		},
	}
}

// loadConfig resolves the effective configuration for a command
// invocation: the --config path (or KILN_CONFIG) merged over defaults.
func loadConfig(path string) (*config.Config, error) {
	configuration, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return configuration, nil
}

// socketPath resolves the effective daemon socket: the --socket flag
// wins, then KILN_SOCKET, then the runtime directory default.
func socketPath(configuration *config.Config, override string) string {
	if override != "" {
		return override
	}
	return configuration.SocketPath()
}
