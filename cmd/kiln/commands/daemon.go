// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kilnworks/kiln/lib/cli"
	"github.com/kilnworks/kiln/lib/taskd"
)

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Summary: "Manage the task daemon",
		Description: `Manage the task daemon.

The daemon keeps toolchain version probes and build artifacts warm
across invocations. It listens on a Unix socket under the runtime
directory and serves one request at a time.`,
		Subcommands: []*cli.Command{
			daemonStartCommand(),
			daemonStopCommand(),
			daemonStatusCommand(),
			daemonServeCommand(),
		},
	}
}

func daemonStartCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "start",
		Summary: "Start the daemon if it is not already running",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("start", pflag.ContinueOnError)
			set.StringVar(&configPath, "config", "", "path to config file")
			return set
		},
		Run: func(args []string) error {
			configuration, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "daemon/start")
			return taskd.Start(configuration, configPath, logger)
		},
	}
}

func daemonStopCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "stop",
		Summary: "Stop the daemon (no-op when it is not running)",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("stop", pflag.ContinueOnError)
			set.StringVar(&configPath, "config", "", "path to config file")
			return set
		},
		Run: func(args []string) error {
			configuration, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "daemon/stop")
			alreadyStopped, err := taskd.Stop(configuration, logger)
			if err != nil {
				return err
			}
			if alreadyStopped {
				fmt.Println("kiln daemon already stopped")
			} else {
				fmt.Println("kiln daemon stopped")
			}
			return nil
		},
	}
}

func daemonStatusCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "status",
		Summary: "Report whether the daemon is running",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("status", pflag.ContinueOnError)
			set.StringVar(&configPath, "config", "", "path to config file")
			return set
		},
		Run: func(args []string) error {
			configuration, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if taskd.Running(configuration) {
				fmt.Printf("kiln daemon running on %s\n", configuration.SocketPath())
				return nil
			}
			fmt.Println("kiln daemon stopped")
			return &cli.ExitError{Code: 1}
		},
	}
}

func daemonServeCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "serve",
		Summary: "Run the daemon in the foreground (used by 'daemon start')",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			set.StringVar(&configPath, "config", "", "path to config file")
			return set
		},
		Run: func(args []string) error {
			configuration, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger().With("command", "daemon/serve")
			return taskd.NewServer(configuration, logger).Serve()
		},
	}
}
