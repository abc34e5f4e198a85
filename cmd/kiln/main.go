// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/kilnworks/kiln/cmd/kiln/commands"
	"github.com/kilnworks/kiln/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that already printed their output (like run, which
		// streams the task's stdout/stderr) return an error carrying
		// the desired exit code. Don't print a redundant "error:" line
		// for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
