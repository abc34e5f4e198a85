// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/kilnworks/kiln/lib/cli"
	"github.com/kilnworks/kiln/lib/task"
)

func listCommand() *cli.Command {
	var (
		projectRoot string
		asJSON      bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List discovered tasks",
		Usage:   "kiln list [flags]",
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("list", pflag.ContinueOnError)
			set.StringVar(&projectRoot, "root", "", "project root (default: working directory)")
			set.BoolVar(&asJSON, "json", false, "emit the task list as JSON")
			return set
		},
		Run: func(args []string) error {
			root := projectRoot
			if root == "" {
				var err error
				root, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("resolving working directory: %w", err)
				}
			}
			tasks, err := task.Discover(root)
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(tasks)
			}

			if len(tasks) == 0 {
				fmt.Printf("no tasks under %s\n", task.RootDir(root))
				return nil
			}
			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "ID\tTITLE\tTAGS\n")
			for _, t := range tasks {
				fmt.Fprintf(writer, "%s\t%s\t%s\n", t.ID, t.Title, strings.Join(t.Tags, ","))
			}
			return writer.Flush()
		},
	}
}
