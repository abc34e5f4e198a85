// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/kilnworks/kiln/lib/buildcache"
	"github.com/kilnworks/kiln/lib/cli"
	"github.com/kilnworks/kiln/lib/clock"
	"github.com/kilnworks/kiln/lib/config"
	"github.com/kilnworks/kiln/lib/task"
	"github.com/kilnworks/kiln/lib/taskd"
)

// runFlags holds the parsed flag values for `kiln run`.
type runFlags struct {
	configPath    string
	socket        string
	projectRoot   string
	noCache       bool
	rebuild       bool
	captureOutput bool
	timings       bool
	useDaemon     bool
	stdin         bool
	textEncoding  bool
}

func runCommand() *cli.Command {
	flags := &runFlags{}
	return &cli.Command{
		Name:    "run",
		Summary: "Run a task by selector",
		Usage:   "kiln run [flags] <selector> [-- args...]",
		Description: `Run a task.

The selector may be a full id (ai:flow/open), a path selector
(flow/open), a bare name (open), or a normalized variant of any of
those (dev_check and "dev check" both select dev-check). Arguments
after -- are passed to the task verbatim.

By default the task runs in this process. With --daemon the request is
sent to the task daemon instead (starting it if needed), which keeps
build caches warm across invocations. --timings implies --daemon: the
breakdown is measured server-side.`,
		Flags: func() *pflag.FlagSet {
			set := pflag.NewFlagSet("run", pflag.ContinueOnError)
			set.StringVar(&flags.configPath, "config", "", "path to config file")
			set.StringVar(&flags.socket, "socket", "", "daemon socket path override")
			set.StringVar(&flags.projectRoot, "root", "", "project root (default: working directory)")
			set.BoolVar(&flags.noCache, "no-cache", false, "bypass the build cache and use the toolchain's run mode")
			set.BoolVar(&flags.rebuild, "rebuild", false, "rebuild the artifact even on a cache hit (direct mode)")
			set.BoolVar(&flags.captureOutput, "capture-output", false, "capture the task's output and print it after it exits")
			set.BoolVar(&flags.timings, "timings", false, "print a per-request timing breakdown to stderr (implies --daemon)")
			set.BoolVar(&flags.useDaemon, "daemon", false, "run through the task daemon")
			set.BoolVar(&flags.stdin, "stdin", false, "batch mode: read 'selector [-- args...]' lines from stdin")
			set.BoolVar(&flags.textEncoding, "text", false, "use the text wire encoding when talking to the daemon")
			return set
		},
		Examples: []cli.Example{
			{Description: "Run a task directly", Command: "kiln run flow/open"},
			{Description: "Run through the daemon with timings", Command: "kiln run --timings noop"},
			{Description: "Warm several tasks from a file", Command: "kiln run --stdin < warmup.txt"},
		},
		Run: func(args []string) error { return runTask(flags, args) },
	}
}

func runTask(flags *runFlags, args []string) error {
	configuration, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	projectRoot := flags.projectRoot
	if projectRoot == "" {
		projectRoot, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
	}

	if flags.stdin {
		return runBatch(flags, configuration, projectRoot)
	}

	if len(args) == 0 {
		return fmt.Errorf("selector required\n\nRun 'kiln run --help' for usage.")
	}
	selector, taskArgs := args[0], args[1:]

	if flags.useDaemon || flags.timings {
		client, err := daemonClient(flags, configuration)
		if err != nil {
			return err
		}
		return runViaDaemon(client, buildRequest(flags, projectRoot, selector, taskArgs), flags.timings)
	}
	return runDirect(flags, configuration, projectRoot, selector, taskArgs)
}

// buildRequest assembles the daemon request for one selector. The
// advisory suggested-task id comes from the environment so wrapper
// tools can observe selector drift without changing resolution.
func buildRequest(flags *runFlags, projectRoot, selector string, args []string) taskd.RunRequest {
	return taskd.RunRequest{
		ProjectRoot:    projectRoot,
		Selector:       selector,
		Args:           args,
		NoCache:        flags.noCache,
		CaptureOutput:  true,
		IncludeTimings: flags.timings,
		SuggestedTask:  os.Getenv(taskd.SuggestedTaskEnv),
	}
}

// daemonClient returns a client for a running daemon, starting one if
// nothing answers on the socket.
func daemonClient(flags *runFlags, configuration *config.Config) (*taskd.Client, error) {
	encoding := taskd.Binary
	if flags.textEncoding {
		encoding = taskd.Text
	}
	client := &taskd.Client{
		SocketPath: socketPath(configuration, flags.socket),
		Encoding:   encoding,
	}
	if client.Ping() {
		return client, nil
	}
	if flags.socket != "" {
		// An explicit socket points at a daemon the caller manages;
		// don't spawn one on a path the default config won't find.
		return nil, fmt.Errorf("no daemon answering on %s", client.SocketPath)
	}
	logger := cli.NewCommandLogger().With("command", "run")
	if err := taskd.Start(configuration, flags.configPath, logger); err != nil {
		return nil, err
	}
	return client, nil
}

// runViaDaemon sends one request and surfaces the task's output and
// exit code as if it had run locally.
func runViaDaemon(client *taskd.Client, request taskd.RunRequest, showTimings bool) error {
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	printResponse(response, showTimings)
	if !response.OK {
		return &cli.ExitError{Code: exitCode(response)}
	}
	return nil
}

func printResponse(response taskd.Response, showTimings bool) {
	fmt.Fprint(os.Stdout, response.Stdout)
	fmt.Fprint(os.Stderr, response.Stderr)
	if !response.OK && response.Message != "" {
		fmt.Fprintf(os.Stderr, "kiln: %s\n", response.Message)
	}
	if showTimings && response.Timings != nil {
		t := response.Timings
		fmt.Fprintf(os.Stderr,
			"kiln: resolve %dµs (fast=%t), run %dµs (cached=%t), total %dµs\n",
			t.ResolveSelectorUS, t.UsedFastSelector, t.RunTaskUS, t.UsedCache, t.TotalUS)
	}
}

func exitCode(response taskd.Response) int {
	if response.ExitCode != 0 {
		return int(response.ExitCode)
	}
	return 1
}

// runBatch reads 'selector [-- args...]' lines from stdin and issues
// them sequentially through the daemon. Every line is attempted; the
// overall exit status is non-zero if any line failed.
func runBatch(flags *runFlags, configuration *config.Config, projectRoot string) error {
	lines, err := taskd.ReadBatch(os.Stdin)
	if err != nil {
		return err
	}
	client, err := daemonClient(flags, configuration)
	if err != nil {
		return err
	}

	failed := taskd.DoBatch(client, lines, func(line taskd.BatchLine) taskd.RunRequest {
		return buildRequest(flags, projectRoot, line.Selector, line.Args)
	}, func(line taskd.BatchLine, response taskd.Response, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "kiln: %s: %v\n", line.Selector, err)
			return
		}
		printResponse(response, flags.timings)
	})
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "kiln: %d of %d batch lines failed\n", failed, len(lines))
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// runDirect resolves and executes the task in this process, without
// the daemon. Output streams are inherited unless --capture-output is
// set, so task output reaches the terminal unbuffered.
func runDirect(flags *runFlags, configuration *config.Config, projectRoot, selector string, args []string) error {
	resolved, err := resolveSelector(projectRoot, selector)
	if err != nil {
		return err
	}

	toolchain := buildcache.Moon{Binary: configuration.Toolchain.Binary}

	if !flags.noCache {
		cache := newCache(configuration, toolchain)
		artifact, err := cache.EnsureBuilt(*resolved, flags.rebuild)
		if err == nil {
			result, err := buildcache.RunArtifact(
				artifact.BinaryPath, projectRoot, args, flags.captureOutput)
			if err != nil {
				return err
			}
			return finishDirect(flags, result)
		}
		if !errors.Is(err, buildcache.ErrNoWorkspace) {
			var buildErr *buildcache.BuildError
			if errors.As(err, &buildErr) {
				fmt.Fprint(os.Stderr, buildErr.Stderr)
				fmt.Fprintf(os.Stderr, "kiln: building %s failed with status %d\n",
					resolved.ID, buildErr.Status)
				return &cli.ExitError{Code: buildErr.Status}
			}
			return err
		}
	}

	workspaceDir, entryRelative, err := buildcache.ResolveWorkspace(*resolved)
	if errors.Is(err, buildcache.ErrNoWorkspace) {
		workspaceDir = filepath.Dir(resolved.Path)
		entryRelative = filepath.Base(resolved.Path)
	} else if err != nil {
		return err
	}
	result, err := toolchain.Run(workspaceDir, entryRelative, projectRoot, args, flags.captureOutput)
	if err != nil {
		return err
	}
	return finishDirect(flags, result)
}

func finishDirect(flags *runFlags, result buildcache.Result) error {
	if flags.captureOutput {
		fmt.Fprint(os.Stdout, result.Stdout)
		fmt.Fprint(os.Stderr, result.Stderr)
	}
	if result.ExitCode != 0 {
		return &cli.ExitError{Code: result.ExitCode}
	}
	return nil
}

func resolveSelector(projectRoot, selector string) (*task.Task, error) {
	if fast, err := task.ResolveFast(projectRoot, selector); err == nil && fast != nil {
		return fast, nil
	}
	tasks, err := task.Discover(projectRoot)
	if err != nil {
		return nil, err
	}
	resolved, err := task.Select(tasks, selector)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, fmt.Errorf("no task matches selector %q (try 'kiln list')", selector)
	}
	return resolved, nil
}

func newCache(configuration *config.Config, toolchain buildcache.Toolchain) *buildcache.Cache {
	return &buildcache.Cache{
		Root: configuration.Paths.CacheRoot,
		Keyer: &buildcache.Keyer{
			Toolchain: toolchain,
			Versions: buildcache.FileVersionStore{
				Path: filepath.Join(configuration.Paths.CacheRoot, buildcache.VersionFileName),
			},
			TTL:   configuration.VersionTTL(),
			Clock: clock.Real(),
		},
		Toolchain: toolchain,
	}
}
