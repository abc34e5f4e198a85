// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package buildcache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ProjectRootEnv is exported to every task child process so a task can
// locate the project it was invoked for regardless of its own working
// directory.
const ProjectRootEnv = "KILN_TASK_PROJECT_ROOT"

// noFrozenEnv, when set, drops the frozen-dependency flag from build
// and run invocations. Escape hatch for workspaces whose lockfile is
// deliberately out of date.
const noFrozenEnv = "KILN_NO_FROZEN"

// Result is the captured outcome of a toolchain run or an artifact
// execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Toolchain is the seam to the external build toolchain. The daemon
// and the build cache call through this interface; tests substitute a
// fake that fabricates build output without spawning processes.
type Toolchain interface {
	// Version returns the toolchain's version string. Used only as a
	// cache-invalidation signal.
	Version() (string, error)

	// Build compiles the entry file (relative to workspaceDir) with a
	// release profile. A non-zero toolchain exit returns *BuildError
	// carrying the captured stderr.
	Build(workspaceDir, entryRelative string) error

	// Run executes the entry file through the toolchain's run mode,
	// used for cache bypass and workspace-less tasks. When capture is
	// true, stdout/stderr are returned in the Result; otherwise they
	// are inherited from the caller.
	Run(workspaceDir, entryRelative, projectRoot string, args []string, capture bool) (Result, error)
}

// BuildError reports a toolchain build that exited non-zero. No
// partial artifact is ever promoted after one.
type BuildError struct {
	EntryPath string
	Status    int
	Stderr    string
}

func (e *BuildError) Error() string {
	summary := strings.TrimSpace(e.Stderr)
	if summary == "" {
		return fmt.Sprintf("build of %s failed with status %d", e.EntryPath, e.Status)
	}
	return fmt.Sprintf("build of %s failed with status %d:\n%s", e.EntryPath, e.Status, summary)
}

// Moon invokes the MoonBit toolchain as a subprocess.
type Moon struct {
	// Binary is the executable name or path, normally "moon".
	Binary string
}

// Version runs `moon --version` and returns the trimmed stdout,
// falling back to stderr when stdout is empty (some toolchains print
// versions there).
func (m Moon) Version() (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.Command(m.Binary, "--version")
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return "", fmt.Errorf("probing %s version: %w", m.Binary, err)
	}
	version := strings.TrimSpace(stdout.String())
	if version == "" {
		version = strings.TrimSpace(stderr.String())
	}
	if version == "" {
		return "", fmt.Errorf("%s --version produced no output", m.Binary)
	}
	return version, nil
}

// Build runs `moon build --target native --release [--frozen] <entry>`
// inside the workspace.
func (m Moon) Build(workspaceDir, entryRelative string) error {
	args := []string{"build", "--target", "native", "--release"}
	args = appendFrozen(args)
	args = append(args, entryRelative)

	var stderr bytes.Buffer
	command := exec.Command(m.Binary, args...)
	command.Dir = workspaceDir
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return &BuildError{
				EntryPath: entryRelative,
				Status:    exit.ExitCode(),
				Stderr:    stderr.String(),
			}
		}
		return fmt.Errorf("spawning %s build: %w", m.Binary, err)
	}
	return nil
}

// Run executes `moon run --target native [--frozen] <entry> [args...]`
// inside the workspace with the project root exported to the child.
func (m Moon) Run(workspaceDir, entryRelative, projectRoot string, args []string, capture bool) (Result, error) {
	invocation := []string{"run", "--target", "native"}
	invocation = appendFrozen(invocation)
	invocation = append(invocation, entryRelative)
	invocation = append(invocation, args...)

	command := exec.Command(m.Binary, invocation...)
	command.Dir = workspaceDir
	command.Env = append(os.Environ(), ProjectRootEnv+"="+projectRoot)
	return runCommand(command, capture, fmt.Sprintf("%s run %s", m.Binary, entryRelative))
}

// runCommand executes a prepared command in capture or inherit mode
// and maps its exit status into a Result. A failure to spawn at all is
// an error; a non-zero child exit is a Result.
func runCommand(command *exec.Cmd, capture bool, what string) (Result, error) {
	var stdout, stderr bytes.Buffer
	if capture {
		command.Stdout = &stdout
		command.Stderr = &stderr
	} else {
		command.Stdin = os.Stdin
		command.Stdout = os.Stdout
		command.Stderr = os.Stderr
	}

	err := command.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			result.ExitCode = exit.ExitCode()
			return result, nil
		}
		return Result{}, fmt.Errorf("spawning %s: %w", what, err)
	}
	return result, nil
}

func appendFrozen(args []string) []string {
	if os.Getenv(noFrozenEnv) == "" {
		return append(args, "--frozen")
	}
	return args
}
