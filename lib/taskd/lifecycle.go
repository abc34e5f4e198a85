// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package taskd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kilnworks/kiln/lib/clock"
	"github.com/kilnworks/kiln/lib/config"
	"github.com/kilnworks/kiln/lib/process"
)

// readinessPollInterval is how often Start re-pings a freshly spawned
// daemon while waiting for it to bind.
const readinessPollInterval = 100 * time.Millisecond

// Start ensures a daemon is running on the configured socket. If one
// already answers a ping this is a no-op; otherwise the current
// executable is respawned detached with the serve entry point and
// polled until it answers or the configured timeout elapses.
// configPath, when non-empty, is forwarded to the child so it resolves
// the same configuration the caller did.
func Start(configuration *config.Config, configPath string, logger *slog.Logger) error {
	return start(configuration, configPath, logger, clock.Real())
}

func start(configuration *config.Config, configPath string, logger *slog.Logger, clk clock.Clock) error {
	client := &Client{SocketPath: configuration.SocketPath(), Encoding: Binary}
	if client.Ping() {
		logger.Info("task daemon already running", "socket", client.SocketPath)
		return nil
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own executable: %w", err)
	}

	command := exec.Command(executable, serveArgs(configPath)...)
	command.Stdin = nil
	command.Stdout = nil
	command.Stderr = nil
	// New session: the daemon must survive the terminal and the
	// spawning process.
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := command.Start(); err != nil {
		return fmt.Errorf("spawning task daemon: %w", err)
	}
	// The child is its own session leader; don't leave a zombie entry
	// around for a process we never wait on.
	if err := command.Process.Release(); err != nil {
		return fmt.Errorf("releasing daemon process: %w", err)
	}

	if awaitReady(client, clk, configuration.StartTimeout()) {
		logger.Info("task daemon started", "socket", client.SocketPath)
		return nil
	}
	return fmt.Errorf("task daemon did not answer on %s within %s",
		client.SocketPath, configuration.StartTimeout())
}

// serveArgs builds the argument vector for the spawned serve process.
// The child resolves configuration on its own, so an explicit config
// path has to travel with it; KILN_CONFIG and KILN_SOCKET it inherits
// through the environment.
func serveArgs(configPath string) []string {
	args := []string{"daemon", "serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

// awaitReady polls the socket until a ping succeeds or the timeout
// elapses.
func awaitReady(client *Client, clk clock.Clock, timeout time.Duration) bool {
	expired := clk.After(timeout)
	for {
		if client.Ping() {
			return true
		}
		select {
		case <-expired:
			return false
		case <-clk.After(readinessPollInterval):
		}
	}
}

// Stop shuts down the daemon if one is running. A missing socket or a
// refused connection means the daemon is already gone: Stop cleans up
// leftover socket and PID files and reports alreadyStopped rather than
// erroring, so stop is idempotent.
func Stop(configuration *config.Config, logger *slog.Logger) (alreadyStopped bool, err error) {
	socketPath := configuration.SocketPath()
	client := &Client{SocketPath: socketPath, Encoding: Binary}

	response, err := client.Do(StopRequest{})
	if err != nil {
		if !IsConnectionFailure(err) {
			return false, err
		}
		if pid, ok := readPIDFile(configuration.PIDPath()); ok && process.Alive(pid) {
			logger.Warn("daemon process alive but not answering; removing stale runtime files",
				"pid", pid)
		}
		cleanupRuntimeFiles(configuration)
		return true, nil
	}
	if !response.OK {
		return false, fmt.Errorf("daemon refused to stop: %s", response.Message)
	}
	// The daemon removes its own files on exit; sweep anyway in case
	// it was killed between the acknowledgement and its cleanup.
	cleanupRuntimeFiles(configuration)
	return false, nil
}

// Running reports whether a daemon answers a ping on the configured
// socket. This is the status check: socket presence alone proves
// nothing, only a successful ping does.
func Running(configuration *config.Config) bool {
	client := &Client{SocketPath: configuration.SocketPath(), Encoding: Binary}
	return client.Ping()
}

func cleanupRuntimeFiles(configuration *config.Config) {
	os.Remove(configuration.SocketPath())
	os.Remove(configuration.PIDPath())
}

func readPIDFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
