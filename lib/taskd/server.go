// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package taskd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kilnworks/kiln/lib/buildcache"
	"github.com/kilnworks/kiln/lib/clock"
	"github.com/kilnworks/kiln/lib/config"
	"github.com/kilnworks/kiln/lib/task"
)

// maxRequestBytes bounds a single request payload. Requests are tiny
// (a selector plus args); anything past this is a protocol error, not
// a legitimate client.
const maxRequestBytes = 1 << 20

// Server is the task daemon. It owns one Unix socket and handles
// connections strictly sequentially: tasks write to shared build
// output directories, so concurrent builds of the same workspace would
// race. One request, one response, one connection at a time.
type Server struct {
	// Config supplies the socket path, PID file path and cache root.
	Config *config.Config

	// Cache builds and memoizes task binaries.
	Cache *buildcache.Cache

	// Toolchain runs tasks directly when the cache is bypassed or the
	// task has no enclosing workspace.
	Toolchain buildcache.Toolchain

	// Logger receives per-request structured logs.
	Logger *slog.Logger

	// Clock supplies timestamps for the Timings breakdown.
	Clock clock.Clock
}

// NewServer wires a production server from configuration: the Moon
// toolchain, a file-backed version store under the cache root, and the
// real clock.
func NewServer(configuration *config.Config, logger *slog.Logger) *Server {
	toolchain := buildcache.Moon{Binary: configuration.Toolchain.Binary}
	return &Server{
		Config: configuration,
		Cache: &buildcache.Cache{
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
		},
		Toolchain: toolchain,
		Logger:    logger,
		Clock:     clock.Real(),
	}
}

// Serve binds the daemon socket and accepts connections until a Stop
// request arrives. It removes a stale socket file before binding,
// writes the PID file after, and removes both on exit. A request that
// fails produces a failure response; it never terminates the loop.
func (s *Server) Serve() error {
	socketPath := s.Config.SocketPath()
	pidPath := s.Config.PIDPath()

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("creating runtime directory: %w", err)
	}
	if err := os.MkdirAll(s.Cache.Root, 0o755); err != nil {
		return fmt.Errorf("creating cache root: %w", err)
	}

	// Remove a stale socket from a previous run. A live daemon would
	// have answered the start-time ping, so anything here is leftover.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("binding %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	s.Logger.Info("task daemon listening", "socket", socketPath, "pid", os.Getpid())

	for {
		connection, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accepting connection: %w", err)
		}
		stop := s.handleConnection(connection)
		if stop {
			s.Logger.Info("task daemon stopping")
			return nil
		}
	}
}

// handleConnection processes one request/response exchange. The client
// half-closes after writing, so the request body is everything up to
// EOF. The response is written in the encoding the request arrived in,
// and the stop acknowledgement is always delivered before the caller
// exits the accept loop.
func (s *Server) handleConnection(connection net.Conn) (stop bool) {
	defer connection.Close()

	payload, err := io.ReadAll(io.LimitReader(connection, maxRequestBytes+1))
	if err != nil {
		s.Logger.Error("reading request", "error", err)
		return false
	}
	if len(payload) > maxRequestBytes {
		s.respond(connection, Text, failure("request exceeds %d bytes", maxRequestBytes))
		return false
	}

	request, encoding, err := DecodeRequest(payload)
	if err != nil {
		s.Logger.Error("decoding request", "error", err)
		s.respond(connection, encoding, failure("bad request: %v", err))
		return false
	}

	switch request := request.(type) {
	case PingRequest:
		s.respond(connection, encoding, Response{OK: true, Message: "pong"})
		return false
	case StopRequest:
		s.respond(connection, encoding, Response{OK: true, Message: "stopping"})
		return true
	case RunRequest:
		s.respond(connection, encoding, s.handleRun(request))
		return false
	default:
		s.respond(connection, encoding, failure("unhandled request variant %T", request))
		return false
	}
}

func (s *Server) respond(connection net.Conn, encoding Encoding, response Response) {
	payload, err := EncodeResponse(response, encoding)
	if err != nil {
		s.Logger.Error("encoding response", "error", err)
		return
	}
	if _, err := connection.Write(payload); err != nil {
		s.Logger.Error("writing response", "error", err)
	}
}

// handleRun resolves the selector and executes the task, converting
// every failure into a well-formed failure response.
func (s *Server) handleRun(request RunRequest) Response {
	started := s.Clock.Now()
	timings := &Timings{}

	resolved, response := s.resolve(request, timings)
	if response != nil {
		return *response
	}
	resolveDone := s.Clock.Now()
	timings.ResolveSelectorUS = uint64(resolveDone.Sub(started).Microseconds())

	s.Logger.Info("running task",
		"task", resolved.ID,
		"fast_selector", timings.UsedFastSelector,
		"no_cache", request.NoCache,
	)
	if request.SuggestedTask != "" && request.SuggestedTask != resolved.ID {
		s.Logger.Info("resolved task differs from suggestion",
			"suggested", request.SuggestedTask,
			"resolved", resolved.ID,
			"reason", request.OverrideReason,
		)
	}

	result := s.execute(request, *resolved, timings)
	finished := s.Clock.Now()
	timings.RunTaskUS = uint64(finished.Sub(resolveDone).Microseconds())
	timings.TotalUS = uint64(finished.Sub(started).Microseconds())
	if request.IncludeTimings {
		result.Timings = timings
	}
	return result
}

// resolve finds the task the selector names, trying the fast
// path-derived lookup before a full discovery walk. A nil *Response
// means success.
func (s *Server) resolve(request RunRequest, timings *Timings) (*task.Task, *Response) {
	if fast, err := task.ResolveFast(request.ProjectRoot, request.Selector); err == nil && fast != nil {
		timings.UsedFastSelector = true
		return fast, nil
	}

	tasks, err := task.Discover(request.ProjectRoot)
	if err != nil {
		response := failure("discovering tasks under %s: %v", request.ProjectRoot, err)
		return nil, &response
	}
	selected, err := task.Select(tasks, request.Selector)
	if err != nil {
		response := failure("%v", err)
		return nil, &response
	}
	if selected == nil {
		response := failure("no task matches selector %q", request.Selector)
		return nil, &response
	}
	return selected, nil
}

// execute runs the resolved task, through the build cache when
// possible and through the toolchain's run mode when the cache is
// bypassed or the task has no enclosing workspace. Output is always
// captured: the daemon's own stdio goes nowhere useful, so the
// response is the only channel back to the caller.
func (s *Server) execute(request RunRequest, resolved task.Task, timings *Timings) Response {
	if !request.NoCache {
		artifact, err := s.Cache.EnsureBuilt(resolved, false)
		switch {
		case err == nil:
			timings.UsedCache = !artifact.Rebuilt
			result, err := buildcache.RunArtifact(
				artifact.BinaryPath, request.ProjectRoot, request.Args, true)
			if err != nil {
				return failure("launching %s: %v", artifact.BinaryPath, err)
			}
			return resultResponse(resolved, result)
		case errors.Is(err, buildcache.ErrNoWorkspace):
			// Fall through to the toolchain's run mode.
		default:
			var buildErr *buildcache.BuildError
			if errors.As(err, &buildErr) {
				return Response{
					OK:       false,
					Message:  fmt.Sprintf("building %s failed with status %d", resolved.ID, buildErr.Status),
					ExitCode: int32(buildErr.Status),
					Stderr:   buildErr.Stderr,
				}
			}
			return failure("building %s: %v", resolved.ID, err)
		}
	}

	workspaceDir, entryRelative, err := buildcache.ResolveWorkspace(resolved)
	if errors.Is(err, buildcache.ErrNoWorkspace) {
		workspaceDir = filepath.Dir(resolved.Path)
		entryRelative = filepath.Base(resolved.Path)
	} else if err != nil {
		return failure("%v", err)
	}
	result, err := s.Toolchain.Run(
		workspaceDir, entryRelative, request.ProjectRoot, request.Args, true)
	if err != nil {
		return failure("running %s: %v", resolved.ID, err)
	}
	return resultResponse(resolved, result)
}

func resultResponse(resolved task.Task, result buildcache.Result) Response {
	response := Response{
		OK:       result.ExitCode == 0,
		ExitCode: int32(result.ExitCode),
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	if !response.OK {
		response.Message = fmt.Sprintf("%s exited with status %d", resolved.ID, result.ExitCode)
	}
	return response
}

func failure(format string, args ...any) Response {
	return Response{OK: false, Message: fmt.Sprintf(format, args...), ExitCode: 1}
}
