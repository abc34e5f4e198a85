// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package taskd

import (
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kilnworks/kiln/lib/clock"
	"github.com/kilnworks/kiln/lib/config"
	"github.com/kilnworks/kiln/lib/testutil"
)

// rawExchange writes arbitrary bytes to the daemon socket and returns
// whatever comes back, bypassing the request encoder.
func rawExchange(socketPath string, payload []byte) ([]byte, error) {
	connection, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	defer connection.Close()
	if _, err := connection.Write(payload); err != nil {
		return nil, err
	}
	if err := connection.(*net.UnixConn).CloseWrite(); err != nil {
		return nil, err
	}
	return io.ReadAll(connection)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStopWithoutDaemonIsIdempotent(t *testing.T) {
	runtimeDir := testutil.SocketDir(t)
	t.Setenv("KILN_SOCKET", "")

	configuration := config.Default()
	configuration.Paths.RuntimeDir = runtimeDir

	alreadyStopped, err := Stop(configuration, discardLogger())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !alreadyStopped {
		t.Error("Stop with no daemon did not report already stopped")
	}
}

func TestStopCleansUpStaleRuntimeFiles(t *testing.T) {
	runtimeDir := testutil.SocketDir(t)
	t.Setenv("KILN_SOCKET", "")

	configuration := config.Default()
	configuration.Paths.RuntimeDir = runtimeDir

	// A leftover socket file nothing is accepting on, plus a PID file
	// naming a long-dead process.
	testutil.WriteFile(t, runtimeDir, "kiln-taskd.pid", "999999999\n")
	stale := configuration.SocketPath()
	listener, err := net.Listen("unix", stale)
	if err != nil {
		t.Fatalf("creating stale socket: %v", err)
	}
	listener.Close() // removes nothing: Close unlinks, so recreate the file
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatalf("recreating stale socket file: %v", err)
	}

	alreadyStopped, err := Stop(configuration, discardLogger())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !alreadyStopped {
		t.Error("stale files did not read as already stopped")
	}
	for _, path := range []string{configuration.SocketPath(), configuration.PIDPath()} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s not cleaned up (err=%v)", path, err)
		}
	}
}

func TestRunningFalseWithoutDaemon(t *testing.T) {
	runtimeDir := testutil.SocketDir(t)
	t.Setenv("KILN_SOCKET", "")

	configuration := config.Default()
	configuration.Paths.RuntimeDir = runtimeDir
	if Running(configuration) {
		t.Error("Running reported true with no daemon")
	}
}

func TestIsConnectionFailure(t *testing.T) {
	runtimeDir := testutil.SocketDir(t)
	client := &Client{SocketPath: runtimeDir + "/absent.sock", Encoding: Binary}
	_, err := client.Do(PingRequest{})
	if err == nil {
		t.Fatal("ping on absent socket succeeded")
	}
	if !IsConnectionFailure(err) {
		t.Errorf("IsConnectionFailure(%v) = false", err)
	}
}

func TestServeArgsForwardConfigPath(t *testing.T) {
	if got, want := serveArgs(""), []string{"daemon", "serve"}; !reflect.DeepEqual(got, want) {
		t.Errorf("serveArgs(%q) = %v, want %v", "", got, want)
	}
	got := serveArgs("/etc/kiln/config.yaml")
	want := []string{"daemon", "serve", "--config", "/etc/kiln/config.yaml"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("serveArgs with path = %v, want %v", got, want)
	}
}

func TestStartIsNoOpWhenDaemonAnswers(t *testing.T) {
	client, configuration := startServer(t, &scriptToolchain{})

	// The fixture binds a non-default runtime dir, so this also
	// checks that Start dials the configured socket rather than the
	// default one.
	if err := Start(configuration, "", discardLogger()); err != nil {
		t.Fatalf("Start with a live daemon: %v", err)
	}
	if !client.Ping() {
		t.Error("daemon stopped answering after Start")
	}
}

func TestAwaitReadyImmediateWhenListening(t *testing.T) {
	client, _ := startServer(t, &scriptToolchain{})

	// A fake clock that never advances: readiness must not depend on
	// wall time when the daemon already answers.
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if !awaitReady(client, fake, time.Second) {
		t.Fatal("awaitReady = false with a live daemon")
	}
}

func TestAwaitReadyGivesUpAtDeadline(t *testing.T) {
	runtimeDir := testutil.SocketDir(t)
	client := &Client{SocketPath: filepath.Join(runtimeDir, "absent.sock"), Encoding: Binary}
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	done := make(chan bool, 1)
	go func() { done <- awaitReady(client, fake, 3*time.Second) }()

	for i := 0; i < 10000; i++ {
		select {
		case ready := <-done:
			if ready {
				t.Fatal("awaitReady = true with nothing listening")
			}
			return
		default:
			fake.Advance(readinessPollInterval)
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("awaitReady still polling long after the deadline")
}
