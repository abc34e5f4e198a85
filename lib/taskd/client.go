// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package taskd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// dialTimeout bounds connection establishment. The daemon is local, so
// anything slower than this is a dead socket, not a slow network.
const dialTimeout = 2 * time.Second

// Client speaks the daemon protocol over a fresh connection per
// request.
type Client struct {
	// SocketPath is the daemon's Unix socket.
	SocketPath string

	// Encoding selects the wire format for requests. Responses are
	// decoded by sentinel inspection regardless.
	Encoding Encoding
}

// Do sends one request and reads the full response. The write side is
// half-closed after the request so the server sees EOF and knows the
// body is complete.
func (c *Client) Do(request Request) (Response, error) {
	payload, err := EncodeRequest(request, c.Encoding)
	if err != nil {
		return Response{}, fmt.Errorf("encoding request: %w", err)
	}

	connection, err := net.DialTimeout("unix", c.SocketPath, dialTimeout)
	if err != nil {
		return Response{}, fmt.Errorf("connecting to %s: %w", c.SocketPath, err)
	}
	defer connection.Close()

	if _, err := connection.Write(payload); err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}
	if err := connection.(*net.UnixConn).CloseWrite(); err != nil {
		return Response{}, fmt.Errorf("half-closing connection: %w", err)
	}

	body, err := io.ReadAll(connection)
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	response, err := DecodeResponse(body)
	if err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return response, nil
}

// Ping reports whether a daemon is answering on the socket.
func (c *Client) Ping() bool {
	response, err := c.Do(PingRequest{})
	return err == nil && response.OK
}

// IsConnectionFailure reports whether err means no daemon is listening
// (socket file absent or nothing accepting on it), as opposed to a
// protocol or I/O failure on an established connection.
func IsConnectionFailure(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, os.ErrNotExist)
}
