// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskd implements the task daemon: a persistent local process
// that serves Ping / Stop / Run requests over a Unix domain socket so
// repeated task invocations skip process cold start and recompilation.
//
// Requests and responses travel in one of two interchangeable wire
// encodings. The compact binary encoding is a single 0xFF sentinel byte
// followed by CBOR; the text encoding is plain JSON. A JSON payload can
// never begin with 0xFF, so the decoder routes on the first byte alone
// and clients of one build can talk to a daemon of another without a
// version handshake.
package taskd

import (
	"encoding/json"
	"fmt"

	"github.com/kilnworks/kiln/lib/codec"
)

// binarySentinel prefixes every binary-encoded payload. JSON payloads
// start with whitespace, '{', '[', '"', a digit, '-', 't', 'f' or 'n',
// none of which is 0xFF.
const binarySentinel = 0xFF

// SuggestedTaskEnv carries an advisory task id set by an outer tool
// (an agent harness, wrapper script). The client forwards it on Run
// requests; the daemon logs when the resolved task differs from it.
const SuggestedTaskEnv = "KILN_SUGGESTED_TASK"

// Encoding selects the wire format for an outgoing payload. Decoding
// is always encoding-agnostic.
type Encoding int

const (
	// Text is JSON with an explicit type field and no sentinel.
	Text Encoding = iota
	// Binary is the 0xFF sentinel followed by CBOR.
	Binary
)

// Request is the closed set of messages a client may send. The three
// variants are PingRequest, StopRequest and RunRequest; the server's
// dispatch switch is exhaustive over them.
type Request interface {
	requestType() string
}

// PingRequest probes daemon liveness. No payload.
type PingRequest struct{}

func (PingRequest) requestType() string { return "ping" }

// StopRequest asks the daemon to shut down after acknowledging. No
// payload.
type StopRequest struct{}

func (StopRequest) requestType() string { return "stop" }

// RunRequest asks the daemon to resolve and execute one task.
type RunRequest struct {
	// ProjectRoot is the directory whose .ai/tasks tree holds the task.
	ProjectRoot string `json:"project_root"`

	// Selector names the task (full id, path selector, bare name, or
	// a normalized variant of any of those).
	Selector string `json:"selector"`

	// Args are passed to the task binary verbatim.
	Args []string `json:"args,omitempty"`

	// NoCache bypasses the build cache and runs the task through the
	// toolchain's interpreted run mode.
	NoCache bool `json:"no_cache,omitempty"`

	// CaptureOutput is accepted for schema compatibility. The daemon
	// always captures: its own stdio goes nowhere useful, so the
	// response is the only channel back to the caller. Direct (non
	// daemon) runs honor the equivalent CLI flag locally.
	CaptureOutput bool `json:"capture_output,omitempty"`

	// IncludeTimings asks the server to attach a Timings breakdown.
	IncludeTimings bool `json:"include_timings,omitempty"`

	// SuggestedTask is an advisory task id from the environment; it
	// never changes resolution, only logging.
	SuggestedTask string `json:"suggested_task,omitempty"`

	// OverrideReason explains why the caller diverged from the
	// suggested task, when it did.
	OverrideReason string `json:"override_reason,omitempty"`
}

func (RunRequest) requestType() string { return "run" }

// Response is the single reply shape for every request variant.
type Response struct {
	OK       bool     `json:"ok"`
	Message  string   `json:"message"`
	ExitCode int32    `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
	Timings  *Timings `json:"timings,omitempty"`
}

// Timings is the per-request breakdown attached when a RunRequest sets
// IncludeTimings. Durations are microseconds.
type Timings struct {
	ResolveSelectorUS uint64 `json:"resolve_selector_us"`
	RunTaskUS         uint64 `json:"run_task_us"`
	TotalUS           uint64 `json:"total_us"`
	UsedFastSelector  bool   `json:"used_fast_selector"`
	UsedCache         bool   `json:"used_cache"`
}

// requestEnvelope is the on-wire request shape: an explicit type tag
// plus the run fields inlined. Ping and stop carry the tag alone.
type requestEnvelope struct {
	Type string `json:"type"`
	RunRequest
}

// EncodeRequest serializes a request in the chosen encoding.
func EncodeRequest(request Request, encoding Encoding) ([]byte, error) {
	envelope := requestEnvelope{Type: request.requestType()}
	if run, ok := request.(RunRequest); ok {
		envelope.RunRequest = run
	}
	return encodePayload(envelope, encoding)
}

// DecodeRequest deserializes a request payload, routing on the first
// byte, and reports which encoding carried it so the response can
// answer in kind.
func DecodeRequest(payload []byte) (Request, Encoding, error) {
	var envelope requestEnvelope
	encoding, err := decodePayload(payload, &envelope)
	if err != nil {
		return nil, encoding, err
	}
	switch envelope.Type {
	case "ping":
		return PingRequest{}, encoding, nil
	case "stop":
		return StopRequest{}, encoding, nil
	case "run":
		return envelope.RunRequest, encoding, nil
	default:
		return nil, encoding, fmt.Errorf("unknown request type %q", envelope.Type)
	}
}

// EncodeResponse serializes a response in the chosen encoding.
func EncodeResponse(response Response, encoding Encoding) ([]byte, error) {
	return encodePayload(response, encoding)
}

// DecodeResponse deserializes a response payload, routing on the first
// byte.
func DecodeResponse(payload []byte) (Response, error) {
	var response Response
	if _, err := decodePayload(payload, &response); err != nil {
		return Response{}, err
	}
	return response, nil
}

func encodePayload(value any, encoding Encoding) ([]byte, error) {
	switch encoding {
	case Binary:
		body, err := codec.Marshal(value)
		if err != nil {
			return nil, err
		}
		return append([]byte{binarySentinel}, body...), nil
	case Text:
		return json.Marshal(value)
	default:
		return nil, fmt.Errorf("unknown encoding %d", encoding)
	}
}

func decodePayload(payload []byte, value any) (Encoding, error) {
	if len(payload) == 0 {
		return Text, fmt.Errorf("empty payload")
	}
	if payload[0] == binarySentinel {
		if err := codec.Unmarshal(payload[1:], value); err != nil {
			return Binary, fmt.Errorf("decoding binary payload: %w", err)
		}
		return Binary, nil
	}
	if err := json.Unmarshal(payload, value); err != nil {
		return Text, fmt.Errorf("decoding text payload: %w", err)
	}
	return Text, nil
}
