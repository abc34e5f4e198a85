// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sampleEnvelope struct {
	Type     string   `json:"type"`
	Selector string   `json:"selector,omitempty"`
	Args     []string `json:"args,omitempty"`
	NoCache  bool     `json:"no_cache,omitempty"`
}

func TestMarshalRoundTrip(t *testing.T) {
	original := sampleEnvelope{
		Type:     "run",
		Selector: "ai:flow/noop",
		Args:     []string{"--iterations", "50"},
		NoCache:  true,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Type != original.Type || decoded.Selector != original.Selector {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
	if len(decoded.Args) != 2 || decoded.Args[0] != "--iterations" {
		t.Errorf("args mismatch: got %v", decoded.Args)
	}
	if !decoded.NoCache {
		t.Error("no_cache flag lost in round trip")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{
		"zeta":  1,
		"alpha": "x",
		"mid":   []string{"a", "b"},
	}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("deterministic encoding produced different bytes for the same value")
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// A newer peer may send fields this build does not know about.
	data, err := Marshal(map[string]any{
		"type":         "run",
		"selector":     "ai:dev/check",
		"future_field": "ignored",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Selector != "ai:dev/check" {
		t.Errorf("selector = %q, want %q", decoded.Selector, "ai:dev/check")
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	if err := NewEncoder(&buffer).Encode(sampleEnvelope{Type: "ping"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded sampleEnvelope
	if err := NewDecoder(&buffer).Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != "ping" {
		t.Errorf("type = %q, want %q", decoded.Type, "ping")
	}
}

func TestDefaultMapType(t *testing.T) {
	data, err := Marshal(map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if asMap["key"] != "value" {
		t.Errorf("key = %v, want %q", asMap["key"], "value")
	}
}
