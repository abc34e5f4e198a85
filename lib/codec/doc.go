// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Kiln's standard CBOR encoding configuration.
//
// Kiln uses two serialization formats on the daemon socket: JSON (the
// text encoding, also what CLI --json output emits) and CBOR (the
// compact binary encoding). This package provides the shared CBOR
// encoding and decoding modes so that every Kiln package encodes
// identically without duplicating configuration. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items.
//
// Wire protocol types carry `json` struct tags only: fxamacker/cbor v2
// reads `json` tags as fallback when `cbor` tags are absent, so a
// single tag controls field naming and omitempty for both formats.
package codec
