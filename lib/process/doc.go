// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers and the process
// liveness capability. Fatal centralizes the one legitimate raw stderr
// write that exists before the structured logger is initialized; Alive
// is the single production implementation of the pid liveness probe
// that daemon start/stop idempotence relies on.
package process
