// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package consumer

import "errors"

// Sentinel errors surfaced by the Consumer engine (§7).
var (
	// ErrAlreadyRunning is returned by Start when the engine is already
	// running.
	ErrAlreadyRunning = errors.New("consumer: already running")

	// ErrNotRunning is returned by Stop/Resync when the engine is not
	// running.
	ErrNotRunning = errors.New("consumer: not running")

	// ErrConfigurationError marks a producer/consumer class-name or
	// cadence-tag mismatch. Per SPEC_FULL.md §4 decision 2, this stays on
	// the shared retry-with-backoff path rather than escalating to a
	// fatal state; internal/rmetrics counts consecutive occurrences so an
	// operator can alert externally.
	ErrConfigurationError = errors.New("consumer: configuration error")

	// ErrTransport marks any failure of Datastore.Get or of
	// materializing a snapshot from its result.
	ErrTransport = errors.New("consumer: transport error")
)
