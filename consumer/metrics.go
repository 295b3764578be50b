// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package consumer

// Metrics receives the Consumer engine's observability events. A nil
// Metrics in Config falls back to a no-op implementation; internal/rmetrics
// supplies the prometheus-backed one wired by cmd/replicatord.
type Metrics interface {
	// StateTransition is called whenever the engine's runloop state
	// changes between StateInitial and StatePolling. Start's entry into
	// StateInitial is not reported.
	StateTransition(from, to State)

	// BackoffStep is called after a failed iteration advances the
	// backoff schedule, reporting the new step index.
	BackoffStep(step int)

	// ChecksumMismatch is called when a bundle's framing end_checksum
	// disagrees with the Set's checksum after applying the bundle
	// (§4.6.1's "emitted as a warning, not propagated").
	ChecksumMismatch()

	// ConfigurationError is called on each consecutive
	// ErrConfigurationError observed in INITIAL, per SPEC_FULL.md §4
	// decision 2.
	ConfigurationError(consecutive int)
}

type noopMetrics struct{}

func (noopMetrics) StateTransition(State, State) {}
func (noopMetrics) BackoffStep(int)              {}
func (noopMetrics) ChecksumMismatch()            {}
func (noopMetrics) ConfigurationError(int)       {}
