// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package backoff implements the Consumer engine's concrete retry
// schedule (§4.7): a fixed sequence of durations, a pointer that
// advances on failure and saturates at the final step, and a blocking
// Interval that can be cancelled via context.
package backoff

import (
	"context"
	"time"
)

// DefaultSchedule is the default schedule named in §4.6:
// {1,2,4,8,16,32,60} seconds.
func DefaultSchedule() []time.Duration {
	return []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
	}
}

// Backoff walks a fixed schedule of delays, advancing one step per
// failure and clamping at the last step.
type Backoff struct {
	schedule []time.Duration
	step     int
}

// New constructs a Backoff over schedule. An empty schedule is legal and
// always yields a zero delay (useful for tests, per §4.6's "explicit
// all-zero schedule for testing").
func New(schedule []time.Duration) *Backoff {
	return &Backoff{schedule: append([]time.Duration(nil), schedule...)}
}

// Reset moves the step pointer back to index 0.
func (b *Backoff) Reset() { b.step = 0 }

// CurrentStep returns the current step index.
func (b *Backoff) CurrentStep() int { return b.step }

// CurrentDelay returns the duration Interval would currently wait.
func (b *Backoff) CurrentDelay() time.Duration {
	if len(b.schedule) == 0 {
		return 0
	}
	idx := b.step
	if idx >= len(b.schedule) {
		idx = len(b.schedule) - 1
	}
	return b.schedule[idx]
}

// MaxDelay returns the final schedule step's duration, or 0 for an empty
// schedule.
func (b *Backoff) MaxDelay() time.Duration {
	if len(b.schedule) == 0 {
		return 0
	}
	return b.schedule[len(b.schedule)-1]
}

// Interval waits for the current step's duration (returning immediately
// for zero), then advances the pointer by one step, clamped to the
// final index. It returns ctx.Err() if ctx is cancelled first.
func (b *Backoff) Interval(ctx context.Context) error {
	delay := b.CurrentDelay()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.step < len(b.schedule)-1 {
		b.step++
	} else if len(b.schedule) > 0 {
		b.step = len(b.schedule) - 1
	}
	return nil
}
