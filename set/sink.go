// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package set

import "github.com/tomtom215/replicate/item"

// StructuredSink is the Pulse-shaped transmit sink variant (§4.3, §9
// "Transmit sinks as duck-typed callables OR Pulses"): it receives raw
// mutation events rather than pre-serialized payloads, so it can coalesce
// them before emitting anything downstream.
type StructuredSink interface {
	Queue(eventName string, it *item.Item, change *item.Change) error
}

// StringSinkFunc is the plain payload-function sink variant: it receives
// one already-serialized wire payload per event.
type StringSinkFunc func(payload string) error

// Sink is the two-variant sum type §9 calls for. Exactly one of str or
// structured is set; NewStringSink/NewStructuredSink enforce that.
type Sink struct {
	str        StringSinkFunc
	structured StructuredSink
}

// NewStringSink wraps a payload-function as a Sink.
func NewStringSink(fn StringSinkFunc) Sink { return Sink{str: fn} }

// NewStructuredSink wraps a Pulse-like structured sink as a Sink.
func NewStructuredSink(s StructuredSink) Sink { return Sink{structured: s} }

func (s Sink) isZero() bool { return s.str == nil && s.structured == nil }
