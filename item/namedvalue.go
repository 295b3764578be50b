// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package item implements the observable object at the center of the
// replication model: NamedValue (a (name, value, timestamp) cell) and
// Item (an identified bundle of observed properties and named values
// with a deterministic checksum).
package item

import (
	"time"

	"github.com/tomtom215/replicate/wire"
)

// NamedValue is a (name, value, timestamp) cell with change notification.
// It is created on first Set and emits a change whenever (value, timestamp)
// differs from the previous tuple.
type NamedValue struct {
	name      string
	value     wire.Scalar
	timestamp time.Time
	hasValue  bool
}

// NewNamedValue constructs an empty, not-yet-set NamedValue.
func NewNamedValue(name string) *NamedValue {
	return &NamedValue{name: name}
}

// Name returns the NamedValue's name.
func (n *NamedValue) Name() string { return n.name }

// Value returns the current value. Before the first Set it is Absent.
func (n *NamedValue) Value() wire.Scalar {
	if !n.hasValue {
		return wire.Absent
	}
	return n.value
}

// Timestamp returns the current timestamp.
func (n *NamedValue) Timestamp() time.Time { return n.timestamp }

// NamedValueChange describes a value/timestamp transition.
type NamedValueChange struct {
	Name         string
	OldValue     wire.Scalar
	NewValue     wire.Scalar
	OldTimestamp time.Time
	NewTimestamp time.Time
}

// Set replaces value/timestamp. It reports whether a change occurred
// (value differs by Scalar equality, or timestamp differs by instant
// equality) and, if so, the NamedValueChange describing the transition.
// Out-of-order timestamps are accepted without complaint — the model
// only requires monotonicity by convention, not by enforcement.
func (n *NamedValue) Set(value wire.Scalar, timestamp time.Time) (NamedValueChange, bool) {
	oldValue := n.Value()
	oldTimestamp := n.timestamp
	if n.hasValue && oldValue.Equal(value) && oldTimestamp.Equal(timestamp) {
		return NamedValueChange{}, false
	}
	n.value = value
	n.timestamp = timestamp
	n.hasValue = true
	return NamedValueChange{
		Name:         n.name,
		OldValue:     oldValue,
		NewValue:     value,
		OldTimestamp: oldTimestamp,
		NewTimestamp: timestamp,
	}, true
}

// Snapshot renders the NamedValue's wire form.
func (n *NamedValue) Snapshot() wire.NamedValueSnapshot {
	return wire.NamedValueSnapshot{
		Name:      n.name,
		Value:     n.Value(),
		Timestamp: wire.IsoInstant(n.timestamp),
	}
}

// NamedValueFromSnapshot rehydrates a NamedValue from its wire form.
func NamedValueFromSnapshot(snap wire.NamedValueSnapshot) (*NamedValue, error) {
	ts, err := snap.Instant()
	if err != nil {
		return nil, err
	}
	nv := NewNamedValue(snap.Name)
	nv.value = snap.Value
	nv.timestamp = ts
	nv.hasValue = true
	return nv, nil
}
