// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package item

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tomtom215/replicate/wire"
)

// Sentinel errors surfaced synchronously by Item operations (§7).
var (
	ErrInvalidArgument = errors.New("item: invalid argument")
	ErrTypeMismatch    = errors.New("item: type mismatch")
)

// Change describes one property or named-value transition, delivered to
// Item subscribers and, from there, forwarded by the owning Set as a
// "changed" event (§4.2 MarkDirty / SetNamed).
type Change struct {
	// Named is true when this change came from a NamedValue (carries
	// OldTimestamp/NewTimestamp); false for an observed-property change.
	Named        bool
	Name         string
	OldValue     wire.Scalar
	NewValue     wire.Scalar
	OldTimestamp time.Time
	NewTimestamp time.Time
}

// Listener receives change notifications for one Item, synchronously and
// in mutation order.
type Listener func(it *Item, ch Change)

// Item is an identified object holding observed scalar properties and
// named values, per §3 "Item(class C, id)". The original's dynamic
// setter-trapping subclass is replaced with an explicit declarative
// property table (§9 design note): the application calls SetProperty
// directly instead of a base class re-reading a live accessor.
type Item struct {
	id        string
	className string

	observed   []string               // declared observed property names, in order
	properties map[string]wire.Scalar // name -> last-observed Scalar

	named map[string]*NamedValue

	checksum *string // nil means invalidated; lazily recomputed

	listeners []Listener
}

// New constructs an Item of the given class. If id is empty, a UUID is
// generated — the "stable wall-clock ID generation" source the spec
// assumes is external is provided here via google/uuid.
func New(className, id string) *Item {
	if id == "" {
		id = uuid.NewString()
	}
	return &Item{
		id:         id,
		className:  className,
		properties: make(map[string]wire.Scalar),
		named:      make(map[string]*NamedValue),
	}
}

// ID returns the Item's immutable identifier.
func (it *Item) ID() string { return it.id }

// ClassName returns the Item's declared class name.
func (it *Item) ClassName() string { return it.className }

// Subscribe registers a listener for this Item's changes and returns an
// unsubscribe function. Used internally by Set; exported for direct
// observation when an Item is used outside a Set.
func (it *Item) Subscribe(l Listener) (unsubscribe func()) {
	it.listeners = append(it.listeners, l)
	idx := len(it.listeners) - 1
	return func() {
		if idx < len(it.listeners) {
			it.listeners[idx] = nil
		}
	}
}

func (it *Item) emit(ch Change) {
	it.checksum = nil
	for _, l := range it.listeners {
		if l != nil {
			l(it, ch)
		}
	}
}

// DeclareObserved sets the ordered list of property names this Item
// tracks. A name with no value yet is set to Absent; a value already held
// (e.g. one restored by FromSnapshot) is kept. No Change is emitted —
// callers typically follow DeclareObserved with SetProperty calls (or
// MarkDirty with a value map) to populate real state.
func (it *Item) DeclareObserved(names []string) {
	it.observed = append([]string(nil), names...)
	if it.properties == nil {
		it.properties = make(map[string]wire.Scalar)
	}
	for _, name := range it.observed {
		if _, ok := it.properties[name]; !ok {
			it.properties[name] = wire.Absent
		}
	}
	it.checksum = nil
}

// Observed returns the declared observed property names, in declaration
// order.
func (it *Item) Observed() []string {
	return append([]string(nil), it.observed...)
}

func (it *Item) isObserved(name string) bool {
	for _, o := range it.observed {
		if o == name {
			return true
		}
	}
	return false
}

// SetProperty assigns a single observed property, emitting Change (and
// invalidating the checksum before emission, so handlers that read it
// recompute) iff the new value differs from the last-observed one. This
// is the explicit dispatcher §9 calls for in place of setter-trapping.
func (it *Item) SetProperty(name string, value wire.Scalar) error {
	if !it.isObserved(name) {
		return fmt.Errorf("%w: %q is not a declared observed property of %s", ErrInvalidArgument, name, it.className)
	}
	old, existed := it.properties[name]
	if existed && old.Equal(value) {
		return nil
	}
	it.properties[name] = value
	if !existed {
		old = wire.Absent
	}
	it.emit(Change{Name: name, OldValue: old, NewValue: value})
	return nil
}

// MarkDirty applies a bulk set of externally-observed property values —
// the Go-idiomatic replacement for "re-read current value from the
// subclass, diff, emit if changed" (§4.2). Values for names not declared
// observed are ignored.
func (it *Item) MarkDirty(values map[string]wire.Scalar) error {
	for _, name := range it.observed {
		v, ok := values[name]
		if !ok {
			continue
		}
		if err := it.SetProperty(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Property returns the last-observed value of name, or Absent if name is
// not a declared observed property or has never been set.
func (it *Item) Property(name string) wire.Scalar {
	if v, ok := it.properties[name]; ok {
		return v
	}
	return wire.Absent
}

// SetNamed creates the NamedValue if absent and sets its value/timestamp,
// emitting a named Change iff the tuple actually changed. timestamp
// defaults to time.Now() when the zero value is passed.
func (it *Item) SetNamed(name string, value wire.Scalar, timestamp time.Time) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	nv, ok := it.named[name]
	if !ok {
		nv = NewNamedValue(name)
		it.named[name] = nv
	}
	change, changed := nv.Set(value, timestamp)
	if !changed {
		return
	}
	it.emit(Change{
		Named:        true,
		Name:         name,
		OldValue:     change.OldValue,
		NewValue:     change.NewValue,
		OldTimestamp: change.OldTimestamp,
		NewTimestamp: change.NewTimestamp,
	})
}

// UnsetNamed removes a NamedValue silently (no Change is emitted, per
// §4.2).
func (it *Item) UnsetNamed(name string) {
	if _, ok := it.named[name]; ok {
		delete(it.named, name)
		it.checksum = nil
	}
}

// GetNamed returns the current value of a NamedValue, or Absent if it has
// never been set.
func (it *Item) GetNamed(name string) wire.Scalar {
	if nv, ok := it.named[name]; ok {
		return nv.Value()
	}
	return wire.Absent
}

// NamedNames returns the names of all currently-set NamedValues, order
// unspecified (insertion order is not meaningful per §3).
func (it *Item) NamedNames() []string {
	names := make([]string, 0, len(it.named))
	for n := range it.named {
		names = append(names, n)
	}
	return names
}

// Snapshot renders the Item's wire form.
func (it *Item) Snapshot() wire.ItemSnapshot {
	props := make(map[string]wire.Scalar, len(it.observed))
	for _, name := range it.observed {
		props[name] = it.Property(name)
	}
	notions := make(map[string]wire.NamedValueSnapshot, len(it.named))
	for name, nv := range it.named {
		notions[name] = nv.Snapshot()
	}
	return wire.ItemSnapshot{
		ID:         it.id,
		Type:       it.className,
		Notions:    notions,
		Properties: props,
	}
}

// FromSnapshot validates obj.Type against className, constructs an Item
// with obj.ID, and restores named values and properties. It does NOT
// re-declare the observed set — the caller is expected to call
// DeclareObserved (mirroring "the subclass constructor is expected to
// have done so").
func FromSnapshot(className string, snap wire.ItemSnapshot) (*Item, error) {
	if snap.Type != className {
		return nil, fmt.Errorf("%w: snapshot type %q does not match class %q", ErrTypeMismatch, snap.Type, className)
	}
	it := New(className, snap.ID)
	for name, ns := range snap.Notions {
		nv, err := NamedValueFromSnapshot(ns)
		if err != nil {
			return nil, err
		}
		it.named[name] = nv
	}
	for name, v := range snap.Properties {
		it.properties[name] = v
	}
	return it, nil
}

// Checksum returns the SHA-256 hex digest of the Item's deterministic
// serialization, per §4.2: id, class name, sorted properties, sorted
// named values (including timestamps). It is cached and invalidated by
// any mutation; the cache is recomputed lazily.
func (it *Item) Checksum() string {
	if it.checksum != nil {
		return *it.checksum
	}
	sum := it.computeChecksum()
	it.checksum = &sum
	return sum
}

func (it *Item) computeChecksum() string {
	var parts []string
	parts = append(parts, "id:"+it.id, "type:"+it.className)

	propNames := make([]string, 0, len(it.observed))
	for _, n := range it.observed {
		propNames = append(propNames, n)
	}
	sort.Strings(propNames)
	for _, n := range propNames {
		parts = append(parts, "prop:"+n+":"+it.Property(n).Encode())
	}

	namedNames := it.NamedNames()
	sort.Strings(namedNames)
	for _, n := range namedNames {
		nv := it.named[n]
		parts = append(parts, "notion:"+n+":"+nv.Value().Encode()+":"+wire.IsoInstant(nv.Timestamp()))
	}

	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// UpdateTo reconciles this Item toward target: observed properties are
// copied where unequal, named values are updated/unset/set to match
// target exactly. target must be of the same class.
func (it *Item) UpdateTo(target *Item) error {
	if target.className != it.className {
		return fmt.Errorf("%w: cannot update %s from %s", ErrTypeMismatch, it.className, target.className)
	}

	for _, name := range it.observed {
		tv := target.Property(name)
		if !it.Property(name).Equal(tv) {
			if err := it.SetProperty(name, tv); err != nil {
				return err
			}
		}
	}

	targetNamed := target.NamedNames()
	targetSet := make(map[string]struct{}, len(targetNamed))
	for _, name := range targetNamed {
		targetSet[name] = struct{}{}
		tv := target.named[name]
		it.SetNamed(name, tv.Value(), tv.Timestamp())
	}
	for _, name := range it.NamedNames() {
		if _, ok := targetSet[name]; !ok {
			it.UnsetNamed(name)
		}
	}
	return nil
}
