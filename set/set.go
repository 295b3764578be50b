// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package set implements the managed, ordered-insertion collection of
// Items of one declared class: the unit of replication. It fans out
// added/removed/changed events, serializes them to wire payloads for
// transmit sinks, applies received payloads, reconciles to a target
// snapshot, and exposes a deterministic set-wide checksum.
package set

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/tomtom215/replicate/internal/rlog"
	"github.com/tomtom215/replicate/item"
	"github.com/tomtom215/replicate/wire"
)

// Sentinel errors surfaced synchronously by Set operations (§7).
var (
	ErrWrongType       = errors.New("set: item is not an instance of the declared class")
	ErrDuplicateID     = errors.New("set: duplicate item id")
	ErrNotFound        = errors.New("set: item not found")
	ErrMissingIDField  = errors.New("set: argument does not carry an id")
	ErrUnknownItem     = errors.New("set: changed event references unknown item")
	ErrInvalidArgument = errors.New("set: invalid argument")
)

// Class is the registry record §9's "Polymorphic managed class" design
// note calls for: producer and consumer sides each hold one, naming the
// managed class, its observed property names, and how to rehydrate an
// Item from a wire snapshot.
type Class struct {
	Name        string
	Observed    []string
	FromSnapshot func(snap wire.ItemSnapshot) (*item.Item, error)
}

// NewClass builds a Class whose FromSnapshot validates the wire type,
// constructs the Item, and declares its observed properties — the
// default, common-case wiring.
func NewClass(name string, observed []string) Class {
	obs := append([]string(nil), observed...)
	return Class{
		Name:     name,
		Observed: obs,
		FromSnapshot: func(snap wire.ItemSnapshot) (*item.Item, error) {
			it, err := item.FromSnapshot(name, snap)
			if err != nil {
				return nil, err
			}
			it.DeclareObserved(obs)
			return it, nil
		},
	}
}

// EventName is the Set-level event vocabulary.
type EventName string

const (
	EventAdded   EventName = "added"
	EventRemoved EventName = "removed"
	EventChanged EventName = "changed"
)

// Event is delivered to Set subscribers and mirrors the Item.Change that
// triggered it, for "changed" events.
type Event struct {
	Name   EventName
	Item   *item.Item
	Change *item.Change
}

// Listener receives Set events synchronously, in mutation order.
type Listener func(Event)

type idRef struct{ id string }

func (r idRef) ID() string { return r.id }

// IDer is satisfied by anything carrying an id — *item.Item, or a bare
// id-only stub built by RefByID, per §4.3 "the argument must carry an
// id".
type IDer interface{ ID() string }

// RefByID builds a minimal IDer for Remove/receive-path removal, without
// constructing a full Item.
func RefByID(id string) IDer { return idRef{id} }

// Set is the managed, uniquely-keyed collection of Items of one declared
// class.
type Set struct {
	class Class

	order []string
	items map[string]*item.Item
	unsub map[string]func()

	sinks     []Sink
	listeners []Listener

	checksum *string
}

// New constructs an empty Set managing Items of the given Class.
func New(class Class) *Set {
	return &Set{
		class: class,
		items: make(map[string]*item.Item),
		unsub: make(map[string]func()),
	}
}

// Class returns the Set's managed class descriptor.
func (s *Set) Class() Class { return s.class }

// Subscribe registers a listener for Set events and returns an
// unsubscribe function.
func (s *Set) Subscribe(l Listener) (unsubscribe func()) {
	s.listeners = append(s.listeners, l)
	idx := len(s.listeners) - 1
	return func() {
		if idx < len(s.listeners) {
			s.listeners[idx] = nil
		}
	}
}

func (s *Set) emit(ev Event) {
	for _, l := range s.listeners {
		if l != nil {
			l(ev)
		}
	}
}

// SetTransmit replaces the Set's transmit sinks. Passing no arguments
// disables transmission ("none", per §4.3). Every sink must be one of
// the two shapes NewStringSink/NewStructuredSink produce (§4.3); a
// zero-valued Sink{} is neither and is rejected with ErrInvalidArgument.
func (s *Set) SetTransmit(sinks ...Sink) error {
	for _, sink := range sinks {
		if sink.isZero() {
			return fmt.Errorf("%w: sink must be built with NewStringSink or NewStructuredSink", ErrInvalidArgument)
		}
	}
	s.sinks = sinks
	return nil
}

func (s *Set) submitToSinks(eventName string, it *item.Item, change *item.Change) {
	for _, sink := range s.sinks {
		if sink.structured != nil {
			if err := sink.structured.Queue(eventName, it, change); err != nil {
				rlog.Warn().Err(err).Str("event", eventName).Msg("set: structured sink rejected event")
			}
			continue
		}
		if sink.str != nil {
			env := envelopeFor(eventName, it, change)
			payload, err := wire.Marshal(env)
			if err != nil {
				rlog.Warn().Err(err).Str("event", eventName).Msg("set: failed to marshal payload for string sink")
				continue
			}
			if err := sink.str(string(payload)); err != nil {
				rlog.Warn().Err(err).Str("event", eventName).Msg("set: string sink returned error")
			}
		}
	}
}

func envelopeFor(eventName string, it *item.Item, change *item.Change) wire.Envelope {
	switch wire.EventName(eventName) {
	case wire.EventAdded:
		snap := it.Snapshot()
		return wire.Envelope{EventName: wire.EventAdded, Item: &snap, ItemID: it.ID()}
	case wire.EventRemoved:
		return wire.Envelope{EventName: wire.EventRemoved, ItemID: it.ID()}
	case wire.EventChanged:
		c := &wire.Change{Property: change.Name, NewValue: change.NewValue}
		switch {
		case !change.Named:
			// property changes always carry old_value, per §6.1.
			ov := change.OldValue
			c.OldValue = &ov
		case !change.OldValue.IsAbsent():
			// named-value changes carry old_value only when meaningful.
			ov := change.OldValue
			c.OldValue = &ov
		}
		if change.Named {
			ts := wire.IsoInstant(change.NewTimestamp)
			c.NewTimestamp = &ts
		}
		return wire.Envelope{EventName: wire.EventChanged, ItemID: it.ID(), Change: c}
	default:
		return wire.Envelope{}
	}
}

// Add inserts it, requiring it.ClassName() to match the declared class
// and its id to be unused. It subscribes an internal listener that
// forwards the Item's changes as Set "changed" events, invalidates the
// set checksum, emits "added", and submits "added" to every transmit
// sink.
func (s *Set) Add(it *item.Item) error {
	if it.ClassName() != s.class.Name {
		return fmt.Errorf("%w: expected %q, got %q", ErrWrongType, s.class.Name, it.ClassName())
	}
	if _, exists := s.items[it.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, it.ID())
	}

	s.items[it.ID()] = it
	s.order = append(s.order, it.ID())
	s.unsub[it.ID()] = it.Subscribe(func(changedItem *item.Item, ch item.Change) {
		s.checksum = nil
		change := ch
		s.emit(Event{Name: EventChanged, Item: changedItem, Change: &change})
		s.submitToSinks(string(EventChanged), changedItem, &change)
	})

	s.checksum = nil
	s.emit(Event{Name: EventAdded, Item: it})
	s.submitToSinks(string(EventAdded), it, nil)
	return nil
}

// Remove deletes the item referenced by ref.ID(), unsubscribing its
// internal listener, invalidating the checksum, and emitting/submitting
// "removed".
func (s *Set) Remove(ref IDer) error {
	if ref == nil || ref.ID() == "" {
		return ErrMissingIDField
	}
	it, ok := s.items[ref.ID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ref.ID())
	}

	if unsub, ok := s.unsub[ref.ID()]; ok {
		unsub()
		delete(s.unsub, ref.ID())
	}
	delete(s.items, ref.ID())
	for i, id := range s.order {
		if id == ref.ID() {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.checksum = nil
	s.emit(Event{Name: EventRemoved, Item: it})
	s.submitToSinks(string(EventRemoved), it, nil)
	return nil
}

// Find returns the item with id, or (nil, false).
func (s *Set) Find(id string) (*item.Item, bool) {
	it, ok := s.items[id]
	return it, ok
}

// All returns every item in insertion order.
func (s *Set) All() []*item.Item {
	out := make([]*item.Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Len returns the number of items currently in the Set.
func (s *Set) Len() int { return len(s.items) }

// Receive parses one wire payload and applies it: added constructs via
// the Class's FromSnapshot and Adds it; removed Removes by id; changed
// with a timestamp routes to SetNamed, changed without one assigns the
// property directly (§4.3).
func (s *Set) Receive(payload []byte) error {
	env, err := wire.Parse(payload)
	if err != nil {
		return err
	}

	switch env.EventName {
	case wire.EventAdded:
		it, err := s.class.FromSnapshot(*env.Item)
		if err != nil {
			return err
		}
		return s.Add(it)
	case wire.EventRemoved:
		return s.Remove(RefByID(env.ItemID))
	case wire.EventChanged:
		it, ok := s.items[env.ItemID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItem, env.ItemID)
		}
		if env.Change.IsNamed() {
			ts, err := wire.ParseTimestamp(*env.Change.NewTimestamp)
			if err != nil {
				return err
			}
			it.SetNamed(env.Change.Property, env.Change.NewValue, ts)
			return nil
		}
		return it.SetProperty(env.Change.Property, env.Change.NewValue)
	case wire.EventComment:
		// framing records carry no mutation; silently ignored (§4.6.1).
		return nil
	default:
		return fmt.Errorf("%w: %q", wire.ErrUnknownEvent, env.EventName)
	}
}

// UpdateSetTo forcibly converges this Set to match items by id: added
// items not already present are Added, items present but absent from
// the argument are Removed, and items in both are reconciled via
// Item.UpdateTo. Order: add, then remove, then update (§4.3).
func (s *Set) UpdateSetTo(items []*item.Item) error {
	target := make(map[string]*item.Item, len(items))
	for _, it := range items {
		target[it.ID()] = it
	}

	var toAdd, toUpdate []*item.Item
	for _, it := range items {
		if _, exists := s.items[it.ID()]; exists {
			toUpdate = append(toUpdate, it)
		} else {
			toAdd = append(toAdd, it)
		}
	}
	var toRemove []string
	for _, id := range s.order {
		if _, exists := target[id]; !exists {
			toRemove = append(toRemove, id)
		}
	}

	for _, it := range toAdd {
		if err := s.Add(it); err != nil {
			return err
		}
	}
	for _, id := range toRemove {
		if err := s.Remove(RefByID(id)); err != nil {
			return err
		}
	}
	for _, desired := range toUpdate {
		existing := s.items[desired.ID()]
		if err := existing.UpdateTo(desired); err != nil {
			return err
		}
	}
	// UpdateTo can unset named values, which emits no Change.
	s.checksum = nil
	return nil
}

// Checksum returns the SHA-256 hex digest of the concatenation of
// per-Item checksums, items sorted by id ascending (§4.3). It is cached
// and invalidated by any mutating operation.
func (s *Set) Checksum() string {
	if s.checksum != nil {
		return *s.checksum
	}
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(s.items[id].Checksum()))
	}
	sum := hex.EncodeToString(h.Sum(nil))
	s.checksum = &sum
	return sum
}
