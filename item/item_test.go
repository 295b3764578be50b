// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package item

import (
	"testing"
	"time"

	"github.com/tomtom215/replicate/wire"
)

func TestItem_DeclareObservedAndSetProperty(t *testing.T) {
	it := New("Dog", "dog1")
	it.DeclareObserved([]string{"name", "age"})

	if v := it.Property("name"); !v.IsAbsent() {
		t.Errorf("expected absent before first set, got %v", v)
	}

	var gotChange Change
	var calls int
	it.Subscribe(func(_ *Item, ch Change) {
		calls++
		gotChange = ch
	})

	if err := it.SetProperty("name", wire.String("Rex")); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 change emission, got %d", calls)
	}
	if gotChange.NewValue.Encode() != `"Rex"` {
		t.Errorf("unexpected new value: %s", gotChange.NewValue.Encode())
	}
	if !gotChange.OldValue.IsAbsent() {
		t.Errorf("expected old value absent, got %v", gotChange.OldValue)
	}
}

func TestItem_SetPropertyNoChangeNoEmit(t *testing.T) {
	it := New("Dog", "dog1")
	it.DeclareObserved([]string{"name"})
	_ = it.SetProperty("name", wire.String("Rex"))

	calls := 0
	it.Subscribe(func(_ *Item, _ Change) { calls++ })
	if err := it.SetProperty("name", wire.String("Rex")); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no emission for unchanged value, got %d", calls)
	}
}

func TestItem_SetPropertyUndeclaredFails(t *testing.T) {
	it := New("Dog", "dog1")
	if err := it.SetProperty("ghost", wire.String("x")); err == nil {
		t.Fatal("expected error for undeclared property")
	}
}

func TestItem_ChecksumDeterministic(t *testing.T) {
	a := New("Dog", "dog1")
	a.DeclareObserved([]string{"name", "age"})
	_ = a.SetProperty("name", wire.String("Rex"))
	_ = a.SetProperty("age", wire.Number(3))

	b := New("Dog", "dog1")
	b.DeclareObserved([]string{"age", "name"}) // different declaration order
	_ = b.SetProperty("age", wire.Number(3))
	_ = b.SetProperty("name", wire.String("Rex"))

	if a.Checksum() != b.Checksum() {
		t.Errorf("expected equal checksums, got %s vs %s", a.Checksum(), b.Checksum())
	}
}

func TestItem_ChecksumSensitivity(t *testing.T) {
	a := New("Dog", "dog1")
	a.DeclareObserved([]string{"name"})
	_ = a.SetProperty("name", wire.String("Rex"))
	before := a.Checksum()

	_ = a.SetProperty("name", wire.String("Max"))
	after := a.Checksum()

	if before == after {
		t.Error("expected checksum to change after property mutation")
	}
}

func TestItem_ChecksumSensitivity_NamedValue(t *testing.T) {
	it := New("Dog", "dog1")
	it.SetNamed("mood", wire.String("happy"), time.Unix(1000, 0))
	before := it.Checksum()

	it.SetNamed("mood", wire.String("happy"), time.Unix(2000, 0))
	after := it.Checksum()

	if before == after {
		t.Error("expected checksum to change after timestamp-only mutation")
	}
}

func TestItem_SetNamedAndUnset(t *testing.T) {
	it := New("Dog", "dog1")

	var emitted []Change
	it.Subscribe(func(_ *Item, ch Change) { emitted = append(emitted, ch) })

	it.SetNamed("mood", wire.String("happy"), time.Unix(1000, 0))
	if len(emitted) != 1 || !emitted[0].Named {
		t.Fatalf("expected one named change, got %+v", emitted)
	}

	it.UnsetNamed("mood")
	if len(emitted) != 1 {
		t.Errorf("expected UnsetNamed to emit nothing, got %d total", len(emitted))
	}
	if v := it.GetNamed("mood"); !v.IsAbsent() {
		t.Errorf("expected absent after unset, got %v", v)
	}
}

func TestItem_SnapshotRoundTrip(t *testing.T) {
	it := New("Dog", "dog1")
	it.DeclareObserved([]string{"name"})
	_ = it.SetProperty("name", wire.String("Rex"))
	it.SetNamed("mood", wire.String("happy"), time.Unix(1000, 0))

	snap := it.Snapshot()
	restored, err := FromSnapshot("Dog", snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	restored.DeclareObserved([]string{"name"})

	if restored.ID() != it.ID() {
		t.Errorf("id mismatch: %s vs %s", restored.ID(), it.ID())
	}
	if restored.Checksum() != it.Checksum() {
		t.Errorf("checksum mismatch after round trip: %s vs %s", restored.Checksum(), it.Checksum())
	}
}

func TestItem_FromSnapshotWrongClass(t *testing.T) {
	snap := wire.ItemSnapshot{ID: "x", Type: "Cat"}
	if _, err := FromSnapshot("Dog", snap); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestItem_UpdateTo(t *testing.T) {
	a := New("Dog", "dog1")
	a.DeclareObserved([]string{"name"})
	_ = a.SetProperty("name", wire.String("Rex"))
	a.SetNamed("mood", wire.String("happy"), time.Unix(1000, 0))

	b := New("Dog", "dog1")
	b.DeclareObserved([]string{"name"})
	_ = b.SetProperty("name", wire.String("Max"))
	b.SetNamed("energy", wire.Number(9), time.Unix(2000, 0))

	if err := a.UpdateTo(b); err != nil {
		t.Fatalf("UpdateTo: %v", err)
	}
	if v, _ := a.Property("name").StringValue(); v != "Max" {
		t.Errorf("expected name Max, got %s", v)
	}
	if !a.GetNamed("mood").IsAbsent() {
		t.Error("expected mood unset after UpdateTo")
	}
	if v, _ := a.GetNamed("energy").NumberValue(); v != 9 {
		t.Errorf("expected energy 9, got %v", v)
	}
}

func TestItem_UpdateToTypeMismatch(t *testing.T) {
	a := New("Dog", "dog1")
	b := New("Cat", "cat1")
	if err := a.UpdateTo(b); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestNamedValue_SetRequiresChangeToEmit(t *testing.T) {
	nv := NewNamedValue("mood")
	ts := time.Unix(1000, 0)
	_, changed := nv.Set(wire.String("happy"), ts)
	if !changed {
		t.Fatal("expected first set to report a change")
	}
	_, changed = nv.Set(wire.String("happy"), ts)
	if changed {
		t.Error("expected identical set to report no change")
	}
}
