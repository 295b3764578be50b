// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/replicate/datastore/memstore"
	"github.com/tomtom215/replicate/item"
	"github.com/tomtom215/replicate/producer"
	"github.com/tomtom215/replicate/set"
	"github.com/tomtom215/replicate/wire"
)

func newDogClass() set.Class { return set.NewClass("Dog", []string{"name"}) }

func newDog(id, name string) *item.Item {
	it := item.New("Dog", id)
	it.DeclareObserved([]string{"name"})
	_ = it.SetProperty("name", wire.String(name))
	return it
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

// TestEngine_ColdSnapshot exercises spec §8 scenario 1: a Consumer starting
// from nothing converges to the Producer's full snapshot in INITIAL.
func TestEngine_ColdSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds := memstore.New()
	ps := set.New(newDogClass())
	_ = ps.Add(newDog("dog1", "Rex"))
	pep, err := producer.New(ctx, ds, ps, producer.Config{BasePath: "t", NodeName: "dogs", Cadences: []time.Duration{100 * time.Millisecond}})
	if err != nil {
		t.Fatalf("producer.New: %v", err)
	}
	if err := pep.Start(ctx); err != nil {
		t.Fatalf("producer Start: %v", err)
	}
	defer pep.Stop()

	eng, err := New(Config{Datastore: ds, Path: "t.dogs", Class: newDogClass(), Pulsar: "100ms", RunloopInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("consumer New: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("consumer Start: %v", err)
	}
	defer eng.Stop()

	waitFor(t, 2*time.Second, func() bool { return eng.Set().Len() == 1 })
	dog, ok := eng.Set().Find("dog1")
	if !ok || dog.Property("name") != wire.String("Rex") {
		t.Fatalf("expected converged dog1=Rex, got %v ok=%v", dog, ok)
	}
	waitFor(t, 2*time.Second, func() bool { return eng.State() == StatePolling })
}

// TestEngine_LiveAdd exercises spec §8 scenario 2: an item added to the
// Producer's Set after the Consumer reaches POLLING propagates via the
// pulsar bundle.
func TestEngine_LiveAdd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds := memstore.New()
	ps := set.New(newDogClass())
	pep, err := producer.New(ctx, ds, ps, producer.Config{BasePath: "t", NodeName: "dogs", Cadences: []time.Duration{100 * time.Millisecond}})
	if err != nil {
		t.Fatalf("producer.New: %v", err)
	}
	if err := pep.Start(ctx); err != nil {
		t.Fatalf("producer Start: %v", err)
	}
	defer pep.Stop()

	eng, err := New(Config{Datastore: ds, Path: "t.dogs", Class: newDogClass(), Pulsar: "100ms", RunloopInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("consumer New: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("consumer Start: %v", err)
	}
	defer eng.Stop()

	waitFor(t, 2*time.Second, func() bool { return eng.State() == StatePolling })

	if err := ps.Add(newDog("dog2", "Fido")); err != nil {
		t.Fatalf("producer Set.Add: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return eng.Set().Len() == 1 })
	dog, ok := eng.Set().Find("dog2")
	if !ok || dog.Property("name") != wire.String("Fido") {
		t.Fatalf("expected live-added dog2=Fido, got %v ok=%v", dog, ok)
	}
}

// TestEngine_ChecksumFramedSkip exercises spec §8 scenario 5: reapplying
// an already-converged bundle (matching end_checksum) is a no-op, not a
// second application of its entries.
func TestEngine_ChecksumFramedSkip(t *testing.T) {
	eng, err := New(Config{Datastore: memstore.New(), Path: "t.dogs", Class: newDogClass(), Pulsar: "100ms"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dog := newDog("dog1", "Rex")
	if err := eng.Set().Add(dog); err != nil {
		t.Fatalf("Add: %v", err)
	}
	checksum := eng.Set().Checksum()

	framing, err := wire.Marshal(wire.Envelope{EventName: wire.EventComment, Metadata: true, EndChecksum: checksum})
	if err != nil {
		t.Fatalf("Marshal framing: %v", err)
	}
	removed, err := wire.Marshal(wire.Envelope{EventName: wire.EventRemoved, ItemID: "dog1"})
	if err != nil {
		t.Fatalf("Marshal removed: %v", err)
	}

	eng.applyBundle([]string{string(framing), string(removed)})

	if eng.Set().Len() != 1 {
		t.Fatalf("expected bundle matching current checksum to be skipped entirely, len=%d", eng.Set().Len())
	}
}

// TestEngine_ChecksumFramedSkip_DoesNotTrustStaleCache guards against a
// regression where the recency cache, rather than a direct comparison
// against the Set's current checksum, gated the discard: if a checksum
// value is cached from an earlier, legitimately-applied bundle and the
// Set later cycles back away from and a new bundle re-advertises that
// same end_checksum value while the Set no longer holds it, the bundle
// must still be applied.
func TestEngine_ChecksumFramedSkip_DoesNotTrustStaleCache(t *testing.T) {
	eng, err := New(Config{Datastore: memstore.New(), Path: "t.dogs", Class: newDogClass(), Pulsar: "100ms"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dog := newDog("dog1", "Rex")
	if err := eng.Set().Add(dog); err != nil {
		t.Fatalf("Add: %v", err)
	}
	staleChecksum := eng.Set().Checksum()
	eng.seen.Add(staleChecksum)

	if err := eng.Set().Remove(set.RefByID("dog1")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if eng.Set().Checksum() == staleChecksum {
		t.Fatalf("test setup invalid: checksum unchanged after Remove")
	}

	framing, err := wire.Marshal(wire.Envelope{EventName: wire.EventComment, Metadata: true, EndChecksum: staleChecksum})
	if err != nil {
		t.Fatalf("Marshal framing: %v", err)
	}
	snap := dog.Snapshot()
	added, err := wire.Marshal(wire.Envelope{EventName: wire.EventAdded, Item: &snap})
	if err != nil {
		t.Fatalf("Marshal added: %v", err)
	}

	eng.applyBundle([]string{string(framing), string(added)})

	if eng.Set().Len() != 1 {
		t.Fatalf("expected bundle to be applied despite stale cache hit on end_checksum, len=%d", eng.Set().Len())
	}
}

// TestEngine_DivergenceThenResync exercises spec §8 scenario 6: a
// corrupted entry leaves local state diverged from the advertised
// end_checksum (logged, not fatal), and a caller-invoked Resync recovers
// by re-fetching the full snapshot.
func TestEngine_DivergenceThenResync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds := memstore.New()
	ps := set.New(newDogClass())
	_ = ps.Add(newDog("dog1", "Rex"))
	pep, err := producer.New(ctx, ds, ps, producer.Config{BasePath: "t", NodeName: "dogs", Cadences: []time.Duration{100 * time.Millisecond}})
	if err != nil {
		t.Fatalf("producer.New: %v", err)
	}
	if err := pep.Start(ctx); err != nil {
		t.Fatalf("producer Start: %v", err)
	}
	defer pep.Stop()

	eng, err := New(Config{Datastore: ds, Path: "t.dogs", Class: newDogClass(), Pulsar: "100ms", RunloopInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("consumer New: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("consumer Start: %v", err)
	}
	defer eng.Stop()
	waitFor(t, 2*time.Second, func() bool { return eng.Set().Len() == 1 })

	// Directly corrupt the engine's local state to simulate a missed/
	// malformed entry without racing the live bundle pipeline.
	if err := eng.Set().Remove(set.RefByID("dog1")); err != nil {
		t.Fatalf("simulate divergence: %v", err)
	}
	if eng.Set().Len() != 0 {
		t.Fatalf("expected diverged (empty) local state")
	}

	if err := eng.Resync(); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return eng.Set().Len() == 1 })
}

func TestEngine_StartStopErrors(t *testing.T) {
	eng, err := New(Config{Datastore: memstore.New(), Path: "t.dogs", Class: newDogClass(), Pulsar: "100ms"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := eng.Start(ctx); err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := eng.Stop(); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := eng.Resync(); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning from Resync while stopped, got %v", err)
	}
}

func TestEngine_RejectsWrongClassName(t *testing.T) {
	ctx := context.Background()
	ds := memstore.New()
	_ = ds.Set(ctx, "t.cats.classname", "Cat")
	_ = ds.Set(ctx, "t.cats.pulsars", map[string][]string{"100ms": {}})
	_ = ds.Set(ctx, "t.cats.all", []wire.ItemSnapshot{})

	eng, err := New(Config{Datastore: ds, Path: "t.cats", Class: newDogClass(), Pulsar: "100ms"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = eng.stepInitial(ctx)
	if err == nil {
		t.Fatal("expected a class-name mismatch error")
	}
}
