// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package producer

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/replicate/datastore/memstore"
	"github.com/tomtom215/replicate/item"
	"github.com/tomtom215/replicate/set"
	"github.com/tomtom215/replicate/wire"
)

func TestFormatAndParseTagRoundTrip(t *testing.T) {
	cases := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 999 * time.Millisecond, 1 * time.Second, 10 * time.Second}
	for _, d := range cases {
		tag := FormatTag(d)
		parsed, err := ParseTag(tag)
		if err != nil {
			t.Fatalf("ParseTag(%s): %v", tag, err)
		}
		if parsed != d {
			t.Errorf("round trip mismatch: %s -> %s -> %s", d, tag, parsed)
		}
	}
}

func TestParseTagRejectsSubMinimum(t *testing.T) {
	if _, err := ParseTag("50ms"); err == nil {
		t.Fatal("expected error for sub-100ms tag")
	}
}

func TestParseTagRejectsGarbage(t *testing.T) {
	if _, err := ParseTag("nope"); err == nil {
		t.Fatal("expected error for malformed tag")
	}
}

func TestEndpoint_RegistersKeysOnConstruction(t *testing.T) {
	ctx := context.Background()
	ds := memstore.New()
	s := set.New(set.NewClass("Dog", []string{"name"}))
	dog := item.New("Dog", "dog1")
	dog.DeclareObserved([]string{"name"})
	_ = dog.SetProperty("name", wire.String("Rex"))
	_ = s.Add(dog)

	ep, err := New(ctx, ds, s, Config{BasePath: "test", NodeName: "dogs", Cadences: []time.Duration{100 * time.Millisecond}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ep.Prefix() != "test.dogs" {
		t.Errorf("expected prefix test.dogs, got %s", ep.Prefix())
	}

	className, err := ds.Get(ctx, "test.dogs.classname")
	if err != nil || className != "Dog" {
		t.Fatalf("expected classname Dog, got %v err=%v", className, err)
	}

	pulsars, err := ds.Get(ctx, "test.dogs.pulsars")
	if err != nil {
		t.Fatalf("Get pulsars: %v", err)
	}
	m, ok := pulsars.(map[string][]string)
	if !ok {
		t.Fatalf("expected pulsars map, got %T", pulsars)
	}
	if _, ok := m["100ms"]; !ok {
		t.Errorf("expected 100ms key in pulsars map, got %v", m)
	}

	all, err := ds.Get(ctx, "test.dogs.all")
	if err != nil {
		t.Fatalf("Get all: %v", err)
	}
	snaps, ok := all.([]wire.ItemSnapshot)
	if !ok || len(snaps) != 1 || snaps[0].ID != "dog1" {
		t.Fatalf("expected one dog1 snapshot, got %v", all)
	}
}

func TestEndpoint_DerivesDefaultNodeName(t *testing.T) {
	ctx := context.Background()
	ds := memstore.New()
	s := set.New(set.NewClass("Dog", nil))
	ep, err := New(ctx, ds, s, Config{Cadences: []time.Duration{time.Second}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ep.Prefix() != "dogs" {
		t.Errorf("expected default prefix dogs, got %s", ep.Prefix())
	}
}

func TestEndpoint_StartStopIdempotent(t *testing.T) {
	ctx := context.Background()
	ds := memstore.New()
	s := set.New(set.NewClass("Dog", nil))
	ep, err := New(ctx, ds, s, Config{BasePath: "t", NodeName: "dogs", Cadences: []time.Duration{100 * time.Millisecond}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ep.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ep.Stop()
	if err := ep.Start(ctx); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	ep.Stop()
}
