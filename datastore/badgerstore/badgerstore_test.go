// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package badgerstore

import (
	"context"
	"testing"

	"github.com/tomtom215/replicate/datastore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Set(ctx, "t.dogs.classname", "Dog"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, err := s.Get(ctx, "t.dogs.classname")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, ok := raw.([]byte)
	if !ok || string(data) != `"Dog"` {
		t.Fatalf("expected JSON-encoded string, got %v (%T)", raw, raw)
	}
}

func TestStore_GetMissingKey(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.Get(ctx, "nope"); err == nil {
		t.Fatal("expected error for unset key")
	}
}

func TestStore_ProducerBinding(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	calls := 0
	err := s.Set(ctx, "t.dogs.all", datastore.Producer(func(ctx context.Context) (any, error) {
		calls++
		return []string{"dog1"}, nil
	}))
	if err != nil {
		t.Fatalf("Set producer: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Get(ctx, "t.dogs.all"); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if calls != 3 {
		t.Fatalf("expected producer invoked 3 times, got %d", calls)
	}
}

func TestStore_SetOverwritesProducerBinding(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_ = s.Set(ctx, "k", datastore.Producer(func(ctx context.Context) (any, error) { return "x", nil }))
	if err := s.Set(ctx, "k", "plain"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if data, ok := raw.([]byte); !ok || string(data) != `"plain"` {
		t.Fatalf("expected plain overwrite, got %v", raw)
	}
}

func TestStore_OpenBadPathErrors(t *testing.T) {
	if _, err := Open("/proc/does-not-exist/badger"); err == nil {
		t.Fatal("expected error opening badger at an invalid path")
	}
}
