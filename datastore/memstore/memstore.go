// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package memstore is a zero-dependency, in-memory Datastore, used by
// the engine's own tests and suitable as a default for small
// single-process deployments.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/replicate/datastore"
)

// Store is an in-memory datastore.Datastore backed by a map and a
// mutex, following the locking discipline the teacher's internal/cache
// package uses for its own maps.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New constructs an empty Store.
func New() *Store {
	return &Store{values: make(map[string]any)}
}

// Get implements datastore.Datastore.
func (s *Store) Get(ctx context.Context, key string) (any, error) {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memstore: key %q not set", key)
	}
	if fn, isProducer := v.(datastore.Producer); isProducer {
		return fn(ctx)
	}
	return v, nil
}

// Set implements datastore.Datastore.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

var _ datastore.Datastore = (*Store)(nil)
