// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package badgerstore is a BadgerDB-backed datastore.Datastore: a
// durable, embedded concrete instance of the "unreliable, request/
// response key-value transport" §1 describes as an external
// collaborator. Badger itself only stores bytes, so a Producer bound to
// a key (e.g. the Producer endpoint's "{prefix}.all") is kept in an
// in-process registry instead of being serialized.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/replicate/datastore"
)

// Store implements datastore.Datastore over an embedded BadgerDB
// instance.
type Store struct {
	db *badger.DB

	mu        sync.RWMutex
	producers map[string]datastore.Producer
}

// Open opens (creating if necessary) a BadgerDB instance rooted at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", path, err)
	}
	return &Store{db: db, producers: make(map[string]datastore.Producer)}, nil
}

// Close releases the underlying BadgerDB instance.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements datastore.Datastore. A key bound to a Producer (via
// Set) invokes it; otherwise the stored JSON-encoded value is returned
// as raw bytes, for a caller to decode.
func (s *Store) Get(ctx context.Context, key string) (any, error) {
	s.mu.RLock()
	fn, isProducer := s.producers[key]
	s.mu.RUnlock()
	if isProducer {
		return fn(ctx)
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("badgerstore: key %q not set", key)
		}
		if err != nil {
			return err
		}
		return it.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set implements datastore.Datastore. A datastore.Producer value is
// bound into the in-process registry instead of being written to
// Badger; any other value is JSON-encoded and stored, overwriting any
// prior Producer binding at key.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if fn, ok := value.(datastore.Producer); ok {
		s.mu.Lock()
		s.producers[key] = fn
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	delete(s.producers, key)
	s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal %q: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

var _ datastore.Datastore = (*Store)(nil)
