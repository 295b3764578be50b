// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package datastore defines the opaque key-value transport the
// replication engine treats as an external collaborator (§1 Out of
// scope): any service exposing get(key)/set(key, value|producer-fn)
// semantics, with no native publish/subscribe requirement.
package datastore

import "context"

// Producer is a zero-argument callback bound to a key, invoked on every
// Get — the mechanism behind the Producer endpoint's "{prefix}.all"
// key. A Datastore implementation is responsible for distinguishing a
// stored Producer from a stored plain value.
type Producer func(ctx context.Context) (any, error)

// Datastore is the minimal transport contract the Producer endpoint
// writes to and the Consumer engine reads from. Implementations need
// not provide durability, encryption, or authentication (§1 Non-goals);
// they need only answer Get/Set reliably enough for the Consumer's own
// backoff to make progress.
type Datastore interface {
	// Get returns the value last Set at key, or invokes and returns the
	// result of a Producer bound to key. It errors if key has never
	// been Set.
	Get(ctx context.Context, key string) (any, error)

	// Set stores value at key — idempotent overwrite — or, if value is
	// a Producer, binds it so that future Gets invoke it.
	Set(ctx context.Context, key string, value any) error
}
