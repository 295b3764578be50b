// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package producer implements the Producer endpoint (§4.5): it binds a
// Set and one Pulse per configured cadence to well-known keys on a
// Datastore, exposing a class identity, a live snapshot, and one bundle
// key per cadence.
package producer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/replicate/datastore"
	"github.com/tomtom215/replicate/pulse"
	"github.com/tomtom215/replicate/set"
	"github.com/tomtom215/replicate/wire"
)

// Config configures a Producer endpoint.
type Config struct {
	// BasePath is the dot-separated keyspace prefix. May be empty.
	BasePath string

	// NodeName defaults to the lowercased, simply-pluralized class name
	// when empty (namespace derivation decision, SPEC_FULL.md §4.4).
	NodeName string

	// Cadences are the Pulse intervals to expose, one bundle key each.
	Cadences []time.Duration

	// AllowEmptyTransmissions is forwarded to every Pulse's AllowEmpty.
	AllowEmptyTransmissions bool

	// Collapse is forwarded to every Pulse's Collapse. Default true when
	// left nil (New fills it in).
	Collapse *bool

	// IncludeChecksums is forwarded to every Pulse's IncludeChecksums.
	IncludeChecksums bool

	// OnBundleTransmitted, if set, is called after every successful
	// write of a cadence's bundle to its datastore key, reporting the
	// cadence tag (e.g. "250ms") and the number of entries transmitted
	// — the hook internal/rmetrics.ObservePulseBundle is wired through.
	OnBundleTransmitted func(cadenceTag string, size int)
}

// Endpoint binds a Set to a Datastore per §4.5.
type Endpoint struct {
	ds     datastore.Datastore
	set    *set.Set
	cfg    Config
	prefix string

	mu      sync.Mutex
	pulses  []*pulse.Pulse
	running bool
}

func pluralize(className string) string {
	return strings.ToLower(className) + "s"
}

func derivePrefix(basePath, nodeName string) string {
	if basePath == "" {
		return nodeName
	}
	return basePath + "." + nodeName
}

// New constructs a Producer endpoint and immediately registers the
// classname/all/pulsars keys on ds (§4.5's "On construction").
func New(ctx context.Context, ds datastore.Datastore, s *set.Set, cfg Config) (*Endpoint, error) {
	if len(cfg.Cadences) == 0 {
		return nil, fmt.Errorf("%w: at least one cadence is required", wire.ErrInvalidArgument)
	}
	nodeName := cfg.NodeName
	if nodeName == "" {
		nodeName = pluralize(s.Class().Name)
	}
	if cfg.Collapse == nil {
		t := true
		cfg.Collapse = &t
	}

	e := &Endpoint{
		ds:     ds,
		set:    s,
		cfg:    cfg,
		prefix: derivePrefix(cfg.BasePath, nodeName),
	}

	if err := ds.Set(ctx, e.prefix+".classname", s.Class().Name); err != nil {
		return nil, fmt.Errorf("producer: register classname: %w", err)
	}
	if err := ds.Set(ctx, e.prefix+".all", datastore.Producer(func(ctx context.Context) (any, error) {
		items := s.All()
		snaps := make([]wire.ItemSnapshot, 0, len(items))
		for _, it := range items {
			snaps = append(snaps, it.Snapshot())
		}
		return snaps, nil
	})); err != nil {
		return nil, fmt.Errorf("producer: register all: %w", err)
	}

	initial := make(map[string][]string, len(cfg.Cadences))
	for _, c := range cfg.Cadences {
		initial[FormatTag(c)] = []string{}
	}
	if err := ds.Set(ctx, e.prefix+".pulsars", initial); err != nil {
		return nil, fmt.Errorf("producer: register pulsars: %w", err)
	}

	return e, nil
}

// Prefix returns the endpoint's derived keyspace prefix.
func (e *Endpoint) Prefix() string { return e.prefix }

// Start constructs one Pulse per configured cadence, wires each to write
// its bundle to "{prefix}.pulsars.{tag}", installs them as the Set's
// structured sinks, and starts them.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pulses := make([]*pulse.Pulse, 0, len(e.cfg.Cadences))
	sinks := make([]set.Sink, 0, len(e.cfg.Cadences))
	for _, cadence := range e.cfg.Cadences {
		tag := FormatTag(cadence)
		p, err := pulse.New(pulse.Config{
			Interval:         cadence,
			Collapse:         *e.cfg.Collapse,
			AllowEmpty:       e.cfg.AllowEmptyTransmissions,
			IncludeChecksums: e.cfg.IncludeChecksums,
		}, e.set)
		if err != nil {
			return fmt.Errorf("producer: cadence %s: %w", tag, err)
		}
		key := e.prefix + ".pulsars." + tag
		p.SetTransmit(func(bundle []string) error {
			if err := e.ds.Set(ctx, key, bundle); err != nil {
				return err
			}
			if e.cfg.OnBundleTransmitted != nil {
				e.cfg.OnBundleTransmitted(tag, len(bundle))
			}
			return nil
		})
		pulses = append(pulses, p)
		sinks = append(sinks, set.NewStructuredSink(p))
	}

	if err := e.set.SetTransmit(sinks...); err != nil {
		return fmt.Errorf("producer: %w", err)
	}
	e.pulses = pulses
	for _, p := range e.pulses {
		p.Start()
	}
	e.running = true
	return nil
}

// Stop stops all Pulses. Calling Start again afterward is legal.
func (e *Endpoint) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.pulses {
		p.Stop()
	}
	e.running = false
}

// Running reports whether Start has been called without a matching Stop.
func (e *Endpoint) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}
