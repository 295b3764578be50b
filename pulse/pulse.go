// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package pulse implements the event coalescer and periodic emitter:
// it consumes Set events via the StructuredSink contract, collapses them
// into bounded bundles, and emits those bundles on a fixed cadence,
// optionally framed with start/end set checksums (§4.4).
package pulse

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/replicate/internal/rlog"
	"github.com/tomtom215/replicate/item"
	"github.com/tomtom215/replicate/wire"
)

// ErrInvalidArgument is returned for out-of-range configuration, e.g. an
// interval in (0, 100ms) (§4.4, §6.3).
var ErrInvalidArgument = errors.New("pulse: invalid argument")

// MinNonZeroInterval is the shortest cadence the Pulse's timer accepts,
// other than 0 (disabled).
const MinNonZeroInterval = 100 * time.Millisecond

// ChecksumSource lets a Pulse learn its Set's current checksum through a
// narrow interface instead of a dependency on package set; *set.Set
// satisfies it.
type ChecksumSource interface {
	Checksum() string
}

// TransmitFunc delivers one emitted bundle — the ordered payload strings
// produced by one Trigger — to a downstream destination (typically a
// Producer endpoint's datastore key).
type TransmitFunc func(bundle []string) error

// Config configures a Pulse.
type Config struct {
	// Interval, if > 0, installs a repeating timer that calls Trigger.
	// Must be 0 or >= MinNonZeroInterval.
	Interval time.Duration

	// Collapse enables the coalescing rules of §4.4. Default true.
	Collapse bool

	// AllowEmpty permits emitting an empty bundle. Default true.
	AllowEmpty bool

	// IncludeChecksums prepends a framing record to each bundle.
	// Default false.
	IncludeChecksums bool
}

// DefaultConfig returns collapse=true, allowEmpty=true,
// includeChecksums=false, interval=0 (timer disabled).
func DefaultConfig() Config {
	return Config{Collapse: true, AllowEmpty: true}
}

type queueEntry struct {
	payload   string
	eventName string
	property  string
	itemID    string
	oldValue  *wire.Scalar
}

// Pulse coalesces a stream of Set events into a bounded bundle, emitted
// on a fixed cadence. It implements set.StructuredSink via Queue.
type Pulse struct {
	mu     sync.Mutex
	cfg    Config
	source ChecksumSource
	sinks  []TransmitFunc

	queue         []*queueEntry // nil entries mark deletions
	addedIndex    map[string]int
	changesByItem map[string][]int // itemID -> queue indices of its live changed entries
	startChecksum *string

	timer *time.Timer
	stop  chan struct{}
}

// New constructs a Pulse against the given checksum source (typically
// the owning Set).
func New(cfg Config, source ChecksumSource) (*Pulse, error) {
	if cfg.Interval != 0 && cfg.Interval < MinNonZeroInterval {
		return nil, fmt.Errorf("%w: interval %s is below the %s minimum", ErrInvalidArgument, cfg.Interval, MinNonZeroInterval)
	}
	return &Pulse{
		cfg:           cfg,
		source:        source,
		addedIndex:    make(map[string]int),
		changesByItem: make(map[string][]int),
	}, nil
}

// SetTransmit replaces the Pulse's downstream payload-function sinks.
// Passing none disables output.
func (p *Pulse) SetTransmit(sinks ...TransmitFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = sinks
}

// Start installs a repeating timer if Interval > 0. Calling Start while
// already running stops the previous timer first.
func (p *Pulse) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if p.cfg.Interval <= 0 {
		return
	}
	p.stop = make(chan struct{})
	stop := p.stop
	interval := p.cfg.Interval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.Trigger()
			}
		}
	}()
}

// Stop cancels the timer, if any.
func (p *Pulse) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Pulse) stopLocked() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

// Queue implements set.StructuredSink. eventName is one of
// "added"/"removed"/"changed"; change is required for "changed" and
// ignored otherwise.
func (p *Pulse) Queue(eventName string, it *item.Item, change *item.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Collapse {
		env := p.envelope(eventName, it, change)
		payload, err := wire.Marshal(env)
		if err != nil {
			return err
		}
		p.queue = append(p.queue, &queueEntry{payload: string(payload)})
		return nil
	}

	if len(p.liveEntries()) == 0 && p.startChecksum == nil && p.cfg.IncludeChecksums && p.source != nil {
		sum := p.source.Checksum()
		p.startChecksum = &sum
	}

	switch eventName {
	case "added":
		env := p.envelope(eventName, it, change)
		payload, err := wire.Marshal(env)
		if err != nil {
			return err
		}
		p.queue = append(p.queue, &queueEntry{payload: string(payload), eventName: eventName, itemID: it.ID()})
		p.addedIndex[it.ID()] = len(p.queue) - 1
	case "removed":
		if idx, ok := p.addedIndex[it.ID()]; ok {
			p.queue[idx] = nil
			delete(p.addedIndex, it.ID())
		} else {
			env := p.envelope(eventName, it, change)
			payload, err := wire.Marshal(env)
			if err != nil {
				return err
			}
			p.queue = append(p.queue, &queueEntry{payload: string(payload), eventName: eventName, itemID: it.ID()})
		}
		for _, idx := range p.changesByItem[it.ID()] {
			p.queue[idx] = nil
		}
		delete(p.changesByItem, it.ID())
	case "changed":
		if change == nil {
			return fmt.Errorf("%w: changed event requires a change", ErrInvalidArgument)
		}
		oldValue := change.OldValue
		for _, idx := range p.changesByItem[it.ID()] {
			entry := p.queue[idx]
			if entry == nil || entry.property != change.Name {
				continue
			}
			if entry.oldValue != nil {
				oldValue = *entry.oldValue
			}
			p.queue[idx] = nil
		}
		live := p.changesByItem[it.ID()]
		live = compactLive(live, p.queue)
		propagated := *change
		propagated.OldValue = oldValue

		env := p.envelope(eventName, it, &propagated)
		payload, err := wire.Marshal(env)
		if err != nil {
			return err
		}
		entry := &queueEntry{
			payload:   string(payload),
			eventName: eventName,
			property:  change.Name,
			itemID:    it.ID(),
			oldValue:  &oldValue,
		}
		p.queue = append(p.queue, entry)
		live = append(live, len(p.queue)-1)
		p.changesByItem[it.ID()] = live
	default:
		return fmt.Errorf("%w: %q", ErrInvalidArgument, eventName)
	}
	return nil
}

func compactLive(live []int, queue []*queueEntry) []int {
	out := live[:0]
	for _, idx := range live {
		if queue[idx] != nil {
			out = append(out, idx)
		}
	}
	return out
}

func (p *Pulse) envelope(eventName string, it *item.Item, change *item.Change) wire.Envelope {
	switch eventName {
	case "added":
		snap := it.Snapshot()
		return wire.Envelope{EventName: wire.EventAdded, Item: &snap, ItemID: it.ID()}
	case "removed":
		return wire.Envelope{EventName: wire.EventRemoved, ItemID: it.ID()}
	case "changed":
		c := &wire.Change{Property: change.Name, NewValue: change.NewValue}
		ov := change.OldValue
		c.OldValue = &ov
		if change.Named {
			ts := wire.IsoInstant(change.NewTimestamp)
			c.NewTimestamp = &ts
		}
		return wire.Envelope{EventName: wire.EventChanged, ItemID: it.ID(), Change: c}
	default:
		return wire.Envelope{}
	}
}

func (p *Pulse) liveEntries() []*queueEntry {
	var out []*queueEntry
	for _, e := range p.queue {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Trigger composes and emits the current bundle, then clears state. It
// runs on the timer tick but may also be called manually (e.g. for
// deterministic tests).
func (p *Pulse) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.sinks) == 0 {
		p.clearLocked()
		return
	}

	live := p.liveEntries()
	bundle := make([]string, 0, len(live)+1)
	for _, e := range live {
		bundle = append(bundle, e.payload)
	}

	if len(bundle) == 0 && !p.cfg.AllowEmpty {
		p.clearLocked()
		return
	}

	if p.cfg.IncludeChecksums && p.source != nil {
		start := p.startChecksum
		if start == nil {
			sum := p.source.Checksum()
			start = &sum
		}
		end := p.source.Checksum()
		framing := wire.Envelope{EventName: wire.EventComment, Metadata: true, StartChecksum: start, EndChecksum: end}
		payload, err := wire.Marshal(framing)
		if err == nil {
			bundle = append([]string{string(payload)}, bundle...)
		} else {
			rlog.Warn().Err(err).Msg("pulse: failed to marshal framing record")
		}
	}

	for _, sink := range p.sinks {
		if sink == nil {
			continue
		}
		if err := sink(bundle); err != nil {
			rlog.Warn().Err(err).Msg("pulse: transmit sink returned error")
		}
	}

	p.clearLocked()
}

func (p *Pulse) clearLocked() {
	p.queue = nil
	p.addedIndex = make(map[string]int)
	p.changesByItem = make(map[string][]int)
	p.startChecksum = nil
}
