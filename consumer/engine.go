// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package consumer implements the Consumer engine (§4.6): a two-state
// (INITIAL/POLLING) reconnecting runloop that bootstraps a Set from a
// Producer endpoint's full snapshot, then polls its chosen pulsar cadence
// and applies incremental bundles, self-healing via backoff and resync.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/replicate/backoff"
	"github.com/tomtom215/replicate/datastore"
	"github.com/tomtom215/replicate/internal/rlog"
	"github.com/tomtom215/replicate/item"
	"github.com/tomtom215/replicate/producer"
	"github.com/tomtom215/replicate/set"
	"github.com/tomtom215/replicate/wire"
)

// State is the Consumer engine's runloop state (§4.6).
type State int

const (
	// StateInitial fetches classname, pulsars, and a full snapshot.
	StateInitial State = iota
	// StatePolling periodically fetches and applies the chosen pulsar's
	// incremental bundle.
	StatePolling
)

// String renders State for logging.
func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "initial"
}

// Config configures a Consumer engine.
type Config struct {
	// Datastore is the transport the engine reads from.
	Datastore datastore.Datastore

	// Path is the Producer endpoint's keyspace prefix ("{prefix}" in
	// "{prefix}.classname" etc).
	Path string

	// Class is the managed class descriptor; Class.Name is validated
	// against the remote ".classname" value in INITIAL.
	Class set.Class

	// Pulsar is the cadence tag this engine polls, e.g. "250ms". Must be
	// advertised in the remote ".pulsars" value.
	Pulsar string

	// RunloopInterval is how often the engine's internal ticker fires;
	// actual datastore polling for the pulsar cadence happens every
	// Pulsar-duration worth of ticks (§4.6). Defaults to 250ms.
	RunloopInterval time.Duration

	// BackoffSchedule defaults to backoff.DefaultSchedule().
	BackoffSchedule []time.Duration

	// ChecksumCacheSize bounds the recently-applied end_checksum
	// dedup cache. Defaults to 32.
	ChecksumCacheSize int

	// Metrics receives observability callbacks; defaults to a no-op.
	Metrics Metrics
}

// Engine is the Consumer side of the replication link: it owns a Set,
// drives it through the INITIAL/POLLING state machine, and exposes
// Start/Stop/Resync.
type Engine struct {
	ds       datastore.Datastore
	path     string
	pulsarMS int64
	set      *set.Set
	metrics  Metrics

	runloopInterval time.Duration
	backoff         *backoff.Backoff
	breaker         *gobreaker.CircuitBreaker[any]
	seen            *checksumCache

	mu    sync.Mutex
	state State
	ticks int64

	running  atomic.Bool
	inFlight atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}

	consecutiveConfigErrors int
}

// New constructs an Engine. The underlying Set is owned by the Engine and
// starts empty; use Set() to inspect it.
func New(cfg Config) (*Engine, error) {
	if cfg.Datastore == nil {
		return nil, fmt.Errorf("consumer: Datastore is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("consumer: Path is required")
	}
	if cfg.Class.Name == "" || cfg.Class.FromSnapshot == nil {
		return nil, fmt.Errorf("consumer: Class is required")
	}
	pulsarDuration, err := producer.ParseTag(cfg.Pulsar)
	if err != nil {
		return nil, fmt.Errorf("consumer: %w", err)
	}
	pulsarMS := pulsarDuration.Milliseconds()

	interval := cfg.RunloopInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	schedule := cfg.BackoffSchedule
	if schedule == nil {
		schedule = backoff.DefaultSchedule()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	cacheSize := cfg.ChecksumCacheSize
	if cacheSize <= 0 {
		cacheSize = 32
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: "consumer:" + cfg.Path,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Engine{
		ds:              cfg.Datastore,
		path:            cfg.Path,
		pulsarMS:        pulsarMS,
		set:             set.New(cfg.Class),
		metrics:         metrics,
		runloopInterval: interval,
		backoff:         backoff.New(schedule),
		breaker:         breaker,
		seen:            newChecksumCache(cacheSize),
		state:           StateInitial,
	}, nil
}

// Set returns the Engine's managed Set.
func (e *Engine) Set() *set.Set { return e.set }

// State returns the engine's current runloop state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start begins the runloop. It schedules the first tick runloopInterval
// in the future and never performs datastore I/O synchronously from
// Start itself.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.mu.Lock()
	e.state = StateInitial
	e.ticks = 0
	e.mu.Unlock()
	e.backoff.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx)
	return nil
}

// Stop halts the runloop and waits for any in-flight iteration to finish.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	e.cancel()
	<-e.done
	return nil
}

// Resync forces the engine back to StateInitial on its next tick,
// re-fetching classname/pulsars/full snapshot. It is the caller-invoked
// recovery path named throughout §4.6.1 (e.g. after a sustained checksum
// divergence).
func (e *Engine) Resync() error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	e.mu.Lock()
	from := e.state
	e.state = StateInitial
	e.ticks = 0
	e.mu.Unlock()
	e.backoff.Reset()
	if from != StateInitial {
		e.metrics.StateTransition(from, StateInitial)
	}
	return nil
}

// Serve implements the thejerf/suture/v4 Service interface, letting an
// Engine be supervised directly inside a suture.Supervisor tree.
func (e *Engine) Serve(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	_ = e.Stop()
	return ctx.Err()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.runloopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.running.Load() {
				return
			}
			if !e.inFlight.CompareAndSwap(false, true) {
				continue
			}
			e.step(ctx)
			e.inFlight.Store(false)
		}
	}
}

func (e *Engine) step(ctx context.Context) {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	var err error
	switch state {
	case StateInitial:
		err = e.stepInitial(ctx)
	case StatePolling:
		err = e.stepPolling(ctx)
	}

	if err != nil {
		rlog.Warn().Err(err).Str("path", e.path).Str("state", state.String()).Msg("consumer: iteration failed")
		if errorsIsConfigurationError(err) {
			e.consecutiveConfigErrors++
			e.metrics.ConfigurationError(e.consecutiveConfigErrors)
		}
		e.mu.Lock()
		if e.state != StateInitial {
			e.metrics.StateTransition(e.state, StateInitial)
		}
		e.state = StateInitial
		e.ticks = 0
		e.mu.Unlock()
		_ = e.backoff.Interval(ctx)
		e.metrics.BackoffStep(e.backoff.CurrentStep())
		return
	}
	e.consecutiveConfigErrors = 0
	e.backoff.Reset()
}

func (e *Engine) getWithBreaker(ctx context.Context, key string) (any, error) {
	return e.breaker.Execute(func() (any, error) { return e.ds.Get(ctx, key) })
}

func (e *Engine) stepInitial(ctx context.Context) error {
	rawName, err := e.getWithBreaker(ctx, e.path+".classname")
	if err != nil {
		return fmt.Errorf("%w: classname: %v", ErrTransport, err)
	}
	name, err := decodeClassName(rawName)
	if err != nil {
		return err
	}
	if name != e.set.Class().Name {
		return fmt.Errorf("%w: expected class %q, got %q", ErrConfigurationError, e.set.Class().Name, name)
	}

	rawPulsars, err := e.getWithBreaker(ctx, e.path+".pulsars")
	if err != nil {
		return fmt.Errorf("%w: pulsars: %v", ErrTransport, err)
	}
	hasTag, err := pulsarsHasTag(rawPulsars, e.pulsarTag())
	if err != nil {
		return err
	}
	if !hasTag {
		return fmt.Errorf("%w: pulsar tag %q not advertised at %s", ErrConfigurationError, e.pulsarTag(), e.path)
	}

	rawAll, err := e.getWithBreaker(ctx, e.path+".all")
	if err != nil {
		return fmt.Errorf("%w: all: %v", ErrTransport, err)
	}
	snaps, err := decodeSnapshots(rawAll)
	if err != nil {
		return err
	}
	items := make([]*item.Item, 0, len(snaps))
	for _, snap := range snaps {
		it, err := e.set.Class().FromSnapshot(snap)
		if err != nil {
			return fmt.Errorf("%w: materializing snapshot %s: %v", ErrTransport, snap.ID, err)
		}
		items = append(items, it)
	}
	if err := e.set.UpdateSetTo(items); err != nil {
		return fmt.Errorf("%w: converging set: %v", ErrTransport, err)
	}

	e.mu.Lock()
	e.state = StatePolling
	e.ticks = 0
	e.mu.Unlock()
	e.metrics.StateTransition(StateInitial, StatePolling)
	return nil
}

func (e *Engine) pulsarTag() string {
	return producer.FormatTag(time.Duration(e.pulsarMS) * time.Millisecond)
}

func (e *Engine) stepPolling(ctx context.Context) error {
	e.mu.Lock()
	e.ticks++
	due := e.ticks*e.runloopInterval.Milliseconds() >= e.pulsarMS
	if due {
		e.ticks = 0
	}
	e.mu.Unlock()
	if !due {
		return nil
	}

	raw, err := e.getWithBreaker(ctx, e.path+".pulsars."+e.pulsarTag())
	if err != nil {
		return fmt.Errorf("%w: bundle: %v", ErrTransport, err)
	}
	bundle, err := decodeBundle(raw)
	if err != nil {
		return err
	}
	e.applyBundle(bundle)
	return nil
}

func (e *Engine) applyBundle(bundle []string) {
	if len(bundle) == 0 {
		return
	}

	entries := bundle
	framing, framed := wire.ParseFraming([]byte(bundle[0]))
	if framed {
		if framing.EndChecksum == e.set.Checksum() {
			e.seen.Add(framing.EndChecksum)
			return
		}
		if e.seen.SeenRecently(framing.EndChecksum) {
			rlog.Warn().Str("path", e.path).Str("checksum", framing.EndChecksum).
				Msg("consumer: bundle end_checksum was previously observed but no longer matches local state, applying anyway")
		}
		if framing.StartChecksum != nil && *framing.StartChecksum != e.set.Checksum() {
			rlog.Warn().Str("path", e.path).Str("expected", *framing.StartChecksum).Str("actual", e.set.Checksum()).
				Msg("consumer: bundle start_checksum diverges from local state")
		}
		entries = bundle[1:]
	}

	for _, entry := range entries {
		if err := e.set.Receive([]byte(entry)); err != nil {
			rlog.Warn().Err(err).Str("path", e.path).Msg("consumer: failed to apply bundle entry")
		}
	}

	if framed {
		if framing.EndChecksum != e.set.Checksum() {
			rlog.Warn().Str("path", e.path).Str("expected", framing.EndChecksum).Str("actual", e.set.Checksum()).
				Msg("consumer: bundle end_checksum mismatch after apply")
			e.metrics.ChecksumMismatch()
		}
		e.seen.Add(framing.EndChecksum)
	}
}

func errorsIsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigurationError)
}
