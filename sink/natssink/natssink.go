// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

//go:build nats

// Package natssink is an optional auxiliary transmit sink: a second
// downstream, alongside a Producer endpoint's required datastore-key
// sink, that republishes each emitted Pulse bundle onto a NATS subject
// for low-latency push notification. It never replaces the pull-based
// core — a consumer with no NATS connectivity still converges by
// polling the datastore.
package natssink

import (
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/goccy/go-json"
)

// Config configures a Sink.
type Config struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222".
	URL string

	// Subject is the NATS subject each bundle is published to.
	Subject string

	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
}

// DefaultConfig fills in the reconnection knobs the teacher's own
// publisher configures explicitly.
func DefaultConfig(url, subject string) Config {
	return Config{
		URL:             url,
		Subject:         subject,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 * 1024 * 1024,
	}
}

// Sink publishes each Pulse bundle it's handed (via Transmit, matching
// pulse.TransmitFunc's signature) as one JSON-array NATS message.
type Sink struct {
	cfg       Config
	publisher message.Publisher

	mu     sync.RWMutex
	closed bool
}

// New dials NATS through a Watermill publisher and returns a ready Sink.
func New(cfg Config) (*Sink, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
	}

	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmnats.NATSMarshaler{},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("natssink: create publisher: %w", err)
	}

	return &Sink{cfg: cfg, publisher: pub}, nil
}

// Transmit implements pulse.TransmitFunc: it JSON-encodes bundle as a
// single message and publishes it to the configured subject.
func (s *Sink) Transmit(bundle []string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("natssink: sink is closed")
	}
	s.mu.RUnlock()

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("natssink: marshal bundle: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	return s.publisher.Publish(s.cfg.Subject, msg)
}

// Close shuts down the underlying NATS connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.publisher.Close()
}
