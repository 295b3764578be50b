// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Command replicatord is a runnable demo binary: it wires a Producer
// endpoint or a Consumer engine over badgerstore, loaded from
// internal/rconfig, logging through internal/rlog, instrumented by
// internal/rmetrics, and served alongside internal/radmin.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/replicate/consumer"
	"github.com/tomtom215/replicate/datastore/badgerstore"
	"github.com/tomtom215/replicate/internal/radmin"
	"github.com/tomtom215/replicate/internal/rconfig"
	"github.com/tomtom215/replicate/internal/rlog"
	"github.com/tomtom215/replicate/internal/rmetrics"
	"github.com/tomtom215/replicate/internal/rsuture"
	"github.com/tomtom215/replicate/producer"
	"github.com/tomtom215/replicate/set"
)

func main() {
	mode := flag.String("mode", "", "role to run: producer or consumer")
	flag.Parse()

	var err error
	switch *mode {
	case "producer":
		err = runProducer()
	case "consumer":
		err = runConsumer()
	default:
		err = fmt.Errorf("replicatord: -mode must be \"producer\" or \"consumer\", got %q", *mode)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSupervisor(name string) *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: rlog.NewSlogLogger()}
	return suture.New(name, suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
}

func runProducer() error {
	cfg, err := rconfig.LoadProducerConfig()
	if err != nil {
		return err
	}
	rlog.Init(rlog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ds, err := badgerstore.Open(cfg.DatastorePath)
	if err != nil {
		return fmt.Errorf("replicatord: open datastore: %w", err)
	}
	defer ds.Close()

	class := set.NewClass("Item", []string{"value"})
	s := set.New(class)

	cadences := make([]time.Duration, 0, len(cfg.Cadences))
	for _, tag := range cfg.Cadences {
		d, err := producer.ParseTag(tag)
		if err != nil {
			return fmt.Errorf("replicatord: cadence %q: %w", tag, err)
		}
		cadences = append(cadences, d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep, err := producer.New(ctx, ds, s, producer.Config{
		BasePath:                cfg.BasePath,
		NodeName:                cfg.NodeName,
		Cadences:                cadences,
		AllowEmptyTransmissions: cfg.AllowEmptyTransmissions,
		IncludeChecksums:        cfg.IncludeChecksums,
		OnBundleTransmitted:     rmetrics.ObservePulseBundle,
	})
	if err != nil {
		return fmt.Errorf("replicatord: producer.New: %w", err)
	}
	if err := ep.Start(ctx); err != nil {
		return fmt.Errorf("replicatord: producer.Start: %w", err)
	}
	defer ep.Stop()

	rlog.Info().Str("prefix", ep.Prefix()).Str("addr", cfg.AdminAddr).Msg("producer endpoint started")

	return serveUntilSignal(ctx, cancel, "replicatord-producer", nil, cfg.AdminAddr)
}

func runConsumer() error {
	cfg, err := rconfig.LoadConsumerConfig()
	if err != nil {
		return err
	}
	rlog.Init(rlog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ds, err := badgerstore.Open(cfg.DatastorePath)
	if err != nil {
		return fmt.Errorf("replicatord: open datastore: %w", err)
	}
	defer ds.Close()

	class := set.NewClass(cfg.ClassName, []string{"value"})
	metrics := rmetrics.NewConsumerMetrics(cfg.Path)

	eng, err := consumer.New(consumer.Config{
		Datastore:         ds,
		Path:              cfg.Path,
		Class:             class,
		Pulsar:            cfg.Pulsar,
		RunloopInterval:   cfg.RunloopInterval,
		ChecksumCacheSize: cfg.ChecksumCacheSize,
		Metrics:           metrics,
	})
	if err != nil {
		return fmt.Errorf("replicatord: consumer.New: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rlog.Info().Str("path", cfg.Path).Str("class", cfg.ClassName).Str("addr", cfg.AdminAddr).Msg("consumer engine starting")

	return serveUntilSignal(ctx, cancel, "replicatord-consumer", eng, cfg.AdminAddr)
}

func serveUntilSignal(ctx context.Context, cancel context.CancelFunc, name string, eng *consumer.Engine, adminAddr string) error {
	sup := newSupervisor(name)

	if eng != nil {
		sup.Add(eng)
	}

	var resyncer radmin.Resyncer
	if eng != nil {
		resyncer = eng
	}
	adminServer := &http.Server{Addr: adminAddr, Handler: radmin.Router(resyncer)}
	sup.Add(rsuture.NewHTTPServerService("admin-http", adminServer, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		rlog.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := sup.ServeBackground(ctx)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			rlog.Error().Err(err).Msg("supervisor error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			rlog.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	rlog.Info().Msg("replicatord stopped")
	return nil
}
