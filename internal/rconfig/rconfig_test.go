// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package rconfig

import "testing"

func TestLoadProducerConfig_Defaults(t *testing.T) {
	cfg, err := LoadProducerConfig()
	if err != nil {
		t.Fatalf("LoadProducerConfig: %v", err)
	}
	if len(cfg.Cadences) == 0 {
		t.Error("expected default cadences")
	}
	if cfg.DatastorePath == "" {
		t.Error("expected default datastore path")
	}
}

func TestLoadProducerConfig_EnvOverride(t *testing.T) {
	t.Setenv("REPLICATE_PRODUCER_NODE_NAME", "widgets")
	t.Setenv("REPLICATE_PRODUCER_DATASTORE_PATH", "/tmp/widgets.badger")
	cfg, err := LoadProducerConfig()
	if err != nil {
		t.Fatalf("LoadProducerConfig: %v", err)
	}
	if cfg.NodeName != "widgets" {
		t.Errorf("expected env override node_name=widgets, got %q", cfg.NodeName)
	}
	if cfg.DatastorePath != "/tmp/widgets.badger" {
		t.Errorf("expected env override datastore_path, got %q", cfg.DatastorePath)
	}
}

func TestLoadConsumerConfig_RejectsMissingRequired(t *testing.T) {
	t.Setenv("REPLICATE_CONSUMER_PATH", "")
	t.Setenv("REPLICATE_CONSUMER_CLASS_NAME", "")
	t.Setenv("REPLICATE_CONSUMER_PULSAR", "")
	if _, err := LoadConsumerConfig(); err == nil {
		t.Fatal("expected validation error for missing required fields")
	}
}
