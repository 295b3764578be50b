// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package rconfig loads ProducerConfig and ConsumerConfig with the
// teacher's own layering: struct defaults, then an optional YAML file,
// then environment variables, unmarshaled by koanf and checked with
// go-playground/validator struct tags.
package rconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the default config-file search, mirroring
// internal/config's CONFIG_PATH.
const ConfigPathEnvVar = "REPLICATE_CONFIG_PATH"

// DefaultConfigPaths lists YAML config file candidates, first found wins.
var DefaultConfigPaths = []string{"replicate.yaml", "replicate.yml", "/etc/replicate/replicate.yaml"}

// ProducerConfig configures the demo binary's Producer endpoint.
type ProducerConfig struct {
	BasePath                string        `koanf:"base_path"`
	NodeName                string        `koanf:"node_name"`
	Cadences                []string      `koanf:"cadences" validate:"required,min=1,dive,required"`
	AllowEmptyTransmissions bool          `koanf:"allow_empty_transmissions"`
	IncludeChecksums        bool          `koanf:"include_checksums"`
	DatastorePath           string        `koanf:"datastore_path" validate:"required"`
	AdminAddr               string        `koanf:"admin_addr" validate:"required"`
	LogLevel                string        `koanf:"log_level"`
	LogFormat               string        `koanf:"log_format"`
}

// ConsumerConfig configures the demo binary's Consumer engine.
type ConsumerConfig struct {
	Path              string        `koanf:"path" validate:"required"`
	ClassName         string        `koanf:"class_name" validate:"required"`
	Pulsar            string        `koanf:"pulsar" validate:"required"`
	RunloopInterval   time.Duration `koanf:"runloop_interval"`
	DatastorePath     string        `koanf:"datastore_path" validate:"required"`
	ChecksumCacheSize int           `koanf:"checksum_cache_size"`
	AdminAddr         string        `koanf:"admin_addr" validate:"required"`
	LogLevel          string        `koanf:"log_level"`
	LogFormat         string        `koanf:"log_format"`
}

func defaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Cadences:      []string{"250ms", "5s"},
		DatastorePath: "./data/producer.badger",
		AdminAddr:     ":8080",
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Pulsar:          "250ms",
		RunloopInterval: 250 * time.Millisecond,
		DatastorePath:   "./data/consumer.badger",
		AdminAddr:       ":8081",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// load runs the defaults -> file -> env layering shared by both configs
// and unmarshals into dst, envPrefix distinguishing PRODUCER_/CONSUMER_
// environment variables.
func load(defaults any, dst any, envPrefix string) error {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return fmt.Errorf("rconfig: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("rconfig: load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(s)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return fmt.Errorf("rconfig: load environment: %w", err)
	}

	if err := k.Unmarshal("", dst); err != nil {
		return fmt.Errorf("rconfig: unmarshal: %w", err)
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("rconfig: validation failed: %w", err)
	}
	return nil
}

// LoadProducerConfig loads and validates a ProducerConfig.
func LoadProducerConfig() (*ProducerConfig, error) {
	cfg := &ProducerConfig{}
	if err := load(defaultProducerConfig(), cfg, "REPLICATE_PRODUCER_"); err != nil {
		return nil, err
	}
	if err := validateStruct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConsumerConfig loads and validates a ConsumerConfig.
func LoadConsumerConfig() (*ConsumerConfig, error) {
	cfg := &ConsumerConfig{}
	if err := load(defaultConsumerConfig(), cfg, "REPLICATE_CONSUMER_"); err != nil {
		return nil, err
	}
	if err := validateStruct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
