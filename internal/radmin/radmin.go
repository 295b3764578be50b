// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package radmin is the Consumer's operator HTTP surface: GET /healthz,
// GET /metrics (Prometheus text exposition), and POST /resync, the
// mechanism §4.6 names as "operator-triggered resync" without
// specifying.
package radmin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resyncer is the subset of *consumer.Engine the admin surface needs.
// Declared locally rather than imported from consumer to keep this
// package usable by a Producer-only binary with no consumer import.
type Resyncer interface {
	Resync() error
}

// Router builds the chi.Router for the admin HTTP surface. engine may
// be nil, in which case /resync reports 503 — useful for a Producer-only
// deployment with no Consumer engine to resync.
func Router(engine Resyncer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/resync", handleResync(engine))

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func handleResync(engine Resyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			http.Error(w, "no consumer engine configured", http.StatusServiceUnavailable)
			return
		}
		if err := engine.Resync(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "resync scheduled"})
	}
}
