// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

// Package rsuture adapts an *http.Server (replicate's admin surface) into
// a thejerf/suture/v4 service so cmd/replicatord can run it under one
// supervised process. A Consumer engine needs no adapter here: it
// implements Serve itself.
package rsuture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServerService wraps an *http.Server's blocking ListenAndServe into
// suture's context-aware Serve.
type HTTPServerService struct {
	server          *http.Server
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService wraps server for supervision. shutdownTimeout
// bounds graceful drain on Serve's context cancellation.
func NewHTTPServerService(name string, server *http.Server, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout, name: name}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rsuture: http server %s failed: %w", h.name, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rsuture: http server %s shutdown: %w", h.name, err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's log messages.
func (h *HTTPServerService) String() string { return h.name }
