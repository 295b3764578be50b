// replicate - checksum-verified object replication over key-value transport
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replicate

package radmin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeResyncer struct {
	err   error
	calls int
}

func (f *fakeResyncer) Resync() error {
	f.calls++
	return f.err
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(Router(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(Router(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestResync_NoEngineConfigured(t *testing.T) {
	srv := httptest.NewServer(Router(nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/resync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /resync: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestResync_Success(t *testing.T) {
	fr := &fakeResyncer{}
	srv := httptest.NewServer(Router(fr))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/resync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /resync: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if fr.calls != 1 {
		t.Errorf("expected 1 Resync call, got %d", fr.calls)
	}
}

func TestResync_EngineError(t *testing.T) {
	fr := &fakeResyncer{err: errors.New("not running")}
	srv := httptest.NewServer(Router(fr))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/resync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /resync: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}
