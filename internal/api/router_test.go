package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ivr/gateway/internal/config"
	"ivr/gateway/internal/registry"
)

type fakeTransport struct{}

func (fakeTransport) Close(reason string) error { return nil }

func TestRootEndpoint(t *testing.T) {
	cfg := config.Load()
	reg := registry.New()
	srv := httptest.NewServer(NewRouter(NewHandlers(cfg, reg)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["app"] != cfg.App.Name {
		t.Fatalf("expected app %q, got %v", cfg.App.Name, body["app"])
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy status, got %v", body["status"])
	}
}

func TestHealthReportsRegistryState(t *testing.T) {
	cfg := config.Load()
	reg := registry.New()
	if _, err := reg.Connect(fakeTransport{}, "10.0.0.1", 1, nil, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv := httptest.NewServer(NewRouter(NewHandlers(cfg, reg)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["active_sessions"] != float64(1) {
		t.Fatalf("expected 1 active session, got %v", body["active_sessions"])
	}
	if body["shutting_down"] != false {
		t.Fatalf("expected shutting_down false, got %v", body["shutting_down"])
	}
}

func TestHealthDuringShutdown(t *testing.T) {
	cfg := config.Load()
	reg := registry.New()
	reg.BeginShutdown()
	srv := httptest.NewServer(NewRouter(NewHandlers(cfg, reg)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 during shutdown, got %d", resp.StatusCode)
	}
}

func TestUnknownPath404(t *testing.T) {
	cfg := config.Load()
	srv := httptest.NewServer(NewRouter(NewHandlers(cfg, registry.New())))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
