package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modeldash/internal/backend"
	"modeldash/internal/backend/backendtest"
	"modeldash/internal/httpapi"
	"modeldash/internal/manager"
)

type stack struct {
	daemon *backendtest.Server
	mgr    *manager.Manager
	srv    *httptest.Server
}

// newStack wires fake daemon -> client -> manager -> HTTP API.
func newStack(t *testing.T, cfg manager.ManagerConfig) *stack {
	t.Helper()
	daemon := backendtest.New()
	t.Cleanup(daemon.Close)
	cfg.Backend = backend.NewClient(backend.ClientConfig{BaseURL: daemon.URL, Logger: zerolog.Nop()})
	cfg.BackendURL = daemon.URL
	cfg.Logger = zerolog.Nop()
	mgr := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})
	return &stack{daemon: daemon, mgr: mgr, srv: srv}
}

func (s *stack) do(t *testing.T, method, path string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
