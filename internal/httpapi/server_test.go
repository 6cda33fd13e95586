package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"modeldash/internal/mutation"
	"modeldash/internal/view"
	"modeldash/pkg/types"
)

type mockService struct {
	installed []types.InstalledModel
	running   []types.RunningModel
	status    types.StatusResponse
	ready     bool
	detail    types.DetailRecord
	showErr   error
	mutErr    error
	shown     string
	refreshed int
	hub       *view.Hub
}

func (m *mockService) Installed() []types.InstalledModel { return m.installed }
func (m *mockService) Running() []types.RunningModel     { return m.running }
func (m *mockService) Status() types.StatusResponse      { return m.status }
func (m *mockService) Ready() bool                       { return m.ready }
func (m *mockService) Show(ctx context.Context, name string) (types.DetailRecord, error) {
	m.shown = name
	return m.detail, m.showErr
}
func (m *mockService) Delete(ctx context.Context, name string) (*mutation.Mutation, error) {
	return nil, m.mutErr
}
func (m *mockService) Pull(ctx context.Context, name string) (*mutation.Mutation, error) {
	return nil, m.mutErr
}
func (m *mockService) Create(ctx context.Context, name, modelfile string) (*mutation.Mutation, error) {
	return nil, m.mutErr
}
func (m *mockService) Refresh(ctx context.Context) types.StatusResponse {
	m.refreshed++
	return m.status
}
func (m *mockService) Subscribe(buffer int) (<-chan types.Event, func()) {
	if m.hub == nil {
		m.hub = view.NewHub()
	}
	return m.hub.Subscribe(buffer)
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{installed: []types.InstalledModel{{Name: "a"}, {Name: "b"}}}
	w := do(t, NewMux(svc), http.MethodGet, "/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}
}

func TestRunningHandler_EmptyIsArray(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/running", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"models":[]`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{OK: true, Message: "Refreshed successfully at 10:00:00"}}
	w := do(t, NewMux(svc), http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !body.OK || body.Message != svc.status.Message {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRefreshHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{OK: false, Message: "Failed refresh at 10:00:00"}}
	w := do(t, NewMux(svc), http.MethodPost, "/refresh", nil)
	if w.Code != http.StatusOK || svc.refreshed != 1 {
		t.Fatalf("status=%d refreshed=%d", w.Code, svc.refreshed)
	}
	if !strings.Contains(w.Body.String(), "Failed refresh") {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestShow_NameWithSlashAndTag(t *testing.T) {
	svc := &mockService{detail: types.DetailRecord{Name: "library/llama3:8b"}}
	w := do(t, NewMux(svc), http.MethodGet, "/models/library/llama3:8b", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if svc.shown != "library/llama3:8b" {
		t.Fatalf("shown=%q", svc.shown)
	}
}

func TestReadyz(t *testing.T) {
	w := do(t, NewMux(&mockService{ready: true}), http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "waiting") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPull_BadJSON(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/models/pull", bytes.NewBufferString("not-json"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPull_UnsupportedMediaType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/models/pull", bytes.NewBufferString(`{"model":"a"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestContentTypeCaseInsensitive(t *testing.T) {
	svc := &mockService{mutErr: mutation.ErrInvalid("please enter a model name")}
	req := httptest.NewRequest(http.MethodPost, "/models/pull", bytes.NewBufferString(`{"model":""}`))
	req.Header.Set("Content-Type", "Application/JSON; charset=utf-8")
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, req)
	// reaches the service, which rejects the empty name
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "please enter a model name") {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreate_BodyTooLarge(t *testing.T) {
	defer SetMaxBodyBytes(0)
	SetMaxBodyBytes(64)
	big := `{"model":"m","modelfile":"` + strings.Repeat("a", 128) + `"}`
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/models/create", bytes.NewBufferString(big))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too-large body, got %d", w.Code)
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	SetCORSOptions(true, []string{"*"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected CORS header Access-Control-Allow-Origin to be set, got empty")
	}
}

func TestSetMaxBodyBytes_DefaultWhenNonPositive(t *testing.T) {
	SetMaxBodyBytes(-1)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(1234)
	if maxBodyBytes != 1234 {
		t.Fatalf("expected 1234, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(0)
}
