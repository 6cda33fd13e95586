// Package backendtest provides an in-memory fake of the model daemon's HTTP
// API for tests.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"time"

	"modeldash/pkg/types"
)

// Server is a fake daemon. Zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	installed map[string]types.InstalledModel
	running   map[string]types.RunningModel
	failList  int
	failPS    int
	dupList   bool
	gates     map[string]chan struct{}
	progress  []types.ProgressEvent
	streamErr string
	calls     map[string]int
}

// New starts a fake daemon. It is closed with t.Cleanup by the caller.
func New() *Server {
	s := &Server{
		installed: make(map[string]types.InstalledModel),
		running:   make(map[string]types.RunningModel),
		gates:     make(map[string]chan struct{}),
		calls:     make(map[string]int),
		progress: []types.ProgressEvent{
			{Status: "pulling manifest"},
			{Status: "downloading", Digest: "sha256:abc", Completed: 50, Total: 100},
			{Status: "downloading", Digest: "sha256:abc", Completed: 100, Total: 100},
			{Status: "success"},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/tags", s.handleTags)
	mux.HandleFunc("GET /api/ps", s.handlePS)
	mux.HandleFunc("POST /api/show", s.handleShow)
	mux.HandleFunc("DELETE /api/delete", s.handleDelete)
	mux.HandleFunc("POST /api/pull", s.handlePull)
	mux.HandleFunc("POST /api/create", s.handleCreate)
	s.Server = httptest.NewServer(mux)
	return s
}

// Installed adds or replaces installed models.
func (s *Server) Installed(models ...types.InstalledModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		s.installed[m.Name] = m
	}
}

// Running adds or replaces running models.
func (s *Server) Running(models ...types.RunningModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		s.running[m.Name] = m
	}
}

// Has reports whether name is installed.
func (s *Server) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.installed[name]
	return ok
}

// FailList makes the next n /api/tags calls answer 500.
func (s *Server) FailList(n int) {
	s.mu.Lock()
	s.failList = n
	s.mu.Unlock()
}

// FailPS makes the next n /api/ps calls answer 500.
func (s *Server) FailPS(n int) {
	s.mu.Lock()
	s.failPS = n
	s.mu.Unlock()
}

// DuplicateList makes /api/tags repeat its first entry.
func (s *Server) DuplicateList(on bool) {
	s.mu.Lock()
	s.dupList = on
	s.mu.Unlock()
}

// Gate blocks the next call of op ("tags", "delete", "pull", "create") until
// the returned release func is called.
func (s *Server) Gate(op string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[op] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Progress sets the lines streamed by pull and create.
func (s *Server) Progress(events ...types.ProgressEvent) {
	s.mu.Lock()
	s.progress = events
	s.mu.Unlock()
}

// StreamError makes pull and create end with an error line.
func (s *Server) StreamError(msg string) {
	s.mu.Lock()
	s.streamErr = msg
	s.mu.Unlock()
}

// Calls returns how many times op was served.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Server) enter(op string) {
	s.mu.Lock()
	s.calls[op]++
	gate := s.gates[op]
	delete(s.gates, op)
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

type details struct {
	Format            string   `json:"format,omitempty"`
	Family            string   `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size,omitempty"`
	QuantizationLevel string   `json:"quantization_level,omitempty"`
}

type listModel struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	Details    details   `json:"details"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": "0.0.0-fake"})
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	s.enter("tags")
	s.mu.Lock()
	if s.failList > 0 {
		s.failList--
		s.mu.Unlock()
		writeErr(w, http.StatusInternalServerError, "list failed")
		return
	}
	names := make([]string, 0, len(s.installed))
	for k := range s.installed {
		names = append(names, k)
	}
	slices.Sort(names)
	out := make([]listModel, 0, len(names)+1)
	for _, n := range names {
		m := s.installed[n]
		out = append(out, listModel{
			Name: m.Name, Model: m.Name, ModifiedAt: m.ModifiedAt, Size: m.Size, Digest: m.Digest,
			Details: details{m.Format, m.Family, m.Families, m.ParameterSize, m.QuantizationLevel},
		})
	}
	if s.dupList && len(out) > 0 {
		out = append(out, out[0])
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

func (s *Server) handlePS(w http.ResponseWriter, _ *http.Request) {
	s.enter("ps")
	s.mu.Lock()
	if s.failPS > 0 {
		s.failPS--
		s.mu.Unlock()
		writeErr(w, http.StatusInternalServerError, "ps failed")
		return
	}
	out := make([]types.RunningModel, 0, len(s.running))
	for _, m := range s.running {
		out = append(out, m)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b types.RunningModel) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

type modelReq struct {
	Model     string `json:"model"`
	Modelfile string `json:"modelfile"`
}

func decode(w http.ResponseWriter, r *http.Request) (modelReq, bool) {
	var req modelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeErr(w, http.StatusBadRequest, "model is required")
		return req, false
	}
	return req, true
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	s.enter("show")
	req, ok := decode(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	m, found := s.installed[req.Model]
	s.mu.Unlock()
	if !found {
		writeErr(w, http.StatusNotFound, "model '"+req.Model+"' not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modelfile":   "FROM " + m.Name,
		"parameters":  "stop <|eot|>",
		"template":    "{{ .Prompt }}",
		"license":     "MIT",
		"modified_at": m.ModifiedAt,
		"details":     details{m.Format, m.Family, m.Families, m.ParameterSize, m.QuantizationLevel},
		"model_info":  map[string]any{"general.architecture": m.Family},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.enter("delete")
	req, ok := decode(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	_, found := s.installed[req.Model]
	delete(s.installed, req.Model)
	s.mu.Unlock()
	if !found {
		writeErr(w, http.StatusNotFound, "model '"+req.Model+"' not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	s.enter("pull")
	req, ok := decode(w, r)
	if !ok {
		return
	}
	s.streamProgress(w, req.Model)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.enter("create")
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if req.Modelfile == "" {
		writeErr(w, http.StatusBadRequest, "modelfile is required")
		return
	}
	s.streamProgress(w, req.Model)
}

func (s *Server) streamProgress(w http.ResponseWriter, name string) {
	s.mu.Lock()
	events := slices.Clone(s.progress)
	streamErr := s.streamErr
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	for _, ev := range events {
		_ = enc.Encode(ev)
		flush()
	}
	if streamErr != "" {
		_ = enc.Encode(map[string]string{"error": streamErr})
		flush()
		return
	}
	s.mu.Lock()
	s.installed[name] = types.InstalledModel{Name: name, Size: 100, Digest: "sha256:" + name, ModifiedAt: time.Now().UTC().Truncate(time.Second)}
	s.mu.Unlock()
}
