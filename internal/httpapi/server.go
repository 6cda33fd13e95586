package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modeldash/internal/mutation"
	"modeldash/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Installed() []types.InstalledModel
	Running() []types.RunningModel
	Show(ctx context.Context, name string) (types.DetailRecord, error)
	Delete(ctx context.Context, name string) (*mutation.Mutation, error)
	Pull(ctx context.Context, name string) (*mutation.Mutation, error)
	Create(ctx context.Context, name, modelfile string) (*mutation.Mutation, error)
	Refresh(ctx context.Context) types.StatusResponse
	Status() types.StatusResponse
	Subscribe(buffer int) (<-chan types.Event, func())
	Ready() bool
}

// progressBuffer sizes the subscription behind a streamed pull or create.
const progressBuffer = 256

type handlers struct {
	svc Service
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}
	r.Get("/models", h.listInstalled)
	r.Post("/models/pull", h.pull)
	r.Post("/models/create", h.create)
	// Model names may contain '/' (namespace/model:tag).
	r.Get("/models/*", h.show)
	r.Delete("/models/*", h.delete)
	r.Get("/running", h.listRunning)
	r.Post("/refresh", h.refresh)
	r.Get("/status", h.status)
	r.Get("/events", h.events)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("waiting for first refresh"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// listInstalled godoc
// @Summary  List installed models
// @Produce  json
// @Success  200 {object} types.ModelsResponse
// @Router   /models [get]
func (h *handlers) listInstalled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: orEmpty(h.svc.Installed())})
}

// listRunning godoc
// @Summary  List models loaded in memory
// @Produce  json
// @Success  200 {object} types.RunningResponse
// @Router   /running [get]
func (h *handlers) listRunning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.RunningResponse{Models: orEmpty(h.svc.Running())})
}

// show godoc
// @Summary  Inspect a model
// @Produce  json
// @Param    name path string true "model name"
// @Success  200 {object} types.DetailRecord
// @Failure  404 {object} types.ErrorResponse
// @Failure  503 {object} types.ErrorResponse
// @Router   /models/{name} [get]
func (h *handlers) show(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := handlerContext(r)
	defer cancel()
	d, err := h.svc.Show(ctx, modelParam(r))
	if err != nil {
		if gone(r) {
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// delete godoc
// @Summary  Delete a model and wait for it to settle
// @Produce  json
// @Param    name path string true "model name"
// @Success  200 {object} types.MutationResponse
// @Failure  409 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Failure  502 {object} types.ErrorResponse
// @Router   /models/{name} [delete]
func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	lvl := requestLogLevel(r)
	start := time.Now()
	name := modelParam(r)
	logStart(r, lvl, "delete", name)
	mu, err := h.svc.Delete(r.Context(), name)
	if err != nil {
		logEnd(r, lvl, "delete", writeError(w, err), start, err)
		return
	}
	// Dropping the request only stops this wait; the delete still settles.
	ctx, cancel := handlerContext(r)
	defer cancel()
	if err := mu.Wait(ctx); err != nil {
		if gone(r) {
			return
		}
		logEnd(r, lvl, "delete", writeError(w, err), start, err)
		return
	}
	writeJSON(w, http.StatusOK, mu.Response())
	logEnd(r, lvl, "delete", http.StatusOK, start, nil)
}

// pull godoc
// @Summary  Pull a model
// @Description Returns 202 with the mutation id. With ?stream=1 the response
// @Description is NDJSON progress followed by the settled mutation.
// @Accept   json
// @Produce  json
// @Param    body body types.PullRequest true "model to pull"
// @Success  202 {object} types.MutationResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Router   /models/pull [post]
func (h *handlers) pull(w http.ResponseWriter, r *http.Request) {
	var req types.PullRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.mutate(w, r, "pull", req.Model, func(ctx context.Context) (*mutation.Mutation, error) {
		return h.svc.Pull(ctx, req.Model)
	})
}

// create godoc
// @Summary  Create a model from a Modelfile
// @Accept   json
// @Produce  json
// @Param    body body types.CreateRequest true "model name and definition"
// @Success  202 {object} types.MutationResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Router   /models/create [post]
func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.mutate(w, r, "create", req.Model, func(ctx context.Context) (*mutation.Mutation, error) {
		return h.svc.Create(ctx, req.Model, req.Modelfile)
	})
}

// mutate starts a progress-reporting mutation and either acknowledges it or
// streams its progress.
func (h *handlers) mutate(w http.ResponseWriter, r *http.Request, op, model string, start func(context.Context) (*mutation.Mutation, error)) {
	lvl := requestLogLevel(r)
	begin := time.Now()
	logStart(r, lvl, op, model)

	stream := wantStream(r)
	var events <-chan types.Event
	if stream {
		// Subscribe first so no progress is missed.
		var cancel func()
		events, cancel = h.svc.Subscribe(progressBuffer)
		defer cancel()
	}
	mu, err := start(r.Context())
	if err != nil {
		logEnd(r, lvl, op, writeError(w, err), begin, err)
		return
	}
	if !stream {
		writeJSON(w, http.StatusAccepted, mu.Response())
		logEnd(r, lvl, op, http.StatusAccepted, begin, nil)
		return
	}
	streamProgress(w, r, lvl, mu, events)
	logEnd(r, lvl, op, http.StatusOK, begin, mu.Err())
}

// streamProgress writes the mutation's progress events as NDJSON, then the
// settled MutationResponse as the last line.
func streamProgress(w http.ResponseWriter, r *http.Request, lvl LogLevel, mu *mutation.Mutation, events <-chan types.Event) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	out := io.Writer(w)
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{id: mu.ID})
	}
	enc := json.NewEncoder(out)
	emit := func(v any) {
		_ = enc.Encode(v)
		if flush != nil {
			flush()
		}
	}
	ctx, cancel := handlerContext(r)
	defer cancel()

	// write emits progress of this mutation and reports whether ev was its result.
	write := func(ev types.Event) bool {
		if ev.MutationID != mu.ID {
			return false
		}
		switch ev.Type {
		case types.EventProgress:
			if ev.Progress != nil {
				emit(ev.Progress)
			}
		case types.EventMutationResult:
			return true
		}
		return false
	}
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok || write(ev) {
				break loop
			}
		case <-mu.Done():
			// Everything of this mutation is queued by now unless the hub
			// dropped it for a slow reader.
			for {
				select {
				case ev, ok := <-events:
					if !ok || write(ev) {
						break loop
					}
				default:
					break loop
				}
			}
		case <-ctx.Done():
			return
		}
	}
	select {
	case <-mu.Done():
	case <-ctx.Done():
		return
	}
	emit(mu.Response())
}

// refresh godoc
// @Summary  Refresh every collection now
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /refresh [post]
func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := handlerContext(r)
	defer cancel()
	st := h.svc.Refresh(ctx)
	if gone(r) {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// status godoc
// @Summary  Combined refresh status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// decodeJSON enforces the content type and body limit of JSON endpoints.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies also land here; 400 avoids leaking the limit.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func modelParam(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func wantStream(r *http.Request) bool {
	switch r.URL.Query().Get("stream") {
	case "1", "true":
		return true
	}
	return false
}

// orEmpty keeps empty collections encoded as [] rather than null.
func orEmpty[E any](s []E) []E {
	if s == nil {
		return []E{}
	}
	return s
}
