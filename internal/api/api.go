// Package api serves the notebook HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/efebarandurmaz/bujo/internal/ingest"
	"github.com/efebarandurmaz/bujo/internal/notebook"
	"github.com/efebarandurmaz/bujo/internal/status"
	"github.com/efebarandurmaz/bujo/internal/store"
)

// DefaultMaxBodyBytes caps ingest request bodies.
const DefaultMaxBodyBytes = 4 << 20

// Ingester is satisfied by *ingest.Pipeline.
type Ingester interface {
	Ingest(ctx context.Context, rec notebook.Record) (ingest.Result, error)
}

// StatusUpdater is satisfied by *status.Service.
type StatusUpdater interface {
	Update(ctx context.Context, id string, req status.Request) (notebook.StatusChange, error)
}

// Config holds API server configuration.
type Config struct {
	ListenAddr   string // e.g. ":8080"
	MaxBodyBytes int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{ListenAddr: ":8080", MaxBodyBytes: DefaultMaxBodyBytes}
}

// Server is the notebook API server.
type Server struct {
	config   *Config
	ingester Ingester
	store    store.Store
	status   StatusUpdater
	server   *http.Server
}

// NewServer creates the API server.
func NewServer(config *Config, ing Ingester, st store.Store, upd StatusUpdater) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{config: config, ingester: ing, store: st, status: upd}

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // ingest may wait on LLM retries
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /notebooks", s.handleIngest)
	mux.HandleFunc("GET /notebooks", s.handleList)
	mux.HandleFunc("GET /notebooks/{id}", s.handleGet)
	mux.HandleFunc("POST /notebooks/{id}/status", s.handleStatus)
	return loggingMiddleware(mux)
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	slog.Info("Starting API server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server, letting in-flight ingests finish.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// handleIngest handles POST /notebooks
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := notebook.Parse(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.ingester.Ingest(r.Context(), rec)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	code := http.StatusOK
	if res.Committed {
		code = http.StatusCreated
	}
	respondJSON(w, code, res)
}

// handleList handles GET /notebooks?limit=
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	recs, err := s.store.List(r.Context(), limit)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	if recs == nil {
		recs = []notebook.Record{}
	}
	respondJSON(w, http.StatusOK, recs)
}

// handleGet handles GET /notebooks/{id}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type statusResponse struct {
	Message string `json:"message"`
	notebook.StatusChange
}

// statusRequest is the wire form of status.Request. Pointers tell an absent
// index apart from index 0.
type statusRequest struct {
	PageIndex *int    `json:"page_index"`
	ItemIndex *int    `json:"item_index"`
	Status    *string `json:"new_status"`
}

func (b statusRequest) request() (status.Request, error) {
	var missing []string
	if b.PageIndex == nil {
		missing = append(missing, "page_index")
	}
	if b.ItemIndex == nil {
		missing = append(missing, "item_index")
	}
	if b.Status == nil || *b.Status == "" {
		missing = append(missing, "new_status")
	}
	if len(missing) > 0 {
		return status.Request{}, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return status.Request{PageIndex: *b.PageIndex, ItemIndex: *b.ItemIndex, Status: *b.Status}, nil
}

// handleStatus handles POST /notebooks/{id}/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid status request: %w", err))
		return
	}
	req, err := body.request()
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	change, err := s.status.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	msg := "status updated"
	if !change.Changed {
		msg = "no change"
	}
	respondJSON(w, http.StatusOK, statusResponse{Message: msg, StatusChange: change})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, notebook.ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, notebook.ErrInvalidPayload),
		errors.Is(err, notebook.ErrItemIndex),
		errors.Is(err, notebook.ErrNotUpdatable),
		errors.Is(err, notebook.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	var se *ingest.StageError
	if errors.As(err, &se) && se.Stage == ingest.StageCommit {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "status", code, "error", err)
	}
	respondJSON(w, code, errorResponse{Error: err.Error()})
}

func respondJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration", time.Since(start),
		)
	})
}
