package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"cfnresponse/internal/cfn"
)

// maxBodyBytes bounds a single response body.
const maxBodyBytes = 1 << 20

// ReceivedResponse is one accepted PUT.
type ReceivedResponse struct {
	Path     string       `json:"path"`
	Response cfn.Response `json:"response"`
}

// Sink records custom resource responses.
type Sink struct {
	logger *slog.Logger

	mu       sync.Mutex
	received []ReceivedResponse
}

// NewSink creates an empty Sink.
func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

// Routes builds the router.
func (s *Sink) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/responses", s.handleList)
	r.Put("/*", s.handlePut)
	return r
}

// Count returns the number of accepted responses.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *Sink) handlePut(w http.ResponseWriter, r *http.Request) {
	// The pre-signed URL is signed without a content type.
	if ct := r.Header.Get("Content-Type"); ct != "" {
		s.logger.Warn("response sent with a content type the signed URL would reject",
			"path", r.URL.Path,
			"content_type", ct,
		)
	}

	var resp cfn.Response
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		s.reject(w, r, fmt.Errorf("malformed response body: %w", err))
		return
	}
	if !resp.Status.Valid() {
		s.reject(w, r, fmt.Errorf("unknown status %q", resp.Status))
		return
	}

	s.mu.Lock()
	s.received = append(s.received, ReceivedResponse{Path: r.URL.Path, Response: resp})
	s.mu.Unlock()

	s.logger.Info("custom resource response received",
		"path", r.URL.Path,
		"status", string(resp.Status),
		"stack_id", resp.StackID,
		"request_id", resp.RequestID,
		"logical_resource_id", resp.LogicalResourceID,
		"physical_resource_id", resp.PhysicalResourceID,
		"reason", resp.Reason,
		"no_echo", resp.NoEcho,
	)
	w.WriteHeader(http.StatusOK)
}

func (s *Sink) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]ReceivedResponse{}, s.received...)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Error("failed to encode received responses", "error", err)
	}
}

func (s *Sink) reject(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("rejecting custom resource response", "path", r.URL.Path, "error", err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}
