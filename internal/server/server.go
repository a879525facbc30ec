// Package server exposes the classification pipeline over HTTP. It is a
// thin transport: request decoding, validation mapping and JSON encoding.
// All decisions live in the coordinator.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

// ClassifyRequest is the request body shared by the analyze and execute
// endpoints
type ClassifyRequest struct {
	MessageIDs []string `json:"message_ids"`
	RuleIDs    []string `json:"rule_ids,omitempty"`
	DryRun     bool     `json:"dry_run,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the classification API
type Server struct {
	coordinator *core.ExecutionCoordinator
	logger      *zap.Logger
	httpServer  *http.Server
}

// New creates a new API server
func New(
	coordinator *core.ExecutionCoordinator,
	logger *zap.Logger,
	listenAddress string,
	readTimeout time.Duration,
	writeTimeout time.Duration,
) *Server {
	s := &Server{
		coordinator: coordinator,
		logger:      logger,
	}
	s.httpServer = &http.Server{
		Addr:         listenAddress,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Router builds the route table. Exposed separately so tests can drive the
// handlers without a listener.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/classify/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/classify/execute", s.handleExecute).Methods(http.MethodPost)
	api.HandleFunc("/classify/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/classify/stats", s.handleStats).Methods(http.MethodGet)
	return r
}

// Start begins serving in the background
func (s *Server) Start() error {
	go func() {
		s.logger.Info("API server listening", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleAnalyze classifies without side effects
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeClassifyRequest(w, r)
	if !ok {
		return
	}

	results, err := s.coordinator.Analyze(r.Context(), req.MessageIDs, req.RuleIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

// handleExecute classifies and moves, unless the request asks for a dry run
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeClassifyRequest(w, r)
	if !ok {
		return
	}

	var results []core.ClassificationResult
	var err error
	if req.DryRun {
		results, err = s.coordinator.Analyze(r.Context(), req.MessageIDs, req.RuleIDs)
	} else {
		results, err = s.coordinator.Execute(r.Context(), req.MessageIDs, req.RuleIDs)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		if parsed > 100 {
			parsed = 100
		}
		limit = parsed
	}

	entries, err := s.coordinator.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []core.HistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coordinator.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) decodeClassifyRequest(w http.ResponseWriter, r *http.Request) (*ClassifyRequest, bool) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return nil, false
	}
	return &req, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if core.IsValidationError(err) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.logger.Error("Request failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
