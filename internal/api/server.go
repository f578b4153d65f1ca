// Package api exposes a small status server in daemon mode: liveness plus
// the summary of the most recent export run.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edupulse/lsexport/internal/export"
)

type Server struct {
	router *chi.Mux
	port   int

	mu          sync.RWMutex
	lastSummary *export.Summary
	lastError   string
}

func NewServer(port int) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/export/status", s.status)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// RecordResult stores the outcome of the latest export run for /status.
func (s *Server) RecordResult(summary *export.Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSummary = summary
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := map[string]any{
		"service": "lsexport",
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	if s.lastSummary != nil {
		resp["last_export"] = s.lastSummary
	}
	if s.lastError != "" {
		resp["last_error"] = s.lastError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
