// Package health provides health check endpoints for the API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Checker defines the interface for health checkers.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	version  string
	timeout  time.Duration
}

// NewHandler creates a new health handler reporting the given build version.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make([]Checker, 0),
		version:  version,
		timeout:  5 * time.Second,
	}
}

// RegisterChecker adds a dependency checker.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Health returns basic health status.
// This endpoint is for simple "is the process running" checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Ready checks all registered dependencies and returns 200 only if all are
// healthy.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	allHealthy := true

	for _, checker := range checkers {
		if err := checker.Check(ctx); err != nil {
			results[checker.Name()] = err.Error()
			allHealthy = false
		} else {
			results[checker.Name()] = "ok"
		}
	}

	if !allHealthy {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not_ready", Version: h.version, Checks: results})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ready", Version: h.version, Checks: results})
}
