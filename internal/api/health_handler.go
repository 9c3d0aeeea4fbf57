package api

import (
	"context"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

// HealthHandler handles health check endpoints
type HealthHandler struct {
	pinger Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health (liveness probe). The process is alive
// either way; the database check is reported, not fatal.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    map[string]string{"database": h.databaseStatus(r)},
	}

	sendJSON(w, http.StatusOK, response)
}

// Ready handles GET /ready (readiness probe). Unreachable storage
// means not ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	dbStatus := h.databaseStatus(r)

	response := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    map[string]string{"database": dbStatus},
	}

	status := http.StatusOK
	if dbStatus != "ok" {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	sendJSON(w, status, response)
}

func (h *HealthHandler) databaseStatus(r *http.Request) string {
	if h.pinger == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := h.pinger.Ping(ctx); err != nil {
		return "unreachable: " + err.Error()
	}
	return "ok"
}
