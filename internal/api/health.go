package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a dependency's connectivity.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Connection reports whether a long-lived connection is up.
type Connection interface {
	IsConnected() bool
}

// HealthHandler provides the health endpoint.
type HealthHandler struct {
	db        Pinger
	hermes    Connection
	registry  string
	vector    string
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler. hermes may be nil.
func NewHealthHandler(db Pinger, hermes Connection, registry, vectorBackend string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		hermes:    hermes,
		registry:  registry,
		vector:    vectorBackend,
		startTime: time.Now(),
	}
}

// Health returns the service health status.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := h.db.HealthCheck(r.Context()); err != nil {
		dbStatus = "disconnected"
	}

	hermesStatus := "disconnected"
	if h.hermes != nil && h.hermes.IsConnected() {
		hermesStatus = "connected"
	}

	resp := map[string]any{
		"status":         "healthy",
		"database":       dbStatus,
		"hermes":         hermesStatus,
		"job_registry":   h.registry,
		"vector_backend": h.vector,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}
	if dbStatus == "disconnected" {
		resp["status"] = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
