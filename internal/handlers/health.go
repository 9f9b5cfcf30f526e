package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Pinger is a dependency whose reachability decides readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	pinger Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a health handler. pinger may be nil.
func NewHealthHandler(pinger Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{pinger: pinger, logger: logger}
}

// HandleHealth handles GET /health
// @Summary     Health check endpoint
// @Description Returns OK if the portal and its flow store are reachable
// @Tags        health
// @Produce     text/plain
// @Success     200  {string}  string  "OK"
// @Failure     503  {string}  string  "Service Unavailable"
// @Router      /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
