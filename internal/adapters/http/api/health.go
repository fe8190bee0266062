package api

import (
	"context"
	"net/http"

	"github.com/okian/quorum/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyChecker reports whether the service can answer requests.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// HealthHandler handles health and metrics requests.
type HealthHandler struct {
	deps ReadyChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps ReadyChecker) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type healthResponse struct {
	Status string `json:"status"`
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// HandleMetrics serves the custom Prometheus registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
