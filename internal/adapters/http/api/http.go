// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	scanqueue "github.com/okian/quorum/internal/adapters/mq/queue"
	service "github.com/okian/quorum/internal/app"
	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/internal/domain/rubric"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	Judge(ctx context.Context, token string) (model.Judge, error)
	NextTask(ctx context.Context, judgeID int64) (service.TaskView, error)
	PreviousTask(ctx context.Context, judgeID, currentID int64) (campaign.Item, error)
	Item(ctx context.Context, judgeID, assignmentID int64) (campaign.Item, error)
	Submit(ctx context.Context, judgeID, taskID int64, scores []int) (campaign.Receipt, error)
	Undo(ctx context.Context, judgeID, assignmentID int64) (model.Assignment, error)
	Progress(ctx context.Context, judgeID int64) (model.Progress, error)

	Stats(ctx context.Context) (model.Stats, error)
	Campaign(ctx context.Context) (model.Campaign, error)
	TriggerSync(ctx context.Context, req service.SyncRequest) (service.SyncResult, error)
	Ready(ctx context.Context) error

	Judges(ctx context.Context) ([]model.Judge, error)
	AddJudge(ctx context.Context, name string) (model.Judge, error)

	Rubric() *rubric.Rubric
}

// Server wires HTTP routes for the judging API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	judgeHandler  *JudgeHandler
	syncHandler   *SyncHandler
	adminHandler  *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler: NewHealthHandler(deps),
		statsHandler:  NewStatsHandler(deps),
		judgeHandler:  NewJudgeHandler(deps),
		syncHandler:   NewSyncHandler(deps),
		adminHandler:  NewAdminHandler(deps, cfg.adminToken),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /sync", MetricsMiddleware(s.syncHandler.HandleSync, "sync"))

	mux.HandleFunc("GET /judges/{token}/next", MetricsMiddleware(s.judgeHandler.HandleNext, "next"))
	mux.HandleFunc("GET /judges/{token}/previous", MetricsMiddleware(s.judgeHandler.HandlePrevious, "previous"))
	mux.HandleFunc("GET /judges/{token}/assignments/{id}", MetricsMiddleware(s.judgeHandler.HandleItem, "assignment"))
	mux.HandleFunc("POST /judges/{token}/submit", MetricsMiddleware(s.judgeHandler.HandleSubmit, "submit"))
	mux.HandleFunc("POST /judges/{token}/undo", MetricsMiddleware(s.judgeHandler.HandleUndo, "undo"))
	mux.HandleFunc("GET /judges/{token}/progress", MetricsMiddleware(s.judgeHandler.HandleProgress, "progress"))

	mux.HandleFunc("GET /admin/judges", MetricsMiddleware(s.adminHandler.HandleListJudges, "admin_judges"))
	mux.HandleFunc("POST /admin/judges", MetricsMiddleware(s.adminHandler.HandleAddJudge, "admin_judges"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates engine errors to status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, campaign.ErrInvalidScores):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, campaign.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, campaign.ErrUndoNotAllowed):
		writeError(w, http.StatusConflict, "undo_not_allowed", err)
	case errors.Is(err, campaign.ErrReconcileInProgress):
		writeError(w, http.StatusConflict, "reconcile_in_progress", err)
	case errors.Is(err, scanqueue.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, campaign.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "busy", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, scanqueue.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, service.ErrSyncDisabled):
		writeError(w, http.StatusNotImplemented, "sync_disabled", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
