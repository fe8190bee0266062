package api

import (
	"context"
	"net/http"

	"github.com/okian/quorum/internal/domain/model"
)

// StatsProvider defines the interface for campaign statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (model.Stats, error)
	Campaign(ctx context.Context) (model.Campaign, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps StatsProvider) *StatsHandler {
	return &StatsHandler{deps: deps}
}

type statsResponse struct {
	Seed               int64   `json:"seed"`
	RequiredCount      int     `json:"required_count"`
	ScanCount          int64   `json:"scan_count"`
	Judges             int     `json:"judges"`
	Tasks              int     `json:"tasks"`
	OpenTasks          int     `json:"open_tasks"`
	CompletedTasks     int     `json:"completed_tasks"`
	RetiredTasks       int     `json:"retired_tasks"`
	Ratings            int     `json:"ratings"`
	PendingAssignments int     `json:"pending_assignments"`
	Coverage           float64 `json:"coverage"`
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Campaign(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	st, err := h.deps.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := statsResponse{
		Seed:               c.Seed,
		RequiredCount:      c.RequiredCount,
		ScanCount:          c.ScanCount,
		Judges:             st.Judges,
		Tasks:              st.Tasks,
		OpenTasks:          st.OpenTasks,
		CompletedTasks:     st.CompletedTasks,
		RetiredTasks:       st.RetiredTasks,
		Ratings:            st.Ratings,
		PendingAssignments: st.PendingAssignment,
	}
	if st.RequiredRatings > 0 {
		resp.Coverage = float64(st.CurrentRatings) / float64(st.RequiredRatings)
	}
	writeJSON(w, http.StatusOK, resp)
}
