package api

import (
	"context"
	"net/http"
	"strconv"

	service "github.com/okian/quorum/internal/app"
)

const idempotencyKeyHeader = "Idempotency-Key"

// SyncTrigger starts reconcile passes.
type SyncTrigger interface {
	TriggerSync(ctx context.Context, req service.SyncRequest) (service.SyncResult, error)
}

// SyncHandler handles on-demand reconcile requests.
type SyncHandler struct {
	deps SyncTrigger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(deps SyncTrigger) *SyncHandler {
	return &SyncHandler{deps: deps}
}

type syncResponse struct {
	Status     string `json:"status"`
	RequestID  string `json:"request_id,omitempty"`
	ScanCount  int64  `json:"scan_count,omitempty"`
	Added      int    `json:"added"`
	Deleted    int    `json:"deleted"`
	Retired    int    `json:"retired"`
	Restored   int    `json:"restored"`
	Refreshed  int    `json:"refreshed"`
	Reshuffled int    `json:"reshuffled"`
}

// HandleSync handles POST /sync. With ?wait=true the pass runs inline and
// fails with 409 if one is already running; otherwise it is queued. A
// repeated Idempotency-Key is acknowledged without another pass.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	wait := false
	if v := r.URL.Query().Get("wait"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		wait = parsed
	}

	res, err := h.deps.TriggerSync(r.Context(), service.SyncRequest{
		Wait:   wait,
		Reason: "api",
		Key:    r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	switch {
	case res.Duplicate:
		writeJSON(w, http.StatusOK, syncResponse{Status: "duplicate"})
	case res.Report != nil:
		rep := res.Report
		writeJSON(w, http.StatusOK, syncResponse{
			Status:     "applied",
			ScanCount:  rep.ScanCount,
			Added:      rep.Added,
			Deleted:    rep.Deleted,
			Retired:    rep.Retired,
			Restored:   rep.Restored,
			Refreshed:  rep.Refreshed,
			Reshuffled: rep.Reshuffled,
		})
	case res.Queued != nil && res.Queued.Coalesced:
		writeJSON(w, http.StatusAccepted, syncResponse{Status: "coalesced", RequestID: res.Queued.Request.ID})
	case res.Queued != nil:
		writeJSON(w, http.StatusAccepted, syncResponse{Status: "queued", RequestID: res.Queued.Request.ID})
	default:
		writeJSON(w, http.StatusAccepted, syncResponse{Status: "queued"})
	}
}
