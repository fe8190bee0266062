package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const adminTokenHeader = "X-Admin-Token"

// AdminHandler serves judge management. Every route answers 404 when no
// admin token is configured.
type AdminHandler struct {
	deps  Dependencies
	token string
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies, token string) *AdminHandler {
	return &AdminHandler{deps: deps, token: token}
}

type addJudgeRequest struct {
	Name string `json:"name"`
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.token == "" {
		http.NotFound(w, r)
		return false
	}
	got := r.Header.Get(adminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		writeError(w, http.StatusForbidden, "forbidden", ErrForbidden)
		return false
	}
	return true
}

// HandleListJudges handles GET /admin/judges.
func (h *AdminHandler) HandleListJudges(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	judges, err := h.deps.Judges(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]judgeView, 0, len(judges))
	for _, j := range judges {
		views = append(views, newJudgeView(j))
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleAddJudge handles POST /admin/judges.
func (h *AdminHandler) HandleAddJudge(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	var req addJudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing name", ErrBadRequest))
		return
	}
	j, err := h.deps.AddJudge(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newJudgeView(j))
}
