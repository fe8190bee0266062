package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/quorum/internal/domain/campaign"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/internal/domain/rubric"
)

// JudgeHandler serves a judge's queue, identified by the token in the path.
type JudgeHandler struct {
	deps Dependencies
}

// NewJudgeHandler creates a new judge handler.
func NewJudgeHandler(deps Dependencies) *JudgeHandler {
	return &JudgeHandler{deps: deps}
}

type dimensionView struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

type itemView struct {
	AssignmentID     int64           `json:"assignment_id"`
	DisplayOrder     int             `json:"display_order"`
	Finished         bool            `json:"finished"`
	TaskID           int64           `json:"task_id"`
	GroupID          string          `json:"group_id"`
	CandidateID      string          `json:"candidate_id"`
	Prompt           string          `json:"prompt"`
	ReferenceLocator string          `json:"reference_locator"`
	CandidateLocator string          `json:"candidate_locator"`
	Dimensions       []dimensionView `json:"dimensions"`
	Scores           []int           `json:"scores,omitempty"`
	Draft            bool            `json:"draft,omitempty"`
}

type progressView struct {
	Done    int `json:"done"`
	Pending int `json:"pending"`
	Total   int `json:"total"`
}

type nextResponse struct {
	Status   string       `json:"status"`
	Item     *itemView    `json:"item,omitempty"`
	Progress progressView `json:"progress"`
}

type submitRequest struct {
	TaskID int64 `json:"task_id"`
	Scores []int `json:"scores"`
}

type submitResponse struct {
	Status       string `json:"status"`
	AssignmentID int64  `json:"assignment_id,omitempty"`
	TaskID       int64  `json:"task_id"`
	Count        int    `json:"count,omitempty"`
	Completed    bool   `json:"completed,omitempty"`
}

type undoRequest struct {
	AssignmentID int64 `json:"assignment_id"`
}

type undoResponse struct {
	Status       string `json:"status"`
	AssignmentID int64  `json:"assignment_id"`
	TaskID       int64  `json:"task_id"`
}

// judge resolves the path token or writes 401.
func (h *JudgeHandler) judge(w http.ResponseWriter, r *http.Request) (model.Judge, bool) {
	j, err := h.deps.Judge(r.Context(), r.PathValue("token"))
	if errors.Is(err, campaign.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
		return model.Judge{}, false
	}
	if err != nil {
		writeDomainError(w, err)
		return model.Judge{}, false
	}
	return j, true
}

// HandleNext handles GET /judges/{token}/next.
func (h *JudgeHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	j, ok := h.judge(w, r)
	if !ok {
		return
	}
	view, err := h.deps.NextTask(r.Context(), j.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := nextResponse{Status: "ok", Progress: newProgressView(view.Progress)}
	if view.Complete {
		resp.Status = "complete"
	} else {
		item := newItemView(view.Item, h.deps.Rubric())
		resp.Item = &item
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePrevious handles GET /judges/{token}/previous?current={assignment_id}.
// Without current the latest finished item is returned.
func (h *JudgeHandler) HandlePrevious(w http.ResponseWriter, r *http.Request) {
	j, ok := h.judge(w, r)
	if !ok {
		return
	}
	var current int64
	if v := r.URL.Query().Get("current"); v != "" {
		id, err := parseID(v)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		current = id
	}
	item, err := h.deps.PreviousTask(r.Context(), j.ID, current)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemView(item, h.deps.Rubric()))
}

// HandleItem handles GET /judges/{token}/assignments/{id}.
func (h *JudgeHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	j, ok := h.judge(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	item, err := h.deps.Item(r.Context(), j.ID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemView(item, h.deps.Rubric()))
}

// HandleSubmit handles POST /judges/{token}/submit. A pruned assignment is
// not an error for the judge: the response says already_satisfied and the
// client moves on.
func (h *JudgeHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	j, ok := h.judge(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if req.TaskID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing task_id", ErrBadRequest))
		return
	}
	rec, err := h.deps.Submit(r.Context(), j.ID, req.TaskID, req.Scores)
	if errors.Is(err, campaign.ErrAlreadySatisfied) {
		writeJSON(w, http.StatusOK, submitResponse{Status: "already_satisfied", TaskID: req.TaskID})
		return
	}
	if errors.Is(err, campaign.ErrInvalidScores) {
		writeError(w, http.StatusBadRequest, "invalid_scores", err)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Status:       "accepted",
		AssignmentID: rec.Assignment.ID,
		TaskID:       req.TaskID,
		Count:        rec.Outcome.Count,
		Completed:    rec.Outcome.Completed,
	})
}

// HandleUndo handles POST /judges/{token}/undo.
func (h *JudgeHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	j, ok := h.judge(w, r)
	if !ok {
		return
	}
	var req undoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if req.AssignmentID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing assignment_id", ErrBadRequest))
		return
	}
	a, err := h.deps.Undo(r.Context(), j.ID, req.AssignmentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, undoResponse{Status: "reopened", AssignmentID: a.ID, TaskID: a.TaskID})
}

// HandleProgress handles GET /judges/{token}/progress.
func (h *JudgeHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	j, ok := h.judge(w, r)
	if !ok {
		return
	}
	p, err := h.deps.Progress(r.Context(), j.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProgressView(p))
}

func parseID(v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", ErrBadRequest, v)
	}
	return id, nil
}

func newItemView(item campaign.Item, rb *rubric.Rubric) itemView {
	v := itemView{
		AssignmentID:     item.Assignment.ID,
		DisplayOrder:     item.Assignment.DisplayOrder,
		Finished:         item.Assignment.Finished,
		TaskID:           item.Task.ID,
		GroupID:          item.Task.GroupID,
		CandidateID:      item.Task.CandidateID,
		Prompt:           item.Group.PromptText,
		ReferenceLocator: item.Group.ReferenceLocator,
		CandidateLocator: item.Task.CandidateLocator,
	}
	if rb != nil {
		for _, d := range rb.Dimensions() {
			v.Dimensions = append(v.Dimensions, dimensionView{Name: d.Name, Min: d.Min, Max: d.Max})
		}
	}
	if item.Rating != nil {
		v.Scores = item.Rating.Scores
		v.Draft = item.Rating.Draft()
	}
	return v
}

func newProgressView(p model.Progress) progressView {
	return progressView{Done: p.Done, Pending: p.Pending, Total: p.Total()}
}

type judgeView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

func newJudgeView(j model.Judge) judgeView {
	return judgeView{ID: j.ID, Name: j.Name, Token: j.Token, CreatedAt: j.CreatedAt}
}
