package api

import (
	"net/http"

	"github.com/okian/tagcaption/internal/domain/types"
)

// runRequest is the body of POST and DELETE /runs.
type runRequest struct {
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
	Subtask   string `json:"subtask"`
	Comment   string `json:"comment"`
}

// RunsHandler handles submission requests.
type RunsHandler struct {
	deps RunDependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunDependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

// HandleRuns handles POST (submit), PUT (scorer verdict) and DELETE /runs.
func (h *RunsHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submit(w, r)
	case http.MethodPut:
		h.update(w, r)
	case http.MethodDelete:
		h.remove(w, r)
	default:
		writeMethodNotAllowed(w, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

// submit checks the rate limit and records a new processing run.
func (h *RunsHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Adding run failed", err)
		return
	}
	ctx := r.Context()
	if _, err := h.deps.CheckTimestamp(ctx, req.Token, req.Timestamp, req.Subtask); err != nil {
		writeError(w, err)
		return
	}
	reply, err := h.deps.AddRun(ctx, req.Token, req.Timestamp, req.Subtask, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reply)
}

func (h *RunsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req types.RunUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Updating run failed", err)
		return
	}
	reply, err := h.deps.UpdateRun(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *RunsHandler) remove(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "Removing run failed", err)
		return
	}
	reply, err := h.deps.RemoveRun(r.Context(), req.Token, req.Timestamp)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
