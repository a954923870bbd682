package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/gauntlet/internal/domain/match"
)

// jobRequest mirrors the OpenAPI schema for POST /matches/{id}/jobs.
type jobRequest struct {
	Target string `json:"target"`
}

func (j jobRequest) validate() error {
	if strings.TrimSpace(j.Target) == "" {
		return errors.New("missing target")
	}
	return nil
}

// JobsHandler serves batch advance jobs.
type JobsHandler struct {
	deps Dependencies
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps Dependencies) *JobsHandler {
	return &JobsHandler{deps: deps}
}

// HandleSubmit handles POST /matches/{id}/jobs.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	target, err := match.Parse(req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	job, err := h.deps.SubmitJob(r.Context(), r.PathValue("id"), target)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// HandleGet handles GET /jobs/{id}.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
