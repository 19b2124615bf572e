package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/reputation/internal/app"
	"github.com/okian/reputation/internal/domain/model"
)

// RaterHeader carries the rater id when the body omits it.
const RaterHeader = "X-Rater-ID"

const maxBodyBytes = 64 << 10

// EvaluationDependencies defines the interface for submitting evaluations.
type EvaluationDependencies interface {
	SubmitEvaluation(ctx context.Context, sub service.Submission) (model.Evaluation, error)
}

// EvaluationsHandler handles evaluation requests.
type EvaluationsHandler struct {
	deps EvaluationDependencies
}

// NewEvaluationsHandler creates a new evaluations handler.
func NewEvaluationsHandler(deps EvaluationDependencies) *EvaluationsHandler {
	return &EvaluationsHandler{deps: deps}
}

type submitResponse struct {
	Status       string `json:"status"`
	EvaluationID string `json:"evaluation_id"`
	Duplicate    bool   `json:"duplicate"`
}

// HandlePostEvaluation handles POST /evaluations requests.
func (h *EvaluationsHandler) HandlePostEvaluation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_evaluation"

	var sub service.Submission
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", WrapKind(op, ErrBadRequest, err))
		return
	}
	if sub.RaterID == "" {
		sub.RaterID = r.Header.Get(RaterHeader)
	}

	ev, err := h.deps.SubmitEvaluation(r.Context(), sub)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Status: "applied", EvaluationID: ev.ID})
}
