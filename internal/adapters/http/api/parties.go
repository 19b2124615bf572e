package api

import (
	"context"
	"net/http"

	"github.com/okian/reputation/internal/domain/types"
)

// PartyDependencies defines the read operations on one party.
type PartyDependencies interface {
	GetStatistics(ctx context.Context, partyID string) (types.Statistics, error)
	GetSummary(ctx context.Context, partyID string) (types.Summary, error)
	GetRankingView(ctx context.Context, partyID string) (types.RankingView, error)
}

// PartiesHandler serves /parties/{id}/... reads.
type PartiesHandler struct {
	deps PartyDependencies
}

// NewPartiesHandler creates a new parties handler.
func NewPartiesHandler(deps PartyDependencies) *PartiesHandler {
	return &PartiesHandler{deps: deps}
}

// HandleGetStatistics handles GET /parties/{id}/statistics.
func (h *PartiesHandler) HandleGetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.GetStatistics(r.Context(), r.PathValue("id"))
	respond(w, "api.get_statistics", stats, err)
}

// HandleGetSummary handles GET /parties/{id}/summary.
func (h *PartiesHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.deps.GetSummary(r.Context(), r.PathValue("id"))
	respond(w, "api.get_summary", sum, err)
}

// HandleGetRanking handles GET /parties/{id}/ranking.
func (h *PartiesHandler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetRankingView(r.Context(), r.PathValue("id"))
	respond(w, "api.get_ranking", view, err)
}

func respond(w http.ResponseWriter, op string, v any, err error) {
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, v)
}
