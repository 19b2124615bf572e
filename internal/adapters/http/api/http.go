// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	service "github.com/okian/reputation/internal/app"
	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SubmitEvaluation(ctx context.Context, sub service.Submission) (model.Evaluation, error)
	GetStatistics(ctx context.Context, partyID string) (types.Statistics, error)
	GetSummary(ctx context.Context, partyID string) (types.Summary, error)
	GetRankingView(ctx context.Context, partyID string) (types.RankingView, error)
	GetCatalog() types.CatalogView
	Leaderboard(ctx context.Context, n int) ([]types.LeaderboardEntry, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxLeaderboardLimit int
	submitLimit         rate.Limit
	submitBurst         int

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	evaluationsHandler *EvaluationsHandler
	partiesHandler     *PartiesHandler
	catalogHandler     *CatalogHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxLeaderboardLimit: defaultMaxLeaderboardLimit,
		submitLimit:         defaultSubmitRate,
		submitBurst:         defaultSubmitBurst,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.evaluationsHandler = NewEvaluationsHandler(deps)
	s.partiesHandler = NewPartiesHandler(deps)
	s.catalogHandler = NewCatalogHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLeaderboardLimit)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	limiter := rate.NewLimiter(s.submitLimit, s.submitBurst)

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /evaluations", MetricsMiddleware(
		RateLimitMiddleware(s.evaluationsHandler.HandlePostEvaluation, limiter, "evaluations"), "evaluations"))
	mux.HandleFunc("GET /parties/{id}/statistics", MetricsMiddleware(s.partiesHandler.HandleGetStatistics, "statistics"))
	mux.HandleFunc("GET /parties/{id}/summary", MetricsMiddleware(s.partiesHandler.HandleGetSummary, "summary"))
	mux.HandleFunc("GET /parties/{id}/ranking", MetricsMiddleware(s.partiesHandler.HandleGetRanking, "ranking"))
	mux.HandleFunc("GET /catalog", MetricsMiddleware(s.catalogHandler.HandleGetCatalog, "catalog"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
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

// writeServiceError maps service error kinds to status codes. Duplicates
// keep their own code so clients can tell them from failures.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err)
	case errors.Is(err, service.ErrDuplicateEvaluation):
		writeError(w, http.StatusConflict, "duplicate_evaluation", err)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, service.ErrStorage):
		writeError(w, http.StatusInternalServerError, "storage_error", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
