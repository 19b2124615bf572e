package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/okian/reputation/internal/adapters/repository"
	"github.com/okian/reputation/internal/domain/catalog"
	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/internal/domain/types"
	"github.com/okian/reputation/pkg/metrics"
)

// GetStatistics returns every observed aspect of partyID. Unknown parties
// get a fresh record and empty lists.
func (s *Service) GetStatistics(ctx context.Context, partyID string) (stats types.Statistics, err error) {
	const op = "get statistics"

	ctx, span := s.tracer.Start(ctx, "Service.GetStatistics")
	defer func() { finishSpan(span, err) }()

	rec, evals, err := s.load(ctx, op, partyID)
	if err != nil {
		return types.Statistics{}, err
	}
	span.SetAttributes(attribute.Int("evaluations", len(evals)))
	metrics.RecordStatisticsRead("statistics")
	return s.aggregator.ComputeStatistics(rec, evals), nil
}

// GetSummary returns the top aspects per polarity of partyID.
func (s *Service) GetSummary(ctx context.Context, partyID string) (sum types.Summary, err error) {
	const op = "get summary"

	ctx, span := s.tracer.Start(ctx, "Service.GetSummary")
	defer func() { finishSpan(span, err) }()

	rec, evals, err := s.load(ctx, op, partyID)
	if err != nil {
		return types.Summary{}, err
	}
	span.SetAttributes(attribute.Int("evaluations", len(evals)), attribute.Int("top_n", s.summaryTopN))
	metrics.RecordStatisticsRead("summary")
	return s.aggregator.ComputeSummary(rec, evals, s.summaryTopN), nil
}

// GetRankingView returns what counterparties may see of partyID: tier,
// score, evaluation count and the labelled negative aspects.
func (s *Service) GetRankingView(ctx context.Context, partyID string) (view types.RankingView, err error) {
	const op = "get ranking view"

	ctx, span := s.tracer.Start(ctx, "Service.GetRankingView")
	defer func() { finishSpan(span, err) }()

	rec, evals, err := s.load(ctx, op, partyID)
	if err != nil {
		return types.RankingView{}, err
	}
	metrics.RecordStatisticsRead("ranking")

	stats := s.aggregator.ComputeStatistics(rec, evals)
	negative := make([]types.LabeledPercentage, 0, len(stats.Negative))
	for _, st := range stats.Negative {
		label := st.Label
		if label == "" {
			label = st.Aspect
		}
		negative = append(negative, types.LabeledPercentage{Label: label, Percentage: st.Percentage})
	}

	return types.RankingView{
		PartyID:          rec.PartyID,
		Tier:             rec.Tier,
		Score:            rec.Score,
		TotalEvaluations: rec.TotalEvaluations,
		NegativeAspects:  negative,
	}, nil
}

// GetCatalog lists the selectable aspects in declaration order.
func (s *Service) GetCatalog() types.CatalogView {
	return types.CatalogView{
		Positive: catalogEntries(s.catalog.AllPositive()),
		Negative: catalogEntries(s.catalog.AllNegative()),
	}
}

func catalogEntries(aspects []catalog.Aspect) []types.CatalogEntry {
	out := make([]types.CatalogEntry, len(aspects))
	for i, a := range aspects {
		out[i] = types.CatalogEntry{Code: string(a.Code), Points: a.Points, Label: a.Label}
	}
	return out
}

// Leaderboard returns the n best ranked parties.
func (s *Service) Leaderboard(ctx context.Context, n int) (entries []types.LeaderboardEntry, err error) {
	const op = "leaderboard"

	ctx, span := s.tracer.Start(ctx, "Service.Leaderboard")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.Int("limit", n))

	store, err := s.running()
	if err != nil {
		return nil, wrap(op, err, nil)
	}
	if n < 1 {
		return nil, wrap(op, ErrInvalidInput, fmt.Errorf("limit must be positive, got %d", n))
	}

	records, err := store.TopRecords(ctx, n)
	if err != nil {
		return nil, wrap(op, ErrStorage, err)
	}
	metrics.RecordStatisticsRead("leaderboard")
	return repository.Leaderboard(records), nil
}

// load creates the record of partyID when missing and reads its
// evaluations alongside.
func (s *Service) load(ctx context.Context, op, partyID string) (model.Record, []model.Evaluation, error) {
	store, err := s.running()
	if err != nil {
		return model.Record{}, nil, wrap(op, err, nil)
	}
	partyID = strings.TrimSpace(partyID)
	if partyID == "" {
		return model.Record{}, nil, wrap(op, ErrInvalidInput, errors.New("party id is required"))
	}

	var (
		rec   model.Record
		evals []model.Evaluation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rec, err = store.EnsureRecord(gctx, partyID, s.now())
		if err != nil {
			return fmt.Errorf("ensure record: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		evals, err = store.ListEvaluations(gctx, partyID)
		if err != nil {
			return fmt.Errorf("list evaluations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Record{}, nil, wrap(op, ErrRecordNotFound, err)
		}
		return model.Record{}, nil, wrap(op, ErrStorage, err)
	}
	return rec, evals, nil
}
