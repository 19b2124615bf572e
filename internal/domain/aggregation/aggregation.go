// Package aggregation computes aspect frequencies and rankings from a
// party's evaluation history. It performs no I/O.
package aggregation

import (
	"math"
	"slices"

	"github.com/okian/reputation/internal/domain/catalog"
	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/internal/domain/types"
)

// DefaultTopN is the summary length used when none is given.
const DefaultTopN = 3

// Engine is pure and safe for concurrent use.
type Engine struct {
	catalog *catalog.Catalog
}

// New returns an engine that orders and labels aspects with c.
func New(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// ComputeStatistics reports, per polarity, how many evaluations contain each
// observed aspect and the rounded share of the total. Entries follow catalog
// order; codes missing from the catalog follow in first-seen order.
func (e *Engine) ComputeStatistics(rec model.Record, evaluations []model.Evaluation) types.Statistics {
	total := len(evaluations)
	return types.Statistics{
		PartyID:          rec.PartyID,
		Tier:             rec.Tier,
		Score:            rec.Score,
		TotalEvaluations: rec.TotalEvaluations,
		Positive: e.tally(evaluations, total, func(ev model.Evaluation) []catalog.Code {
			return ev.Positive
		}),
		Negative: e.tally(evaluations, total, func(ev model.Evaluation) []catalog.Code {
			return ev.Negative
		}),
	}
}

// ComputeSummary ranks each polarity by percentage, keeping catalog order
// among ties, and keeps at most topN entries. topN <= 0 means DefaultTopN.
func (e *Engine) ComputeSummary(rec model.Record, evaluations []model.Evaluation, topN int) types.Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}
	stats := e.ComputeStatistics(rec, evaluations)
	return types.Summary{
		PartyID:          stats.PartyID,
		Tier:             stats.Tier,
		Score:            stats.Score,
		TotalEvaluations: stats.TotalEvaluations,
		TopN:             topN,
		Positive:         top(stats.Positive, topN),
		Negative:         top(stats.Negative, topN),
	}
}

func (e *Engine) tally(evaluations []model.Evaluation, total int, pick func(model.Evaluation) []catalog.Code) []types.AspectStat {
	counts := make(map[catalog.Code]int)
	var unknown []catalog.Code
	for _, ev := range evaluations {
		seen := make(map[catalog.Code]struct{}, len(pick(ev)))
		for _, code := range pick(ev) {
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			if counts[code] == 0 {
				if _, known := e.catalog.Rank(code); !known {
					unknown = append(unknown, code)
				}
			}
			counts[code]++
		}
	}

	order := make([]catalog.Code, 0, len(counts))
	for code := range counts {
		if _, known := e.catalog.Rank(code); known {
			order = append(order, code)
		}
	}
	slices.SortFunc(order, func(a, b catalog.Code) int {
		ra, _ := e.catalog.Rank(a)
		rb, _ := e.catalog.Rank(b)
		return ra - rb
	})
	order = append(order, unknown...)

	out := make([]types.AspectStat, 0, len(order))
	for _, code := range order {
		label, _ := e.catalog.LabelOf(code)
		out = append(out, types.AspectStat{
			Aspect:     string(code),
			Label:      label,
			Quantity:   counts[code],
			Percentage: percentage(counts[code], total),
		})
	}
	return out
}

func percentage(quantity, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(quantity) / float64(total) * 100))
}

func top(stats []types.AspectStat, n int) []types.AspectStat {
	ranked := slices.Clone(stats)
	slices.SortStableFunc(ranked, func(a, b types.AspectStat) int {
		return b.Percentage - a.Percentage
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
