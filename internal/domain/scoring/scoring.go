// Package scoring turns selected aspects into a bounded score and a tier.
package scoring

import (
	"github.com/okian/reputation/internal/domain/catalog"
	"github.com/okian/reputation/internal/domain/model"
)

// Score bounds and tier thresholds.
const (
	MinScore = 0
	MaxScore = 100

	diamondThreshold  = 90
	platinumThreshold = 80
	goldThreshold     = 70
	silverThreshold   = 50
)

// Outcome is the effect of one evaluation on a score.
type Outcome struct {
	Delta int
	Score int
	Tier  model.Tier
}

// Engine is pure and safe for concurrent use.
type Engine struct {
	catalog *catalog.Catalog
}

// New returns an engine backed by c.
func New(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// ComputeDelta sums the points of every listed code. A code listed twice
// counts twice. Unknown codes contribute nothing.
func (e *Engine) ComputeDelta(positive, negative []catalog.Code) int {
	delta := 0
	for _, list := range [][]catalog.Code{positive, negative} {
		for _, code := range list {
			points, err := e.catalog.PointsOf(code)
			if err != nil {
				continue
			}
			delta += points
		}
	}
	return delta
}

// ApplyDelta returns current+delta clamped to [MinScore, MaxScore].
func (e *Engine) ApplyDelta(current, delta int) int {
	return ApplyDelta(current, delta)
}

// TierOf maps a score to its tier.
func (e *Engine) TierOf(score int) model.Tier {
	return TierOf(score)
}

// Apply computes the delta of an evaluation and the resulting score and tier.
func (e *Engine) Apply(current int, positive, negative []catalog.Code) Outcome {
	delta := e.ComputeDelta(positive, negative)
	score := ApplyDelta(current, delta)
	return Outcome{Delta: delta, Score: score, Tier: TierOf(score)}
}

// ApplyDelta returns current+delta clamped to [MinScore, MaxScore].
func ApplyDelta(current, delta int) int {
	return max(MinScore, min(MaxScore, current+delta))
}

// TierOf maps a score to its tier. Scores below zero are Bronze.
func TierOf(score int) model.Tier {
	switch {
	case score >= diamondThreshold:
		return model.TierDiamond
	case score >= platinumThreshold:
		return model.TierPlatinum
	case score >= goldThreshold:
		return model.TierGold
	case score >= silverThreshold:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}
