// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/reputation/internal/domain/catalog"
)

// Tier is the reputation band derived from a score.
type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
	TierDiamond  Tier = "Diamond"
)

// Tiers lists every tier from lowest to highest.
func Tiers() []Tier {
	return []Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	for _, k := range Tiers() {
		if t == k {
			return true
		}
	}
	return false
}

func (t Tier) String() string { return string(t) }

// Evaluation is one rater's judgement of a rated party after a transaction.
// Evaluations are append-only.
type Evaluation struct {
	ID            string
	RaterID       string
	RatedID       string
	TransactionID string // unique across all evaluations
	Positive      []catalog.Code
	Negative      []catalog.Code
	Comment       string
	CreatedAt     time.Time
}

// Record holds the running reputation of one rated party.
// Tier always equals the tier of Score.
type Record struct {
	PartyID          string
	Score            int
	Tier             Tier
	TotalEvaluations int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewRecord returns the initial record of a party seen for the first time.
func NewRecord(partyID string, now time.Time) Record {
	return Record{
		PartyID:   partyID,
		Score:     0,
		Tier:      TierBronze,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
