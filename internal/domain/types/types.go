// Package types contains the response views shared by the service and its transports.
package types

import "github.com/okian/reputation/internal/domain/model"

// AspectStat is the frequency of one aspect across a party's evaluations.
type AspectStat struct {
	Aspect     string `json:"aspect"`
	Label      string `json:"label,omitempty"`
	Quantity   int    `json:"quantity"`
	Percentage int    `json:"percentage"`
}

// Statistics lists every observed aspect of a party.
type Statistics struct {
	PartyID          string       `json:"party_id"`
	Tier             model.Tier   `json:"tier"`
	Score            int          `json:"score"`
	TotalEvaluations int          `json:"total_evaluations"`
	Positive         []AspectStat `json:"positive"`
	Negative         []AspectStat `json:"negative"`
}

// Summary is Statistics ranked by percentage and truncated to the top entries.
type Summary struct {
	PartyID          string       `json:"party_id"`
	Tier             model.Tier   `json:"tier"`
	Score            int          `json:"score"`
	TotalEvaluations int          `json:"total_evaluations"`
	TopN             int          `json:"top_n"`
	Positive         []AspectStat `json:"positive"`
	Negative         []AspectStat `json:"negative"`
}

// LabeledPercentage is a negative aspect as shown to counterparties.
type LabeledPercentage struct {
	Label      string `json:"label"`
	Percentage int    `json:"percentage"`
}

// RankingView is the external view of a party. Positive aspects are withheld.
type RankingView struct {
	PartyID          string              `json:"party_id"`
	Tier             model.Tier          `json:"tier"`
	Score            int                 `json:"score"`
	TotalEvaluations int                 `json:"total_evaluations"`
	NegativeAspects  []LabeledPercentage `json:"negative_aspects"`
}

// CatalogEntry is one selectable aspect.
type CatalogEntry struct {
	Code   string `json:"code"`
	Points int    `json:"points"`
	Label  string `json:"label"`
}

// CatalogView lists the selectable aspects by polarity.
type CatalogView struct {
	Positive []CatalogEntry `json:"positive"`
	Negative []CatalogEntry `json:"negative"`
}

// LeaderboardEntry represents a leaderboard row.
type LeaderboardEntry struct {
	Rank             int        `json:"rank"`
	PartyID          string     `json:"party_id"`
	Score            int        `json:"score"`
	Tier             model.Tier `json:"tier"`
	TotalEvaluations int        `json:"total_evaluations"`
}
