package repository

import (
	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/internal/domain/types"
)

// Leaderboard turns records already ordered by score desc, party id asc into
// rows with dense ranks: equal scores share a rank and the next score gets
// the next rank.
func Leaderboard(records []model.Record) []types.LeaderboardEntry {
	out := make([]types.LeaderboardEntry, len(records))
	currentRank := 0
	for i, rec := range records {
		if i == 0 || rec.Score != records[i-1].Score {
			currentRank++
		}
		out[i] = types.LeaderboardEntry{
			Rank:             currentRank,
			PartyID:          rec.PartyID,
			Score:            rec.Score,
			Tier:             rec.Tier,
			TotalEvaluations: rec.TotalEvaluations,
		}
	}
	return out
}

func lessRecord(a, b model.Record) int {
	if a.Score != b.Score {
		return b.Score - a.Score
	}
	switch {
	case a.PartyID < b.PartyID:
		return -1
	case a.PartyID > b.PartyID:
		return 1
	default:
		return 0
	}
}
