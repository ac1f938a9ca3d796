package engine

import (
	"math"
	"time"

	"github.com/hooprank/internal/domain"
)

// ratingK is the Elo K-factor applied to every finalized match.
const ratingK = 32

// applyOutcome returns a new user slice with rank scores and win/lose
// counts updated for a finalized match. Users unknown to the engine
// (e.g. from a direct registration against seed data that was pruned)
// are left untouched.
func applyOutcome(users []domain.User, match domain.Match, now time.Time) []domain.User {
	loserID := match.Player1ID
	if match.WinnerID == match.Player1ID {
		loserID = match.Player2ID
	}

	winnerIdx, loserIdx := -1, -1
	for i, u := range users {
		switch u.ID {
		case match.WinnerID:
			winnerIdx = i
		case loserID:
			loserIdx = i
		}
	}
	if winnerIdx < 0 || loserIdx < 0 {
		return users
	}

	out := cloneSlice(users)
	delta := ratingDelta(out[winnerIdx].RankScore, out[loserIdx].RankScore)

	out[winnerIdx].RankScore += delta
	out[winnerIdx].WinCount++
	out[winnerIdx].UpdatedAt = now

	out[loserIdx].RankScore -= delta
	if out[loserIdx].RankScore < 0 {
		out[loserIdx].RankScore = 0
	}
	out[loserIdx].LoseCount++
	out[loserIdx].UpdatedAt = now

	return out
}

// ratingDelta computes the Elo points transferred from loser to winner.
func ratingDelta(winnerScore, loserScore int) int {
	expected := 1.0 / (1.0 + math.Pow(10, float64(loserScore-winnerScore)/400.0))
	delta := int(math.Round(ratingK * (1.0 - expected)))
	if delta < 1 {
		delta = 1
	}
	return delta
}
