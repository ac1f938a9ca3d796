package engine

import (
	"time"

	"github.com/hooprank/internal/domain"
)

// Seed loads the development fixture: six players and three finalized
// matches. Rank scores come in pre-baked, so seeded matches do not run
// through the rating update.
func (e *Engine) Seed() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.opts.Now()
	users := []domain.User{
		{ID: "user-1", Nickname: "KAROPlayer", RankScore: 1250, WinCount: 15, LoseCount: 8, Friends: []string{"user-2", "user-3"}},
		{ID: "user-2", Nickname: "BasketKing", RankScore: 1350, WinCount: 22, LoseCount: 5, Friends: []string{"user-1", "user-3"}},
		{ID: "user-3", Nickname: "SlamDunk", RankScore: 1180, WinCount: 18, LoseCount: 12, Friends: []string{"user-1", "user-2"}},
		{ID: "user-4", Nickname: "CourtMaster", RankScore: 1420, WinCount: 28, LoseCount: 3},
		{ID: "user-5", Nickname: "Hoops", RankScore: 1100, WinCount: 12, LoseCount: 15},
		{ID: "user-6", Nickname: "FastBreak", RankScore: 1300, WinCount: 20, LoseCount: 8},
	}
	for i := range users {
		users[i].CreatedAt = now
		users[i].UpdatedAt = now
	}

	matches := []domain.Match{
		{
			ID:        "match-1",
			Date:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Place:     "Gangnam Court",
			Player1ID: "user-1", Player2ID: "user-2",
			Score1: 21, Score2: 18,
			WinnerID: "user-1", IsConfirmed: true,
			CreatedAt: now,
		},
		{
			ID:        "match-2",
			Date:      time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			Place:     "Jamsil Gym",
			Player1ID: "user-1", Player2ID: "user-3",
			Score1: 15, Score2: 21,
			WinnerID: "user-3", IsConfirmed: true,
			CreatedAt: now,
		},
		{
			ID:        "match-3",
			Date:      time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
			Place:     "Olympic Park Court",
			Player1ID: "user-2", Player2ID: "user-4",
			Score1: 19, Score2: 21,
			WinnerID: "user-4", IsConfirmed: true,
			CreatedAt: now,
		},
	}

	next := *e.state
	next.Users = append(cloneSlice(e.state.Users), users...)
	next.Matches = append(cloneSlice(e.state.Matches), matches...)
	e.state = &next

	e.logger.Info("seed data loaded", "users", len(users), "matches", len(matches))
}
