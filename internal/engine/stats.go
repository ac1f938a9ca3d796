package engine

import (
	"sort"

	"github.com/hooprank/internal/domain"
)

// GetUserStats scans the finalized match history for a user. Recent
// matches are the last five in insertion order, not necessarily
// chronological.
func (e *Engine) GetUserStats(userID string) domain.UserStats {
	st := e.Snapshot()

	stats := domain.UserStats{UserID: userID}
	var userMatches []domain.Match
	for _, m := range st.Matches {
		if m.Player1ID == userID || m.Player2ID == userID {
			userMatches = append(userMatches, m)
			if m.WinnerID == userID {
				stats.Wins++
			} else {
				stats.Losses++
			}
		}
	}

	stats.TotalMatches = len(userMatches)
	if stats.TotalMatches > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalMatches) * 100
	}
	for _, u := range st.Users {
		if u.ID == userID {
			stats.RankScore = u.RankScore
			break
		}
	}

	recent := userMatches
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	stats.RecentMatches = recent
	return stats
}

// GetRankings returns every user ordered by descending rank score.
// The sort is stable: users with equal scores keep their prior
// relative order.
func (e *Engine) GetRankings() []domain.RankingEntry {
	st := e.Snapshot()

	users := cloneSlice(st.Users)
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].RankScore > users[j].RankScore
	})

	entries := make([]domain.RankingEntry, len(users))
	for i, u := range users {
		entries[i] = domain.RankingEntry{
			Rank:      i + 1,
			UserID:    u.ID,
			Nickname:  u.Nickname,
			RankScore: u.RankScore,
			WinCount:  u.WinCount,
			LoseCount: u.LoseCount,
		}
	}
	return entries
}

// GetMonthlyStats groups a user's matches by calendar month, most
// recent month first.
func (e *Engine) GetMonthlyStats(userID string) []domain.MonthlyStats {
	st := e.Snapshot()

	byMonth := make(map[string]*domain.MonthlyStats)
	for _, m := range st.Matches {
		if m.Player1ID != userID && m.Player2ID != userID {
			continue
		}
		key := m.Date.Format("2006-01")
		ms, ok := byMonth[key]
		if !ok {
			ms = &domain.MonthlyStats{Month: key}
			byMonth[key] = ms
		}
		ms.TotalMatches++
		if m.WinnerID == userID {
			ms.Wins++
		} else {
			ms.Losses++
		}
	}

	out := make([]domain.MonthlyStats, 0, len(byMonth))
	for _, ms := range byMonth {
		if ms.TotalMatches > 0 {
			ms.WinRate = float64(ms.Wins) / float64(ms.TotalMatches) * 100
		}
		out = append(out, *ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}

// GetOpponentStats breaks a user's record down per opponent, ordered
// by matches played.
func (e *Engine) GetOpponentStats(userID string) []domain.OpponentStats {
	st := e.Snapshot()

	nicknames := make(map[string]string, len(st.Users))
	for _, u := range st.Users {
		nicknames[u.ID] = u.Nickname
	}

	byOpponent := make(map[string]*domain.OpponentStats)
	var order []string
	for i, m := range st.Matches {
		if m.Player1ID != userID && m.Player2ID != userID {
			continue
		}
		opponentID := m.Player1ID
		if opponentID == userID {
			opponentID = m.Player2ID
		}

		os, ok := byOpponent[opponentID]
		if !ok {
			os = &domain.OpponentStats{
				OpponentID: opponentID,
				Nickname:   nicknames[opponentID],
			}
			byOpponent[opponentID] = os
			order = append(order, opponentID)
		}
		os.TotalMatches++
		if m.WinnerID == userID {
			os.Wins++
		} else {
			os.Losses++
		}
		if os.LastMatch == nil || m.Date.After(os.LastMatch.Date) {
			match := st.Matches[i]
			os.LastMatch = &match
		}
	}

	out := make([]domain.OpponentStats, 0, len(order))
	for _, id := range order {
		os := byOpponent[id]
		if os.TotalMatches > 0 {
			os.WinRate = float64(os.Wins) / float64(os.TotalMatches) * 100
		}
		out = append(out, *os)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalMatches > out[j].TotalMatches })
	return out
}

// GetStreakInfo walks the user's matches ordered by date descending.
// The current streak is the run starting at the most recent match;
// the longest streak is the longest run anywhere in the history.
func (e *Engine) GetStreakInfo(userID string) domain.StreakInfo {
	st := e.Snapshot()

	var userMatches []domain.Match
	for _, m := range st.Matches {
		if m.Player1ID == userID || m.Player2ID == userID {
			userMatches = append(userMatches, m)
		}
	}
	if len(userMatches) == 0 {
		return domain.StreakInfo{Type: domain.StreakNone}
	}

	sort.SliceStable(userMatches, func(i, j int) bool {
		return userMatches[i].Date.After(userMatches[j].Date)
	})

	info := domain.StreakInfo{}
	run := 0
	var lastType domain.StreakType
	for i, m := range userMatches {
		result := domain.StreakLose
		if m.WinnerID == userID {
			result = domain.StreakWin
		}
		if i == 0 {
			info.Type = result
			lastType = result
			run = 1
			continue
		}
		if result == lastType {
			run++
			continue
		}
		// Run ended: the first run is the current streak.
		if info.Current == 0 {
			info.Current = run
		}
		if run > info.Longest {
			info.Longest = run
		}
		lastType = result
		run = 1
	}
	if info.Current == 0 {
		info.Current = run
	}
	if run > info.Longest {
		info.Longest = run
	}
	return info
}
