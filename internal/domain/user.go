package domain

import "time"

// AuthProvider identifies how a user authenticated.
type AuthProvider string

const (
	ProviderKakao AuthProvider = "kakao"
	ProviderGuest AuthProvider = "guest"
)

// User represents a registered player.
type User struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	RankScore int       `json:"rank_score"`
	WinCount  int       `json:"win_count"`
	LoseCount int       `json:"lose_count"`
	Friends   []string  `json:"friends,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthUser is the serialized auth record kept in the session store.
type AuthUser struct {
	ID        string       `json:"id"`
	Nickname  string       `json:"nickname"`
	Provider  AuthProvider `json:"provider"`
	KakaoID   string       `json:"kakao_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// RankingEntry is a single row of the rank-score leaderboard.
type RankingEntry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Nickname  string `json:"nickname"`
	RankScore int    `json:"rank_score"`
	WinCount  int    `json:"win_count"`
	LoseCount int    `json:"lose_count"`
}

// UserStats aggregates a user's finalized match history.
type UserStats struct {
	UserID        string  `json:"user_id"`
	TotalMatches  int     `json:"total_matches"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"`
	RankScore     int     `json:"rank_score"`
	RecentMatches []Match `json:"recent_matches"`
}

// StreakType classifies a run of consecutive same-outcome matches.
type StreakType string

const (
	StreakWin  StreakType = "win"
	StreakLose StreakType = "lose"
	StreakNone StreakType = "none"
)

// StreakInfo describes a user's current and longest streaks.
type StreakInfo struct {
	Current int        `json:"current"`
	Longest int        `json:"longest"`
	Type    StreakType `json:"type"`
}

// MonthlyStats groups a user's matches by calendar month.
type MonthlyStats struct {
	Month        string  `json:"month"` // "2024-01"
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
}

// OpponentStats is a user's head-to-head record against one opponent.
type OpponentStats struct {
	OpponentID   string  `json:"opponent_id"`
	Nickname     string  `json:"nickname"`
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	LastMatch    *Match  `json:"last_match,omitempty"`
}
