package domain

import "time"

// GameRoomStatus is the lifecycle state of an invite-code game room.
type GameRoomStatus string

const (
	RoomWaitingForGuest GameRoomStatus = "waiting_for_guest"
	RoomReady           GameRoomStatus = "ready"
	RoomInProgress      GameRoomStatus = "in_progress"
	RoomCancelled       GameRoomStatus = "cancelled"
	RoomExpired         GameRoomStatus = "expired"
)

// LiveMatchStatus is the lifecycle state of an in-progress match.
type LiveMatchStatus string

const (
	LiveWaiting    LiveMatchStatus = "waiting"
	LiveInProgress LiveMatchStatus = "in_progress"
	LiveFinished   LiveMatchStatus = "finished"
	LiveCompleted  LiveMatchStatus = "completed"
	LiveDisputed   LiveMatchStatus = "disputed"
)

// Match is the immutable, finalized record of a completed game.
// WinnerID always equals the player with the strictly higher score.
type Match struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Place       string    `json:"place"`
	Player1ID   string    `json:"player1_id"`
	Player2ID   string    `json:"player2_id"`
	Score1      int       `json:"score1"`
	Score2      int       `json:"score2"`
	WinnerID    string    `json:"winner_id"`
	IsConfirmed bool      `json:"is_confirmed"`
	GameRoomID  string    `json:"game_room_id,omitempty"`
	LiveMatchID string    `json:"live_match_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PendingMatch is a scheduled-but-unplayed match. It is consumed
// exactly once when its result is submitted.
type PendingMatch struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Time      string    `json:"time"` // "14:30"
	Place     string    `json:"place"`
	Player1ID string    `json:"player1_id"`
	Player2ID string    `json:"player2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GameRoom is an invite-code-gated pairing of two players prior to a
// live match.
type GameRoom struct {
	ID         string         `json:"id"`
	InviteCode string         `json:"invite_code"`
	HostID     string         `json:"host_id"`
	GuestID    string         `json:"guest_id,omitempty"`
	Place      string         `json:"place"`
	Date       time.Time      `json:"date"`
	Status     GameRoomStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// LiveMatch is an active match derived from a ready game room.
type LiveMatch struct {
	ID         string          `json:"id"`
	GameRoomID string          `json:"game_room_id"`
	Player1ID  string          `json:"player1_id"`
	Player2ID  string          `json:"player2_id"`
	Place      string          `json:"place"`
	Date       time.Time       `json:"date"`
	Status     LiveMatchStatus `json:"status"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    time.Time       `json:"end_time"`
	Score1     int             `json:"score1"`
	Score2     int             `json:"score2"`
}

// LiveMatchUpdate carries a partial update for a live match. Nil
// fields are left untouched.
type LiveMatchUpdate struct {
	Score1 *int             `json:"score1,omitempty"`
	Score2 *int             `json:"score2,omitempty"`
	Status *LiveMatchStatus `json:"status,omitempty"`
}

// MatchResult is the reported outcome for a live match. A result with
// NeedsConfirmation set stays provisional until the opposing player
// confirms it; only then is the finalized Match derived.
type MatchResult struct {
	ID                string    `json:"id"`
	LiveMatchID       string    `json:"live_match_id"`
	GameRoomID        string    `json:"game_room_id"`
	Player1ID         string    `json:"player1_id"`
	Player2ID         string    `json:"player2_id"`
	Player1Score      int       `json:"player1_score"`
	Player2Score      int       `json:"player2_score"`
	WinnerID          string    `json:"winner_id"`
	ReportedBy        string    `json:"reported_by"`
	ConfirmedBy       []string  `json:"confirmed_by"`
	NeedsConfirmation bool      `json:"needs_confirmation"`
	IsDisputed        bool      `json:"is_disputed"`
	CreatedAt         time.Time `json:"created_at"`
	FinalizedAt       time.Time `json:"finalized_at"`
}

// Finalized reports whether the result has produced a Match record.
func (r *MatchResult) Finalized() bool {
	return !r.FinalizedAt.IsZero()
}

// ResultReport is the input for ending a live match.
type ResultReport struct {
	Player1Score      int    `json:"player1_score"`
	Player2Score      int    `json:"player2_score"`
	ReportedBy        string `json:"reported_by"`
	NeedsConfirmation bool   `json:"needs_confirmation"`
}
