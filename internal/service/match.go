package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hooprank/internal/domain"
	"github.com/hooprank/internal/engine"
	"github.com/hooprank/internal/websocket"
)

// RankCache mirrors rank scores into a fast ranking store and serves
// leaderboard reads from it
type RankCache interface {
	SetScore(ctx context.Context, userID string, score int64) error
	BatchSetScores(ctx context.Context, scores map[string]int64) error
	SetNickname(ctx context.Context, userID, nickname string) error
	TopN(ctx context.Context, n int) ([]domain.RankingEntry, error)
	GetUserRank(ctx context.Context, userID string) (*domain.RankingEntry, error)
	GetAroundUser(ctx context.Context, userID string, count int) ([]domain.RankingEntry, error)
	GetNickname(ctx context.Context, userID string) (string, error)
	Count(ctx context.Context) (int64, error)
}

// Archive persists finalized data for durability and auditing
type Archive interface {
	UpsertUser(ctx context.Context, user domain.User) error
	BatchUpsertUsers(ctx context.Context, users []domain.User) error
	RecordMatch(ctx context.Context, match domain.Match) error
	RecordResultEvent(ctx context.Context, resultID, matchID, userID, eventType string, payload map[string]interface{}) error
}

// Broadcaster pushes room lifecycle events to connected clients
type Broadcaster interface {
	BroadcastRoomEvent(roomID, eventType string, data interface{})
}

// MatchService orchestrates the match lifecycle engine with the cache,
// archive and realtime layers. Engine state is authoritative; cache and
// archive writes are best effort and never fail a user operation.
type MatchService struct {
	engine      *engine.Engine
	cache       RankCache
	archive     Archive
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewMatchService creates a new match service
func NewMatchService(eng *engine.Engine, cache RankCache, archive Archive, broadcaster Broadcaster, logger *slog.Logger) *MatchService {
	return &MatchService{
		engine:      eng,
		cache:       cache,
		archive:     archive,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// GetUser returns a player profile
func (s *MatchService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return s.engine.GetUser(userID)
}

// RegisterMatch records an already-played match directly
func (s *MatchService) RegisterMatch(ctx context.Context, date time.Time, place, player1ID, player2ID string, score1, score2 int) (domain.Match, error) {
	match, err := s.engine.RegisterMatch(date, place, player1ID, player2ID, score1, score2)
	if err != nil {
		return domain.Match{}, err
	}
	s.afterFinalize(ctx, match, "")
	return match, nil
}

// CreatePendingMatch schedules a match for later
func (s *MatchService) CreatePendingMatch(ctx context.Context, date time.Time, timeOfDay, place, player1ID, player2ID string) (domain.PendingMatch, error) {
	return s.engine.AddPendingMatch(date, timeOfDay, place, player1ID, player2ID)
}

// ListPendingMatches returns the scheduled matches involving a user,
// or all of them when userID is empty
func (s *MatchService) ListPendingMatches(ctx context.Context, userID string) []domain.PendingMatch {
	st := s.engine.Snapshot()
	if userID == "" {
		return st.PendingMatches
	}
	var out []domain.PendingMatch
	for _, p := range st.PendingMatches {
		if p.Player1ID == userID || p.Player2ID == userID {
			out = append(out, p)
		}
	}
	return out
}

// SubmitPendingResult consumes a pending match with its final scores
func (s *MatchService) SubmitPendingResult(ctx context.Context, pendingID string, score1, score2 int) (domain.Match, error) {
	match, err := s.engine.ConvertPendingToMatch(pendingID, score1, score2)
	if err != nil {
		return domain.Match{}, err
	}
	s.afterFinalize(ctx, match, "")
	return match, nil
}

// ListMatches returns finalized matches, newest first, optionally
// filtered to one player
func (s *MatchService) ListMatches(ctx context.Context, userID string, limit int) []domain.Match {
	st := s.engine.Snapshot()
	var out []domain.Match
	for i := len(st.Matches) - 1; i >= 0; i-- {
		m := st.Matches[i]
		if userID != "" && m.Player1ID != userID && m.Player2ID != userID {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// CreateRoom opens an invite-code game room
func (s *MatchService) CreateRoom(ctx context.Context, hostID, place string, date time.Time) (domain.GameRoom, error) {
	return s.engine.CreateGameRoom(hostID, place, date)
}

// GetRoom returns a game room by ID
func (s *MatchService) GetRoom(ctx context.Context, roomID string) (domain.GameRoom, error) {
	return s.engine.GetGameRoom(roomID)
}

// JoinRoom seats a guest via invite code and notifies the room
func (s *MatchService) JoinRoom(ctx context.Context, inviteCode, guestID string) (domain.GameRoom, error) {
	room, err := s.engine.JoinGameRoom(inviteCode, guestID)
	if err != nil {
		return domain.GameRoom{}, err
	}
	s.broadcaster.BroadcastRoomEvent(room.ID, websocket.EventGuestJoined, room)
	return room, nil
}

// LeaveRoom removes a participant and notifies the room
func (s *MatchService) LeaveRoom(ctx context.Context, roomID, userID string) (domain.GameRoom, error) {
	room, err := s.engine.LeaveGameRoom(roomID, userID)
	if err != nil {
		return domain.GameRoom{}, err
	}
	switch room.Status {
	case domain.RoomCancelled:
		s.broadcaster.BroadcastRoomEvent(room.ID, websocket.EventRoomCancelled, room)
	case domain.RoomWaitingForGuest:
		s.broadcaster.BroadcastRoomEvent(room.ID, websocket.EventGuestLeft, room)
	}
	return room, nil
}

// StartMatch converts a ready room into a live match
func (s *MatchService) StartMatch(ctx context.Context, roomID string) (domain.LiveMatch, error) {
	live, err := s.engine.StartLiveMatch(roomID)
	if err != nil {
		return domain.LiveMatch{}, err
	}
	s.broadcaster.BroadcastRoomEvent(live.GameRoomID, websocket.EventMatchStarted, live)
	return live, nil
}

// GetLiveMatch returns an active live match
func (s *MatchService) GetLiveMatch(ctx context.Context, liveMatchID string) (domain.LiveMatch, error) {
	return s.engine.GetLiveMatch(liveMatchID)
}

// UpdateLiveScore applies a courtside score update and pushes it to the
// room's subscribers. Also the Kafka consumer's handler.
func (s *MatchService) UpdateLiveScore(ctx context.Context, liveMatchID string, score1, score2 int) error {
	live, err := s.engine.UpdateLiveMatch(liveMatchID, domain.LiveMatchUpdate{
		Score1: &score1,
		Score2: &score2,
	})
	if err != nil {
		return err
	}
	s.broadcaster.BroadcastRoomEvent(live.GameRoomID, websocket.EventScoreUpdate, live)
	return nil
}

// ReportResult ends a live match with the reporter's scores. A report
// needing confirmation stays provisional until the opponent responds.
func (s *MatchService) ReportResult(ctx context.Context, liveMatchID string, report domain.ResultReport) (domain.MatchResult, error) {
	result, err := s.engine.EndLiveMatch(liveMatchID, report)
	if err != nil {
		return domain.MatchResult{}, err
	}

	s.recordResultEvent(ctx, result, report.ReportedBy, "reported")

	if result.Finalized() {
		if match, ok := s.matchForResult(result); ok {
			s.afterFinalize(ctx, match, result.GameRoomID)
		}
	} else {
		s.broadcaster.BroadcastRoomEvent(result.GameRoomID, websocket.EventResultReported, result)
	}
	return result, nil
}

// ConfirmResult records the opposing player's confirmation
func (s *MatchService) ConfirmResult(ctx context.Context, resultID, userID string) (domain.MatchResult, error) {
	result, err := s.engine.ConfirmResult(resultID, userID)
	if err != nil {
		return domain.MatchResult{}, err
	}

	s.recordResultEvent(ctx, result, userID, "confirmed")

	if result.Finalized() {
		if match, ok := s.matchForResult(result); ok {
			s.afterFinalize(ctx, match, result.GameRoomID)
		}
	}
	return result, nil
}

// DisputeResult marks a provisional result as disputed
func (s *MatchService) DisputeResult(ctx context.Context, resultID, userID string) (domain.MatchResult, error) {
	result, err := s.engine.DisputeResult(resultID, userID)
	if err != nil {
		return domain.MatchResult{}, err
	}

	s.recordResultEvent(ctx, result, userID, "disputed")
	s.broadcaster.BroadcastRoomEvent(result.GameRoomID, websocket.EventResultDisputed, result)
	return result, nil
}

// GetResult returns a reported result
func (s *MatchService) GetResult(ctx context.Context, resultID string) (domain.MatchResult, error) {
	return s.engine.GetMatchResult(resultID)
}

// UserStats returns a user's aggregated match history
func (s *MatchService) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	if _, err := s.engine.GetUser(userID); err != nil {
		return domain.UserStats{}, err
	}
	return s.engine.GetUserStats(userID), nil
}

// Rankings returns the leaderboard, highest rank score first
func (s *MatchService) Rankings(ctx context.Context, limit int) []domain.RankingEntry {
	rankings := s.engine.GetRankings()
	if limit > 0 && len(rankings) > limit {
		rankings = rankings[:limit]
	}
	return rankings
}

// CachedRankings serves the leaderboard from the rank cache mirror.
// Nicknames are filled in best effort from the cached info hashes.
func (s *MatchService) CachedRankings(ctx context.Context, limit int) ([]domain.RankingEntry, int64, error) {
	entries, err := s.cache.TopN(ctx, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.cache.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	s.fillNicknames(ctx, entries)
	return entries, total, nil
}

// UserRank returns a user's cached rank and, when around is positive,
// the players ranked closest to them
func (s *MatchService) UserRank(ctx context.Context, userID string, around int) (*domain.RankingEntry, []domain.RankingEntry, error) {
	entry, err := s.cache.GetUserRank(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if nickname, err := s.cache.GetNickname(ctx, userID); err == nil {
		entry.Nickname = nickname
	}
	if around <= 0 {
		return entry, nil, nil
	}
	neighbors, err := s.cache.GetAroundUser(ctx, userID, around)
	if err != nil {
		return nil, nil, err
	}
	s.fillNicknames(ctx, neighbors)
	return entry, neighbors, nil
}

func (s *MatchService) fillNicknames(ctx context.Context, entries []domain.RankingEntry) {
	for i := range entries {
		if nickname, err := s.cache.GetNickname(ctx, entries[i].UserID); err == nil {
			entries[i].Nickname = nickname
		}
	}
}

// MonthlyStats returns per-month aggregates for a user
func (s *MatchService) MonthlyStats(ctx context.Context, userID string) ([]domain.MonthlyStats, error) {
	if _, err := s.engine.GetUser(userID); err != nil {
		return nil, err
	}
	return s.engine.GetMonthlyStats(userID), nil
}

// OpponentStats returns head-to-head records for a user
func (s *MatchService) OpponentStats(ctx context.Context, userID string) ([]domain.OpponentStats, error) {
	if _, err := s.engine.GetUser(userID); err != nil {
		return nil, err
	}
	return s.engine.GetOpponentStats(userID), nil
}

// StreakInfo returns a user's current and longest streaks
func (s *MatchService) StreakInfo(ctx context.Context, userID string) (domain.StreakInfo, error) {
	if _, err := s.engine.GetUser(userID); err != nil {
		return domain.StreakInfo{}, err
	}
	return s.engine.GetStreakInfo(userID), nil
}

// SweepExpiredRooms expires stale rooms and notifies their subscribers
func (s *MatchService) SweepExpiredRooms(ctx context.Context, now time.Time) int {
	expired := s.engine.ExpireRooms(now)
	for _, room := range expired {
		s.broadcaster.BroadcastRoomEvent(room.ID, websocket.EventRoomExpired, room)
	}
	return len(expired)
}

// SyncRankings mirrors every user's rank score into the cache and the
// archive
func (s *MatchService) SyncRankings(ctx context.Context) error {
	st := s.engine.Snapshot()
	if len(st.Users) == 0 {
		return nil
	}

	scores := make(map[string]int64, len(st.Users))
	for _, u := range st.Users {
		scores[u.ID] = int64(u.RankScore)
	}
	if err := s.cache.BatchSetScores(ctx, scores); err != nil {
		return err
	}
	return s.archive.BatchUpsertUsers(ctx, st.Users)
}

// afterFinalize runs the side effects of a finalized match. Failures
// are logged, never surfaced; the next sync pass repairs the mirrors.
func (s *MatchService) afterFinalize(ctx context.Context, match domain.Match, roomID string) {
	for _, id := range []string{match.Player1ID, match.Player2ID} {
		user, err := s.engine.GetUser(id)
		if err != nil {
			continue
		}
		if err := s.cache.SetScore(ctx, user.ID, int64(user.RankScore)); err != nil {
			s.logger.Warn("failed to cache rank score", "user_id", user.ID, "error", err)
		}
		if err := s.cache.SetNickname(ctx, user.ID, user.Nickname); err != nil {
			s.logger.Warn("failed to cache nickname", "user_id", user.ID, "error", err)
		}
		if err := s.archive.UpsertUser(ctx, user); err != nil {
			s.logger.Warn("failed to archive user", "user_id", user.ID, "error", err)
		}
	}

	if err := s.archive.RecordMatch(ctx, match); err != nil {
		s.logger.Warn("failed to archive match", "match_id", match.ID, "error", err)
	}

	if roomID != "" {
		s.broadcaster.BroadcastRoomEvent(roomID, websocket.EventResultFinalized, match)
	}
}

func (s *MatchService) recordResultEvent(ctx context.Context, result domain.MatchResult, userID, eventType string) {
	matchID := ""
	if match, ok := s.matchForResult(result); ok {
		matchID = match.ID
	}
	payload := map[string]interface{}{
		"player1_score": result.Player1Score,
		"player2_score": result.Player2Score,
		"winner_id":     result.WinnerID,
	}
	if err := s.archive.RecordResultEvent(ctx, result.ID, matchID, userID, eventType, payload); err != nil {
		s.logger.Warn("failed to record result event", "result_id", result.ID, "error", err)
	}
}

func (s *MatchService) matchForResult(result domain.MatchResult) (domain.Match, bool) {
	if !result.Finalized() {
		return domain.Match{}, false
	}
	st := s.engine.Snapshot()
	for i := len(st.Matches) - 1; i >= 0; i-- {
		if st.Matches[i].LiveMatchID == result.LiveMatchID && result.LiveMatchID != "" {
			return st.Matches[i], true
		}
	}
	return domain.Match{}, false
}
