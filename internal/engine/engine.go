package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hooprank/internal/domain"
)

// State is one immutable snapshot of every collection the engine owns.
// Mutations build a new State sharing the untouched slices, so readers
// holding an old snapshot always see fully-formed data.
type State struct {
	Users          []domain.User
	Matches        []domain.Match
	PendingMatches []domain.PendingMatch
	GameRooms      []domain.GameRoom
	LiveMatches    []domain.LiveMatch
	MatchResults   []domain.MatchResult
}

// Options tunes engine behavior. The zero value is usable.
type Options struct {
	RoomTTL        time.Duration // invite room lifetime, default 24h
	InviteCodeLen  int           // default 6
	MaxCodeRetries int           // default 10
	Now            func() time.Time
}

func (o *Options) applyDefaults() {
	if o.RoomTTL == 0 {
		o.RoomTTL = 24 * time.Hour
	}
	if o.InviteCodeLen == 0 {
		o.InviteCodeLen = 6
	}
	if o.MaxCodeRetries == 0 {
		o.MaxCodeRetries = 10
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine owns all match lifecycle state and exposes the operations to
// transition it. All mutations go through named methods; there is no
// ambient singleton, callers hold a reference.
type Engine struct {
	mu     sync.RWMutex
	state  *State
	opts   Options
	logger *slog.Logger
	seq    int64
}

// New creates an empty engine.
func New(opts Options, logger *slog.Logger) *Engine {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		state:  &State{},
		opts:   opts,
		logger: logger,
		seq:    opts.Now().UnixNano(),
	}
}

// Snapshot returns the current state. The snapshot is immutable;
// callers must never write through it.
func (e *Engine) Snapshot() *State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// newID builds an entity ID from a prefix and a monotonic suffix.
// Callers must hold e.mu.
func (e *Engine) newID(prefix string) string {
	e.seq++
	return fmt.Sprintf("%s-%d", prefix, e.seq)
}

// AddUser registers a user. Used by seeding and archive recovery.
func (e *Engine) AddUser(user domain.User) domain.User {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.opts.Now()
	if user.ID == "" {
		user.ID = e.newID("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	next := *e.state
	next.Users = append(cloneSlice(e.state.Users), user)
	e.state = &next
	return user
}

// GetUser looks up a user by ID.
func (e *Engine) GetUser(userID string) (domain.User, error) {
	st := e.Snapshot()
	for _, u := range st.Users {
		if u.ID == userID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

// AddPendingMatch schedules a match between two existing, distinct
// players.
func (e *Engine) AddPendingMatch(date time.Time, timeOfDay, place, player1ID, player2ID string) (domain.PendingMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if player1ID == player2ID {
		return domain.PendingMatch{}, domain.ErrSamePlayer
	}
	for _, id := range []string{player1ID, player2ID} {
		if !e.userExists(id) {
			return domain.PendingMatch{}, domain.ErrUserNotFound
		}
	}

	pending := domain.PendingMatch{
		ID:        e.newID("pending"),
		Date:      date,
		Time:      timeOfDay,
		Place:     place,
		Player1ID: player1ID,
		Player2ID: player2ID,
		CreatedAt: e.opts.Now(),
	}

	next := *e.state
	next.PendingMatches = append(cloneSlice(e.state.PendingMatches), pending)
	e.state = &next

	e.logger.Info("pending match added",
		"pending_id", pending.ID,
		"player1_id", player1ID,
		"player2_id", player2ID,
	)
	return pending, nil
}

// ConvertPendingToMatch consumes a pending match and appends the
// finalized Match. The winner is derived from the scores; tied or
// negative scores are rejected here, not by callers.
func (e *Engine) ConvertPendingToMatch(pendingID string, score1, score2 int) (domain.Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateScores(score1, score2); err != nil {
		return domain.Match{}, err
	}

	idx := -1
	for i, p := range e.state.PendingMatches {
		if p.ID == pendingID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Match{}, domain.ErrPendingMatchNotFound
	}
	pending := e.state.PendingMatches[idx]

	match := domain.Match{
		ID:          e.newID("match"),
		Date:        pending.Date,
		Place:       pending.Place,
		Player1ID:   pending.Player1ID,
		Player2ID:   pending.Player2ID,
		Score1:      score1,
		Score2:      score2,
		WinnerID:    winnerOf(pending.Player1ID, pending.Player2ID, score1, score2),
		IsConfirmed: true,
		CreatedAt:   e.opts.Now(),
	}

	next := *e.state
	next.PendingMatches = removeAt(e.state.PendingMatches, idx)
	next.Matches = append(cloneSlice(e.state.Matches), match)
	next.Users = applyOutcome(e.state.Users, match, e.opts.Now())
	e.state = &next

	e.logger.Info("pending match converted",
		"pending_id", pendingID,
		"match_id", match.ID,
		"winner_id", match.WinnerID,
	)
	return match, nil
}

// RegisterMatch records a finalized match directly, without a pending
// match or live match behind it.
func (e *Engine) RegisterMatch(date time.Time, place, player1ID, player2ID string, score1, score2 int) (domain.Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if player1ID == player2ID {
		return domain.Match{}, domain.ErrSamePlayer
	}
	for _, id := range []string{player1ID, player2ID} {
		if !e.userExists(id) {
			return domain.Match{}, domain.ErrUserNotFound
		}
	}
	if err := validateScores(score1, score2); err != nil {
		return domain.Match{}, err
	}

	match := domain.Match{
		ID:          e.newID("match"),
		Date:        date,
		Place:       place,
		Player1ID:   player1ID,
		Player2ID:   player2ID,
		Score1:      score1,
		Score2:      score2,
		WinnerID:    winnerOf(player1ID, player2ID, score1, score2),
		IsConfirmed: true,
		CreatedAt:   e.opts.Now(),
	}

	next := *e.state
	next.Matches = append(cloneSlice(e.state.Matches), match)
	next.Users = applyOutcome(e.state.Users, match, e.opts.Now())
	e.state = &next
	return match, nil
}

// CreateGameRoom opens an invite room. The invite code is guaranteed
// unique among active (waiting or ready) rooms.
func (e *Engine) CreateGameRoom(hostID, place string, date time.Time) (domain.GameRoom, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.userExists(hostID) {
		return domain.GameRoom{}, domain.ErrUserNotFound
	}

	code, err := e.uniqueInviteCode()
	if err != nil {
		return domain.GameRoom{}, err
	}

	now := e.opts.Now()
	room := domain.GameRoom{
		ID:         e.newID("room"),
		InviteCode: code,
		HostID:     hostID,
		Place:      place,
		Date:       date,
		Status:     domain.RoomWaitingForGuest,
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.opts.RoomTTL),
	}

	next := *e.state
	next.GameRooms = append(cloneSlice(e.state.GameRooms), room)
	e.state = &next

	e.logger.Info("game room created",
		"room_id", room.ID,
		"host_id", hostID,
		"invite_code", code,
	)
	return room, nil
}

// JoinGameRoom seats a guest in the room matching the invite code.
// Codes are matched case-insensitively. Joining succeeds exactly once
// per room: only a waiting, unexpired room accepts a guest.
func (e *Engine) JoinGameRoom(inviteCode, guestID string) (domain.GameRoom, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.userExists(guestID) {
		return domain.GameRoom{}, domain.ErrUserNotFound
	}

	code := strings.ToUpper(strings.TrimSpace(inviteCode))
	idx := -1
	for i, r := range e.state.GameRooms {
		if r.InviteCode != code {
			continue
		}
		if r.Status == domain.RoomWaitingForGuest {
			idx = i
			break
		}
		// Codes are unique among waiting and ready rooms, so a ready
		// room with this code is the room the caller meant.
		if r.Status == domain.RoomReady {
			return domain.GameRoom{}, domain.ErrRoomNotJoinable
		}
	}
	if idx < 0 {
		return domain.GameRoom{}, domain.ErrRoomNotFound
	}

	room := e.state.GameRooms[idx]
	now := e.opts.Now()
	if now.After(room.ExpiresAt) {
		room.Status = domain.RoomExpired
		next := *e.state
		next.GameRooms = replaceAt(e.state.GameRooms, idx, room)
		e.state = &next
		return domain.GameRoom{}, domain.ErrRoomExpired
	}
	if room.HostID == guestID {
		return domain.GameRoom{}, domain.ErrOwnRoom
	}

	room.GuestID = guestID
	room.Status = domain.RoomReady

	next := *e.state
	next.GameRooms = replaceAt(e.state.GameRooms, idx, room)
	e.state = &next

	e.logger.Info("guest joined room", "room_id", room.ID, "guest_id", guestID)
	return room, nil
}

// LeaveGameRoom handles either party leaving. The host leaving cancels
// the room; the guest leaving reverts it to waiting. Anyone else is a
// no-op.
func (e *Engine) LeaveGameRoom(roomID, userID string) (domain.GameRoom, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, r := range e.state.GameRooms {
		if r.ID == roomID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.GameRoom{}, domain.ErrRoomNotFound
	}

	room := e.state.GameRooms[idx]
	switch userID {
	case room.HostID:
		room.Status = domain.RoomCancelled
	case room.GuestID:
		room.GuestID = ""
		room.Status = domain.RoomWaitingForGuest
	default:
		return room, nil
	}

	next := *e.state
	next.GameRooms = replaceAt(e.state.GameRooms, idx, room)
	e.state = &next

	e.logger.Info("user left room", "room_id", roomID, "user_id", userID, "status", string(room.Status))
	return room, nil
}

// StartLiveMatch converts a ready room into a live match. The room is
// marked in_progress so it cannot be started twice.
func (e *Engine) StartLiveMatch(roomID string) (domain.LiveMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, r := range e.state.GameRooms {
		if r.ID == roomID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.LiveMatch{}, domain.ErrRoomNotFound
	}

	room := e.state.GameRooms[idx]
	if room.Status != domain.RoomReady || room.GuestID == "" {
		return domain.LiveMatch{}, domain.ErrRoomNotReady
	}

	now := e.opts.Now()
	live := domain.LiveMatch{
		ID:         e.newID("live"),
		GameRoomID: room.ID,
		Player1ID:  room.HostID,
		Player2ID:  room.GuestID,
		Place:      room.Place,
		Date:       room.Date,
		Status:     domain.LiveInProgress,
		StartTime:  now,
	}
	room.Status = domain.RoomInProgress

	next := *e.state
	next.GameRooms = replaceAt(e.state.GameRooms, idx, room)
	next.LiveMatches = append(cloneSlice(e.state.LiveMatches), live)
	e.state = &next

	e.logger.Info("live match started",
		"live_match_id", live.ID,
		"room_id", room.ID,
		"player1_id", live.Player1ID,
		"player2_id", live.Player2ID,
	)
	return live, nil
}

// UpdateLiveMatch merges a partial update into a live match.
func (e *Engine) UpdateLiveMatch(liveMatchID string, update domain.LiveMatchUpdate) (domain.LiveMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, m := range e.state.LiveMatches {
		if m.ID == liveMatchID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.LiveMatch{}, domain.ErrLiveMatchNotFound
	}

	live := e.state.LiveMatches[idx]
	if update.Score1 != nil {
		if *update.Score1 < 0 {
			return domain.LiveMatch{}, domain.ErrNegativeScore
		}
		live.Score1 = *update.Score1
	}
	if update.Score2 != nil {
		if *update.Score2 < 0 {
			return domain.LiveMatch{}, domain.ErrNegativeScore
		}
		live.Score2 = *update.Score2
	}
	if update.Status != nil {
		live.Status = *update.Status
	}

	next := *e.state
	next.LiveMatches = replaceAt(e.state.LiveMatches, idx, live)
	e.state = &next
	return live, nil
}

// EndLiveMatch records the reported result for a live match. The live
// match leaves the active list and a MatchResult is appended. When the
// report does not need the opponent's confirmation the finalized Match
// is derived immediately; otherwise it waits for ConfirmResult.
func (e *Engine) EndLiveMatch(liveMatchID string, report domain.ResultReport) (domain.MatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateScores(report.Player1Score, report.Player2Score); err != nil {
		return domain.MatchResult{}, err
	}

	idx := -1
	for i, m := range e.state.LiveMatches {
		if m.ID == liveMatchID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.MatchResult{}, domain.ErrLiveMatchNotFound
	}

	live := e.state.LiveMatches[idx]
	if report.ReportedBy != "" && report.ReportedBy != live.Player1ID && report.ReportedBy != live.Player2ID {
		return domain.MatchResult{}, domain.ErrNotParticipant
	}

	now := e.opts.Now()
	result := domain.MatchResult{
		ID:                e.newID("result"),
		LiveMatchID:       live.ID,
		GameRoomID:        live.GameRoomID,
		Player1ID:         live.Player1ID,
		Player2ID:         live.Player2ID,
		Player1Score:      report.Player1Score,
		Player2Score:      report.Player2Score,
		WinnerID:          winnerOf(live.Player1ID, live.Player2ID, report.Player1Score, report.Player2Score),
		ReportedBy:        report.ReportedBy,
		NeedsConfirmation: report.NeedsConfirmation,
		CreatedAt:         now,
	}
	if report.ReportedBy != "" {
		result.ConfirmedBy = []string{report.ReportedBy}
	}

	next := *e.state
	next.LiveMatches = removeAt(e.state.LiveMatches, idx)

	if !report.NeedsConfirmation {
		result.FinalizedAt = now
		match := matchFromResult(e.newID("match"), live, result, now)
		next.Matches = append(cloneSlice(e.state.Matches), match)
		next.Users = applyOutcome(e.state.Users, match, now)
	}
	next.MatchResults = append(cloneSlice(e.state.MatchResults), result)
	e.state = &next

	e.logger.Info("live match ended",
		"live_match_id", live.ID,
		"result_id", result.ID,
		"winner_id", result.WinnerID,
		"needs_confirmation", report.NeedsConfirmation,
	)
	return result, nil
}

// ConfirmResult lets the opposing player accept a provisional result,
// deriving the finalized Match.
func (e *Engine) ConfirmResult(resultID, userID string) (domain.MatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, r := range e.state.MatchResults {
		if r.ID == resultID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.MatchResult{}, domain.ErrResultNotFound
	}

	result := e.state.MatchResults[idx]
	if userID != result.Player1ID && userID != result.Player2ID {
		return domain.MatchResult{}, domain.ErrNotParticipant
	}
	if result.Finalized() || result.IsDisputed {
		return domain.MatchResult{}, domain.ErrAlreadyDecided
	}

	now := e.opts.Now()
	result.ConfirmedBy = appendUnique(result.ConfirmedBy, userID)

	next := *e.state
	if containsAll(result.ConfirmedBy, result.Player1ID, result.Player2ID) {
		result.NeedsConfirmation = false
		result.FinalizedAt = now

		match := domain.Match{
			ID:          e.newID("match"),
			Place:       e.roomPlace(result.GameRoomID),
			Date:        e.roomDate(result.GameRoomID, result.CreatedAt),
			Player1ID:   result.Player1ID,
			Player2ID:   result.Player2ID,
			Score1:      result.Player1Score,
			Score2:      result.Player2Score,
			WinnerID:    result.WinnerID,
			IsConfirmed: true,
			GameRoomID:  result.GameRoomID,
			LiveMatchID: result.LiveMatchID,
			CreatedAt:   now,
		}
		next.Matches = append(cloneSlice(e.state.Matches), match)
		next.Users = applyOutcome(e.state.Users, match, now)
	}
	next.MatchResults = replaceAt(e.state.MatchResults, idx, result)
	e.state = &next

	e.logger.Info("result confirmed", "result_id", resultID, "user_id", userID, "finalized", result.Finalized())
	return result, nil
}

// DisputeResult marks a provisional result as disputed. No Match is
// derived from a disputed result.
func (e *Engine) DisputeResult(resultID, userID string) (domain.MatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, r := range e.state.MatchResults {
		if r.ID == resultID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.MatchResult{}, domain.ErrResultNotFound
	}

	result := e.state.MatchResults[idx]
	if userID != result.Player1ID && userID != result.Player2ID {
		return domain.MatchResult{}, domain.ErrNotParticipant
	}
	if result.Finalized() || result.IsDisputed {
		return domain.MatchResult{}, domain.ErrAlreadyDecided
	}

	result.IsDisputed = true

	next := *e.state
	next.MatchResults = replaceAt(e.state.MatchResults, idx, result)
	e.state = &next

	e.logger.Info("result disputed", "result_id", resultID, "user_id", userID)
	return result, nil
}

// ExpireRooms marks waiting and ready rooms past their deadline as
// expired and returns them.
func (e *Engine) ExpireRooms(now time.Time) []domain.GameRoom {
	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []domain.GameRoom
	var rooms []domain.GameRoom
	for i, r := range e.state.GameRooms {
		if (r.Status == domain.RoomWaitingForGuest || r.Status == domain.RoomReady) && now.After(r.ExpiresAt) {
			if rooms == nil {
				rooms = cloneSlice(e.state.GameRooms)
			}
			rooms[i].Status = domain.RoomExpired
			expired = append(expired, rooms[i])
		}
	}
	if rooms == nil {
		return nil
	}

	next := *e.state
	next.GameRooms = rooms
	e.state = &next

	e.logger.Info("rooms expired", "count", len(expired))
	return expired
}

// GetGameRoom looks up a room by ID.
func (e *Engine) GetGameRoom(roomID string) (domain.GameRoom, error) {
	st := e.Snapshot()
	for _, r := range st.GameRooms {
		if r.ID == roomID {
			return r, nil
		}
	}
	return domain.GameRoom{}, domain.ErrRoomNotFound
}

// GetLiveMatch looks up an active live match by ID.
func (e *Engine) GetLiveMatch(liveMatchID string) (domain.LiveMatch, error) {
	st := e.Snapshot()
	for _, m := range st.LiveMatches {
		if m.ID == liveMatchID {
			return m, nil
		}
	}
	return domain.LiveMatch{}, domain.ErrLiveMatchNotFound
}

// GetMatchResult looks up a reported result by ID.
func (e *Engine) GetMatchResult(resultID string) (domain.MatchResult, error) {
	st := e.Snapshot()
	for _, r := range st.MatchResults {
		if r.ID == resultID {
			return r, nil
		}
	}
	return domain.MatchResult{}, domain.ErrResultNotFound
}

// userExists reports whether a user ID is registered. Callers must
// hold e.mu.
func (e *Engine) userExists(userID string) bool {
	for _, u := range e.state.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

func (e *Engine) roomPlace(roomID string) string {
	for _, r := range e.state.GameRooms {
		if r.ID == roomID {
			return r.Place
		}
	}
	return ""
}

func (e *Engine) roomDate(roomID string, fallback time.Time) time.Time {
	for _, r := range e.state.GameRooms {
		if r.ID == roomID {
			return r.Date
		}
	}
	return fallback
}

// winnerOf applies the no-tie winner rule. Callers must have validated
// the scores are distinct.
func winnerOf(player1ID, player2ID string, score1, score2 int) string {
	if score1 > score2 {
		return player1ID
	}
	return player2ID
}

func validateScores(score1, score2 int) error {
	if score1 < 0 || score2 < 0 {
		return domain.ErrNegativeScore
	}
	if score1 == score2 {
		return domain.ErrTiedScore
	}
	return nil
}

func matchFromResult(id string, live domain.LiveMatch, result domain.MatchResult, now time.Time) domain.Match {
	return domain.Match{
		ID:          id,
		Date:        live.Date,
		Place:       live.Place,
		Player1ID:   live.Player1ID,
		Player2ID:   live.Player2ID,
		Score1:      result.Player1Score,
		Score2:      result.Player2Score,
		WinnerID:    result.WinnerID,
		IsConfirmed: !result.NeedsConfirmation,
		GameRoomID:  live.GameRoomID,
		LiveMatchID: live.ID,
		CreatedAt:   now,
	}
}

func cloneSlice[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func removeAt[T any](s []T, idx int) []T {
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:idx]...)
	return append(out, s[idx+1:]...)
}

func replaceAt[T any](s []T, idx int, v T) []T {
	out := cloneSlice(s)
	out[idx] = v
	return out
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(cloneSlice(s), v)
}

func containsAll(s []string, vals ...string) bool {
	for _, v := range vals {
		found := false
		for _, x := range s {
			if x == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
