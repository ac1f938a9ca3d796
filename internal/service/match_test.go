package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/hooprank/internal/domain"
	"github.com/hooprank/internal/engine"
	"github.com/hooprank/internal/websocket"
)

type fakeCache struct {
	scores    map[string]int64
	nicknames map[string]string
	batches   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{scores: make(map[string]int64), nicknames: make(map[string]string)}
}

func (f *fakeCache) SetScore(_ context.Context, userID string, score int64) error {
	f.scores[userID] = score
	return nil
}

func (f *fakeCache) BatchSetScores(_ context.Context, scores map[string]int64) error {
	f.batches++
	for id, s := range scores {
		f.scores[id] = s
	}
	return nil
}

func (f *fakeCache) SetNickname(_ context.Context, userID, nickname string) error {
	f.nicknames[userID] = nickname
	return nil
}

func (f *fakeCache) sorted() []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(f.scores))
	for id, s := range f.scores {
		entries = append(entries, domain.RankingEntry{UserID: id, RankScore: int(s)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RankScore != entries[j].RankScore {
			return entries[i].RankScore > entries[j].RankScore
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (f *fakeCache) TopN(_ context.Context, n int) ([]domain.RankingEntry, error) {
	entries := f.sorted()
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries, nil
}

func (f *fakeCache) GetUserRank(_ context.Context, userID string) (*domain.RankingEntry, error) {
	for _, e := range f.sorted() {
		if e.UserID == userID {
			entry := e
			return &entry, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeCache) GetAroundUser(_ context.Context, userID string, count int) ([]domain.RankingEntry, error) {
	entries := f.sorted()
	idx := -1
	for i, e := range entries {
		if e.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.ErrUserNotFound
	}
	start := idx - count
	if start < 0 {
		start = 0
	}
	end := idx + count + 1
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end], nil
}

func (f *fakeCache) GetNickname(_ context.Context, userID string) (string, error) {
	nickname, ok := f.nicknames[userID]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return nickname, nil
}

func (f *fakeCache) Count(_ context.Context) (int64, error) {
	return int64(len(f.scores)), nil
}

type fakeArchive struct {
	users   map[string]domain.User
	matches []domain.Match
	events  []string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{users: make(map[string]domain.User)}
}

func (f *fakeArchive) UpsertUser(_ context.Context, user domain.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeArchive) BatchUpsertUsers(_ context.Context, users []domain.User) error {
	for _, u := range users {
		f.users[u.ID] = u
	}
	return nil
}

func (f *fakeArchive) RecordMatch(_ context.Context, match domain.Match) error {
	f.matches = append(f.matches, match)
	return nil
}

func (f *fakeArchive) RecordResultEvent(_ context.Context, _, _, _, eventType string, _ map[string]interface{}) error {
	f.events = append(f.events, eventType)
	return nil
}

type broadcastCall struct {
	roomID    string
	eventType string
}

type fakeBroadcaster struct {
	calls []broadcastCall
}

func (f *fakeBroadcaster) BroadcastRoomEvent(roomID, eventType string, _ interface{}) {
	f.calls = append(f.calls, broadcastCall{roomID: roomID, eventType: eventType})
}

func (f *fakeBroadcaster) last() broadcastCall {
	if len(f.calls) == 0 {
		return broadcastCall{}
	}
	return f.calls[len(f.calls)-1]
}

func newTestService(t *testing.T) (*MatchService, *engine.Engine, *fakeCache, *fakeArchive, *fakeBroadcaster) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(engine.Options{}, logger)
	eng.AddUser(domain.User{ID: "host", Nickname: "Host", RankScore: 1200})
	eng.AddUser(domain.User{ID: "guest", Nickname: "Guest", RankScore: 1200})
	cache := newFakeCache()
	archive := newFakeArchive()
	broadcaster := &fakeBroadcaster{}
	svc := NewMatchService(eng, cache, archive, broadcaster, logger)
	return svc, eng, cache, archive, broadcaster
}

func readyLiveMatch(t *testing.T, svc *MatchService) domain.LiveMatch {
	t.Helper()
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "host", "Gangnam Court", time.Now())
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := svc.JoinRoom(ctx, room.InviteCode, "guest"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	live, err := svc.StartMatch(ctx, room.ID)
	if err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	return live
}

func TestRoomLifecycleBroadcasts(t *testing.T) {
	svc, _, _, _, broadcaster := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "host", "Gangnam Court", time.Now())
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if _, err := svc.JoinRoom(ctx, room.InviteCode, "guest"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if got := broadcaster.last(); got.eventType != websocket.EventGuestJoined || got.roomID != room.ID {
		t.Fatalf("broadcast = %+v, want guest_joined for %s", got, room.ID)
	}

	if _, err := svc.LeaveRoom(ctx, room.ID, "guest"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	if got := broadcaster.last(); got.eventType != websocket.EventGuestLeft {
		t.Fatalf("broadcast = %+v, want guest_left", got)
	}

	if _, err := svc.LeaveRoom(ctx, room.ID, "host"); err != nil {
		t.Fatalf("LeaveRoom host: %v", err)
	}
	if got := broadcaster.last(); got.eventType != websocket.EventRoomCancelled {
		t.Fatalf("broadcast = %+v, want room_cancelled", got)
	}
}

func TestImmediateResultFinalization(t *testing.T) {
	svc, eng, cache, archive, broadcaster := newTestService(t)
	ctx := context.Background()

	live := readyLiveMatch(t, svc)

	result, err := svc.ReportResult(ctx, live.ID, domain.ResultReport{
		Player1Score: 21,
		Player2Score: 18,
		ReportedBy:   "host",
	})
	if err != nil {
		t.Fatalf("ReportResult: %v", err)
	}
	if !result.Finalized() {
		t.Fatal("result without confirmation should finalize immediately")
	}

	// Ratings moved and were mirrored into the cache and archive
	host, _ := eng.GetUser("host")
	if host.RankScore <= 1200 {
		t.Fatalf("host rank score = %d, want > 1200", host.RankScore)
	}
	if cache.scores["host"] != int64(host.RankScore) {
		t.Fatalf("cached host score = %d, want %d", cache.scores["host"], host.RankScore)
	}
	if len(archive.matches) != 1 {
		t.Fatalf("archived matches = %d, want 1", len(archive.matches))
	}
	if archive.matches[0].WinnerID != "host" {
		t.Fatalf("archived winner = %q, want host", archive.matches[0].WinnerID)
	}

	if got := broadcaster.last(); got.eventType != websocket.EventResultFinalized {
		t.Fatalf("broadcast = %+v, want result_finalized", got)
	}
}

func TestConfirmationFlowBroadcasts(t *testing.T) {
	svc, _, _, archive, broadcaster := newTestService(t)
	ctx := context.Background()

	live := readyLiveMatch(t, svc)

	result, err := svc.ReportResult(ctx, live.ID, domain.ResultReport{
		Player1Score:      21,
		Player2Score:      18,
		ReportedBy:        "host",
		NeedsConfirmation: true,
	})
	if err != nil {
		t.Fatalf("ReportResult: %v", err)
	}
	if result.Finalized() {
		t.Fatal("result should stay provisional until the guest confirms")
	}
	if got := broadcaster.last(); got.eventType != websocket.EventResultReported {
		t.Fatalf("broadcast = %+v, want result_reported", got)
	}

	confirmed, err := svc.ConfirmResult(ctx, result.ID, "guest")
	if err != nil {
		t.Fatalf("ConfirmResult: %v", err)
	}
	if !confirmed.Finalized() {
		t.Fatal("guest confirmation should finalize the result")
	}
	if got := broadcaster.last(); got.eventType != websocket.EventResultFinalized {
		t.Fatalf("broadcast = %+v, want result_finalized", got)
	}

	wantEvents := []string{"reported", "confirmed"}
	if len(archive.events) != len(wantEvents) {
		t.Fatalf("archived events = %v, want %v", archive.events, wantEvents)
	}
	for i, want := range wantEvents {
		if archive.events[i] != want {
			t.Fatalf("archived events = %v, want %v", archive.events, wantEvents)
		}
	}
}

func TestDisputeBroadcasts(t *testing.T) {
	svc, _, _, _, broadcaster := newTestService(t)
	ctx := context.Background()

	live := readyLiveMatch(t, svc)

	result, err := svc.ReportResult(ctx, live.ID, domain.ResultReport{
		Player1Score:      21,
		Player2Score:      18,
		ReportedBy:        "host",
		NeedsConfirmation: true,
	})
	if err != nil {
		t.Fatalf("ReportResult: %v", err)
	}

	disputed, err := svc.DisputeResult(ctx, result.ID, "guest")
	if err != nil {
		t.Fatalf("DisputeResult: %v", err)
	}
	if !disputed.IsDisputed {
		t.Fatal("result should be disputed")
	}
	if got := broadcaster.last(); got.eventType != websocket.EventResultDisputed {
		t.Fatalf("broadcast = %+v, want result_disputed", got)
	}
}

func TestLiveScoreUpdateBroadcasts(t *testing.T) {
	svc, _, _, _, broadcaster := newTestService(t)
	ctx := context.Background()

	live := readyLiveMatch(t, svc)

	if err := svc.UpdateLiveScore(ctx, live.ID, 10, 8); err != nil {
		t.Fatalf("UpdateLiveScore: %v", err)
	}

	got := broadcaster.last()
	if got.eventType != websocket.EventScoreUpdate || got.roomID != live.GameRoomID {
		t.Fatalf("broadcast = %+v, want score_update for %s", got, live.GameRoomID)
	}

	updated, err := svc.GetLiveMatch(ctx, live.ID)
	if err != nil {
		t.Fatalf("GetLiveMatch: %v", err)
	}
	if updated.Score1 != 10 || updated.Score2 != 8 {
		t.Fatalf("live score = %d:%d, want 10:8", updated.Score1, updated.Score2)
	}
}

func TestSweepExpiredRoomsBroadcasts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Now()
	eng := engine.New(engine.Options{RoomTTL: time.Hour, Now: func() time.Time { return now }}, logger)
	eng.AddUser(domain.User{ID: "host", Nickname: "Host", RankScore: 1200})
	broadcaster := &fakeBroadcaster{}
	svc := NewMatchService(eng, newFakeCache(), newFakeArchive(), broadcaster, logger)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "host", "Gangnam Court", now)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if n := svc.SweepExpiredRooms(ctx, now.Add(2*time.Hour)); n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if got := broadcaster.last(); got.eventType != websocket.EventRoomExpired || got.roomID != room.ID {
		t.Fatalf("broadcast = %+v, want room_expired for %s", got, room.ID)
	}
}

func TestSyncRankings(t *testing.T) {
	svc, _, cache, archive, _ := newTestService(t)

	if err := svc.SyncRankings(context.Background()); err != nil {
		t.Fatalf("SyncRankings: %v", err)
	}
	if cache.batches != 1 {
		t.Fatalf("batches = %d, want 1", cache.batches)
	}
	if cache.scores["host"] != 1200 || cache.scores["guest"] != 1200 {
		t.Fatalf("cached scores = %v, want both 1200", cache.scores)
	}
	if len(archive.users) != 2 {
		t.Fatalf("archived users = %d, want 2", len(archive.users))
	}
}

func TestRankingsLimit(t *testing.T) {
	svc, eng, _, _, _ := newTestService(t)
	eng.AddUser(domain.User{ID: "third", Nickname: "Third", RankScore: 1400})

	rankings := svc.Rankings(context.Background(), 2)
	if len(rankings) != 2 {
		t.Fatalf("rankings = %d entries, want 2", len(rankings))
	}
	if rankings[0].UserID != "third" {
		t.Fatalf("top = %q, want third", rankings[0].UserID)
	}
}

func TestCachedRankingsServeMirroredScores(t *testing.T) {
	svc, eng, _, _, _ := newTestService(t)
	ctx := context.Background()

	live := readyLiveMatch(t, svc)
	if _, err := svc.ReportResult(ctx, live.ID, domain.ResultReport{
		Player1Score: 21,
		Player2Score: 18,
		ReportedBy:   "host",
	}); err != nil {
		t.Fatalf("ReportResult: %v", err)
	}

	entries, total, err := svc.CachedRankings(ctx, 10)
	if err != nil {
		t.Fatalf("CachedRankings: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	host, _ := eng.GetUser("host")
	if entries[0].UserID != "host" || entries[0].RankScore != host.RankScore {
		t.Fatalf("top entry = %+v, want host at %d", entries[0], host.RankScore)
	}
	if entries[0].Nickname != "Host" {
		t.Fatalf("top nickname = %q, want Host", entries[0].Nickname)
	}
	if entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Fatalf("ranks = %d, %d, want 1, 2", entries[0].Rank, entries[1].Rank)
	}
}

func TestUserRankWithNeighbors(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	live := readyLiveMatch(t, svc)
	if _, err := svc.ReportResult(ctx, live.ID, domain.ResultReport{
		Player1Score: 21,
		Player2Score: 18,
		ReportedBy:   "host",
	}); err != nil {
		t.Fatalf("ReportResult: %v", err)
	}

	entry, neighbors, err := svc.UserRank(ctx, "guest", 1)
	if err != nil {
		t.Fatalf("UserRank: %v", err)
	}
	if entry.Rank != 2 {
		t.Fatalf("guest rank = %d, want 2", entry.Rank)
	}
	if entry.Nickname != "Guest" {
		t.Fatalf("guest nickname = %q, want Guest", entry.Nickname)
	}
	if len(neighbors) != 2 {
		t.Fatalf("neighbors = %d, want 2", len(neighbors))
	}
	if neighbors[0].UserID != "host" {
		t.Fatalf("first neighbor = %q, want host", neighbors[0].UserID)
	}

	if _, _, err := svc.UserRank(ctx, "nobody", 0); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("unknown user err = %v, want ErrUserNotFound", err)
	}
}
