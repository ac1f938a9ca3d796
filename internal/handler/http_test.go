package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/hooprank/internal/auth"
	"github.com/hooprank/internal/config"
	"github.com/hooprank/internal/domain"
	"github.com/hooprank/internal/engine"
	"github.com/hooprank/internal/service"
	"github.com/hooprank/internal/websocket"
)

type memSessionStore struct {
	sessions map[string]domain.AuthUser
}

func (m *memSessionStore) Save(_ context.Context, user domain.AuthUser) error {
	m.sessions[user.ID] = user
	return nil
}

func (m *memSessionStore) Get(_ context.Context, userID string) (*domain.AuthUser, error) {
	user, ok := m.sessions[userID]
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	return &user, nil
}

func (m *memSessionStore) Delete(_ context.Context, userID string) error {
	delete(m.sessions, userID)
	return nil
}

type memCache struct {
	scores    map[string]int64
	nicknames map[string]string
}

func newMemCache() *memCache {
	return &memCache{scores: make(map[string]int64), nicknames: make(map[string]string)}
}

func (m *memCache) SetScore(_ context.Context, userID string, score int64) error {
	m.scores[userID] = score
	return nil
}

func (m *memCache) BatchSetScores(_ context.Context, scores map[string]int64) error {
	for id, s := range scores {
		m.scores[id] = s
	}
	return nil
}

func (m *memCache) SetNickname(_ context.Context, userID, nickname string) error {
	m.nicknames[userID] = nickname
	return nil
}

func (m *memCache) sorted() []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(m.scores))
	for id, s := range m.scores {
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

func (m *memCache) TopN(_ context.Context, n int) ([]domain.RankingEntry, error) {
	entries := m.sorted()
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries, nil
}

func (m *memCache) GetUserRank(_ context.Context, userID string) (*domain.RankingEntry, error) {
	for _, e := range m.sorted() {
		if e.UserID == userID {
			entry := e
			return &entry, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memCache) GetAroundUser(_ context.Context, userID string, count int) ([]domain.RankingEntry, error) {
	entries := m.sorted()
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

func (m *memCache) GetNickname(_ context.Context, userID string) (string, error) {
	nickname, ok := m.nicknames[userID]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return nickname, nil
}

func (m *memCache) Count(_ context.Context) (int64, error) {
	return int64(len(m.scores)), nil
}

type nopArchive struct{}

func (nopArchive) UpsertUser(context.Context, domain.User) error         { return nil }
func (nopArchive) BatchUpsertUsers(context.Context, []domain.User) error { return nil }
func (nopArchive) RecordMatch(context.Context, domain.Match) error       { return nil }
func (nopArchive) RecordResultEvent(context.Context, string, string, string, string, map[string]interface{}) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(engine.Options{}, logger)
	eng.AddUser(domain.User{ID: "host", Nickname: "Host", RankScore: 1200})
	eng.AddUser(domain.User{ID: "guest", Nickname: "Guest", RankScore: 1200})

	hub := websocket.NewHub(logger)
	matches := service.NewMatchService(eng, newMemCache(), nopArchive{}, hub, logger)
	authSvc := auth.NewService(
		&config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		&memSessionStore{sessions: make(map[string]domain.AuthUser)},
		eng,
		logger,
	)
	limits := &config.LeaderboardConfig{DefaultLimit: 50, MaxLimit: 200}

	h := NewHandler(matches, authSvc, hub, limits, logger)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv, eng
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var api APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, api
}

func dataInto(t *testing.T, api APIResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(api.Data)
	if err != nil {
		t.Fatalf("re-marshaling data: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshaling data: %v", err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, api := doJSON(t, http.MethodGet, srv.URL+path, nil)
		if resp.StatusCode != http.StatusOK || !api.Success {
			t.Fatalf("%s: status %d success %v", path, resp.StatusCode, api.Success)
		}
	}
}

func TestGuestLoginAndMe(t *testing.T) {
	srv, _ := newTestServer(t)

	_, api := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login/guest", map[string]string{"nickname": "Newbie"})
	if !api.Success {
		t.Fatalf("login failed: %s", api.Error)
	}
	var login auth.LoginResult
	dataInto(t, api, &login)
	if login.Token == "" {
		t.Fatal("expected a token")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /me: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/me status = %d, want 200", resp.StatusCode)
	}

	// Without a token the endpoint refuses
	resp2, err := http.Get(srv.URL + "/api/v1/auth/me")
	if err != nil {
		t.Fatalf("GET /me unauthenticated: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /me status = %d, want 401", resp2.StatusCode)
	}
}

func TestRoomToMatchOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/v1"

	// Host opens a room
	resp, api := doJSON(t, http.MethodPost, base+"/rooms", map[string]string{
		"host_id": "host",
		"place":   "Gangnam Court",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create room status = %d: %s", resp.StatusCode, api.Error)
	}
	var room domain.GameRoom
	dataInto(t, api, &room)
	if room.Status != domain.RoomWaitingForGuest {
		t.Fatalf("room status = %q, want waiting_for_guest", room.Status)
	}

	// Guest joins by invite code
	_, api = doJSON(t, http.MethodPost, base+"/rooms/join", map[string]string{
		"invite_code": room.InviteCode,
		"guest_id":    "guest",
	})
	if !api.Success {
		t.Fatalf("join failed: %s", api.Error)
	}

	// Host starts the match
	resp, api = doJSON(t, http.MethodPost, base+"/rooms/"+room.ID+"/start", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d: %s", resp.StatusCode, api.Error)
	}
	var live domain.LiveMatch
	dataInto(t, api, &live)

	// Courtside score update
	_, api = doJSON(t, http.MethodPost, base+"/live/"+live.ID+"/score", map[string]int{
		"score1": 10, "score2": 8,
	})
	if !api.Success {
		t.Fatalf("score update failed: %s", api.Error)
	}

	// Host reports the final score, guest must confirm
	_, api = doJSON(t, http.MethodPost, base+"/live/"+live.ID+"/end", domain.ResultReport{
		Player1Score:      21,
		Player2Score:      18,
		ReportedBy:        "host",
		NeedsConfirmation: true,
	})
	if !api.Success {
		t.Fatalf("end failed: %s", api.Error)
	}
	var result domain.MatchResult
	dataInto(t, api, &result)
	if result.Finalized() {
		t.Fatal("result should be provisional")
	}

	_, api = doJSON(t, http.MethodPost, base+"/results/"+result.ID+"/confirm", map[string]string{"user_id": "guest"})
	if !api.Success {
		t.Fatalf("confirm failed: %s", api.Error)
	}
	dataInto(t, api, &result)
	if !result.Finalized() {
		t.Fatal("result should be finalized after guest confirmation")
	}
	if result.WinnerID != "host" {
		t.Fatalf("winner = %q, want host", result.WinnerID)
	}

	// The finalized match shows up in the host's history
	_, api = doJSON(t, http.MethodGet, base+"/matches?user_id=host", nil)
	var matches []domain.Match
	dataInto(t, api, &matches)
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if !matches[0].IsConfirmed || matches[0].Score1 != 21 || matches[0].Score2 != 18 {
		t.Fatalf("unexpected match: %+v", matches[0])
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv, eng := newTestServer(t)
	base := srv.URL + "/api/v1"

	// Unknown invite code is a 404
	resp, _ := doJSON(t, http.MethodPost, base+"/rooms/join", map[string]string{
		"invite_code": "NOSUCH",
		"guest_id":    "guest",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown code status = %d, want 404", resp.StatusCode)
	}

	// Tied scores are a 400
	resp, _ = doJSON(t, http.MethodPost, base+"/matches", map[string]interface{}{
		"date":       "2024-03-01",
		"player1_id": "host",
		"player2_id": "guest",
		"score1":     15,
		"score2":     15,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("tied score status = %d, want 400", resp.StatusCode)
	}

	// Starting a waiting room is a 409
	room, err := eng.CreateGameRoom("host", "Gangnam Court", time.Now())
	if err != nil {
		t.Fatalf("CreateGameRoom: %v", err)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/rooms/"+room.ID+"/start", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("not-ready start status = %d, want 409", resp.StatusCode)
	}
}

func TestRankingsEndpoint(t *testing.T) {
	srv, eng := newTestServer(t)
	eng.AddUser(domain.User{ID: "third", Nickname: "Third", RankScore: 1400})

	_, api := doJSON(t, http.MethodGet, srv.URL+"/api/v1/rankings?limit=2", nil)
	var rankings []domain.RankingEntry
	dataInto(t, api, &rankings)
	if len(rankings) != 2 {
		t.Fatalf("rankings = %d entries, want 2", len(rankings))
	}
	if rankings[0].UserID != "third" || rankings[0].Rank != 1 {
		t.Fatalf("top entry = %+v, want third at rank 1", rankings[0])
	}
}

func TestCachedRankingsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/v1"

	// A finalized match mirrors both players into the rank cache
	_, api := doJSON(t, http.MethodPost, base+"/matches", map[string]interface{}{
		"date":       "2024-03-01",
		"player1_id": "host",
		"player2_id": "guest",
		"score1":     21,
		"score2":     18,
	})
	if !api.Success {
		t.Fatalf("register match failed: %s", api.Error)
	}

	_, api = doJSON(t, http.MethodGet, base+"/rankings/cached", nil)
	if !api.Success {
		t.Fatalf("cached rankings failed: %s", api.Error)
	}
	var cached struct {
		Total    int64                 `json:"total"`
		Rankings []domain.RankingEntry `json:"rankings"`
	}
	dataInto(t, api, &cached)
	if cached.Total != 2 || len(cached.Rankings) != 2 {
		t.Fatalf("cached = %+v, want 2 entries", cached)
	}
	if cached.Rankings[0].UserID != "host" || cached.Rankings[0].Nickname != "Host" {
		t.Fatalf("top entry = %+v, want host", cached.Rankings[0])
	}

	_, api = doJSON(t, http.MethodGet, base+"/users/guest/rank?around=1", nil)
	if !api.Success {
		t.Fatalf("user rank failed: %s", api.Error)
	}
	var rank struct {
		Entry  domain.RankingEntry   `json:"entry"`
		Around []domain.RankingEntry `json:"around"`
	}
	dataInto(t, api, &rank)
	if rank.Entry.Rank != 2 || rank.Entry.UserID != "guest" {
		t.Fatalf("entry = %+v, want guest at rank 2", rank.Entry)
	}
	if len(rank.Around) != 2 {
		t.Fatalf("around = %d entries, want 2", len(rank.Around))
	}

	// A user missing from the cache is a 404
	resp, _ := doJSON(t, http.MethodGet, base+"/users/nobody/rank", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user rank status = %d, want 404", resp.StatusCode)
	}
}

func TestUserStatsEndpoint(t *testing.T) {
	srv, eng := newTestServer(t)

	day := func(d int) time.Time {
		return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
	}
	for i, s := range [][2]int{{21, 18}, {15, 21}, {21, 10}} {
		if _, err := eng.RegisterMatch(day(i+1), "Court", "host", "guest", s[0], s[1]); err != nil {
			t.Fatalf("RegisterMatch: %v", err)
		}
	}

	_, api := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/users/%s/stats", srv.URL, "host"), nil)
	var stats domain.UserStats
	dataInto(t, api, &stats)
	if stats.TotalMatches != 3 || stats.Wins != 2 || stats.Losses != 1 {
		t.Fatalf("stats = %+v, want 3/2/1", stats)
	}

	_, api = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/users/%s/streak", srv.URL, "host"), nil)
	var streak domain.StreakInfo
	dataInto(t, api, &streak)
	if streak.Current != 1 || streak.Type != domain.StreakWin {
		t.Fatalf("streak = %+v, want current 1 win", streak)
	}

	// Unknown user is a 404
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/nobody/stats", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user status = %d, want 404", resp.StatusCode)
	}
}
