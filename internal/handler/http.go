package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hooprank/internal/auth"
	"github.com/hooprank/internal/config"
	"github.com/hooprank/internal/domain"
	"github.com/hooprank/internal/service"
	"github.com/hooprank/internal/websocket"
)

type contextKey string

const sessionKey contextKey = "session"

// Handler provides HTTP handlers for the match API
type Handler struct {
	matches *service.MatchService
	auth    *auth.Service
	hub     *websocket.Hub
	limits  *config.LeaderboardConfig
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(matches *service.MatchService, authSvc *auth.Service, hub *websocket.Hub, limits *config.LeaderboardConfig, logger *slog.Logger) *Handler {
	return &Handler{
		matches: matches,
		auth:    authSvc,
		hub:     hub,
		limits:  limits,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login/kakao", h.LoginKakao)
			r.Post("/login/guest", h.LoginGuest)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.Me)
			})
		})

		// Match operations
		r.Route("/matches", func(r chi.Router) {
			r.Post("/", h.RegisterMatch)
			r.Get("/", h.ListMatches)
		})

		// Scheduled matches
		r.Route("/pending-matches", func(r chi.Router) {
			r.Post("/", h.CreatePendingMatch)
			r.Get("/", h.ListPendingMatches)
			r.Post("/{pendingID}/result", h.SubmitPendingResult)
		})

		// Invite rooms
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.CreateRoom)
			r.Post("/join", h.JoinRoom)

			r.Route("/{roomID}", func(r chi.Router) {
				r.Get("/", h.GetRoom)
				r.Post("/leave", h.LeaveRoom)
				r.Post("/start", h.StartMatch)
			})
		})

		// Live matches
		r.Route("/live/{liveMatchID}", func(r chi.Router) {
			r.Get("/", h.GetLiveMatch)
			r.Post("/score", h.UpdateLiveScore)
			r.Post("/end", h.ReportResult)
		})

		// Result confirmation
		r.Route("/results/{resultID}", func(r chi.Router) {
			r.Get("/", h.GetResult)
			r.Post("/confirm", h.ConfirmResult)
			r.Post("/dispute", h.DisputeResult)
		})

		// Derived views
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", h.GetUser)
			r.Get("/stats", h.GetUserStats)
			r.Get("/streak", h.GetStreakInfo)
			r.Get("/monthly", h.GetMonthlyStats)
			r.Get("/opponents", h.GetOpponentStats)
			r.Get("/rank", h.GetUserRank)
		})
		r.Get("/rankings", h.GetRankings)
		r.Get("/rankings/cached", h.GetCachedRankings)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth verifies the bearer token and stores the session on the
// request context
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}

		session, err := h.auth.Verify(r.Context(), token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *domain.AuthUser {
	session, _ := ctx.Value(sessionKey).(*domain.AuthUser)
	return session
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCreated writes a created JSON response
func (h *Handler) writeCreated(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeDomainError maps a domain error to an HTTP status
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// parseDate accepts RFC 3339 timestamps or bare dates
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// LoginKakao handles Kakao account login
func (h *Handler) LoginKakao(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KakaoToken string `json:"kakao_token"`
		Nickname   string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.auth.LoginKakao(r.Context(), req.KakaoToken, req.Nickname)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// LoginGuest handles guest login
func (h *Handler) LoginGuest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.auth.LoginGuest(r.Context(), req.Nickname)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// Logout invalidates the caller's session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if err := h.auth.Logout(r.Context(), session.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "logged_out"})
}

// Me returns the caller's session
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, sessionFrom(r.Context()))
}

// RegisterMatch records an already-played match
func (h *Handler) RegisterMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date      string `json:"date"`
		Place     string `json:"place"`
		Player1ID string `json:"player1_id"`
		Player2ID string `json:"player2_id"`
		Score1    int    `json:"score1"`
		Score2    int    `json:"score2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.Player1ID == "" || req.Player2ID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	match, err := h.matches.RegisterMatch(r.Context(), date, req.Place, req.Player1ID, req.Player2ID, req.Score1, req.Score2)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeCreated(w, match)
}

// ListMatches returns finalized matches
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := h.limits.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > h.limits.MaxLimit {
		limit = h.limits.MaxLimit
	}

	h.writeSuccess(w, h.matches.ListMatches(r.Context(), userID, limit))
}

// CreatePendingMatch schedules a match
func (h *Handler) CreatePendingMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date      string `json:"date"`
		Time      string `json:"time"`
		Place     string `json:"place"`
		Player1ID string `json:"player1_id"`
		Player2ID string `json:"player2_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	pending, err := h.matches.CreatePendingMatch(r.Context(), date, req.Time, req.Place, req.Player1ID, req.Player2ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeCreated(w, pending)
}

// ListPendingMatches returns scheduled matches
func (h *Handler) ListPendingMatches(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	h.writeSuccess(w, h.matches.ListPendingMatches(r.Context(), userID))
}

// SubmitPendingResult records the result of a scheduled match
func (h *Handler) SubmitPendingResult(w http.ResponseWriter, r *http.Request) {
	pendingID := chi.URLParam(r, "pendingID")

	var req struct {
		Score1 int `json:"score1"`
		Score2 int `json:"score2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	match, err := h.matches.SubmitPendingResult(r.Context(), pendingID, req.Score1, req.Score2)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, match)
}

// CreateRoom opens an invite room
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostID string `json:"host_id"`
		Place  string `json:"place"`
		Date   string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.HostID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		date = parsed
	}

	room, err := h.matches.CreateRoom(r.Context(), req.HostID, req.Place, date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeCreated(w, room)
}

// JoinRoom seats a guest by invite code
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode string `json:"invite_code"`
		GuestID    string `json:"guest_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.InviteCode == "" || req.GuestID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	room, err := h.matches.JoinRoom(r.Context(), req.InviteCode, req.GuestID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, room)
}

// GetRoom returns a room by ID
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.matches.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, room)
}

// LeaveRoom removes a participant from a room
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	room, err := h.matches.LeaveRoom(r.Context(), chi.URLParam(r, "roomID"), req.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, room)
}

// StartMatch converts a ready room into a live match
func (h *Handler) StartMatch(w http.ResponseWriter, r *http.Request) {
	live, err := h.matches.StartMatch(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeCreated(w, live)
}

// GetLiveMatch returns an active live match
func (h *Handler) GetLiveMatch(w http.ResponseWriter, r *http.Request) {
	live, err := h.matches.GetLiveMatch(r.Context(), chi.URLParam(r, "liveMatchID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, live)
}

// UpdateLiveScore applies a live score update
func (h *Handler) UpdateLiveScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Score1 int `json:"score1"`
		Score2 int `json:"score2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.matches.UpdateLiveScore(r.Context(), chi.URLParam(r, "liveMatchID"), req.Score1, req.Score2); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "updated"})
}

// ReportResult ends a live match with its final scores
func (h *Handler) ReportResult(w http.ResponseWriter, r *http.Request) {
	var report domain.ResultReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.matches.ReportResult(r.Context(), chi.URLParam(r, "liveMatchID"), report)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// GetResult returns a reported result
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.matches.GetResult(r.Context(), chi.URLParam(r, "resultID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// ConfirmResult records a confirmation from the opposing player
func (h *Handler) ConfirmResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.matches.ConfirmResult(r.Context(), chi.URLParam(r, "resultID"), req.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// DisputeResult marks a result as disputed
func (h *Handler) DisputeResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.matches.DisputeResult(r.Context(), chi.URLParam(r, "resultID"), req.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, result)
}

// GetUser returns a player profile
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.matches.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, user)
}

// GetUserStats returns a user's aggregated match history
func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.matches.UserStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetStreakInfo returns a user's streaks
func (h *Handler) GetStreakInfo(w http.ResponseWriter, r *http.Request) {
	streak, err := h.matches.StreakInfo(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, streak)
}

// GetMonthlyStats returns a user's per-month aggregates
func (h *Handler) GetMonthlyStats(w http.ResponseWriter, r *http.Request) {
	monthly, err := h.matches.MonthlyStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, monthly)
}

// GetOpponentStats returns a user's head-to-head records
func (h *Handler) GetOpponentStats(w http.ResponseWriter, r *http.Request) {
	opponents, err := h.matches.OpponentStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, opponents)
}

// GetUserRank returns a user's cached rank, optionally with the
// players ranked around them
func (h *Handler) GetUserRank(w http.ResponseWriter, r *http.Request) {
	around := 0
	if aroundStr := r.URL.Query().Get("around"); aroundStr != "" {
		if n, err := strconv.Atoi(aroundStr); err == nil && n > 0 {
			around = n
		}
	}

	entry, neighbors, err := h.matches.UserRank(r.Context(), chi.URLParam(r, "userID"), around)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := map[string]interface{}{"entry": entry}
	if neighbors != nil {
		resp["around"] = neighbors
	}
	h.writeSuccess(w, resp)
}

// GetCachedRankings serves the leaderboard from the rank cache mirror
func (h *Handler) GetCachedRankings(w http.ResponseWriter, r *http.Request) {
	limit := h.limits.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > h.limits.MaxLimit {
		limit = h.limits.MaxLimit
	}

	entries, total, err := h.matches.CachedRankings(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"total":    total,
		"rankings": entries,
	})
}

// GetRankings returns the leaderboard
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	limit := h.limits.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > h.limits.MaxLimit {
		limit = h.limits.MaxLimit
	}

	h.writeSuccess(w, h.matches.Rankings(r.Context(), limit))
}
