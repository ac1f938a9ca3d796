package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hooprank/internal/config"
	"github.com/hooprank/internal/domain"
	"github.com/hooprank/internal/engine"
)

// SessionStore persists authenticated user records
type SessionStore interface {
	Save(ctx context.Context, user domain.AuthUser) error
	Get(ctx context.Context, userID string) (*domain.AuthUser, error)
	Delete(ctx context.Context, userID string) error
}

// LoginResult carries the signed token and the authenticated user
type LoginResult struct {
	Token string          `json:"token"`
	User  domain.AuthUser `json:"user"`
}

// Service handles login, logout and token verification
type Service struct {
	issuer   *TokenIssuer
	sessions SessionStore
	engine   *engine.Engine
	logger   *slog.Logger
}

// NewService creates a new auth service
func NewService(cfg *config.AuthConfig, sessions SessionStore, eng *engine.Engine, logger *slog.Logger) *Service {
	return &Service{
		issuer:   NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		sessions: sessions,
		engine:   eng,
		logger:   logger,
	}
}

// LoginKakao authenticates a Kakao account and provisions the player profile.
// The Kakao token is not verified against Kakao servers in this build; the
// token value doubles as the account identity.
func (s *Service) LoginKakao(ctx context.Context, kakaoToken, nickname string) (*LoginResult, error) {
	if kakaoToken == "" {
		return nil, fmt.Errorf("%w: kakao token required", domain.ErrInvalidRequest)
	}
	if nickname == "" {
		nickname = "KakaoPlayer"
	}

	user := domain.AuthUser{
		ID:        "kakao-" + uuid.NewString(),
		Nickname:  nickname,
		Provider:  domain.ProviderKakao,
		KakaoID:   kakaoToken,
		CreatedAt: time.Now(),
	}

	return s.login(ctx, user)
}

// LoginGuest creates a throwaway guest identity
func (s *Service) LoginGuest(ctx context.Context, nickname string) (*LoginResult, error) {
	if nickname == "" {
		nickname = "Guest"
	}

	user := domain.AuthUser{
		ID:        "guest-" + uuid.NewString(),
		Nickname:  nickname,
		Provider:  domain.ProviderGuest,
		CreatedAt: time.Now(),
	}

	return s.login(ctx, user)
}

func (s *Service) login(ctx context.Context, user domain.AuthUser) (*LoginResult, error) {
	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Save(ctx, user); err != nil {
		return nil, err
	}

	// Every authenticated account gets a player profile
	s.engine.AddUser(domain.User{
		ID:        user.ID,
		Nickname:  user.Nickname,
		RankScore: 1200,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.CreatedAt,
	})

	s.logger.Info("user logged in", "user_id", user.ID, "provider", user.Provider)

	return &LoginResult{Token: token, User: user}, nil
}

// Logout removes the user's session record
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user logged out", "user_id", userID)
	return nil
}

// Verify parses a bearer token and returns the session it belongs to
func (s *Service) Verify(ctx context.Context, tokenString string) (*domain.AuthUser, error) {
	claims, err := s.issuer.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.sessions.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return user, nil
}
