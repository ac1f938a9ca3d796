package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hooprank/internal/config"
	"github.com/hooprank/internal/domain"
)

// rankingsKey is the sorted set holding every user's rank score.
const rankingsKey = "hooprank:rankings"

// RankingsService provides Redis-backed ranking lookups
type RankingsService struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRankingsService creates a new Redis rankings service
func NewRankingsService(cfg *config.RedisConfig, logger *slog.Logger) (*RankingsService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RankingsService{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *RankingsService) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *RankingsService) Client() *redis.Client {
	return s.client
}

// nicknameKey returns the Redis key for a user's cached nickname
func (s *RankingsService) nicknameKey(userID string) string {
	return fmt.Sprintf("hooprank:user:%s:info", userID)
}

// SetScore sets a user's rank score in the rankings sorted set
func (s *RankingsService) SetScore(ctx context.Context, userID string, score int64) error {
	err := s.client.ZAdd(ctx, rankingsKey, redis.Z{
		Score:  float64(score),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting rank score: %w", err)
	}
	return nil
}

// BatchSetScores sets multiple rank scores using pipelining
func (s *RankingsService) BatchSetScores(ctx context.Context, scores map[string]int64) error {
	pipe := s.client.Pipeline()

	for userID, score := range scores {
		pipe.ZAdd(ctx, rankingsKey, redis.Z{
			Score:  float64(score),
			Member: userID,
		})
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch setting rank scores: %w", err)
	}
	return nil
}

// TopN returns the top N users by rank score (descending order)
func (s *RankingsService) TopN(ctx context.Context, n int) ([]domain.RankingEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, rankingsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.RankingEntry, len(results))
	for i, result := range results {
		entries[i] = domain.RankingEntry{
			Rank:      i + 1,
			UserID:    result.Member.(string),
			RankScore: int(result.Score),
		}
	}
	return entries, nil
}

// GetUserRank returns a user's rank and score
func (s *RankingsService) GetUserRank(ctx context.Context, userID string) (*domain.RankingEntry, error) {
	// Use pipeline to get both rank and score
	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, rankingsKey, userID)
	scoreCmd := pipe.ZScore(ctx, rankingsKey, userID)
	_, err := pipe.Exec(ctx)

	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.RankingEntry{
		Rank:      int(rank) + 1, // Convert 0-indexed to 1-indexed
		UserID:    userID,
		RankScore: int(score),
	}, nil
}

// GetAroundUser returns users around a specific user's rank
func (s *RankingsService) GetAroundUser(ctx context.Context, userID string, count int) ([]domain.RankingEntry, error) {
	userEntry, err := s.GetUserRank(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Calculate range around the user, rank is 1-indexed
	start := userEntry.Rank - count - 1
	if start < 0 {
		start = 0
	}
	end := userEntry.Rank + count - 1

	return s.GetRange(ctx, start, end)
}

// GetRange returns users within a specific rank range (0-indexed)
func (s *RankingsService) GetRange(ctx context.Context, start, end int) ([]domain.RankingEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, rankingsKey, int64(start), int64(end)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting range: %w", err)
	}

	entries := make([]domain.RankingEntry, len(results))
	for i, result := range results {
		entries[i] = domain.RankingEntry{
			Rank:      start + i + 1, // Convert to 1-indexed rank
			UserID:    result.Member.(string),
			RankScore: int(result.Score),
		}
	}
	return entries, nil
}

// Count returns the total number of ranked users
func (s *RankingsService) Count(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, rankingsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// SetNickname caches a user's nickname for ranking display
func (s *RankingsService) SetNickname(ctx context.Context, userID, nickname string) error {
	key := s.nicknameKey(userID)
	err := s.client.HSet(ctx, key, "nickname", nickname).Err()
	if err != nil {
		return fmt.Errorf("setting nickname: %w", err)
	}
	return nil
}

// GetNickname retrieves a user's cached nickname
func (s *RankingsService) GetNickname(ctx context.Context, userID string) (string, error) {
	key := s.nicknameKey(userID)
	result, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("getting nickname: %w", err)
	}

	if len(result) == 0 {
		return "", domain.ErrUserNotFound
	}

	return result["nickname"], nil
}
