package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hooprank/internal/config"
	"github.com/hooprank/internal/domain"
)

// Repository provides PostgreSQL-based match archival
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertUser inserts or updates a user's profile and rating counters
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (id, nickname, rank_score, win_count, lose_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET nickname = $2, rank_score = $3, win_count = $4, lose_count = $5, updated_at = $7
	`
	now := time.Now()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Nickname,
		user.RankScore,
		user.WinCount,
		user.LoseCount,
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// BatchUpsertUsers inserts or updates multiple users efficiently
func (r *Repository) BatchUpsertUsers(ctx context.Context, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO users (id, nickname, rank_score, win_count, lose_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id)
		DO UPDATE SET nickname = $2, rank_score = $3, win_count = $4, lose_count = $5, updated_at = $6
	`
	now := time.Now()

	for _, user := range users {
		batch.Queue(query, user.ID, user.Nickname, user.RankScore, user.WinCount, user.LoseCount, now)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range users {
		_, err := br.Exec()
		if err != nil {
			return fmt.Errorf("batch upserting users: %w", err)
		}
	}
	return nil
}

// RecordMatch archives a finalized match
func (r *Repository) RecordMatch(ctx context.Context, match domain.Match) error {
	query := `
		INSERT INTO matches (id, match_date, place, player1_id, player2_id, player1_score, player2_score, winner_id, game_room_id, live_match_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		match.ID,
		match.Date,
		match.Place,
		match.Player1ID,
		match.Player2ID,
		match.Score1,
		match.Score2,
		match.WinnerID,
		match.GameRoomID,
		match.LiveMatchID,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("recording match: %w", err)
	}
	return nil
}

// RecordResultEvent records a result lifecycle event for auditing
func (r *Repository) RecordResultEvent(ctx context.Context, resultID, matchID, userID, eventType string, payload map[string]interface{}) error {
	var payloadJSON []byte
	var err error
	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling payload: %w", err)
		}
	}

	query := `
		INSERT INTO result_events (result_id, match_id, user_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query, resultID, matchID, userID, eventType, payloadJSON, time.Now())
	if err != nil {
		return fmt.Errorf("recording result event: %w", err)
	}
	return nil
}

// GetUser retrieves a single user's profile
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT id, nickname, rank_score, win_count, lose_count, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user domain.User
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Nickname,
		&user.RankScore,
		&user.WinCount,
		&user.LoseCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// LoadUsers retrieves all archived users
func (r *Repository) LoadUsers(ctx context.Context) ([]domain.User, error) {
	query := `
		SELECT id, nickname, rank_score, win_count, lose_count, created_at, updated_at
		FROM users
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var user domain.User
		err := rows.Scan(
			&user.ID,
			&user.Nickname,
			&user.RankScore,
			&user.WinCount,
			&user.LoseCount,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}
	return users, nil
}

// ListMatches retrieves archived matches for a player, latest first
func (r *Repository) ListMatches(ctx context.Context, playerID string, limit int) ([]domain.Match, error) {
	query := `
		SELECT id, match_date, place, player1_id, player2_id, player1_score, player2_score, winner_id, game_room_id, live_match_id
		FROM matches
		WHERE player1_id = $1 OR player2_id = $1
		ORDER BY match_date DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var match domain.Match
		err := rows.Scan(
			&match.ID,
			&match.Date,
			&match.Place,
			&match.Player1ID,
			&match.Player2ID,
			&match.Score1,
			&match.Score2,
			&match.WinnerID,
			&match.GameRoomID,
			&match.LiveMatchID,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// MatchCount returns the total number of archived matches
func (r *Repository) MatchCount(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM matches`
	var count int64
	err := r.pool.QueryRow(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting matches: %w", err)
	}
	return count, nil
}
