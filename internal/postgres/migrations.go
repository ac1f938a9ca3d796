package postgres

// migrations holds the schema DDL applied at startup
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		nickname VARCHAR(255) NOT NULL,
		rank_score INT NOT NULL DEFAULT 1200,
		win_count INT NOT NULL DEFAULT 0,
		lose_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id VARCHAR(64) PRIMARY KEY,
		match_date TIMESTAMP NOT NULL,
		place VARCHAR(255),
		player1_id VARCHAR(64) NOT NULL,
		player2_id VARCHAR(64) NOT NULL,
		player1_score INT NOT NULL,
		player2_score INT NOT NULL,
		winner_id VARCHAR(64) NOT NULL,
		game_room_id VARCHAR(64),
		live_match_id VARCHAR(64),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS result_events (
		id BIGSERIAL PRIMARY KEY,
		result_id VARCHAR(64) NOT NULL,
		match_id VARCHAR(64),
		user_id VARCHAR(64) NOT NULL,
		event_type VARCHAR(20) NOT NULL,
		payload JSONB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_player1 ON matches(player1_id, match_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_player2 ON matches(player2_id, match_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_result_events_result ON result_events(result_id, created_at DESC)`,
}
