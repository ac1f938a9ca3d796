package postgres

import (
	"strings"
	"testing"

	"github.com/hooprank/internal/service"
)

// The repository backs the service archive port.
var _ service.Archive = (*Repository)(nil)

func TestMigrationsCoverArchivedMatchColumns(t *testing.T) {
	var matchesDDL string
	for _, m := range migrations {
		if strings.Contains(m, "CREATE TABLE IF NOT EXISTS matches") {
			matchesDDL = m
		}
	}
	if matchesDDL == "" {
		t.Fatal("no matches table migration")
	}

	// Every column RecordMatch writes and ListMatches scans must exist.
	for _, col := range []string{
		"id", "match_date", "place", "player1_id", "player2_id",
		"player1_score", "player2_score", "winner_id", "game_room_id", "live_match_id",
	} {
		if !strings.Contains(matchesDDL, col) {
			t.Fatalf("matches table missing column %q", col)
		}
	}
}
