package gamedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stavmo/SPL-assignment3/gameevent"
	"github.com/stavmo/SPL-assignment3/stompprotocol"
)

// Archive persists ingested events in SQLite so that summaries survive a
// restart of the client.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenArchive opens (or creates) the archive at path and runs the schema
// migration.
func OpenArchive(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Archive{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			game           TEXT NOT NULL,
			user           TEXT NOT NULL,
			team_a         TEXT NOT NULL,
			team_b         TEXT NOT NULL,
			name           TEXT NOT NULL,
			time           INTEGER NOT NULL,
			description    TEXT NOT NULL,
			general        TEXT NOT NULL DEFAULT '{}',
			team_a_updates TEXT NOT NULL DEFAULT '{}',
			team_b_updates TEXT NOT NULL DEFAULT '{}',
			received_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_game_user ON events (game, user);
	`)
	return err
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Ingest implements stompprotocol.EventStore. Ingest runs on the receive
// path, so failures are logged rather than returned.
func (a *Archive) Ingest(game, user string, ev gameevent.Event) {
	if err := a.Append(context.Background(), game, user, ev); err != nil {
		a.logger.Error("archive event", "game", game, "user", user, "event", ev.Name, "error", err)
	}
}

// Append stores one event.
func (a *Archive) Append(ctx context.Context, game, user string, ev gameevent.Event) error {
	general, err := json.Marshal(ev.GeneralUpdates)
	if err != nil {
		return fmt.Errorf("marshal general updates: %w", err)
	}
	teamA, err := json.Marshal(ev.TeamAUpdates)
	if err != nil {
		return fmt.Errorf("marshal team a updates: %w", err)
	}
	teamB, err := json.Marshal(ev.TeamBUpdates)
	if err != nil {
		return fmt.Errorf("marshal team b updates: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO events (game, user, team_a, team_b, name, time, description,
			general, team_a_updates, team_b_updates, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game, user, ev.TeamA, ev.TeamB, ev.Name, ev.Time, ev.Description,
		string(general), string(teamA), string(teamB),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Replay feeds every archived event to store in the order it was archived
// and returns how many were replayed.
func (a *Archive) Replay(ctx context.Context, store stompprotocol.EventStore) (int, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT game, user, team_a, team_b, name, time, description,
			general, team_a_updates, team_b_updates
		 FROM events ORDER BY seq`)
	if err != nil {
		return 0, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			game, user                    string
			ev                            gameevent.Event
			general, teamAJSON, teamBJSON string
		)
		if err := rows.Scan(&game, &user, &ev.TeamA, &ev.TeamB, &ev.Name, &ev.Time, &ev.Description,
			&general, &teamAJSON, &teamBJSON); err != nil {
			return n, fmt.Errorf("scan archived event: %w", err)
		}
		if err := decodeUpdates(general, &ev.GeneralUpdates); err != nil {
			return n, err
		}
		if err := decodeUpdates(teamAJSON, &ev.TeamAUpdates); err != nil {
			return n, err
		}
		if err := decodeUpdates(teamBJSON, &ev.TeamBUpdates); err != nil {
			return n, err
		}
		store.Ingest(game, user, ev)
		n++
	}
	return n, rows.Err()
}

func decodeUpdates(raw string, dst *map[string]string) error {
	m := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return fmt.Errorf("decode archived updates: %w", err)
	}
	*dst = m
	return nil
}

var _ stompprotocol.EventStore = (*Archive)(nil)
