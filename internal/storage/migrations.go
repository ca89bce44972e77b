package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Baseline schema. CREATE TABLE IF NOT EXISTS keeps re-opens cheap; the named
// migrations below handle databases created before a column existed.
var baselineSchema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		guild_id        TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		added_at_utc    TEXT NOT NULL,
		trial_end_utc   TEXT NOT NULL,
		notified_done   INTEGER NOT NULL DEFAULT 0,
		notified_at_utc TEXT DEFAULT NULL,
		PRIMARY KEY (guild_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS players_external (
		guild_id        TEXT NOT NULL,
		name            TEXT NOT NULL,
		name_key        TEXT NOT NULL,
		added_at_utc    TEXT NOT NULL,
		trial_end_utc   TEXT NOT NULL,
		notified_done   INTEGER NOT NULL DEFAULT 0,
		notified_at_utc TEXT DEFAULT NULL,
		PRIMARY KEY (guild_id, name_key)
	)`,
	`CREATE TABLE IF NOT EXISTS player_notes (
		guild_id            TEXT NOT NULL,
		user_id             TEXT NOT NULL,
		characters_level    TEXT DEFAULT '',
		prev_guild_alliance TEXT DEFAULT '',
		optimized           TEXT DEFAULT '',
		content_preference  TEXT DEFAULT '',
		objectives          TEXT DEFAULT '',
		age                 TEXT DEFAULT '',
		contribution        TEXT DEFAULT '',
		updated_at_utc      TEXT NOT NULL,
		PRIMARY KEY (guild_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS player_notes_external (
		guild_id            TEXT NOT NULL,
		name_key            TEXT NOT NULL,
		name                TEXT NOT NULL DEFAULT '',
		characters_level    TEXT DEFAULT '',
		prev_guild_alliance TEXT DEFAULT '',
		optimized           TEXT DEFAULT '',
		content_preference  TEXT DEFAULT '',
		objectives          TEXT DEFAULT '',
		age                 TEXT DEFAULT '',
		contribution        TEXT DEFAULT '',
		updated_at_utc      TEXT NOT NULL,
		PRIMARY KEY (guild_id, name_key)
	)`,
	`CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id          TEXT PRIMARY KEY,
		trial_channel_id  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		name           TEXT PRIMARY KEY,
		applied_at_utc TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_players_due ON players(guild_id, notified_done, trial_end_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_players_external_due ON players_external(guild_id, notified_done, trial_end_utc)`,
}

type migration struct {
	name  string
	apply func(db *sql.DB) error
}

// migrate creates the baseline schema, then applies each named migration that
// has no record in schema_migrations. Runs once at startup, before any
// command or sweep touches the store.
func (r *Repository) migrate() error {
	for _, stmt := range baselineSchema {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("baseline schema: %w", err)
		}
	}

	migrations := []migration{
		{name: "2024-09-12_add_notified_columns", apply: addNotifiedColumns},
	}

	for _, m := range migrations {
		var name string
		err := r.db.QueryRow(`SELECT name FROM schema_migrations WHERE name = ?`, m.name).Scan(&name)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := m.apply(r.db); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := r.db.Exec(
			`INSERT INTO schema_migrations (name, applied_at_utc) VALUES (?, ?)`,
			m.name, formatTime(time.Now()),
		); err != nil {
			return err
		}
		slog.Info("Applied database migration", "migration", m.name)
	}
	return nil
}

// addNotifiedColumns backfills notification tracking columns on databases
// created before those columns existed. Additive only, safe defaults.
func addNotifiedColumns(db *sql.DB) error {
	for _, table := range []string{"players", "players_external"} {
		cols, err := tableColumns(db, table)
		if err != nil {
			return err
		}
		if !cols["notified_done"] {
			if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN notified_done INTEGER NOT NULL DEFAULT 0`, table)); err != nil {
				return err
			}
		}
		if !cols["notified_at_utc"] {
			if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN notified_at_utc TEXT DEFAULT NULL`, table)); err != nil {
				return err
			}
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
