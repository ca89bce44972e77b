package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrDuplicate is returned when an insert hits a primary-key conflict.
var ErrDuplicate = errors.New("record already exists")

// ErrNotFound is returned by point lookups on absent rows.
var ErrNotFound = errors.New("record not found")

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite and runs migrations.
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the canonical layout plus older stored forms; a value
// without an explicit offset is taken as UTC.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Location() == time.UTC {
				return t, nil
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func isDuplicateErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// trialTable returns the table and key column for a subject kind.
func trialTable(kind SubjectKind) (table, keyCol string) {
	if kind == KindExternal {
		return "players_external", "name_key"
	}
	return "players", "user_id"
}

func notesTable(kind SubjectKind) (table, keyCol string) {
	if kind == KindExternal {
		return "player_notes_external", "name_key"
	}
	return "player_notes", "user_id"
}

// Trial operations

// InsertTrial inserts a new trial record. Returns ErrDuplicate if the key is
// already tracked in the guild; the existing row is left untouched.
func (r *Repository) InsertTrial(rec *TrialRecord) error {
	var err error
	if rec.Kind == KindExternal {
		_, err = r.db.Exec(
			`INSERT INTO players_external (guild_id, name, name_key, added_at_utc, trial_end_utc) VALUES (?, ?, ?, ?, ?)`,
			rec.GuildID, rec.Name, rec.NameKey, formatTime(rec.AddedAt), formatTime(rec.TrialEnd),
		)
	} else {
		_, err = r.db.Exec(
			`INSERT INTO players (guild_id, user_id, added_at_utc, trial_end_utc) VALUES (?, ?, ?, ?)`,
			rec.GuildID, rec.UserID, formatTime(rec.AddedAt), formatTime(rec.TrialEnd),
		)
	}
	if isDuplicateErr(err) {
		return ErrDuplicate
	}
	return err
}

// GetTrial finds a trial record by guild and key.
func (r *Repository) GetTrial(guildID string, kind SubjectKind, key string) (*TrialRecord, error) {
	table, keyCol := trialTable(kind)
	nameCol := "''"
	if kind == KindExternal {
		nameCol = "name"
	}
	row := r.db.QueryRow(
		fmt.Sprintf(`SELECT %s, %s, added_at_utc, trial_end_utc, notified_done, notified_at_utc FROM %s WHERE guild_id = ? AND %s = ?`,
			keyCol, nameCol, table, keyCol),
		guildID, key,
	)
	rec, err := scanTrial(row, guildID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(row rowScanner, guildID string, kind SubjectKind) (*TrialRecord, error) {
	var (
		key, name, addedStr, endStr string
		notified                    int
		notifiedAtStr               sql.NullString
	)
	if err := row.Scan(&key, &name, &addedStr, &endStr, &notified, &notifiedAtStr); err != nil {
		return nil, err
	}

	added, err := parseTime(addedStr)
	if err != nil {
		return nil, err
	}
	end, err := parseTime(endStr)
	if err != nil {
		return nil, err
	}

	rec := &TrialRecord{
		GuildID:  guildID,
		Kind:     kind,
		AddedAt:  added,
		TrialEnd: end,
		Notified: notified != 0,
	}
	if kind == KindExternal {
		rec.NameKey = key
		rec.Name = name
	} else {
		rec.UserID = key
	}
	if notifiedAtStr.Valid && notifiedAtStr.String != "" {
		at, err := parseTime(notifiedAtStr.String)
		if err != nil {
			return nil, err
		}
		rec.NotifiedAt = &at
	}
	return rec, nil
}

func (r *Repository) queryTrials(guildID string, kind SubjectKind, where string, args ...any) ([]*TrialRecord, error) {
	table, keyCol := trialTable(kind)
	nameCol := "''"
	if kind == KindExternal {
		nameCol = "name"
	}
	query := fmt.Sprintf(
		`SELECT %s, %s, added_at_utc, trial_end_utc, notified_done, notified_at_utc FROM %s WHERE guild_id = ?%s ORDER BY added_at_utc ASC`,
		keyCol, nameCol, table, where,
	)
	rows, err := r.db.Query(query, append([]any{guildID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TrialRecord
	for rows.Next() {
		rec, err := scanTrial(rows, guildID, kind)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListTrials returns every trial record of a guild, both kinds merged,
// ascending by added_at. Ties keep Discord-linked records first.
func (r *Repository) ListTrials(guildID string) ([]*TrialRecord, error) {
	members, err := r.queryTrials(guildID, KindMember, "")
	if err != nil {
		return nil, err
	}
	externals, err := r.queryTrials(guildID, KindExternal, "")
	if err != nil {
		return nil, err
	}
	all := append(members, externals...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].AddedAt.Before(all[j].AddedAt)
	})
	return all, nil
}

// DueTrials returns records of one kind whose trial window has elapsed and
// which have not been notified yet, ascending by added_at.
func (r *Repository) DueTrials(guildID string, kind SubjectKind, now time.Time) ([]*TrialRecord, error) {
	return r.queryTrials(guildID, kind, " AND notified_done = 0 AND trial_end_utc <= ?", formatTime(now))
}

// MarkNotified flips the notified flag. Setting it twice leaves the same
// observable state apart from the refreshed notified_at timestamp.
func (r *Repository) MarkNotified(guildID string, kind SubjectKind, key string, at time.Time) error {
	table, keyCol := trialTable(kind)
	_, err := r.db.Exec(
		fmt.Sprintf(`UPDATE %s SET notified_done = 1, notified_at_utc = ? WHERE guild_id = ? AND %s = ?`, table, keyCol),
		formatTime(at), guildID, key,
	)
	return err
}

// DeleteTrial removes a trial record and reports whether a row existed.
// Notes records are never cascaded here; callers delete them explicitly.
func (r *Repository) DeleteTrial(guildID string, kind SubjectKind, key string) (bool, error) {
	table, keyCol := trialTable(kind)
	result, err := r.db.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE guild_id = ? AND %s = ?`, table, keyCol),
		guildID, key,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// SearchExternalNames returns stored display names matching the query,
// for autocomplete suggestions.
func (r *Repository) SearchExternalNames(guildID, query string, limit int) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT name FROM players_external WHERE guild_id = ? AND name LIKE ? ORDER BY name LIMIT ?`,
		guildID, "%"+query+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Notes operations

// UpsertNotes inserts or replaces the five required form fields. The conflict
// clause deliberately leaves age and contribution untouched so a re-submitted
// form does not wipe previously captured optional answers.
func (r *Repository) UpsertNotes(rec *NotesRecord) error {
	table, keyCol := notesTable(rec.Kind)
	nameCols, namePlaceholder, nameUpdate := "", "", ""
	args := []any{rec.GuildID, rec.Key}
	if rec.Kind == KindExternal {
		nameCols = "name, "
		namePlaceholder = "?, "
		nameUpdate = "name = excluded.name, "
		args = append(args, rec.Name)
	}
	args = append(args,
		rec.CharactersLevel, rec.PrevGuildAlliance, rec.Optimized,
		rec.ContentPreference, rec.Objectives, formatTime(rec.UpdatedAt),
	)

	query := fmt.Sprintf(
		`INSERT INTO %s (guild_id, %s, %scharacters_level, prev_guild_alliance, optimized, content_preference, objectives, updated_at_utc)
		 VALUES (?, ?, %s?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id, %s) DO UPDATE SET
		 %scharacters_level = excluded.characters_level,
		 prev_guild_alliance = excluded.prev_guild_alliance,
		 optimized = excluded.optimized,
		 content_preference = excluded.content_preference,
		 objectives = excluded.objectives,
		 updated_at_utc = excluded.updated_at_utc`,
		table, keyCol, nameCols, namePlaceholder, keyCol, nameUpdate,
	)
	_, err := r.db.Exec(query, args...)
	return err
}

// UpdateOptionalNotes sets only the two optional fields plus updated_at.
func (r *Repository) UpdateOptionalNotes(guildID string, kind SubjectKind, key, age, contribution string, at time.Time) error {
	table, keyCol := notesTable(kind)
	_, err := r.db.Exec(
		fmt.Sprintf(`UPDATE %s SET age = ?, contribution = ?, updated_at_utc = ? WHERE guild_id = ? AND %s = ?`, table, keyCol),
		age, contribution, formatTime(at), guildID, key,
	)
	return err
}

// GetNotes fetches the notes record for a trial entry.
func (r *Repository) GetNotes(guildID string, kind SubjectKind, key string) (*NotesRecord, error) {
	table, keyCol := notesTable(kind)
	nameCol := "''"
	if kind == KindExternal {
		nameCol = "name"
	}
	var (
		rec        = &NotesRecord{GuildID: guildID, Kind: kind, Key: key}
		updatedStr string
	)
	err := r.db.QueryRow(
		fmt.Sprintf(`SELECT %s, characters_level, prev_guild_alliance, optimized, content_preference, objectives, age, contribution, updated_at_utc FROM %s WHERE guild_id = ? AND %s = ?`,
			nameCol, table, keyCol),
		guildID, key,
	).Scan(
		&rec.Name, &rec.CharactersLevel, &rec.PrevGuildAlliance, &rec.Optimized,
		&rec.ContentPreference, &rec.Objectives, &rec.Age, &rec.Contribution, &updatedStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt, err = parseTime(updatedStr)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteNotes removes a notes record and reports whether a row existed.
func (r *Repository) DeleteNotes(guildID string, kind SubjectKind, key string) (bool, error) {
	table, keyCol := notesTable(kind)
	result, err := r.db.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE guild_id = ? AND %s = ?`, table, keyCol),
		guildID, key,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// Guild settings operations

// UpsertGuildSettings creates or updates guild settings
func (r *Repository) UpsertGuildSettings(settings *GuildSettings) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_settings (guild_id, trial_channel_id) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET trial_channel_id = excluded.trial_channel_id`,
		settings.GuildID, settings.TrialChannelID,
	)
	return err
}

// GetGuildSettings retrieves guild settings
func (r *Repository) GetGuildSettings(guildID string) (*GuildSettings, error) {
	settings := &GuildSettings{}
	var channelID sql.NullString
	err := r.db.QueryRow(
		`SELECT guild_id, trial_channel_id FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&settings.GuildID, &channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	settings.TrialChannelID = channelID.String
	return settings, nil
}
