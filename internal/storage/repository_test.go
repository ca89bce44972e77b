package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "trials.db"))
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func memberRecord(guildID, userID string, addedAt time.Time) *TrialRecord {
	return &TrialRecord{
		GuildID:  guildID,
		Kind:     KindMember,
		UserID:   userID,
		AddedAt:  addedAt,
		TrialEnd: addedAt.Add(14 * 24 * time.Hour),
	}
}

func externalRecord(guildID, name, nameKey string, addedAt time.Time) *TrialRecord {
	return &TrialRecord{
		GuildID:  guildID,
		Kind:     KindExternal,
		Name:     name,
		NameKey:  nameKey,
		AddedAt:  addedAt,
		TrialEnd: addedAt.Add(14 * 24 * time.Hour),
	}
}

func TestInsertTrialDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	addedAt := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.InsertTrial(memberRecord("g1", "42", addedAt)); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := repo.InsertTrial(memberRecord("g1", "42", addedAt.Add(time.Hour)))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate insert: got %v, want ErrDuplicate", err)
	}

	// Same key in another guild is fine.
	if err := repo.InsertTrial(memberRecord("g2", "42", addedAt)); err != nil {
		t.Fatalf("insert in other guild failed: %v", err)
	}
}

func TestTrialRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	addedAt := time.Date(2024, 10, 1, 12, 30, 45, 123456789, time.UTC)

	if err := repo.InsertTrial(externalRecord("g1", "Bob Dylan", "bob dylan", addedAt)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec, err := repo.GetTrial("g1", KindExternal, "bob dylan")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !rec.AddedAt.Equal(addedAt) {
		t.Fatalf("added_at round trip: got %v, want %v", rec.AddedAt, addedAt)
	}
	if rec.Name != "Bob Dylan" || rec.NameKey != "bob dylan" {
		t.Fatalf("name round trip: got %q/%q", rec.Name, rec.NameKey)
	}
	if rec.Notified || rec.NotifiedAt != nil {
		t.Fatalf("fresh record already notified")
	}

	if _, err := repo.GetTrial("g1", KindExternal, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing record: got %v, want ErrNotFound", err)
	}
}

func TestDueTrialsAndMarkNotified(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	early := memberRecord("g1", "1", base)
	late := memberRecord("g1", "2", base.Add(time.Hour))
	future := memberRecord("g1", "3", base.Add(100*24*time.Hour))
	for _, rec := range []*TrialRecord{late, early, future} {
		if err := repo.InsertTrial(rec); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	now := base.Add(15 * 24 * time.Hour)
	due, err := repo.DueTrials("g1", KindMember, now)
	if err != nil {
		t.Fatalf("due query failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due records, got %d", len(due))
	}
	if due[0].UserID != "1" || due[1].UserID != "2" {
		t.Fatalf("due records not ascending by added_at: %q, %q", due[0].UserID, due[1].UserID)
	}

	if err := repo.MarkNotified("g1", KindMember, "1", now); err != nil {
		t.Fatalf("mark notified failed: %v", err)
	}
	due, err = repo.DueTrials("g1", KindMember, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("due query failed: %v", err)
	}
	if len(due) != 1 || due[0].UserID != "2" {
		t.Fatalf("notified record still due: %+v", due)
	}

	rec, err := repo.GetTrial("g1", KindMember, "1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !rec.Notified || rec.NotifiedAt == nil || !rec.NotifiedAt.Equal(now) {
		t.Fatalf("mark notified not persisted: notified=%v at=%v", rec.Notified, rec.NotifiedAt)
	}
}

func TestListTrialsMergesKindsStable(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	// Same added_at for one member and one external record: the tie keeps
	// the member record first.
	if err := repo.InsertTrial(externalRecord("g1", "Tied", "tied", base)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := repo.InsertTrial(memberRecord("g1", "7", base)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := repo.InsertTrial(memberRecord("g1", "8", base.Add(-time.Hour))); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	all, err := repo.ListTrials("g1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].UserID != "8" {
		t.Fatalf("earliest record not first: %+v", all[0])
	}
	if all[1].Kind != KindMember || all[2].Kind != KindExternal {
		t.Fatalf("tie not stable: kinds %q, %q", all[1].Kind, all[2].Kind)
	}
}

func TestDeleteTrialDoesNotCascadeNotes(t *testing.T) {
	repo := newTestRepo(t)
	addedAt := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.InsertTrial(externalRecord("g1", "Bob", "bob", addedAt)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	notesRec := &NotesRecord{
		GuildID:           "g1",
		Kind:              KindExternal,
		Key:               "bob",
		Name:              "Bob",
		CharactersLevel:   "3 persos / 200",
		ContentPreference: "PvM",
		Objectives:        "AvA",
		UpdatedAt:         addedAt,
	}
	if err := repo.UpsertNotes(notesRec); err != nil {
		t.Fatalf("upsert notes failed: %v", err)
	}

	removed, err := repo.DeleteTrial("g1", KindExternal, "bob")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !removed {
		t.Fatalf("expected trial row to be deleted")
	}

	// Orphaned notes stay readable until explicitly deleted.
	got, err := repo.GetNotes("g1", KindExternal, "bob")
	if err != nil {
		t.Fatalf("orphaned notes unreadable: %v", err)
	}
	if got.CharactersLevel != "3 persos / 200" {
		t.Fatalf("orphaned notes content lost: %+v", got)
	}

	deleted, err := repo.DeleteNotes("g1", KindExternal, "bob")
	if err != nil {
		t.Fatalf("delete notes failed: %v", err)
	}
	if !deleted {
		t.Fatalf("expected notes row to be deleted")
	}
	if _, err := repo.GetNotes("g1", KindExternal, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("notes after delete: got %v, want ErrNotFound", err)
	}
}

func TestUpsertNotesPreservesOptionalFields(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	first := &NotesRecord{
		GuildID:         "g1",
		Kind:            KindMember,
		Key:             "42",
		CharactersLevel: "2 persos",
		Objectives:      "Koli",
		UpdatedAt:       now,
	}
	if err := repo.UpsertNotes(first); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	rec, err := repo.GetNotes("g1", KindMember, "42")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.Age != "" || rec.Contribution != "" {
		t.Fatalf("optional fields should start empty: %+v", rec)
	}

	if err := repo.UpdateOptionalNotes("g1", KindMember, "42", "23", "coaching", now.Add(time.Hour)); err != nil {
		t.Fatalf("optional update failed: %v", err)
	}
	rec, err = repo.GetNotes("g1", KindMember, "42")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.Age != "23" || rec.Contribution != "coaching" {
		t.Fatalf("optional fields not stored: %+v", rec)
	}
	if rec.CharactersLevel != "2 persos" || rec.Objectives != "Koli" {
		t.Fatalf("optional update clobbered required fields: %+v", rec)
	}

	// Re-submitting the required form must not wipe previously captured
	// optional answers.
	second := &NotesRecord{
		GuildID:         "g1",
		Kind:            KindMember,
		Key:             "42",
		CharactersLevel: "3 persos",
		Objectives:      "AvA",
		UpdatedAt:       now.Add(2 * time.Hour),
	}
	if err := repo.UpsertNotes(second); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	rec, err = repo.GetNotes("g1", KindMember, "42")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.CharactersLevel != "3 persos" || rec.Objectives != "AvA" {
		t.Fatalf("required fields not replaced: %+v", rec)
	}
	if rec.Age != "23" || rec.Contribution != "coaching" {
		t.Fatalf("re-submission wiped optional fields: %+v", rec)
	}
}

func TestGuildSettingsUpsert(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.GetGuildSettings("g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing settings: got %v, want ErrNotFound", err)
	}

	if err := repo.UpsertGuildSettings(&GuildSettings{GuildID: "g1", TrialChannelID: "c1"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := repo.UpsertGuildSettings(&GuildSettings{GuildID: "g1", TrialChannelID: "c2"}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	settings, err := repo.GetGuildSettings("g1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if settings.TrialChannelID != "c2" {
		t.Fatalf("channel id = %q, want overwrite to %q", settings.TrialChannelID, "c2")
	}
}

func TestSearchExternalNames(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	for _, entry := range []struct{ name, key string }{
		{"Alice", "alice"}, {"Alicia", "alicia"}, {"Bob", "bob"},
	} {
		if err := repo.InsertTrial(externalRecord("g1", entry.name, entry.key, base)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	names, err := repo.SearchExternalNames("g1", "Ali", 25)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 matches, got %v", names)
	}
}

func TestMigrationSelfHealsMissingColumns(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "legacy.db")

	// Simulate a database created before notification tracking existed.
	legacy, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open legacy db: %v", err)
	}
	stmts := []string{
		`CREATE TABLE players (
			guild_id      TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			added_at_utc  TEXT NOT NULL,
			trial_end_utc TEXT NOT NULL,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE players_external (
			guild_id      TEXT NOT NULL,
			name          TEXT NOT NULL,
			name_key      TEXT NOT NULL,
			added_at_utc  TEXT NOT NULL,
			trial_end_utc TEXT NOT NULL,
			PRIMARY KEY (guild_id, name_key)
		)`,
		`INSERT INTO players (guild_id, user_id, added_at_utc, trial_end_utc)
		 VALUES ('g1', '42', '2024-09-01T12:00:00.000000000Z', '2024-09-15T12:00:00.000000000Z')`,
	}
	for _, stmt := range stmts {
		if _, err := legacy.Exec(stmt); err != nil {
			t.Fatalf("legacy setup failed: %v", err)
		}
	}
	if err := legacy.Close(); err != nil {
		t.Fatalf("failed to close legacy db: %v", err)
	}

	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("startup over legacy schema failed: %v", err)
	}
	defer repo.Close()

	// Legacy rows surface with safe defaults and are immediately due.
	now := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	due, err := repo.DueTrials("g1", KindMember, now)
	if err != nil {
		t.Fatalf("due query over healed schema failed: %v", err)
	}
	if len(due) != 1 || due[0].UserID != "42" {
		t.Fatalf("legacy record not due after healing: %+v", due)
	}
	if due[0].Notified {
		t.Fatalf("healed column should default to not notified")
	}

	// Reopening must not re-apply the migration.
	if err := repo.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	repo2, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("second startup failed: %v", err)
	}
	defer repo2.Close()
}
