// Package notes manages the recruitment form records attached to trial
// entries. Filling is two-phase: five required fields first, then an optional
// age/contribution step.
package notes

import (
	"errors"
	"time"

	"github.com/TheoCarouge/epiclegion-s/internal/storage"
	"github.com/TheoCarouge/epiclegion-s/internal/trial"
)

// ErrNoTrial is returned when name-keyed notes target a name with no matching
// trial entry. Discord-linked notes carry no such precondition.
var ErrNoTrial = errors.New("no matching trial entry")

// RequiredFields are the five answers of the first form step.
type RequiredFields struct {
	CharactersLevel   string
	PrevGuildAlliance string
	Optimized         string
	ContentPreference string
	Objectives        string
}

// Manager is the CRUD contract over notes records.
type Manager struct {
	repo *storage.Repository
	now  func() time.Time
}

// NewManager creates a Manager on top of the repository.
func NewManager(repo *storage.Repository) *Manager {
	return &Manager{repo: repo, now: time.Now}
}

// RequireTrial checks the write-path precondition: named notes may only be
// created for a name that is actually tracked.
func (m *Manager) RequireTrial(guildID string, subject trial.Subject) error {
	if subject.Kind() != storage.KindExternal {
		return nil
	}
	_, err := m.repo.GetTrial(guildID, subject.Kind(), subject.Key())
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoTrial
	}
	return err
}

// Upsert inserts or replaces the five required fields. Previously captured
// optional fields survive a re-submission; on first insert they start empty.
func (m *Manager) Upsert(guildID string, subject trial.Subject, fields RequiredFields) error {
	if err := m.RequireTrial(guildID, subject); err != nil {
		return err
	}
	rec := &storage.NotesRecord{
		GuildID:           guildID,
		Kind:              subject.Kind(),
		Key:               subject.Key(),
		CharactersLevel:   fields.CharactersLevel,
		PrevGuildAlliance: fields.PrevGuildAlliance,
		Optimized:         fields.Optimized,
		ContentPreference: fields.ContentPreference,
		Objectives:        fields.Objectives,
		UpdatedAt:         m.now().UTC(),
	}
	if named, ok := subject.(trial.Named); ok {
		rec.Name = named.Name
	}
	return m.repo.UpsertNotes(rec)
}

// UpdateOptional sets only age and contribution, leaving the required fields
// untouched. Meaningful once a base record exists; the store does not enforce
// that as a hard precondition.
func (m *Manager) UpdateOptional(guildID string, subject trial.Subject, age, contribution string) error {
	return m.repo.UpdateOptionalNotes(guildID, subject.Kind(), subject.Key(), age, contribution, m.now().UTC())
}

// Get fetches the notes record; storage.ErrNotFound when none exists. Orphaned
// notes (trial entry deleted afterwards) remain readable.
func (m *Manager) Get(guildID string, subject trial.Subject) (*storage.NotesRecord, error) {
	return m.repo.GetNotes(guildID, subject.Kind(), subject.Key())
}

// Delete removes the notes record, reporting whether one existed.
func (m *Manager) Delete(guildID string, subject trial.Subject) (bool, error) {
	return m.repo.DeleteNotes(guildID, subject.Kind(), subject.Key())
}
