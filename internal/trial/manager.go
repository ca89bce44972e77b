package trial

import (
	"time"

	"github.com/TheoCarouge/epiclegion-s/internal/storage"
)

// TrialPeriod is the observation window, fixed at record creation and never
// recomputed.
const TrialPeriod = 14 * 24 * time.Hour

// Manager is the lifecycle contract over trial records. All store access for
// trials goes through it; expected conditions (duplicate, not found, invalid
// name) come back as sentinel errors, never panics.
type Manager struct {
	repo *storage.Repository
	now  func() time.Time
}

// NewManager creates a Manager on top of the repository.
func NewManager(repo *storage.Repository) *Manager {
	return &Manager{repo: repo, now: time.Now}
}

// Add inserts a trial record for the subject with added_at = now and
// trial_end = now + 14 days. Returns storage.ErrDuplicate when the subject is
// already tracked; the existing record is untouched.
func (m *Manager) Add(guildID string, subject Subject) (*storage.TrialRecord, error) {
	now := m.now().UTC()
	rec := &storage.TrialRecord{
		GuildID:  guildID,
		Kind:     subject.Kind(),
		AddedAt:  now,
		TrialEnd: now.Add(TrialPeriod),
	}
	subject.fill(rec)
	if err := m.repo.InsertTrial(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove deletes the subject's trial record, reporting whether one existed.
func (m *Manager) Remove(guildID string, subject Subject) (bool, error) {
	return m.repo.DeleteTrial(guildID, subject.Kind(), subject.Key())
}

// Get is a point lookup; storage.ErrNotFound when the subject is not tracked.
func (m *Manager) Get(guildID string, subject Subject) (*storage.TrialRecord, error) {
	return m.repo.GetTrial(guildID, subject.Kind(), subject.Key())
}

// ListAll returns every record of the guild, both kinds merged, ascending by
// added_at, stable under ties.
func (m *Manager) ListAll(guildID string) ([]*storage.TrialRecord, error) {
	return m.repo.ListTrials(guildID)
}

// FetchDue returns unnotified records whose window has elapsed at now:
// Discord-linked records first, then named, each batch ascending by added_at.
func (m *Manager) FetchDue(guildID string, now time.Time) ([]*storage.TrialRecord, error) {
	due, err := m.repo.DueTrials(guildID, storage.KindMember, now)
	if err != nil {
		return nil, err
	}
	external, err := m.repo.DueTrials(guildID, storage.KindExternal, now)
	if err != nil {
		return nil, err
	}
	return append(due, external...), nil
}

// MarkNotified records that the reminder for rec went out. Idempotent in
// effect; the flag never reverts.
func (m *Manager) MarkNotified(rec *storage.TrialRecord, at time.Time) error {
	return m.repo.MarkNotified(rec.GuildID, rec.Kind, rec.Key(), at)
}
