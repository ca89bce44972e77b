package storage

import "time"

// SubjectKind selects which trial table a record lives in.
type SubjectKind string

const (
	// KindMember is a prospect linked to a Discord account.
	KindMember SubjectKind = "member"
	// KindExternal is a prospect tracked by free-text name only.
	KindExternal SubjectKind = "external"
)

// TrialRecord is one 14-day trial entry, Discord-linked or name-only.
type TrialRecord struct {
	GuildID string
	Kind    SubjectKind

	// UserID is set for KindMember records.
	UserID string
	// Name is the original-cased display name, NameKey its normalized
	// form; both are set for KindExternal records.
	Name    string
	NameKey string

	AddedAt    time.Time
	TrialEnd   time.Time
	Notified   bool
	NotifiedAt *time.Time
}

// Key returns the lookup key for the record's kind.
func (t *TrialRecord) Key() string {
	if t.Kind == KindExternal {
		return t.NameKey
	}
	return t.UserID
}

// NotesRecord holds the recruitment form answers for one trial entry.
// Age and Contribution are the optional second-step fields.
type NotesRecord struct {
	GuildID string
	Kind    SubjectKind
	Key     string // user id or name key
	Name    string // display name, external records only

	CharactersLevel   string
	PrevGuildAlliance string
	Optimized         string
	ContentPreference string
	Objectives        string
	Age               string
	Contribution      string

	UpdatedAt time.Time
}

// GuildSettings stores per-server configuration.
type GuildSettings struct {
	GuildID        string
	TrialChannelID string
}
