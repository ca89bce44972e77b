package trial

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TheoCarouge/epiclegion-s/internal/storage"
)

// ErrInvalidName is returned for names that are empty after normalization.
var ErrInvalidName = errors.New("invalid name")

// Subject identifies a trial prospect. Two variants exist: a Discord-linked
// account and a free-text name. The lifecycle manager is parameterized over
// the subject, so both variants share one CRUD path.
type Subject interface {
	// Kind selects the storage family.
	Kind() storage.SubjectKind
	// Key is the uniqueness/lookup key: account id or normalized name.
	Key() string
	// Display is the user-facing form: mention or original-cased name.
	Display() string

	fill(rec *storage.TrialRecord)
}

// Linked is a prospect identified by a Discord account.
type Linked struct {
	AccountID string
}

func (l Linked) Kind() storage.SubjectKind { return storage.KindMember }
func (l Linked) Key() string               { return l.AccountID }
func (l Linked) Display() string           { return fmt.Sprintf("<@%s>", l.AccountID) }

func (l Linked) fill(rec *storage.TrialRecord) {
	rec.UserID = l.AccountID
}

// Named is a prospect identified by a free-text name. The original-cased
// trimmed name is kept for display; uniqueness uses the normalized key.
type Named struct {
	Name string
}

// NewNamed trims the display name and rejects names that normalize to
// nothing.
func NewNamed(name string) (Named, error) {
	if NormalizeName(name) == "" {
		return Named{}, ErrInvalidName
	}
	return Named{Name: strings.TrimSpace(name)}, nil
}

func (n Named) Kind() storage.SubjectKind { return storage.KindExternal }
func (n Named) Key() string               { return NormalizeName(n.Name) }
func (n Named) Display() string           { return fmt.Sprintf("**%s**", n.Name) }

func (n Named) fill(rec *storage.TrialRecord) {
	rec.Name = n.Name
	rec.NameKey = n.Key()
}

// NormalizeName collapses inner whitespace, trims, and lowercases, so two
// spellings of the same name map to one key.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
