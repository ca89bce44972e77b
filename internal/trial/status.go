package trial

import (
	"fmt"
	"strings"
	"time"
)

// Status of a trial window relative to a reference time.
type Status string

const (
	StatusTrialing  Status = "🟡 En essai"
	StatusCompleted Status = "✅ Terminé"
)

// StatusAt derives the trial status: still trialing while trial_end is in
// the future, completed otherwise.
func StatusAt(trialEnd, now time.Time) Status {
	if trialEnd.After(now) {
		return StatusTrialing
	}
	return StatusCompleted
}

// HumanizeDuration renders a duration as "3j 4h", "4h 12m" or "12m".
// Minutes are dropped once there is a day component; a duration with no
// nonzero component renders as "0m" rather than an empty string.
func HumanizeDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	totalMinutes := int(d / time.Minute)
	days := totalMinutes / (24 * 60)
	hours := (totalMinutes / 60) % 24
	minutes := totalMinutes % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dj", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 && days == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 {
		parts = append(parts, "0m")
	}
	return strings.Join(parts, " ")
}

// StatusLine builds the one-line summary used by list and check displays:
// time since the prospect was added, plus remaining or elapsed time of the
// trial window.
func StatusLine(addedAt, trialEnd, now time.Time) (Status, string) {
	status := StatusAt(trialEnd, now)
	since := HumanizeDuration(now.Sub(addedAt))
	if status == StatusTrialing {
		return status, fmt.Sprintf("ajouté il y a %s, reste %s", since, HumanizeDuration(trialEnd.Sub(now)))
	}
	return status, fmt.Sprintf("ajouté il y a %s, terminé depuis %s", since, HumanizeDuration(now.Sub(trialEnd)))
}
