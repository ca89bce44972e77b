package trial

import (
	"strings"
	"testing"
	"time"
)

func TestHumanizeDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero renders minimal indicator", 0, "0m"},
		{"sub-minute renders minimal indicator", 40 * time.Second, "0m"},
		{"minutes only", 12 * time.Minute, "12m"},
		{"hours and minutes", 4*time.Hour + 12*time.Minute, "4h 12m"},
		{"days drop minutes", 6*24*time.Hour + 3*time.Hour + 15*time.Minute, "6j 3h"},
		{"days only", 14 * 24 * time.Hour, "14j"},
		{"negative durations use magnitude", -(2*24*time.Hour + 5*time.Hour), "2j 5h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HumanizeDuration(tt.d); got != tt.want {
				t.Fatalf("HumanizeDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestStatusAt(t *testing.T) {
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	if got := StatusAt(now.Add(time.Minute), now); got != StatusTrialing {
		t.Fatalf("future trial end: got %q, want %q", got, StatusTrialing)
	}
	if got := StatusAt(now, now); got != StatusCompleted {
		t.Fatalf("trial end == now: got %q, want %q", got, StatusCompleted)
	}
	if got := StatusAt(now.Add(-time.Minute), now); got != StatusCompleted {
		t.Fatalf("past trial end: got %q, want %q", got, StatusCompleted)
	}
}

func TestStatusLineCompleted(t *testing.T) {
	now := time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC)
	addedAt := now.Add(-20 * 24 * time.Hour)
	trialEnd := addedAt.Add(TrialPeriod) // ended 6 days ago

	status, line := StatusLine(addedAt, trialEnd, now)
	if status != StatusCompleted {
		t.Fatalf("status = %q, want %q", status, StatusCompleted)
	}
	if !strings.Contains(line, "terminé depuis 6j") {
		t.Fatalf("line %q should carry the elapsed day component", line)
	}
	if strings.Contains(line, "0m") {
		t.Fatalf("line %q should not carry a zero-minute component", line)
	}
	if !strings.Contains(line, "ajouté il y a 20j") {
		t.Fatalf("line %q should carry the time since added", line)
	}
}

func TestStatusLineTrialing(t *testing.T) {
	now := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	addedAt := now.Add(-(3*24*time.Hour + 4*time.Hour))
	trialEnd := addedAt.Add(TrialPeriod)

	status, line := StatusLine(addedAt, trialEnd, now)
	if status != StatusTrialing {
		t.Fatalf("status = %q, want %q", status, StatusTrialing)
	}
	if !strings.Contains(line, "reste 10j") {
		t.Fatalf("line %q should carry the remaining time", line)
	}
}
