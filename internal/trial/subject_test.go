package trial

import (
	"errors"
	"testing"

	"github.com/TheoCarouge/epiclegion-s/internal/storage"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bob  Dylan", "bob dylan"},
		{" BOB DYLAN ", "bob dylan"},
		{"bob dylan", "bob dylan"},
		{"\tAlice\n Smith ", "alice smith"},
		{"   ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewNamed(t *testing.T) {
	named, err := NewNamed("  Bob  Dylan  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if named.Name != "Bob  Dylan" {
		t.Fatalf("display name = %q, want trimmed original casing", named.Name)
	}
	if named.Key() != "bob dylan" {
		t.Fatalf("key = %q, want %q", named.Key(), "bob dylan")
	}
	if named.Kind() != storage.KindExternal {
		t.Fatalf("kind = %q, want %q", named.Kind(), storage.KindExternal)
	}

	if _, err := NewNamed("   "); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("blank name: got %v, want ErrInvalidName", err)
	}
}

func TestLinkedSubject(t *testing.T) {
	linked := Linked{AccountID: "123456"}
	if linked.Kind() != storage.KindMember {
		t.Fatalf("kind = %q, want %q", linked.Kind(), storage.KindMember)
	}
	if linked.Key() != "123456" {
		t.Fatalf("key = %q, want account id", linked.Key())
	}
	if linked.Display() != "<@123456>" {
		t.Fatalf("display = %q, want mention form", linked.Display())
	}
}
