package sandbox

import (
	"strings"
	"testing"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"claw-session:abc", "claw-session-abc"},
		{"Already-Fine", "already-fine"},
		{"weird__chars!!here", "weird-chars-here"},
		{"--leading and trailing--", "leading-and-trailing"},
		{"UPPER123", "upper123"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slug(tt.in); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnitNameDeterministic(t *testing.T) {
	key := ScopeKey{Kind: ScopeSession, ID: "Abc-123"}
	a := UnitName("claw-", key)
	b := UnitName("claw-", key)
	if a != b {
		t.Fatalf("UnitName not deterministic: %q vs %q", a, b)
	}
	if a != "claw-session-abc-123" {
		t.Errorf("UnitName = %q", a)
	}
}

func TestUnitNameTruncation(t *testing.T) {
	key := ScopeKey{Kind: ScopeSession, ID: strings.Repeat("x", 100)}
	name := UnitName("claw-", key)
	if len(name) > MaxUnitNameLen {
		t.Errorf("len = %d, want <= %d", len(name), MaxUnitNameLen)
	}
	if strings.HasSuffix(name, "-") {
		t.Errorf("truncated name ends with dash: %q", name)
	}

	// Truncation must stay deterministic too.
	if name != UnitName("claw-", key) {
		t.Error("truncated name not deterministic")
	}
}

func TestUnitNameSharedScope(t *testing.T) {
	if got := UnitName("claw-", ScopeKey{Kind: ScopeShared}); got != "claw-shared" {
		t.Errorf("UnitName = %q, want claw-shared", got)
	}
}
