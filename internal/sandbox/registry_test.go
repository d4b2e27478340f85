package sandbox

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRegistryMissingFileIsEmpty(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	entries, err := r.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))

	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	entry := &Entry{
		UnitName:    "claw-session-abc",
		ScopeKey:    "session:abc",
		CreatedAt:   created,
		LastUsedAt:  created,
		Origin:      "zroot/openclaw/base@golden",
		Fingerprint: "deadbeefdeadbeef",
	}
	if err := r.Upsert(entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := r.Get("claw-session-abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("entry not found after Upsert")
	}
	if got.ScopeKey != entry.ScopeKey || got.Origin != entry.Origin ||
		got.Fingerprint != entry.Fingerprint || !got.CreatedAt.Equal(created) {
		t.Errorf("got %+v, want %+v", got, entry)
	}
}

func TestRegistryUpsertOverwrites(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))

	if err := r.Upsert(&Entry{UnitName: "j", Fingerprint: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Upsert(&Entry{UnitName: "j", Fingerprint: "new"}); err != nil {
		t.Fatal(err)
	}

	got, _ := r.Get("j")
	if got.Fingerprint != "new" {
		t.Errorf("Fingerprint = %q, want new", got.Fingerprint)
	}
	entries, _ := r.Load()
	if len(entries) != 1 {
		t.Errorf("len = %d, want 1", len(entries))
	}
}

func TestRegistryDelete(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))

	if err := r.Upsert(&Entry{UnitName: "j"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete("j"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := r.Get("j"); got != nil {
		t.Error("entry survived Delete")
	}

	// Deleting an absent entry is not an error.
	if err := r.Delete("j"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestRegistryConcurrentUpserts(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Upsert(&Entry{
				UnitName: fmt.Sprintf("claw-session-%d", i),
				ScopeKey: fmt.Sprintf("session:%d", i),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}
	entries, err := r.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("%d of %d entries survived concurrent upserts", len(entries), n)
	}
	for i := 0; i < n; i++ {
		if entries[fmt.Sprintf("claw-session-%d", i)] == nil {
			t.Errorf("entry claw-session-%d missing", i)
		}
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	got, err := r.Get("absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}
