package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is the persisted record for one provisioned sandbox. The registry is
// the source of truth for what configuration a jail was built from; the live
// kernel only knows the jail exists, not its origin.
type Entry struct {
	UnitName    string    `json:"unit_name"`
	ScopeKey    string    `json:"scope_key"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	Origin      string    `json:"origin"` // base@snapshot the clone derived from
	Fingerprint string    `json:"fingerprint"`
}

// Registry is a small keyed record set on disk, one entry per jail name.
// Writes are read-modify-write with an atomic rename; the mutex serializes
// them so writers to different names never drop each other's entries, and
// same-name writers are last-writer-wins.
type Registry struct {
	path string
	mu   sync.Mutex
}

func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Load reads all entries. A missing file is an empty registry.
func (r *Registry) Load() (map[string]*Entry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Entry{}, nil
		}
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}
	if entries == nil {
		entries = map[string]*Entry{}
	}
	return entries, nil
}

// Get returns the entry for a jail name, or nil.
func (r *Registry) Get(name string) (*Entry, error) {
	entries, err := r.Load()
	if err != nil {
		return nil, err
	}
	return entries[name], nil
}

// Upsert writes or replaces the entry keyed by its unit name.
func (r *Registry) Upsert(entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.Load()
	if err != nil {
		return err
	}
	entries[entry.UnitName] = entry
	return r.save(entries)
}

// Delete removes the entry for a jail name; no-op when absent.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.Load()
	if err != nil {
		return err
	}
	if _, ok := entries[name]; !ok {
		return nil
	}
	delete(entries, name)
	return r.save(entries)
}

func (r *Registry) save(entries map[string]*Entry) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating registry dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}
