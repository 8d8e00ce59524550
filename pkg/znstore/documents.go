package znstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DocumentStore persists a single named JSON document (users.json,
// sites.json) with an atomic write-then-rename, so a crash mid-write never
// leaves a corrupt file. Adapted from core/storage.go's os.WriteFile-based
// persistence, generalized to the write-to-temp-then-rename pattern a
// multi-field JSON document needs that a single cached blob does not.
type DocumentStore struct {
	path string
	mu   sync.Mutex
}

// NewDocumentStore opens (without yet reading) the document at path.
func NewDocumentStore(path string) *DocumentStore {
	return &DocumentStore{path: path}
}

// Load decodes the document into v. A missing file is not an error: v is
// left untouched so the caller's zero value / defaults apply.
func (d *DocumentStore) Load(v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("znstore: read %s: %w", d.path, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("znstore: decode %s: %w", d.path, err)
	}
	return nil
}

// Save atomically replaces the document with v's JSON encoding: write to a
// temp file in the same directory, fsync, then rename over the original.
func (d *DocumentStore) Save(v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return fmt.Errorf("znstore: encode %s: %w", d.path, err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("znstore: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("znstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("znstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("znstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("znstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("znstore: rename into place: %w", err)
	}
	return nil
}
