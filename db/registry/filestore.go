package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore keeps the registry in one JSON file. Writes rewrite the whole
// file with entries sorted by the date embedded in the canonical id, then
// by canonical id, so regenerating an unchanged batch produces identical
// bytes.
type FileStore struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// NewFileStore opens the registry file at path, creating an empty
// registry if the file does not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening registry %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	for _, e := range entries {
		s.entries[e.CanonicalID] = e
	}
	return s, nil
}

// Put upserts an entry and rewrites the file.
func (s *FileStore) Put(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.CanonicalID] = entry
	return s.save()
}

// Get retrieves an entry by canonical id.
func (s *FileStore) Get(ctx context.Context, canonicalID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[canonicalID]
	if !ok {
		return nil, &ErrNotFound{CanonicalID: canonicalID}
	}
	return &e, nil
}

// List returns all entries in stored order.
func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(), nil
}

// SetStatus updates the payment status of an existing entry.
func (s *FileStore) SetStatus(ctx context.Context, canonicalID string, status PaymentStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("registry: unknown payment status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[canonicalID]
	if !ok {
		return &ErrNotFound{CanonicalID: canonicalID}
	}
	e.Status = status
	s.entries[canonicalID] = e
	return s.save()
}

// Close is a no-op; every mutation is flushed immediately.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) sorted() []Entry {
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		di, dj := canonicalDate(entries[i].CanonicalID), canonicalDate(entries[j].CanonicalID)
		if di != dj {
			return di < dj
		}
		return entries[i].CanonicalID < entries[j].CanonicalID
	})
	return entries
}

// canonicalDate extracts the trailing YYMMDD segment of a canonical id.
// Ids without one sort first.
func canonicalDate(canonicalID string) string {
	i := strings.LastIndex(canonicalID, "-")
	if i < 0 || len(canonicalID)-i-1 != 6 {
		return ""
	}
	return canonicalID[i+1:]
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.sorted(), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".registry-*")
	if err != nil {
		return fmt.Errorf("writing registry %s: %w", s.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing registry %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing registry %s: %w", s.path, err)
	}
	return nil
}
