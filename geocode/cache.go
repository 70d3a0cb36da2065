// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store caches raw upstream answers across runs. One store backs every
// client of a run; each client keeps to its own key namespace. Writes stay
// in memory until Save, so an interrupted run loses its new entries but
// never corrupts the persisted file.
type Store interface {
	Get(key string) (json.RawMessage, bool)
	Put(key string, value any)
	Save() error
}

// FileStore is a Store persisted as one pretty-printed JSON object. A
// missing or unreadable file is treated as an empty cache rather than an
// error: the cache is an optimization, not a source of truth.
type FileStore struct {
	path    string
	entries map[string]json.RawMessage
}

// NewFileStore loads the cache at path, leniently.
func NewFileStore(path string) *FileStore {
	s := &FileStore{
		path:    path,
		entries: make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil || len(data) == 0 {
		return s
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		s.entries = make(map[string]json.RawMessage)
	}

	return s
}

// Get returns the raw cached value for key.
func (s *FileStore) Get(key string) (json.RawMessage, bool) {
	v, ok := s.entries[key]

	return v, ok
}

// Put stores value under key. Values that cannot be marshaled are dropped
// silently; everything the clients cache is plain JSON data.
func (s *FileStore) Put(key string, value any) {
	if raw, ok := value.(json.RawMessage); ok {
		s.entries[key] = raw

		return
	}

	if data, err := json.Marshal(value); err == nil {
		s.entries[key] = data
	}
}

// Len returns the number of cached entries.
func (s *FileStore) Len() int {
	return len(s.entries)
}

// Keys returns every cache key, sorted.
func (s *FileStore) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// KeysByNamespace counts keys per namespace prefix; un-prefixed search keys
// are grouped under the given defaultNS.
func (s *FileStore) KeysByNamespace(defaultNS string) map[string]int {
	counts := make(map[string]int)

	for k := range s.entries {
		ns := defaultNS
		if idx := strings.Index(k, "::"); idx >= 0 {
			ns = k[:idx]
		}

		counts[ns]++
	}

	return counts
}

// Save rewrites the whole cache file. The parent directory is created on
// demand so a fresh data/ tree just works.
func (s *FileStore) Save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}
