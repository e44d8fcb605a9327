// Package tracker persists per-catalog run state across process restarts.
//
// The whole mapping lives in one JSON document on disk. Every mutation is a
// full read-modify-write cycle under a process-wide lock, so concurrent
// trigger ticks for different catalogs never corrupt the document and a
// reader never observes a partial write. A missing or unreadable document is
// treated as an empty mapping: losing the file costs one first-run-sized
// window, never a skipped run.
package tracker

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

// Store is the durable run-state store keyed by catalog key.
type Store struct {
	path string
	mu   sync.RWMutex
}

// New creates a Store backed by the JSON document at path. The document is
// created on first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Get returns the persisted state for the catalog key. The second return
// value is false when no state has ever been recorded for the key.
func (s *Store) Get(key string) (domain.RunState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.load()
	state, ok := data[key]
	return state, ok
}

// Snapshot returns a copy of the full mapping.
func (s *Store) Snapshot() map[string]domain.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.load()
	out := make(map[string]domain.RunState, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// Acquire atomically sets the running flag for the key. It returns false
// without modifying anything when a run is already marked running; the
// caller must treat that tick as a no-op.
func (s *Store) Acquire(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	state := data[key]
	if state.IsRunning {
		return false, nil
	}
	state.IsRunning = true
	data[key] = state
	if err := s.save(data); err != nil {
		return false, err
	}
	return true, nil
}

// ForceAcquire sets the running flag regardless of its current value. Used
// to reclaim a catalog whose flag was left stuck by a crash after the
// runtime confirmed nothing is actually running.
func (s *Store) ForceAcquire(key string) error {
	return s.SetRunning(key, true)
}

// SetRunning sets or clears the running flag without touching the last
// successful run timestamp.
func (s *Store) SetRunning(key string, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	state := data[key]
	state.IsRunning = running
	data[key] = state
	return s.save(data)
}

// UpdateLastSuccessfulRun records ts as the last successful run boundary for
// the key and clears the running flag in the same write.
func (s *Store) UpdateLastSuccessfulRun(key string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	utc := ts.UTC()
	data := s.load()
	state := data[key]
	state.LastSuccessfulRun = &utc
	state.IsRunning = false
	data[key] = state
	return s.save(data)
}

// load reads the full document. Callers must hold at least the read lock.
// Unknown fields in the document are ignored so newer writers stay readable.
func (s *Store) load() map[string]domain.RunState {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("tracker: failed to read %s: %v (treating as empty)", s.path, err)
		}
		return make(map[string]domain.RunState)
	}

	data := make(map[string]domain.RunState)
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("tracker: failed to parse %s: %v (treating as empty)", s.path, err)
		return make(map[string]domain.RunState)
	}
	return data
}

// save rewrites the full document atomically via a temp file and rename, so
// a crash mid-write leaves the previous document intact. Callers must hold
// the write lock.
func (s *Store) save(data map[string]domain.RunState) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write run state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace run state file: %w", err)
	}
	return nil
}
