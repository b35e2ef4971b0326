// Copyright 2025 James Ross
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// JSONStore is the default Store backend: a single JSON document written
// via write-temp-then-rename, directly grounded on the indexer's
// FetchState.saveLocked (os.CreateTemp + os.Rename) — the ETL's analogue
// of the teacher's Redis-backed job state.
type JSONStore struct {
	path  string
	locks *pathLocks

	mu     sync.Mutex
	files  map[string]FileState
}

type jsonDoc struct {
	Files map[string]FileState `json:"files"`
}

// NewJSONStore loads (or initializes) the state document at path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{path: path, locks: newPathLocks(), files: make(map[string]FileState)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state store load %s: %w", path, err)
	}
	var doc jsonDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		// Corrupt state file: rather than hard-failing the whole run, start
		// fresh — the next full rescan will simply reclaim every file.
		return s, nil
	}
	if doc.Files != nil {
		s.files = doc.Files
	}
	return s, nil
}

func (s *JSONStore) saveLocked() error {
	doc := jsonDoc{Files: s.files}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(s.path))
	tmp, err := os.CreateTemp(dir, ".processing-state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("state store save: create temp: %w", err)
	}
	name := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(name)
		if werr != nil {
			return fmt.Errorf("state store save: write: %w", werr)
		}
		return fmt.Errorf("state store save: close: %w", cerr)
	}
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("state store save: rename: %w", err)
	}
	return nil
}

func (s *JSONStore) Claim(_ context.Context, path, workerID, cheapHash string) (ClaimResult, error) {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.files[path]
	if ok {
		if existing.Status == OutcomeCompleted && existing.CheapHash == cheapHash {
			return ClaimResult{Decision: ClaimSkipCompleted, State: existing}, nil
		}
		if existing.Status == "" && existing.ClaimedBy != "" {
			return ClaimResult{Decision: ClaimSkipInProgress, State: existing}, nil
		}
	}

	now := time.Now()
	fs := FileState{
		Path:      path,
		CheapHash: cheapHash,
		ClaimedBy: workerID,
		StartedAt: now,
		UpdatedAt: now,
	}
	if ok {
		fs.ContentHash = existing.ContentHash
	}
	s.files[path] = fs
	if err := s.saveLocked(); err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Decision: ClaimProceed, State: fs}, nil
}

func (s *JSONStore) Update(_ context.Context, path string, delta StatsDelta) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	fs, ok := s.files[path]
	if !ok {
		return fmt.Errorf("state store update: unknown path %q", path)
	}
	fs.RecordsIngested += delta.RecordsIngested
	fs.ParseFailures += delta.ParseFailures
	fs.BytesRead += delta.BytesRead
	fs.UpdatedAt = time.Now()
	s.files[path] = fs
	return s.saveLocked()
}

func (s *JSONStore) Finish(_ context.Context, path string, outcome Outcome, stats FinishStats) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	fs := s.files[path]
	fs.Path = path
	fs.Status = outcome
	fs.RecordsIngested = stats.RecordsIngested
	fs.ParseFailures = stats.ParseFailures
	fs.BytesRead = stats.BytesRead
	fs.Error = stats.Error
	fs.FinishedAt = time.Now()
	fs.UpdatedAt = fs.FinishedAt
	s.files[path] = fs
	return s.saveLocked()
}

func (s *JSONStore) SetContentHash(_ context.Context, path, contentHash string) error {
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	fs, ok := s.files[path]
	if !ok {
		return fmt.Errorf("state store set content hash: unknown path %q", path)
	}
	fs.ContentHash = contentHash
	s.files[path] = fs
	return s.saveLocked()
}

func (s *JSONStore) ListUnfinished(_ context.Context) ([]FileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []FileState
	for _, fs := range s.files {
		if fs.Status == "" {
			out = append(out, fs)
		}
	}
	return out, nil
}

func (s *JSONStore) List(_ context.Context, scope string) ([]FileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []FileState
	for path, fs := range s.files {
		if scope != "" && !strings.HasPrefix(path, scope) {
			continue
		}
		out = append(out, fs)
	}
	return out, nil
}

func (s *JSONStore) ResetFailed(_ context.Context, scope string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for path, fs := range s.files {
		if fs.Status != OutcomeFailed {
			continue
		}
		if scope != "" && !strings.HasPrefix(path, scope) {
			continue
		}
		fs.Status = ""
		fs.ClaimedBy = ""
		fs.Error = ""
		s.files[path] = fs
		n++
	}
	if n > 0 {
		if err := s.saveLocked(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *JSONStore) Get(_ context.Context, path string) (FileState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, ok := s.files[path]
	return fs, ok, nil
}

func (s *JSONStore) ReclaimStale(_ context.Context, staleAfter time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for path, fs := range s.files {
		if fs.Status != "" || fs.ClaimedBy == "" {
			continue
		}
		if now.Sub(fs.UpdatedAt) < staleAfter {
			continue
		}
		fs.ClaimedBy = ""
		s.files[path] = fs
		n++
	}
	if n > 0 {
		if err := s.saveLocked(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *JSONStore) Close() error { return nil }
