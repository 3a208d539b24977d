// Package store is Luigi's State Store: an append-only history log plus an
// atomically-rewritten run snapshot (spec.md section 4.1). It generalizes the
// teacher's internal/state crash-safe single-file idiom from one singleton
// file to a per-run directory, and replaces the teacher's hand-rolled
// tmp-write-then-rename with github.com/google/renameio/v2, which additionally
// fsyncs before renaming.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/luigi-run/luigi/internal/logger"
	"github.com/luigi-run/luigi/internal/types"
)

const (
	snapshotFile = "state.json"
	historyFile  = "history.log"
	promptsDir   = "prompts"
)

// Event is one line of the append-only history log.
type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Store owns the serialized shadow of a Run. All writes go through Mutate, a
// single funnel so the snapshot and history log always advance together
// (spec.md section 4.1, design note on isolating state.json behind a funnel).
type Store struct {
	mu      sync.Mutex
	dir     string
	run     types.Run
	history *os.File
}

// Dir returns the run directory this Store persists into.
func (s *Store) Dir() string { return s.dir }

// PromptsDir returns the directory PromptRequest files are written into.
func (s *Store) PromptsDir() string { return filepath.Join(s.dir, promptsDir) }

// New creates a brand-new run directory and an initial pending Run.
func New(dir, repoPath, initialTask string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, promptsDir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwritable, err)
	}

	run := types.Run{
		ID:             uuid.NewString(),
		RepoPath:       repoPath,
		InitialTask:    initialTask,
		CreatedAt:      time.Now().UTC(),
		Status:         types.RunPending,
		WinningIterIdx: -1,
	}

	s, err := open(dir, run)
	if err != nil {
		return nil, err
	}
	if err := s.writeSnapshotLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads an existing run snapshot from dir. Readers that only need a
// point-in-time view should prefer the package-level Peek function instead of
// opening a writable Store.
func Load(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot: %v", ErrUnwritable, err)
	}

	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("store: parsing snapshot: %w", err)
	}

	return open(dir, run)
}

func open(dir string, run types.Run) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwritable, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, historyFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening history log: %v", ErrUnwritable, err)
	}

	return &Store{dir: dir, run: run, history: f}, nil
}

// Close releases the history log file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Close()
}

// Snapshot returns a deep copy of the in-memory Run, safe for the caller to
// read or retain without synchronization (spec.md section 4.1: "readers may
// read either artifact without synchronization").
func (s *Store) Snapshot() types.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.run)
}

// Mutate applies fn to the in-memory Run under the store's single mutex, then
// appends a history event and atomically rewrites the snapshot. If fn returns
// an error, neither the in-memory state nor the persisted artifacts change.
func (s *Store) Mutate(kind string, fn func(*types.Run) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := deepCopy(s.run)
	if err := fn(&candidate); err != nil {
		return err
	}
	s.run = candidate

	payload, err := json.Marshal(s.run)
	if err != nil {
		return fmt.Errorf("store: marshaling event payload: %w", err)
	}
	if err := s.appendEventLocked(kind, payload); err != nil {
		return err
	}
	return s.writeSnapshotLocked()
}

func (s *Store) appendEventLocked(kind string, payload json.RawMessage) error {
	evt := Event{Timestamp: time.Now().UTC(), Kind: kind, Payload: payload}
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("store: marshaling event: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.history.Write(line); err != nil {
		return fmt.Errorf("%w: appending history: %v", ErrUnwritable, err)
	}
	return nil
}

func (s *Store) writeSnapshotLocked() error {
	data, err := json.MarshalIndent(s.run, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshaling snapshot: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(s.dir, snapshotFile), data, 0o644); err != nil {
		return fmt.Errorf("%w: writing snapshot: %v", ErrUnwritable, err)
	}
	logger.Debug().Str("run_id", s.run.ID).Msg("store: snapshot written")
	return nil
}

// deepCopy round-trips through JSON to give callers an independent copy of a
// Run, since Run's nested slices would otherwise alias the store's internal
// state.
func deepCopy(run types.Run) types.Run {
	data, err := json.Marshal(run)
	if err != nil {
		// Run is always JSON-serializable by construction; this would only
		// fail on a programming error introducing a non-serializable field.
		return run
	}
	var out types.Run
	if err := json.Unmarshal(data, &out); err != nil {
		return run
	}
	return out
}

// Peek reads a run snapshot from dir without opening it for writing. Useful
// for Resume Logic's initial classification pass and for external readers
// (spec.md section 4.1: readers may read without synchronization).
func Peek(dir string) (types.Run, error) {
	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil {
		return types.Run{}, fmt.Errorf("%w: %v", ErrUnwritable, err)
	}
	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return types.Run{}, fmt.Errorf("store: parsing snapshot: %w", err)
	}
	return run, nil
}
