package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store manages orchestration state on disk. Live orchestrations sit
// under <base>/<id>/; finished ones move to <base>/archive/<id>/.
type Store struct {
	baseDir string // defaults to ~/.greenlight/orchestrations
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.greenlight/orchestrations, creating
// the directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".greenlight", "orchestrations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) liveDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) archiveDir(id string) string {
	return filepath.Join(s.baseDir, "archive", id)
}

func (s *Store) statePath(id string) string {
	return filepath.Join(s.liveDir(id), "state.json")
}

// CreateOpts configures a new orchestration record.
type CreateOpts struct {
	Workdir   string
	Branch    string
	Ecosystem string
	MaxLocal  int
	MaxRemote int
}

// Create initialises a new orchestration on disk with a fresh ULID.
func (s *Store) Create(opts CreateOpts) (*OrchestrationState, error) {
	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)

	st := &OrchestrationState{
		ID:           id,
		Workdir:      opts.Workdir,
		Branch:       opts.Branch,
		Ecosystem:    opts.Ecosystem,
		Phase:        PhaseIdle,
		MaxLocal:     opts.MaxLocal,
		MaxRemote:    opts.MaxRemote,
		AppliedFixes: []AppliedFix{},
		Transitions:  []Transition{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := WriteJSON(s.statePath(id), st); err != nil {
		return nil, fmt.Errorf("write state.json: %w", err)
	}
	return st, nil
}

// Get reads an orchestration by ID, checking live state first and the
// archive second.
func (s *Store) Get(id string) (*OrchestrationState, error) {
	var st OrchestrationState
	err := ReadJSON(s.statePath(id), &st)
	if err == nil {
		return &st, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	archErr := ReadJSON(filepath.Join(s.archiveDir(id), "state.json"), &st)
	if archErr == nil {
		return &st, nil
	}
	if os.IsNotExist(archErr) {
		return nil, fmt.Errorf("orchestration %s not found", id)
	}
	return nil, archErr
}

// Update performs a read-modify-write of live orchestration state. The
// write is atomic: a crash mid-update leaves the previous state intact.
func (s *Store) Update(id string, fn func(*OrchestrationState)) (*OrchestrationState, error) {
	var st OrchestrationState
	if err := ReadJSON(s.statePath(id), &st); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("orchestration %s not found (archived orchestrations are immutable)", id)
		}
		return nil, err
	}
	fn(&st)
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := WriteJSON(s.statePath(id), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// List returns live orchestrations, optionally filtered by phase.
// Pass "" to return all of them, newest first (ULIDs sort by time).
func (s *Store) List(phaseFilter Phase) ([]OrchestrationState, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var states []OrchestrationState
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "archive" {
			continue
		}
		var st OrchestrationState
		if err := ReadJSON(s.statePath(entry.Name()), &st); err != nil {
			continue // skip broken entries
		}
		if phaseFilter == "" || st.Phase == phaseFilter {
			states = append(states, st)
		}
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].ID > states[j].ID
	})
	return states, nil
}

// Archive moves a finished orchestration out of the live set. Archived
// state stays readable through Get but is no longer updatable.
func (s *Store) Archive(id string) error {
	st, err := s.Get(id)
	if err != nil {
		return err
	}
	if !st.Phase.Terminal() {
		return fmt.Errorf("orchestration %s is %s, not terminal", id, st.Phase)
	}

	src := s.liveDir(id)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil // already archived
	}
	dst := s.archiveDir(id)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir archive: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive %s: %w", id, err)
	}
	return nil
}

// SaveGateResult persists one gate run's full JSON under the
// orchestration directory for later inspection.
func (s *Store) SaveGateResult(id string, round int, data []byte) error {
	path := filepath.Join(s.liveDir(id), "gates", fmt.Sprintf("gate-%d.json", round))
	return WriteAtomic(path, data)
}

// SaveFailureLog persists the raw CI failure log for one remote attempt.
func (s *Store) SaveFailureLog(id string, attempt int, log string) error {
	path := filepath.Join(s.liveDir(id), "ci-logs", fmt.Sprintf("attempt-%d.log", attempt))
	return WriteAtomic(path, []byte(log))
}
