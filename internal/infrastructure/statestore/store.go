// Package statestore persists orchestration state to
// ".speckit/flow-state.yaml" and its per-phase checkpoints, with atomic
// writes and advisory locking so a crash mid-save never leaves a
// half-written document behind.
package statestore

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	flowerrors "github.com/speckit/flowctl/internal/domain/errors"
	"github.com/speckit/flowctl/internal/domain/orchestration"
)

const (
	stateFileName = "flow-state.yaml"
	lockFileName  = "flow-state.lock"
)

// Store reads and writes orchestration state under a ".speckit"
// directory rooted at the repository root.
type Store struct {
	dir string
}

// New returns a state store rooted at speckitDir (typically
// "{repoRoot}/.speckit").
func New(speckitDir string) *Store {
	return &Store{dir: speckitDir}
}

// StatePath is the live state document path.
func (s *Store) StatePath() string {
	return filepath.Join(s.dir, stateFileName)
}

// LockPath is the advisory lock sibling of the state document.
func (s *Store) LockPath() string {
	return filepath.Join(s.dir, lockFileName)
}

// Exists reports whether the state file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.StatePath())
	return err == nil
}

// Save atomically serialises state to the state document: marshal,
// write to a temp file in the same directory, fsync, rename over the
// final path. Concurrent writers are excluded by an advisory lock on
// the sibling lock file. Touches state.UpdatedAt before writing.
func (s *Store) Save(state *orchestration.State, now func() string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	lock := flock.New(s.LockPath())
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	state.UpdatedAt = now()

	data, err := yaml.Marshal(state)
	if err != nil {
		return err
	}

	return atomicWrite(s.StatePath(), data)
}

// Load reads and schema-validates the state document. Returns
// CodeCorruptState on a schema violation, ErrStateNotFound on a missing
// file.
func (s *Store) Load() (*orchestration.State, error) {
	data, err := os.ReadFile(s.StatePath())
	if os.IsNotExist(err) {
		return nil, flowerrors.New(flowerrors.CodeFileNotFound, "orchestration state not found", flowerrors.ErrStateNotFound)
	}
	if err != nil {
		return nil, err
	}

	var state orchestration.State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, flowerrors.New(flowerrors.CodeCorruptState, "failed to parse state document", err)
	}

	if err := state.Validate(); err != nil {
		return nil, err
	}

	return &state, nil
}

// Delete removes the state file and its lock. Idempotent if already
// absent.
func (s *Store) Delete() error {
	if err := os.Remove(s.StatePath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(s.LockPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes data to a temp file beside path, fsyncs it, then
// renames it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
