package statestore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	flowerrors "github.com/speckit/flowctl/internal/domain/errors"
	"github.com/speckit/flowctl/internal/domain/orchestration"
)

const checkpointsDirName = "checkpoints"

// CheckpointTimeFormat renders an instant as the checkpoint filename
// stem: ISO-8601 with colons replaced by hyphens, per spec.md §6.
const CheckpointTimeFormat = "2006-01-02T15-04-05Z"

// CheckpointsDir is the directory holding per-phase state snapshots.
func (s *Store) CheckpointsDir() string {
	return filepath.Join(s.dir, checkpointsDirName)
}

// Checkpoint writes a copy of state into the checkpoints directory named
// after now, and returns the written path.
func (s *Store) Checkpoint(state *orchestration.State, now time.Time) (string, error) {
	dir := s.CheckpointsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, now.UTC().Format(CheckpointTimeFormat)+".yaml")
	if err := atomicWrite(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ListCheckpoints returns checkpoint paths newest-first. Checkpoint
// filenames are ISO-8601 timestamps, so lexical order equals chronological
// order; this avoids relying on filesystem mtime granularity, which can
// tie when checkpoints are written back-to-back.
func (s *Store) ListCheckpoints() ([]string, error) {
	entries, err := os.ReadDir(s.CheckpointsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".yaml") {
			names = append(names, entry.Name())
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(s.CheckpointsDir(), name)
	}
	return paths, nil
}

// LatestCheckpoint returns the newest checkpoint path, or "" if none
// exist.
func (s *Store) LatestCheckpoint() (string, error) {
	checkpoints, err := s.ListCheckpoints()
	if err != nil {
		return "", err
	}
	if len(checkpoints) == 0 {
		return "", nil
	}
	return checkpoints[0], nil
}

// CleanupOld deletes all but the keep newest checkpoints and returns the
// number deleted.
func (s *Store) CleanupOld(keep int) (int, error) {
	checkpoints, err := s.ListCheckpoints()
	if err != nil {
		return 0, err
	}
	if len(checkpoints) <= keep {
		return 0, nil
	}

	toDelete := checkpoints[keep:]
	deleted := 0
	for _, path := range toDelete {
		if err := os.Remove(path); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// RestoreCheckpoint parses and schema-validates the state document at
// path. The caller decides whether to overwrite live state.
func (s *Store) RestoreCheckpoint(path string) (*orchestration.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var state orchestration.State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, flowerrors.New(flowerrors.CodeCorruptState, "failed to parse checkpoint document", err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}
