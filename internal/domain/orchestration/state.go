// Package orchestration defines the orchestration state: sessions,
// per-task status, and the phase-progress record the coordinator persists
// after every meaningful transition.
package orchestration

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/speckit/flowctl/internal/domain/errors"
	"github.com/speckit/flowctl/internal/domain/task"
)

// SchemaVersion is the orchestration-state document schema version.
const SchemaVersion = "1.0"

// TimeFormat is the ISO-8601 UTC format (trailing Z) used for every
// timestamp in the state document.
const TimeFormat = "2006-01-02T15:04:05Z"

// SessionStatus is the lifecycle status of a session.
type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionExecuting SessionStatus = "executing"
	SessionWaiting   SessionStatus = "waiting"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// MergeStatus is the status of the merge sub-operation, nil until merge starts.
type MergeStatus string

const (
	MergeInProgress MergeStatus = "in_progress"
	MergeCompleted  MergeStatus = "completed"
	MergeFailed     MergeStatus = "failed"
)

// Session is a single execution lane: one working-copy, one integration
// branch, at most one in-flight task.
type Session struct {
	ID             int           `yaml:"session_id"`
	WorktreePath   string        `yaml:"worktree_path"`
	BranchName     string        `yaml:"branch_name"`
	CurrentTask    *string       `yaml:"current_task"`
	CompletedTasks []string      `yaml:"completed_tasks"`
	Status         SessionStatus `yaml:"status"`
}

// BranchName returns the integration-line name for a session of the given
// specification: impl-{spec}-session-{i}.
func BranchName(specID string, session int) string {
	return fmt.Sprintf("impl-%s-session-%d", specID, session)
}

// TaskState is the per-task status record.
type TaskState struct {
	Status      task.Status `yaml:"status"`
	Session     *int        `yaml:"session"`
	StartedAt   *string     `yaml:"started_at"`
	CompletedAt *string     `yaml:"completed_at"`
}

// State is the full orchestration state document.
type State struct {
	Version         string               `yaml:"version"`
	SpecID          string               `yaml:"spec_id"`
	AgentType       string               `yaml:"agent_type"`
	NumSessions     int                  `yaml:"num_sessions"`
	BaseBranch      string               `yaml:"base_branch"`
	StartedAt       string               `yaml:"started_at"`
	UpdatedAt       string               `yaml:"updated_at"`
	CurrentPhase    string               `yaml:"current_phase"`
	PhasesCompleted []string             `yaml:"phases_completed"`
	Sessions        []Session            `yaml:"sessions"`
	Tasks           map[string]TaskState `yaml:"tasks"`
	MergeStatus     *MergeStatus         `yaml:"merge_status"`
}

// PhaseName formats a zero-based phase index as phase-{i}.
func PhaseName(i int) string {
	return fmt.Sprintf("phase-%d", i)
}

// ParsePhaseIndex parses a phase-{i} name back into its index.
func ParsePhaseIndex(name string) (int, error) {
	n, ok := strings.CutPrefix(name, "phase-")
	if !ok {
		return 0, errors.WithContext(
			errors.New(errors.CodeCorruptState, "malformed phase name", errors.ErrCorruptState),
			"current_phase", name,
		)
	}
	idx, err := strconv.Atoi(n)
	if err != nil {
		return 0, errors.WithContext(
			errors.New(errors.CodeCorruptState, "malformed phase name", errors.ErrCorruptState),
			"current_phase", name,
		)
	}
	return idx, nil
}

// FormatTime renders t as ISO-8601 UTC with a trailing Z.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// New constructs a fresh orchestration state for specID, beginning at
// phase-0 with no completed phases and no merge status.
func New(specID, agentType string, numSessions int, baseBranch string, now time.Time) (*State, error) {
	if numSessions < 1 {
		return nil, errors.New(errors.CodeInvalidArgument, "session count must be at least 1", errors.ErrInvalidArgument)
	}
	ts := FormatTime(now)
	return &State{
		Version:         SchemaVersion,
		SpecID:          specID,
		AgentType:       agentType,
		NumSessions:     numSessions,
		BaseBranch:      baseBranch,
		StartedAt:       ts,
		UpdatedAt:       ts,
		CurrentPhase:    PhaseName(0),
		PhasesCompleted: []string{},
		Sessions:        make([]Session, 0, numSessions),
		Tasks:           make(map[string]TaskState),
		MergeStatus:     nil,
	}, nil
}

// Touch sets UpdatedAt to now. Call before every persist.
func (s *State) Touch(now time.Time) {
	s.UpdatedAt = FormatTime(now)
}

// ResumePhaseIndex computes the phase to resume from: the index after the
// last completed phase, or the current phase's index if it is not yet
// marked completed.
func (s *State) ResumePhaseIndex() (int, error) {
	for _, p := range s.PhasesCompleted {
		if p == s.CurrentPhase {
			return len(s.PhasesCompleted), nil
		}
	}
	return ParsePhaseIndex(s.CurrentPhase)
}

// Validate checks the state document's invariants: version present,
// session count positive, every task/session index in range, phases_completed
// is a prefix of phase-0, phase-1, ..., and updated_at >= started_at.
func (s *State) Validate() error {
	if s.Version == "" {
		return errors.New(errors.CodeCorruptState, "missing field: version", errors.ErrCorruptState)
	}
	if s.SpecID == "" {
		return errors.New(errors.CodeCorruptState, "missing field: spec_id", errors.ErrCorruptState)
	}
	if s.NumSessions < 1 {
		return errors.WithContext(
			errors.New(errors.CodeCorruptState, "num_sessions must be at least 1", errors.ErrCorruptState),
			"field", "num_sessions",
		)
	}

	for i, name := range s.PhasesCompleted {
		if name != PhaseName(i) {
			return errors.WithContext(
				errors.New(errors.CodeCorruptState, "phases_completed is not a prefix of phase-0, phase-1, ...", errors.ErrCorruptState),
				"field", "phases_completed",
			)
		}
	}

	for id, ts := range s.Tasks {
		if ts.Session != nil && (*ts.Session < 0 || *ts.Session >= s.NumSessions) {
			return errors.WithContext(
				errors.WithContext(
					errors.New(errors.CodeCorruptState, "task session index out of range", errors.ErrCorruptState),
					"field", "tasks."+id+".session",
				),
				"session", *ts.Session,
			)
		}
	}

	for _, session := range s.Sessions {
		if session.ID < 0 || session.ID >= s.NumSessions {
			return errors.WithContext(
				errors.New(errors.CodeCorruptState, "session index out of range", errors.ErrCorruptState),
				"field", "sessions",
			)
		}
	}

	if s.StartedAt != "" && s.UpdatedAt != "" && s.UpdatedAt < s.StartedAt {
		return errors.WithContext(
			errors.New(errors.CodeCorruptState, "updated_at precedes started_at", errors.ErrCorruptState),
			"field", "updated_at",
		)
	}

	return nil
}

// SessionByID returns a pointer into s.Sessions for the given ID, or nil.
func (s *State) SessionByID(id int) *Session {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return &s.Sessions[i]
		}
	}
	return nil
}
