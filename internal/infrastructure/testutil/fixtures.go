// Package testutil provides test fixtures and helpers for testing.
package testutil

import (
	"time"

	"github.com/speckit/flowctl/internal/domain/dag"
	"github.com/speckit/flowctl/internal/domain/orchestration"
	"github.com/speckit/flowctl/internal/domain/task"
)

// NewTask builds a minimal task fixture with the given id and dependencies.
func NewTask(id string, deps ...string) task.Task {
	return task.Task{
		ID:           id,
		Name:         "Task " + id,
		Dependencies: deps,
	}
}

// NewLinearDAG creates a DAG with linear dependencies: T001 -> T002 -> T003.
func NewLinearDAG() (*dag.DAG, error) {
	return dag.Build([]task.Task{
		NewTask("T001"),
		NewTask("T002", "T001"),
		NewTask("T003", "T002"),
	})
}

// NewDiamondDAG creates a diamond dependency DAG: T001 -> T002, T001 -> T003, T002 -> T004, T003 -> T004.
func NewDiamondDAG() (*dag.DAG, error) {
	return dag.Build([]task.Task{
		NewTask("T001"),
		NewTask("T002", "T001"),
		NewTask("T003", "T001"),
		NewTask("T004", "T002", "T003"),
	})
}

// NewParallelDAG creates a DAG with independent tasks: T001, T002, T003.
func NewParallelDAG() (*dag.DAG, error) {
	return dag.Build([]task.Task{
		NewTask("T001"),
		NewTask("T002"),
		NewTask("T003"),
	})
}

// NewTestState builds a minimal orchestration state fixture for specID
// with the given session count.
func NewTestState(specID string, numSessions int) (*orchestration.State, error) {
	return orchestration.New(specID, "claude-code", numSessions, "main", time.Now())
}
