// Package adapter defines the port through which the coordinator drives an
// external AI coding-agent session. It deliberately carries no concrete
// agent-specific context format: a concrete adapter owns that.
package adapter

import (
	"github.com/speckit/flowctl/internal/domain/task"
)

// Agent is the seam between the orchestration engine and whatever coding
// assistant is actually doing the work inside a session's working copy.
// Implementations are expected to be stateless with respect to the
// coordinator: all persistent state belongs to the orchestration state
// document, not the adapter.
type Agent interface {
	// SetupSession prepares a session's working copy for a task: writing
	// whatever context file format the agent expects, seeding any
	// scratch files it reads on start. Called once per task, right
	// before the task becomes available for the agent to pick up.
	SetupSession(worktreePath string, t task.Task) error

	// NotifyUser signals that a task is ready for a human or an attached
	// agent process to act on, inside the given session. Implementations
	// that drive a headless agent process may start it here instead of
	// notifying a human. A NotifyUser failure is logged and otherwise
	// ignored: it never blocks orchestration progress.
	NotifyUser(sessionIndex int, worktreePath string, t task.Task) error

	// FilesToWatch lists the paths under worktreePath the completion
	// monitor should watch for externally-driven progress, typically the
	// feature's tasks.md. An adapter with no filesystem-observable
	// progress signal may return nil.
	FilesToWatch(worktreePath string) []string

	// ContextFilePath returns the path to the context file SetupSession
	// wrote, or "" if the adapter doesn't use one.
	ContextFilePath(worktreePath string) string
}

// Name identifies an agent adapter implementation, matching
// config.AgentConfig.Type.
type Name string
