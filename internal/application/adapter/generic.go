package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/speckit/flowctl/internal/domain/task"
	"github.com/speckit/flowctl/internal/presentation/cli/output"
)

// Generic is a minimal reference Agent: it writes a plain-text context file
// and prints a notification to a formatter, rather than speaking any
// particular coding assistant's context format. It exists so flowctl is
// runnable end to end without committing the orchestration engine to any
// one agent's conventions; a deployment that targets a specific assistant
// is expected to supply its own Agent.
type Generic struct {
	Formatter *output.Formatter
}

// NewGeneric returns a Generic adapter that prints notifications through
// formatter.
func NewGeneric(formatter *output.Formatter) *Generic {
	return &Generic{Formatter: formatter}
}

const contextDir = ".flowctl"
const contextFile = "context.md"

// SetupSession writes worktreePath/.flowctl/context.md with the task's
// identifying details.
func (g *Generic) SetupSession(worktreePath string, t task.Task) error {
	dir := filepath.Join(worktreePath, contextDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Task %s: %s\n\n", t.ID, t.Name)
	if t.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", t.Description)
	}
	if len(t.Dependencies) > 0 {
		fmt.Fprintf(&b, "Dependencies: %s\n", strings.Join(t.Dependencies, ", "))
	}
	if len(t.Files) > 0 {
		fmt.Fprintf(&b, "Files: %s\n", strings.Join(t.Files, ", "))
	}

	return os.WriteFile(g.ContextFilePath(worktreePath), []byte(b.String()), 0o644)
}

// NotifyUser prints a short panel naming the session, task, and worktree to
// open.
func (g *Generic) NotifyUser(sessionIndex int, worktreePath string, t task.Task) error {
	if g.Formatter == nil {
		return nil
	}
	g.Formatter.Println("")
	g.Formatter.Println("%s", g.Formatter.Bold(fmt.Sprintf("Session %d ready: %s - %s", sessionIndex, t.ID, t.Name)))
	g.Formatter.Item("Worktree", worktreePath)
	g.Formatter.Item("Context", g.ContextFilePath(worktreePath))
	return nil
}

// FilesToWatch watches every feature's tasks.md under the worktree's specs
// directory.
func (g *Generic) FilesToWatch(worktreePath string) []string {
	matches, err := filepath.Glob(filepath.Join(worktreePath, "specs", "*", "tasks.md"))
	if err != nil {
		return nil
	}
	return matches
}

// ContextFilePath returns the path SetupSession writes to.
func (g *Generic) ContextFilePath(worktreePath string) string {
	return filepath.Join(worktreePath, contextDir, contextFile)
}
