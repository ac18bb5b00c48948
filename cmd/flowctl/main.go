// flowctl CLI entry point
//
// flowctl orchestrates several concurrent AI coding-agent sessions against
// one git repository: it splits a task list into a dependency graph, runs
// each topological phase in per-session worktrees, checkpoints progress,
// and merges session branches sequentially once work is done.
package main

import "github.com/speckit/flowctl/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
