package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/speckit/flowctl/internal/domain/dag"
	"github.com/speckit/flowctl/internal/infrastructure/feature"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var (
		tasksFile string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <spec-id>",
		Short: "Run (or resume) an orchestration to completion",
		Long: `run drives every remaining phase of a specification's orchestration:
each phase assigns tasks to their sessions, waits for completion, and
checkpoints before advancing. A run that was interrupted resumes from its
last checkpointed phase automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(args[0], tasksFile, timeout)
		},
	}

	cmd.Flags().StringVar(&tasksFile, "tasks-file", "", "tasks.md path the completion monitor observes (default: resolved from the active branch)")
	cmd.Flags().DurationVar(&timeout, "phase-timeout", 0, "maximum time to wait for a phase to complete (0 = no deadline)")

	return cmd
}

func runRun(specID, tasksFile string, timeout time.Duration) error {
	appCtx := GetAppContext()
	if appCtx == nil {
		return fmt.Errorf("application not initialized")
	}
	container := appCtx.Container
	formatter := appCtx.Formatter

	store := container.Store()
	if !store.Exists() {
		return fmt.Errorf("no orchestration state found for %s, run 'flowctl init' first", specID)
	}
	state, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load orchestration state: %w", err)
	}
	if state.SpecID != specID {
		return fmt.Errorf("orchestration state is for spec %q, not %q", state.SpecID, specID)
	}

	d, err := loadDAGDocument(container.RepoRoot, specID)
	if err != nil {
		return err
	}

	if tasksFile == "" {
		tasksFile, err = feature.ObservedTasksFilePath(container.RepoRoot, state.BaseBranch, state.BaseBranch)
		if err != nil {
			tasksFile = ""
		}
	}

	coord := container.NewCoordinator(specID, state.BaseBranch, d, tasksFile, timeout)

	ctx := GetRunContext()
	formatter.Info("resuming %s from %s", specID, state.CurrentPhase)
	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("orchestration run failed: %w", err)
	}

	formatter.Success("orchestration %s complete", specID)
	return nil
}

// loadDAGDocument reads and rebuilds the DAG init persisted for specID.
func loadDAGDocument(repoRoot, specID string) (*dag.DAG, error) {
	path := filepath.Join(repoRoot, ".speckit", "dag", specID+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dag document for %s: %w", specID, err)
	}

	var doc dag.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse dag document for %s: %w", specID, err)
	}

	return dag.FromDocument(&doc)
}
