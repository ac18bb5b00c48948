package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speckit/flowctl/internal/presentation/cli/output"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current orchestration state",
		Long: `status reads the live orchestration state document and reports the
current phase, phases completed, merge status, and a per-session summary
of what each session is working on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	appCtx := GetAppContext()
	if appCtx == nil {
		return fmt.Errorf("application not initialized")
	}
	container := appCtx.Container
	formatter := appCtx.Formatter

	store := container.Store()
	if !store.Exists() {
		formatter.Warning("no orchestration state found in %s", container.SpeckitDir())
		formatter.Info("run 'flowctl init <spec-id> <tasks-file>' to start one")
		return nil
	}

	state, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load orchestration state: %w", err)
	}

	if appCtx.Flags.Output == "json" {
		return formatter.JSON(state)
	}

	renderer := output.NewDAGRenderer(formatter)
	return renderer.RenderState(state)
}
