package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAbortCmd creates the abort command.
func NewAbortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abort <spec-id>",
		Short: "Tear down an orchestration's session worktrees and state",
		Long: `abort force-removes every session worktree for a specification and
deletes its live state document. Checkpoints are left in place for
forensic inspection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAbort(args[0])
		},
	}

	return cmd
}

func runAbort(specID string) error {
	appCtx := GetAppContext()
	if appCtx == nil {
		return fmt.Errorf("application not initialized")
	}
	formatter := appCtx.Formatter
	container := appCtx.Container

	coord := container.NewCoordinator(specID, "", nil, "", 0)

	ctx := GetRunContext()
	if err := coord.Abort(ctx); err != nil {
		return fmt.Errorf("failed to abort %s: %w", specID, err)
	}

	formatter.Success("aborted orchestration %s", specID)
	return nil
}
