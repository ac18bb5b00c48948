package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewMergeCmd creates the merge command.
func NewMergeCmd() *cobra.Command {
	var (
		baseBranch    string
		testCmd       string
		keepWorktrees bool
		analyzeOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "merge <spec-id>",
		Short: "Merge every session branch sequentially into an integration branch",
		Long: `merge analyses each session branch's changes against the base branch,
reports any cross-session file overlap, and - unless --analyze-only is
set - merges every session branch in ascending session order into a fresh
integration branch. Merging stops at the first conflict, leaving the
repository on its base branch with the attempted integration branch
removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(args[0], baseBranch, testCmd, keepWorktrees, analyzeOnly)
		},
	}

	cmd.Flags().StringVar(&baseBranch, "base", "", "base branch to merge into (default: current branch)")
	cmd.Flags().StringVar(&testCmd, "test-cmd", "", "shell command to validate the integration branch (default: skip validation)")
	cmd.Flags().BoolVar(&keepWorktrees, "keep-worktrees", false, "do not remove session worktrees after a successful merge")
	cmd.Flags().BoolVar(&analyzeOnly, "analyze-only", false, "report file overlap without merging")

	return cmd
}

func runMerge(specID, baseBranch, testCmd string, keepWorktrees, analyzeOnly bool) error {
	appCtx := GetAppContext()
	if appCtx == nil {
		return fmt.Errorf("application not initialized")
	}
	formatter := appCtx.Formatter
	orch := appCtx.Container.NewMergeOrchestrator(specID)

	ctx := GetRunContext()

	analysis, err := orch.Analyze(ctx, baseBranch)
	if err != nil {
		return err
	}

	formatter.Info("base branch: %s", analysis.BaseBranch)
	formatter.Info("sessions: %d, files touched: %d", len(analysis.SessionChanges), analysis.TotalFilesChanged())
	if !analysis.SafeToMerge() {
		formatter.Warning("overlapping files touched by more than one session:")
		for f, ids := range analysis.OverlappingFiles {
			names := make([]string, len(ids))
			for i, id := range ids {
				names[i] = fmt.Sprintf("session-%d", id)
			}
			formatter.BulletItem(fmt.Sprintf("%s: %s", f, strings.Join(names, ", ")))
		}
	} else {
		formatter.Success("no cross-session file overlap")
	}

	if analyzeOnly {
		return nil
	}

	result, err := orch.MergeSequential(ctx, baseBranch)
	if err != nil {
		return err
	}
	if !result.Success {
		formatter.Error("%s", result.ErrorMessage)
		formatter.Info("conflicting files: %s", strings.Join(result.ConflictingFiles, ", "))
		return fmt.Errorf("merge stopped at session %d", *result.ConflictSession)
	}
	formatter.Success("merged %d session(s) into %s", len(result.MergedSessions), result.IntegrationBranch)

	ok, out := orch.Validate(ctx, testCmd)
	if !ok {
		formatter.Error("validation failed:\n%s", out)
		return fmt.Errorf("validation failed on %s", result.IntegrationBranch)
	}
	if testCmd != "" {
		formatter.Success("validation passed")
	}

	summary, err := orch.Finalize(ctx, keepWorktrees)
	if err != nil {
		return err
	}
	formatter.Item("Files changed", fmt.Sprintf("%d", summary.FilesChanged))
	formatter.Item("Lines added", fmt.Sprintf("%d", summary.LinesAdded))
	formatter.Item("Lines deleted", fmt.Sprintf("%d", summary.LinesDeleted))
	formatter.Item("Worktrees removed", fmt.Sprintf("%d", summary.WorktreesRemoved))

	return nil
}
