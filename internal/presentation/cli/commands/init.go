package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/speckit/flowctl/internal/application"
	"github.com/speckit/flowctl/internal/domain/dag"
	"github.com/speckit/flowctl/internal/domain/task"
	"github.com/speckit/flowctl/internal/infrastructure/config"
	"github.com/speckit/flowctl/internal/infrastructure/feature"
	"github.com/speckit/flowctl/internal/infrastructure/git"
	"github.com/speckit/flowctl/internal/presentation/cli/output"
)

// taskListDocument is the shape a tasks-file argument to init must satisfy:
// a flat, ordered list of tasks. The coordinator never parses tasks.md
// itself; whatever produced this file already resolved dependencies, IDs,
// and parallelism into this structured form.
type taskListDocument struct {
	Tasks []task.Task `yaml:"tasks"`
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var (
		sessions int
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "init <spec-id> <tasks-file>",
		Short: "Plan an orchestration run from a task list and create session worktrees",
		Long: `init reads a YAML task list, builds its dependency graph, assigns
tasks to sessions, and shows the resulting phase plan for approval. On
approval it creates one git worktree per session and writes the initial
orchestration state, ready for 'flowctl run'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, args[0], args[1], sessions, yes)
		},
	}

	cmd.Flags().IntVarP(&sessions, "sessions", "n", 0, "number of concurrent sessions (default: config/sessions.count)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the approval prompt")

	return cmd
}

func loadTaskList(path string) ([]task.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}

	var doc taskListDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tasks file: %w", err)
	}
	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("tasks file %s defines no tasks", path)
	}
	return doc.Tasks, nil
}

func confirmPlan(formatter *output.Formatter, skip bool) (bool, error) {
	if skip {
		return true, nil
	}
	renderer := output.NewDAGRenderer(formatter)
	renderer.RenderApprovalPrompt()

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read input: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "" || answer == "y" || answer == "yes", nil
}

func runInit(cmd *cobra.Command, specID, tasksFile string, sessionOverride int, yes bool) error {
	appCtx := GetAppContext()
	if appCtx == nil {
		return fmt.Errorf("application not initialized")
	}
	formatter := appCtx.Formatter
	container := appCtx.Container

	tasks, err := loadTaskList(tasksFile)
	if err != nil {
		return err
	}

	d, err := dag.Build(tasks)
	if err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}

	numSessions := appCtx.Config.Sessions.Count
	if sessionOverride > 0 {
		numSessions = sessionOverride
	}

	renderer := output.NewDAGRenderer(formatter)
	if err := renderer.RenderPlan(specID, d, numSessions); err != nil {
		return err
	}

	if appCtx.Flags.Output == "json" {
		doc, err := d.Serialize(specID, time.Now(), numSessions)
		if err != nil {
			return err
		}
		return renderer.RenderPlanJSON(doc)
	}

	proceed, err := confirmPlan(formatter, yes)
	if err != nil {
		return err
	}
	if !proceed {
		formatter.Warning("aborted: plan not approved")
		return nil
	}

	gitMgr, err := git.NewWorktreeManager()
	if err != nil {
		return err
	}
	baseBranch, err := feature.CurrentBranch(gitMgr, container.RepoRoot)
	if err != nil {
		return err
	}

	coord := container.NewCoordinator(specID, baseBranch, d, tasksFile, 0)

	ctx := GetRunContext()
	if _, err := coord.Initialize(ctx); err != nil {
		return err
	}

	doc, err := d.Serialize(specID, time.Now(), numSessions)
	if err != nil {
		return err
	}
	docPath, err := writeDAGDocument(container.RepoRoot, specID, doc)
	if err != nil {
		return err
	}

	if err := ensureConfigWritten(container.RepoRoot, appCtx.Config); err != nil {
		return err
	}

	renderer.RenderPlanSaved(docPath)
	formatter.Success("initialized %d session worktree(s) for %s", numSessions, specID)
	formatter.Info("run 'flowctl run %s' to start execution", specID)

	return nil
}

// writeDAGDocument persists the serialised DAG under the repository's
// .speckit/dag directory, named after the spec it belongs to.
func writeDAGDocument(repoRoot, specID string, doc *dag.Document) (string, error) {
	dir := filepath.Join(repoRoot, ".speckit", "dag")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, specID+".yaml")

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dag document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write dag document: %w", err)
	}
	return path, nil
}

// ensureConfigWritten writes the active configuration to the repository's
// config file if one doesn't already exist, so a plain 'flowctl run' later
// sees the same settings init used.
func ensureConfigWritten(repoRoot string, cfg *config.Config) error {
	loader, err := config.NewLoader(repoRoot)
	if err != nil {
		return err
	}
	if _, err := os.Stat(loader.DefaultConfigPath()); err == nil {
		return nil
	}
	return loader.Save(cfg, "")
}
