// Package application wires the domain and infrastructure layers into the
// coordinator and merge orchestrator use cases the CLI drives.
package application

import (
	"context"
	"path/filepath"
	"time"

	"github.com/speckit/flowctl/internal/application/adapter"
	"github.com/speckit/flowctl/internal/application/coordinator"
	"github.com/speckit/flowctl/internal/application/merge"
	"github.com/speckit/flowctl/internal/application/worktree"
	"github.com/speckit/flowctl/internal/domain/dag"
	"github.com/speckit/flowctl/internal/infrastructure/completion"
	"github.com/speckit/flowctl/internal/infrastructure/config"
	"github.com/speckit/flowctl/internal/infrastructure/git"
	"github.com/speckit/flowctl/internal/infrastructure/logging"
	"github.com/speckit/flowctl/internal/infrastructure/statestore"
	"github.com/speckit/flowctl/internal/infrastructure/tracing"
	"github.com/speckit/flowctl/internal/presentation/cli/output"
)

// SpeckitDirName is the per-repository directory holding orchestration
// state, checkpoints, and completion markers.
const SpeckitDirName = ".speckit"

// Container holds every long-lived dependency the CLI commands need: the
// resolved repository root, configuration, logger, tracer, and the git and
// worktree managers factories build coordinators and merge orchestrators
// from.
type Container struct {
	RepoRoot string
	Config   *config.Config
	Logger   *logging.Logger
	Tracer   *tracing.Tracer

	Formatter *output.Formatter
	GitMgr    *git.WorktreeManager
	Worktrees *worktree.Manager
	Agent     adapter.Agent
}

// NewContainer builds a Container for repoRoot from cfg, initialising the
// shared logger and tracer and constructing the git worktree manager.
func NewContainer(ctx context.Context, repoRoot string, cfg *config.Config, formatter *output.Formatter) (*Container, error) {
	logger := logging.New(logging.Config{
		Level:  logging.Level(cfg.Logging.Level),
		Format: logging.Format(cfg.Logging.Format),
	})

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:      cfg.Observability.Tracing.Enabled,
		ExporterType: tracing.ExporterType(cfg.Observability.Tracing.ExporterType),
		OTLPEndpoint: cfg.Observability.Tracing.OTLPEndpoint,
		ServiceName:  cfg.Observability.Tracing.ServiceName,
		SampleRate:   cfg.Observability.Tracing.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	gitMgr, err := git.NewWorktreeManager()
	if err != nil {
		return nil, err
	}

	return &Container{
		RepoRoot:  repoRoot,
		Config:    cfg,
		Logger:    logger,
		Tracer:    tracer,
		Formatter: formatter,
		GitMgr:    gitMgr,
		Worktrees: worktree.NewManager(repoRoot, gitMgr),
		Agent:     adapter.NewGeneric(formatter),
	}, nil
}

// SpeckitDir is the repository's .speckit directory.
func (c *Container) SpeckitDir() string {
	return filepath.Join(c.RepoRoot, SpeckitDirName)
}

// Store returns the state store rooted at this repository's .speckit
// directory.
func (c *Container) Store() *statestore.Store {
	return statestore.New(c.SpeckitDir())
}

// Monitor returns a completion monitor backed by this repository's marker
// directory.
func (c *Container) Monitor() *completion.Monitor {
	return completion.NewMonitor(filepath.Join(c.SpeckitDir(), "completions"))
}

// NewCoordinator builds a session coordinator for specID over the given
// DAG (already session-assigned), on baseBranch, observing tasksFile for
// completion.
func (c *Container) NewCoordinator(specID, baseBranch string, d *dag.DAG, tasksFile string, phaseTimeout time.Duration) *coordinator.Coordinator {
	return coordinator.New(coordinator.Config{
		SpecID:              specID,
		AgentType:           c.Config.Agent.Type,
		NumSessions:         c.Config.Sessions.Count,
		BaseBranch:          baseBranch,
		DAG:                 d,
		Store:               c.Store(),
		Monitor:             c.Monitor(),
		Worktrees:           c.Worktrees,
		Agent:               c.Agent,
		Logger:              c.Logger,
		Tracer:              c.Tracer,
		TasksFile:           tasksFile,
		PhaseTimeout:        phaseTimeout,
		CheckpointRetention: config.CheckpointRetention,
	})
}

// NewMergeOrchestrator builds a merge orchestrator for specID.
func (c *Container) NewMergeOrchestrator(specID string) *merge.Orchestrator {
	return merge.NewOrchestrator(specID, c.RepoRoot, c.GitMgr, c.Worktrees)
}

// Shutdown flushes the tracer provider.
func (c *Container) Shutdown(ctx context.Context) error {
	return c.Tracer.Shutdown(ctx)
}
