// Package coordinator implements the session coordinator: the use case
// that drives a parallel orchestration run from initialisation through its
// last phase, checkpointing progress after every phase so a crash never
// loses more than the in-flight phase.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/speckit/flowctl/internal/application/adapter"
	"github.com/speckit/flowctl/internal/application/worktree"
	"github.com/speckit/flowctl/internal/domain/dag"
	flowerrors "github.com/speckit/flowctl/internal/domain/errors"
	"github.com/speckit/flowctl/internal/domain/orchestration"
	"github.com/speckit/flowctl/internal/domain/task"
	"github.com/speckit/flowctl/internal/infrastructure/completion"
	"github.com/speckit/flowctl/internal/infrastructure/logging"
	"github.com/speckit/flowctl/internal/infrastructure/statestore"
	"github.com/speckit/flowctl/internal/infrastructure/tracing"
)

// Config holds everything the coordinator needs to drive one
// specification's orchestration run. DAG must already have sessions
// assigned (AssignSessions called) before it is passed in.
type Config struct {
	SpecID      string
	AgentType   string
	NumSessions int
	BaseBranch  string

	DAG       *dag.DAG
	Store     *statestore.Store
	Monitor   *completion.Monitor
	Worktrees *worktree.Manager
	Agent     adapter.Agent

	Logger *logging.Logger
	Tracer *tracing.Tracer

	// TasksFile is the path the completion monitor observes for
	// checkbox-based completion, typically the active feature's
	// tasks.md. Empty disables observed-completion and relies solely on
	// manual markers.
	TasksFile string

	// PhaseTimeout bounds how long RunPhase waits for a phase's tasks to
	// complete. Zero means no deadline.
	PhaseTimeout time.Duration

	// CheckpointRetention is the number of checkpoints CheckpointPhase
	// keeps; older ones are pruned.
	CheckpointRetention int
}

// Coordinator runs one specification's orchestration.
type Coordinator struct {
	cfg Config
}

// New returns a coordinator for cfg.
func New(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// Initialize creates one working copy per session and the initial
// orchestration state, then persists it. The task assigned to session i
// earliest in the topological order names that session's worktree
// directory; a session with no assigned tasks falls back to "session".
func (c *Coordinator) Initialize(ctx context.Context) (*orchestration.State, error) {
	if c.cfg.NumSessions < 1 {
		return nil, flowerrors.New(flowerrors.CodeInvalidArgument, "session count must be at least 1", flowerrors.ErrInvalidArgument)
	}

	phases, err := c.cfg.DAG.Phases()
	if err != nil {
		return nil, err
	}

	firstTaskName := make([]string, c.cfg.NumSessions)
	for _, generation := range phases {
		for _, id := range generation {
			t := c.cfg.DAG.GetTask(id)
			if t == nil || t.Session == nil {
				continue
			}
			if *t.Session >= 0 && *t.Session < c.cfg.NumSessions && firstTaskName[*t.Session] == "" {
				firstTaskName[*t.Session] = t.Name
			}
		}
	}

	state, err := orchestration.New(c.cfg.SpecID, c.cfg.AgentType, c.cfg.NumSessions, c.cfg.BaseBranch, time.Now())
	if err != nil {
		return nil, err
	}

	for i := 0; i < c.cfg.NumSessions; i++ {
		name := firstTaskName[i]
		if name == "" {
			name = "session"
		}
		worktreePath, err := c.cfg.Worktrees.Create(ctx, c.cfg.SpecID, i, name)
		if err != nil {
			return nil, err
		}
		state.Sessions = append(state.Sessions, orchestration.Session{
			ID:             i,
			WorktreePath:   worktreePath,
			BranchName:     orchestration.BranchName(c.cfg.SpecID, i),
			CompletedTasks: []string{},
			Status:         orchestration.SessionIdle,
		})
	}

	for _, generation := range phases {
		for _, id := range generation {
			t := c.cfg.DAG.GetTask(id)
			if t == nil {
				continue
			}
			state.Tasks[id] = orchestration.TaskState{
				Status:  task.StatusPending,
				Session: t.Session,
			}
		}
	}

	if err := c.cfg.Store.Save(state, nowFormatted); err != nil {
		return nil, err
	}

	return state, nil
}

// RunPhase executes a single phase: it sets up each phase task's session,
// notifies the agent, waits for completion, and records the outcome into
// state. It persists state once the phase's tasks are marked in progress,
// before waiting; the completed outcome is not persisted here, so call
// CheckpointPhase after a successful return to do so.
func (c *Coordinator) RunPhase(ctx context.Context, state *orchestration.State, phaseIndex int) error {
	phases, err := c.cfg.DAG.Phases()
	if err != nil {
		return err
	}
	if phaseIndex < 0 || phaseIndex >= len(phases) {
		return flowerrors.New(flowerrors.CodeInvalidArgument, fmt.Sprintf("phase index out of range: %d", phaseIndex), flowerrors.ErrInvalidArgument)
	}
	taskIDs := phases[phaseIndex]
	phaseName := orchestration.PhaseName(phaseIndex)

	ctx = logging.WithSpecID(ctx, c.cfg.SpecID)
	ctx = logging.WithPhase(ctx, phaseName)

	logging.LogPhaseStart(ctx, c.cfg.Logger, phaseName, len(taskIDs))
	phaseCtx, span := c.cfg.Tracer.StartPhaseSpan(ctx, phaseName, len(taskIDs), c.cfg.NumSessions)
	start := time.Now()

	for _, id := range taskIDs {
		t := c.cfg.DAG.GetTask(id)
		if t == nil || t.Session == nil {
			continue
		}
		session := *t.Session
		sess := state.SessionByID(session)
		if sess == nil {
			continue
		}

		if err := c.cfg.Agent.SetupSession(sess.WorktreePath, *t); err != nil {
			span.EndWithError(err)
			return err
		}

		taskID := id
		sess.CurrentTask = &taskID
		sess.Status = orchestration.SessionExecuting
		now := orchestration.FormatTime(time.Now())
		state.Tasks[id] = orchestration.TaskState{Status: task.StatusInProgress, Session: &session, StartedAt: &now}

		notifyErr := c.cfg.Agent.NotifyUser(session, sess.WorktreePath, *t)
		logging.LogSessionNotify(phaseCtx, c.cfg.Logger, session, id, notifyErr)
	}

	state.Touch(time.Now())
	if err := c.cfg.Store.Save(state, nowFormatted); err != nil {
		span.EndWithError(err)
		return err
	}

	completed, waitErr := c.cfg.Monitor.WaitFor(ctx, taskIDs, c.cfg.TasksFile, c.cfg.PhaseTimeout, completion.DefaultPollInterval)
	if waitErr != nil {
		var pending []string
		for _, id := range taskIDs {
			if _, ok := completed[id]; !ok {
				pending = append(pending, id)
			}
		}
		logging.LogPhaseTimeout(phaseCtx, c.cfg.Logger, phaseName, pending)
		span.EndWithError(waitErr)
		return waitErr
	}

	for id := range completed {
		t := c.cfg.DAG.GetTask(id)
		if t == nil || t.Session == nil {
			continue
		}
		session := *t.Session
		now := orchestration.FormatTime(time.Now())
		ts := state.Tasks[id]
		ts.Status = task.StatusCompleted
		ts.Session = &session
		ts.CompletedAt = &now
		state.Tasks[id] = ts

		if sess := state.SessionByID(session); sess != nil {
			sess.CompletedTasks = append(sess.CompletedTasks, id)
			sess.CurrentTask = nil
			sess.Status = orchestration.SessionIdle
		}
	}

	span.SetCompletedTasks(len(completed))
	span.End()
	logging.LogPhaseComplete(phaseCtx, c.cfg.Logger, phaseName, time.Since(start))

	return nil
}

// CheckpointPhase records phaseIndex as completed, advances CurrentPhase to
// the next one, persists live state, writes a checkpoint snapshot, and
// prunes old checkpoints beyond the configured retention.
func (c *Coordinator) CheckpointPhase(ctx context.Context, state *orchestration.State, phaseIndex int) error {
	phaseName := orchestration.PhaseName(phaseIndex)
	state.PhasesCompleted = append(state.PhasesCompleted, phaseName)
	state.CurrentPhase = orchestration.PhaseName(phaseIndex + 1)
	state.Touch(time.Now())

	if err := c.cfg.Store.Save(state, nowFormatted); err != nil {
		return err
	}

	path, err := c.cfg.Store.Checkpoint(state, time.Now())
	if err != nil {
		return err
	}
	logging.LogCheckpointWritten(ctx, c.cfg.Logger, path)

	retention := c.cfg.CheckpointRetention
	if retention > 0 {
		if _, err := c.cfg.Store.CleanupOld(retention); err != nil {
			return err
		}
	}

	return nil
}

// Run executes every remaining phase of the orchestration, resuming from
// the state document's recorded progress. A cancellation of ctx seen
// between phases stops the loop before the next phase starts and Run
// returns nil; a cancellation during a phase's completion wait ends that
// wait, and Run returns the wait's CodeTimeout error. Either way the state
// saved so far leaves the run resumable from the next Run call.
func (c *Coordinator) Run(ctx context.Context) error {
	state, err := c.cfg.Store.Load()
	if err != nil {
		return err
	}

	resumeIdx, err := state.ResumePhaseIndex()
	if err != nil {
		return err
	}

	phases, err := c.cfg.DAG.Phases()
	if err != nil {
		return err
	}

	runCtx := logging.WithSpecID(ctx, c.cfg.SpecID)
	runCtx, runSpan := c.cfg.Tracer.StartRunSpan(runCtx, c.cfg.SpecID, c.cfg.NumSessions)
	runSpan.SetPhaseCount(len(phases))

	interrupted := false
	for k := resumeIdx; k < len(phases); k++ {
		select {
		case <-ctx.Done():
			logging.LogInterrupted(runCtx, c.cfg.Logger, orchestration.PhaseName(k))
			interrupted = true
		default:
		}
		if interrupted {
			break
		}

		state.CurrentPhase = orchestration.PhaseName(k)
		if err := c.RunPhase(runCtx, state, k); err != nil {
			runSpan.SetInterrupted(false)
			runSpan.EndWithError(err)
			return err
		}
		if err := c.CheckpointPhase(runCtx, state, k); err != nil {
			runSpan.SetInterrupted(false)
			runSpan.EndWithError(err)
			return err
		}
	}

	if !interrupted {
		for i := range state.Sessions {
			state.Sessions[i].CurrentTask = nil
			state.Sessions[i].Status = orchestration.SessionCompleted
		}
		if len(phases) > 0 {
			state.CurrentPhase = orchestration.PhaseName(len(phases) - 1)
		}
		state.Touch(time.Now())

		if err := c.cfg.Store.Save(state, nowFormatted); err != nil {
			runSpan.SetInterrupted(false)
			runSpan.EndWithError(err)
			return err
		}
		path, err := c.cfg.Store.Checkpoint(state, time.Now())
		if err != nil {
			runSpan.SetInterrupted(false)
			runSpan.EndWithError(err)
			return err
		}
		logging.LogCheckpointWritten(runCtx, c.cfg.Logger, path)
	}

	runSpan.SetInterrupted(interrupted)
	runSpan.End()
	return nil
}

// Abort tears down a specification's orchestration: every session worktree
// is force-removed and the live state document is deleted. Checkpoints are
// left in place for forensic inspection.
func (c *Coordinator) Abort(ctx context.Context) error {
	if _, err := c.cfg.Worktrees.CleanupSpec(ctx, c.cfg.SpecID); err != nil {
		return err
	}
	return c.cfg.Store.Delete()
}

func nowFormatted() string {
	return orchestration.FormatTime(time.Now())
}
