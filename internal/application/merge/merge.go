// Package merge implements the sequential session-branch merge
// sub-operation: analyse for cross-session file overlap, merge each
// session's branch into a fresh integration line in deterministic order,
// stop at the first conflict, optionally validate, and finalise.
package merge

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	flowerrors "github.com/speckit/flowctl/internal/domain/errors"
	"github.com/speckit/flowctl/internal/infrastructure/git"
)

// SessionChanges is one session branch's file-level diff against the base.
type SessionChanges struct {
	SessionID    int
	BranchName   string
	AddedFiles   []string
	ModifiedFiles []string
	DeletedFiles []string
}

// AllChangedFiles returns the union of added, modified, and deleted files.
func (c SessionChanges) AllChangedFiles() []string {
	seen := make(map[string]struct{})
	var all []string
	for _, group := range [][]string{c.AddedFiles, c.ModifiedFiles, c.DeletedFiles} {
		for _, f := range group {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				all = append(all, f)
			}
		}
	}
	sort.Strings(all)
	return all
}

// Analysis is the pre-merge report: each session's changes and the set of
// files more than one session touched.
type Analysis struct {
	BaseBranch       string
	SessionChanges   []SessionChanges
	OverlappingFiles map[string][]int
}

// SafeToMerge reports whether no file was touched by more than one session.
func (a *Analysis) SafeToMerge() bool {
	return len(a.OverlappingFiles) == 0
}

// TotalFilesChanged is the size of the union of every session's changed
// files.
func (a *Analysis) TotalFilesChanged() int {
	seen := make(map[string]struct{})
	for _, sc := range a.SessionChanges {
		for _, f := range sc.AllChangedFiles() {
			seen[f] = struct{}{}
		}
	}
	return len(seen)
}

// Result is the outcome of the sequential merge attempt.
type Result struct {
	Success           bool
	IntegrationBranch string
	MergedSessions    []int
	ConflictSession   *int
	ConflictingFiles  []string
	ErrorMessage      string
}

// Summary is the post-merge statistics finalize returns.
type Summary struct {
	WorktreesRemoved int
	FilesChanged     int
	LinesAdded       int
	LinesDeleted     int
	IntegrationBranch string
}

// Cleaner removes a specification's working copies; satisfied by
// worktree.Manager.CleanupSpec.
type Cleaner interface {
	CleanupSpec(ctx context.Context, specID string) (int, error)
}

// Orchestrator runs the merge sub-operation for one specification.
type Orchestrator struct {
	specID   string
	repoRoot string
	wm       *git.WorktreeManager
	cleaner  Cleaner

	// resolvedBase is the base branch Analyze/MergeSequential last resolved,
	// cached so Finalize can diff against it even after MergeSequential has
	// left the working tree checked out onto the integration branch.
	resolvedBase string
}

// NewOrchestrator returns a merge orchestrator for specID, rooted at
// repoRoot. cleaner may be nil if Finalize is never called with
// keepWorktrees=false.
func NewOrchestrator(specID, repoRoot string, wm *git.WorktreeManager, cleaner Cleaner) *Orchestrator {
	return &Orchestrator{specID: specID, repoRoot: repoRoot, wm: wm, cleaner: cleaner}
}

var sessionBranchPattern = regexp.MustCompile(`^impl-(.+)-session-(\d+)$`)

// findSessionBranches lists the spec's session branches, sorted by session
// ID. Branch names whose suffix isn't a plain integer are silently
// skipped. Returns a FlowError if none are found.
func (o *Orchestrator) findSessionBranches(ctx context.Context) ([]SessionChanges, error) {
	glob := fmt.Sprintf("impl-%s-session-*", o.specID)
	branches, err := o.wm.BranchList(ctx, o.repoRoot, glob)
	if err != nil {
		return nil, err
	}

	type pair struct {
		id     int
		branch string
	}
	var pairs []pair
	for _, b := range branches {
		m := sessionBranchPattern.FindStringSubmatch(b)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		pairs = append(pairs, pair{id: id, branch: b})
	}

	if len(pairs) == 0 {
		return nil, flowerrors.New(flowerrors.CodeFatal,
			fmt.Sprintf("no session branches found for spec %s", o.specID), nil)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	result := make([]SessionChanges, len(pairs))
	for i, p := range pairs {
		result[i] = SessionChanges{SessionID: p.id, BranchName: p.branch}
	}
	return result, nil
}

func (o *Orchestrator) branchChanges(ctx context.Context, base string, sc SessionChanges) (SessionChanges, error) {
	changes, err := o.wm.DiffNameStatus(ctx, o.repoRoot, base, sc.BranchName)
	if err != nil {
		return sc, err
	}
	for _, c := range changes {
		switch c.Kind {
		case git.ChangeAdded:
			sc.AddedFiles = append(sc.AddedFiles, c.Path)
		case git.ChangeDeleted:
			sc.DeletedFiles = append(sc.DeletedFiles, c.Path)
		default:
			sc.ModifiedFiles = append(sc.ModifiedFiles, c.Path)
		}
	}
	return sc, nil
}

func detectOverlaps(sessions []SessionChanges) map[string][]int {
	byFile := make(map[string][]int)
	for _, sc := range sessions {
		for _, f := range sc.AllChangedFiles() {
			byFile[f] = append(byFile[f], sc.SessionID)
		}
	}
	overlap := make(map[string][]int)
	for f, ids := range byFile {
		if len(ids) > 1 {
			sort.Ints(ids)
			overlap[f] = ids
		}
	}
	return overlap
}

// Analyze diffs every session branch against baseBranch (defaulting to the
// repository's current branch) and reports any cross-session file overlap.
func (o *Orchestrator) Analyze(ctx context.Context, baseBranch string) (*Analysis, error) {
	base, err := o.resolveBase(ctx, baseBranch)
	if err != nil {
		return nil, err
	}

	sessions, err := o.findSessionBranches(ctx)
	if err != nil {
		return nil, err
	}

	for i, sc := range sessions {
		sessions[i], err = o.branchChanges(ctx, base, sc)
		if err != nil {
			return nil, err
		}
	}

	return &Analysis{
		BaseBranch:       base,
		SessionChanges:   sessions,
		OverlappingFiles: detectOverlaps(sessions),
	}, nil
}

func (o *Orchestrator) resolveBase(ctx context.Context, baseBranch string) (string, error) {
	base := baseBranch
	if base == "" {
		branch, err := o.wm.GetCurrentBranch(ctx, o.repoRoot)
		if err != nil || branch == "" {
			base = "main"
		} else {
			base = branch
		}
	}
	o.resolvedBase = base
	return base, nil
}

// IntegrationBranch is the name of the per-spec merge target branch.
func (o *Orchestrator) IntegrationBranch() string {
	return fmt.Sprintf("impl-%s-integrated", o.specID)
}

// MergeSequential merges every session branch into a fresh integration
// branch, in ascending session-ID order, stopping at the first conflict.
// On conflict, or on any other merge failure, the in-progress merge is
// aborted, the working tree returns to baseBranch, and the integration
// branch is deleted before returning.
func (o *Orchestrator) MergeSequential(ctx context.Context, baseBranch string) (*Result, error) {
	base, err := o.resolveBase(ctx, baseBranch)
	if err != nil {
		return nil, err
	}

	sessions, err := o.findSessionBranches(ctx)
	if err != nil {
		return nil, err
	}

	integrationBranch := o.IntegrationBranch()
	exists, err := o.wm.RevParseVerify(ctx, o.repoRoot, integrationBranch)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, flowerrors.WithContext(
			flowerrors.New(flowerrors.CodeIntegrationBranchExists,
				fmt.Sprintf("integration branch already exists: %s", integrationBranch),
				flowerrors.ErrIntegrationBranchExists),
			"branch", integrationBranch,
		)
	}

	if err := o.wm.CheckoutNewFromBase(ctx, o.repoRoot, integrationBranch, base); err != nil {
		return nil, err
	}

	abortAndCleanup := func() {
		_ = o.wm.MergeAbort(ctx, o.repoRoot)
		_ = o.wm.Checkout(ctx, o.repoRoot, base)
		_ = o.wm.DeleteBranch(ctx, o.repoRoot, integrationBranch)
	}

	var merged []int
	for _, sc := range sessions {
		msg := fmt.Sprintf("Merge session %d (%s)", sc.SessionID, sc.BranchName)
		if err := o.wm.MergeNoFF(ctx, o.repoRoot, sc.BranchName, msg); err != nil {
			conflicting, _ := o.wm.DiffNameOnlyConflicts(ctx, o.repoRoot)
			if len(conflicting) == 0 {
				abortAndCleanup()
				return nil, err
			}
			abortAndCleanup()
			sid := sc.SessionID
			return &Result{
				Success:           false,
				IntegrationBranch: integrationBranch,
				MergedSessions:    merged,
				ConflictSession:   &sid,
				ConflictingFiles:  conflicting,
				ErrorMessage:      fmt.Sprintf("merge conflict on session %d (%s)", sc.SessionID, sc.BranchName),
			}, nil
		}
		merged = append(merged, sc.SessionID)
	}

	return &Result{
		Success:           true,
		IntegrationBranch: integrationBranch,
		MergedSessions:    merged,
	}, nil
}

// Validate checks out the integration branch and runs testCmd, returning
// its pass/fail status and combined output. An empty testCmd skips
// validation entirely and returns (true, "skipped").
func (o *Orchestrator) Validate(ctx context.Context, testCmd string) (bool, string) {
	if strings.TrimSpace(testCmd) == "" {
		return true, "skipped"
	}

	if err := o.wm.Checkout(ctx, o.repoRoot, o.IntegrationBranch()); err != nil {
		return false, err.Error()
	}

	ok, output, err := runShell(ctx, o.repoRoot, testCmd)
	if err != nil {
		return false, err.Error()
	}
	return ok, output
}

var shortstatPattern = regexp.MustCompile(`(\d+) files? changed(?:, (\d+) insertions?\(\+\))?(?:, (\d+) deletions?\(-\))?`)

// Finalize computes merge statistics (files/lines changed relative to the
// base branch Analyze/MergeSequential resolved, via its merge-base with the
// integration branch) and, unless keepWorktrees is set, cleans up every
// working copy for the spec. Every statistic defaults to zero on any
// git-level failure computing it.
//
// Finalize must use the base resolved before MergeSequential ran, not the
// repository's current branch: a successful MergeSequential leaves the
// working tree checked out onto the integration branch itself, so asking
// for "the current branch" at this point would diff the integration branch
// against its own tip.
func (o *Orchestrator) Finalize(ctx context.Context, keepWorktrees bool) (*Summary, error) {
	integrationBranch := o.IntegrationBranch()

	base := o.resolvedBase
	if base == "" {
		var err error
		base, err = o.wm.GetCurrentBranch(ctx, o.repoRoot)
		if err != nil || base == "" {
			base = integrationBranch
		}
	}

	mergeBase, err := o.wm.MergeBase(ctx, o.repoRoot, base, integrationBranch)
	if err != nil || mergeBase == "" {
		mergeBase = base
	}

	summary := &Summary{IntegrationBranch: integrationBranch}

	shortstat, err := o.wm.DiffShortstat(ctx, o.repoRoot, mergeBase, integrationBranch)
	if err == nil {
		if m := shortstatPattern.FindStringSubmatch(shortstat); m != nil {
			summary.FilesChanged = atoiOrZero(m[1])
			summary.LinesAdded = atoiOrZero(m[2])
			summary.LinesDeleted = atoiOrZero(m[3])
		}
	}

	if !keepWorktrees && o.cleaner != nil {
		removed, err := o.cleaner.CleanupSpec(ctx, o.specID)
		if err == nil {
			summary.WorktreesRemoved = removed
		}
	}

	return summary, nil
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
