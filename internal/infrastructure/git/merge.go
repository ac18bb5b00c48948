package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ChangeKind classifies a path changed between two refs.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "A"
	ChangeModified ChangeKind = "M"
	ChangeDeleted  ChangeKind = "D"
)

// Change is one path touched between two refs.
type Change struct {
	Path string
	Kind ChangeKind
}

// CheckoutNewFromBase creates and checks out a new branch from base.
func (wm *WorktreeManager) CheckoutNewFromBase(ctx context.Context, repoPath, branch, base string) error {
	cmd := exec.CommandContext(ctx, wm.gitPath, "checkout", "-b", branch, base)
	cmd.Dir = repoPath

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to create branch %s from %s: %s: %w", branch, base, stderr.String(), err)
	}
	return nil
}

// Checkout switches to an existing branch.
func (wm *WorktreeManager) Checkout(ctx context.Context, repoPath, branch string) error {
	cmd := exec.CommandContext(ctx, wm.gitPath, "checkout", branch)
	cmd.Dir = repoPath

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to checkout %s: %s: %w", branch, stderr.String(), err)
	}
	return nil
}

// RevParseVerify reports whether name resolves to a valid revision.
func (wm *WorktreeManager) RevParseVerify(ctx context.Context, repoPath, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, wm.gitPath, "rev-parse", "--verify", name)
	cmd.Dir = repoPath

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() != 0 {
			return false, nil
		}
		return false, fmt.Errorf("failed to verify revision %s: %w", name, err)
	}
	return true, nil
}

// BranchList lists local branch names matching glob (e.g. "impl-042-session-*").
func (wm *WorktreeManager) BranchList(ctx context.Context, repoPath, glob string) ([]string, error) {
	cmd := exec.CommandContext(ctx, wm.gitPath, "branch", "--list", glob)
	cmd.Dir = repoPath

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to list branches matching %s: %w", glob, err)
	}

	var branches []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "* "))
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// DeleteBranch force-deletes a local branch.
func (wm *WorktreeManager) DeleteBranch(ctx context.Context, repoPath, branch string) error {
	cmd := exec.CommandContext(ctx, wm.gitPath, "branch", "-D", branch)
	cmd.Dir = repoPath

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to delete branch %s: %s: %w", branch, stderr.String(), err)
	}
	return nil
}

// MergeNoFF merges branch into the current checked-out branch with
// --no-ff, recording msg as the merge commit message.
func (wm *WorktreeManager) MergeNoFF(ctx context.Context, repoPath, branch, msg string) error {
	cmd := exec.CommandContext(ctx, wm.gitPath, "merge", "--no-ff", "-m", msg, branch)
	cmd.Dir = repoPath

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("merge of %s failed: %s: %w", branch, stderr.String(), err)
	}
	return nil
}

// MergeAbort aborts an in-progress merge.
func (wm *WorktreeManager) MergeAbort(ctx context.Context, repoPath string) error {
	cmd := exec.CommandContext(ctx, wm.gitPath, "merge", "--abort")
	cmd.Dir = repoPath

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("merge --abort failed: %s: %w", stderr.String(), err)
	}
	return nil
}

// MergeBase returns the merge base commit of a and b.
func (wm *WorktreeManager) MergeBase(ctx context.Context, repoPath, a, b string) (string, error) {
	cmd := exec.CommandContext(ctx, wm.gitPath, "merge-base", a, b)
	cmd.Dir = repoPath

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to compute merge base of %s and %s: %w", a, b, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// DiffNameStatus diffs a...b and classifies each changed path. Renames
// (status starting with R) are reported as modifications of the new path.
func (wm *WorktreeManager) DiffNameStatus(ctx context.Context, repoPath, a, b string) ([]Change, error) {
	cmd := exec.CommandContext(ctx, wm.gitPath, "diff", "--name-status", a+"..."+b)
	cmd.Dir = repoPath

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to diff %s...%s: %w", a, b, err)
	}

	var changes []Change
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		status := fields[0]
		path := fields[len(fields)-1]

		switch {
		case status == "A":
			changes = append(changes, Change{Path: path, Kind: ChangeAdded})
		case status == "D":
			changes = append(changes, Change{Path: path, Kind: ChangeDeleted})
		case strings.HasPrefix(status, "R"):
			changes = append(changes, Change{Path: path, Kind: ChangeModified})
		default:
			changes = append(changes, Change{Path: path, Kind: ChangeModified})
		}
	}
	return changes, nil
}

// DiffNameOnlyConflicts lists paths with unresolved merge conflicts.
func (wm *WorktreeManager) DiffNameOnlyConflicts(ctx context.Context, repoPath string) ([]string, error) {
	cmd := exec.CommandContext(ctx, wm.gitPath, "diff", "--name-only", "--diff-filter=U")
	cmd.Dir = repoPath

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to list conflicting paths: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// DiffShortstat returns the raw "N files changed, M insertions(+), K deletions(-)" summary between a and b.
func (wm *WorktreeManager) DiffShortstat(ctx context.Context, repoPath, a, b string) (string, error) {
	cmd := exec.CommandContext(ctx, wm.gitPath, "diff", "--shortstat", a, b)
	cmd.Dir = repoPath

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to compute shortstat between %s and %s: %w", a, b, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
