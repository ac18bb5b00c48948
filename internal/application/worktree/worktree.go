// Package worktree manages the per-session git working copies a running
// orchestration creates, one per session, isolated under a
// spec-scoped directory so concurrent sessions never collide.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	flowerrors "github.com/speckit/flowctl/internal/domain/errors"
	"github.com/speckit/flowctl/internal/domain/orchestration"
	"github.com/speckit/flowctl/internal/infrastructure/git"
	"github.com/speckit/flowctl/internal/infrastructure/logging"
	"github.com/speckit/flowctl/internal/infrastructure/security"
)

// MaxTaskNameLength bounds the slug component of a worktree's directory
// name so long task names don't produce unwieldy paths.
const MaxTaskNameLength = 50

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases name, collapses runs of non-alphanumeric characters to a
// single hyphen, trims leading/trailing hyphens, and truncates to
// MaxTaskNameLength (re-trimming any hyphen exposed by truncation). An
// input that slugs to the empty string becomes "task".
func Slug(name string) string {
	s := strings.ToLower(name)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxTaskNameLength {
		s = s[:MaxTaskNameLength]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "task"
	}
	return s
}

// Manager creates, lists, and removes the working copies for one
// specification's sessions.
type Manager struct {
	repoRoot string
	wm       *git.WorktreeManager
}

// NewManager returns a working-copy manager rooted at repoRoot.
func NewManager(repoRoot string, wm *git.WorktreeManager) *Manager {
	return &Manager{repoRoot: repoRoot, wm: wm}
}

// Info mirrors git.WorktreeInfo for the application layer.
type Info = git.WorktreeInfo

// specDir returns the directory holding every worktree for specID.
func (m *Manager) specDir(specID string) string {
	return filepath.Join(m.repoRoot, fmt.Sprintf(".worktrees-%s", specID))
}

// path returns the worktree path for a session given its sanitised task slug.
func (m *Manager) path(specID string, sessionID int, slug string) string {
	return filepath.Join(m.specDir(specID), fmt.Sprintf("session-%d-%s", sessionID, slug))
}

// Create makes a new worktree for sessionID, on a new branch named
// orchestration.BranchName(specID, sessionID), checked out from the
// repository's current HEAD. Fails loudly, with a distinct message and
// CodeWorktreeExists, for each of the two ways a create can already be
// taken: the worktree directory already exists, or the branch already
// exists (which `git worktree add -b` refuses). The directory case is
// checked proactively; the branch case is detected from git's stderr.
func (m *Manager) Create(ctx context.Context, specID string, sessionID int, taskName string) (string, error) {
	slug := Slug(taskName)
	worktreePath := m.path(specID, sessionID, slug)
	branch := orchestration.BranchName(specID, sessionID)

	if _, err := os.Stat(worktreePath); err == nil {
		return "", flowerrors.WithContext(
			flowerrors.New(flowerrors.CodeWorktreeExists,
				fmt.Sprintf("worktree directory already exists: %s (remove it, or resume the existing session)", worktreePath),
				flowerrors.ErrWorktreeExists),
			"worktree_path", worktreePath,
		)
	}

	if err := os.MkdirAll(m.specDir(specID), 0o755); err != nil {
		return "", err
	}

	if err := m.wm.CreateWithRetry(ctx, m.repoRoot, worktreePath, branch, true); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return "", flowerrors.WithContext(
				flowerrors.New(flowerrors.CodeWorktreeExists,
					fmt.Sprintf("branch %s already exists: delete it with 'git branch -D %s' to start fresh, or create the worktree without -b to resume", branch, branch),
					flowerrors.ErrWorktreeExists),
				"branch", branch,
			)
		}
		return "", err
	}

	return worktreePath, nil
}

// List returns every worktree known to the repository, delegating to git
// and returning an empty list (rather than an error) on any git-level
// failure, since this is typically used for best-effort reporting.
func (m *Manager) List(ctx context.Context) []Info {
	infos, err := m.wm.List(ctx, m.repoRoot)
	if err != nil {
		return nil
	}
	return infos
}

// SpecWorktrees returns the worktrees whose path falls under specID's
// worktree directory.
func (m *Manager) SpecWorktrees(ctx context.Context, specID string) []Info {
	prefix := m.specDir(specID)
	absPrefix, err := filepath.Abs(prefix)
	if err != nil {
		return nil
	}

	var result []Info
	for _, info := range m.List(ctx) {
		absPath, err := filepath.Abs(info.Path)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absPrefix, absPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		result = append(result, info)
	}
	return result
}

// Remove removes a clean worktree.
func (m *Manager) Remove(ctx context.Context, worktreePath string) error {
	return m.wm.Remove(ctx, m.repoRoot, worktreePath, false)
}

// RemoveForce removes a worktree regardless of uncommitted changes.
func (m *Manager) RemoveForce(ctx context.Context, worktreePath string) error {
	return m.wm.Remove(ctx, m.repoRoot, worktreePath, true)
}

// sessionIDPattern extracts the session index from a "session-{i}-..."
// worktree directory basename.
var sessionIDPattern = regexp.MustCompile(`^session-(\d+)-`)

// CleanupSpec force-removes every worktree under specID's directory,
// logging and continuing past individual removal failures, then removes
// the now-empty parent directory. If the parent still has content after
// every worktree removal attempt (e.g. a leftover lock file), it is
// removed recursively; if that also fails, the directory is left behind
// since the worktrees themselves — the part that matters — are gone.
// Returns the number of worktrees removed.
func (m *Manager) CleanupSpec(ctx context.Context, specID string) (int, error) {
	removed := 0
	for _, info := range m.SpecWorktrees(ctx, specID) {
		if err := m.RemoveForce(ctx, info.Path); err != nil {
			logging.Default().Warn("worktree removal failed", "path", info.Path, "error", err.Error())
			continue
		}
		removed++
	}

	dir := m.specDir(specID)
	if err := os.Remove(dir); err == nil {
		return removed, nil
	}
	if err := security.SanitizePathForDeletion(m.repoRoot, dir); err == nil {
		_ = os.RemoveAll(dir)
	}
	return removed, nil
}

// ParseSessionID extracts the session index from a worktree directory
// basename of the form "session-{i}-{slug}", or false if it doesn't match.
func ParseSessionID(dirName string) (int, bool) {
	m := sessionIDPattern.FindStringSubmatch(dirName)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
