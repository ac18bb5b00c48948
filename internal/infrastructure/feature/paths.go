// Package feature resolves the repository root, active branch, and
// per-feature document paths (spec.md, tasks.md, ...) that the
// orchestrator reads outside its own .speckit/ state directory.
package feature

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	flowerrors "github.com/speckit/flowctl/internal/domain/errors"
	"github.com/speckit/flowctl/internal/infrastructure/git"
)

// Context holds the standard paths for a feature's spec directory.
type Context struct {
	RepoRoot   string
	Branch     string
	FeatureDir string
	SpecPath   string
	PlanPath   string
	TasksPath  string
}

var numericPrefix = regexp.MustCompile(`^(\d{3})-`)

// RepoRoot returns the root of the git repository containing dir, via the
// worktree manager's `rev-parse --show-toplevel`.
func RepoRoot(wm *git.WorktreeManager, dir string) (string, error) {
	root, err := wm.GetRepositoryRoot(context.Background(), dir)
	if err != nil {
		return "", flowerrors.New(flowerrors.CodeNotInVersionedRepo,
			"not inside a version-controlled repository", flowerrors.ErrNotInVersionedRepo)
	}
	return root, nil
}

// CurrentBranch returns SPECIFY_FEATURE if set (trimmed, non-empty),
// otherwise the repository's current branch.
func CurrentBranch(wm *git.WorktreeManager, dir string) (string, error) {
	if override := strings.TrimSpace(os.Getenv("SPECIFY_FEATURE")); override != "" {
		return override, nil
	}

	branch, err := wm.GetCurrentBranch(context.Background(), dir)
	if err != nil {
		return "", flowerrors.New(flowerrors.CodeNotInVersionedRepo,
			"not inside a version-controlled repository and SPECIFY_FEATURE is not set",
			flowerrors.ErrNotInVersionedRepo)
	}
	return branch, nil
}

// FindFeatureDirByPrefix locates the feature directory under
// repoRoot/specs matching branch's numeric prefix ("004-fix-bug" matches
// "004-feature-name"), supporting multiple branches on the same spec. A
// branch without a numeric prefix resolves to the exact-name directory.
func FindFeatureDirByPrefix(repoRoot, branch string) (string, error) {
	specsDir := filepath.Join(repoRoot, "specs")

	m := numericPrefix.FindStringSubmatch(branch)
	if m == nil {
		return filepath.Join(specsDir, branch), nil
	}
	prefix := m[1]

	entries, err := os.ReadDir(specsDir)
	if err != nil {
		return "", flowerrors.New(flowerrors.CodeFeatureNotFound,
			fmt.Sprintf("no feature directory found with prefix %q in %s", prefix, specsDir),
			flowerrors.ErrFeatureNotFound)
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), prefix+"-") {
			matches = append(matches, entry.Name())
		}
	}

	switch len(matches) {
	case 0:
		return "", flowerrors.New(flowerrors.CodeFeatureNotFound,
			fmt.Sprintf("no feature directory found with prefix %q in %s", prefix, specsDir),
			flowerrors.ErrFeatureNotFound)
	case 1:
		return filepath.Join(specsDir, matches[0]), nil
	default:
		return "", flowerrors.New(flowerrors.CodeFeatureNotFound,
			fmt.Sprintf("multiple spec directories found with prefix %q: %s", prefix, strings.Join(matches, ", ")),
			nil)
	}
}

// GetFeaturePaths resolves the standard document set for branch under
// repoRoot, using prefix-based feature directory lookup.
func GetFeaturePaths(repoRoot, branch string) (*Context, error) {
	featureDir, err := FindFeatureDirByPrefix(repoRoot, branch)
	if err != nil {
		return nil, err
	}

	return &Context{
		RepoRoot:   repoRoot,
		Branch:     branch,
		FeatureDir: featureDir,
		SpecPath:   filepath.Join(featureDir, "spec.md"),
		PlanPath:   filepath.Join(featureDir, "plan.md"),
		TasksPath:  filepath.Join(featureDir, "tasks.md"),
	}, nil
}

// ObservedTasksFilePath resolves the tasks.md path the completion monitor
// should observe for the active branch, falling back to baseBranch's
// feature directory if the active branch has none (spec.md §4.E step 4).
func ObservedTasksFilePath(repoRoot, branch, baseBranch string) (string, error) {
	if ctx, err := GetFeaturePaths(repoRoot, branch); err == nil {
		return ctx.TasksPath, nil
	}

	ctx, err := GetFeaturePaths(repoRoot, baseBranch)
	if err != nil {
		return "", err
	}
	return ctx.TasksPath, nil
}
