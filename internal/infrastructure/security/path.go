// Package security provides path validation and sanitization for the
// filesystem operations the orchestrator performs on the caller's behalf
// (working-copy cleanup, spec-scoped directory removal).
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// PathValidator validates that a path is safe to recursively remove: it
// must resolve to somewhere under a known repository root, and must never
// be the root itself or a critical system directory.
type PathValidator struct {
	repoRoot      string
	criticalPaths []string
}

// NewPathValidator creates a path validator scoped to repoRoot. Every path
// passed to ValidateForDeletion must resolve under repoRoot.
func NewPathValidator(repoRoot string) *PathValidator {
	return &PathValidator{
		repoRoot: filepath.Clean(repoRoot),
		criticalPaths: []string{
			"/",
			"/bin",
			"/sbin",
			"/usr",
			"/etc",
			"/var",
			"/tmp",
			"/opt",
			"/lib",
			"/System",
			"/Library",
			"/Applications",
		},
	}
}

// SanitizePathForDeletion validates path is safe to delete under repoRoot.
func SanitizePathForDeletion(repoRoot, path string) error {
	return NewPathValidator(repoRoot).ValidateForDeletion(path)
}

// ValidateForDeletion validates that path is safe to recursively remove:
// absolute, no traversal, under the configured repository root, and not a
// critical system directory or the root itself.
func (v *PathValidator) ValidateForDeletion(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}

	cleanPath := filepath.Clean(path)

	if cleanPath != path && strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal components: %s", path)
	}

	homeDir, err := os.UserHomeDir()
	if err == nil && cleanPath == homeDir {
		return fmt.Errorf("cannot delete home directory")
	}

	if slices.Contains(v.criticalPaths, cleanPath) {
		return fmt.Errorf("cannot delete system directory: %s", path)
	}

	for _, critical := range v.criticalPaths {
		if strings.HasPrefix(cleanPath, critical+"/") && len(cleanPath) <= len(critical)+5 {
			return fmt.Errorf("cannot delete system directory: %s", path)
		}
	}

	if cleanPath == v.repoRoot {
		return fmt.Errorf("cannot delete repository root: %s", path)
	}

	if !strings.HasPrefix(cleanPath, v.repoRoot+string(filepath.Separator)) {
		return fmt.Errorf("path is outside the repository root %s: %s", v.repoRoot, path)
	}

	return nil
}
