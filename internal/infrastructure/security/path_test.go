package security

import "testing"

func TestValidateForDeletion(t *testing.T) {
	v := NewPathValidator("/repo")

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"under repo root", "/repo/.worktrees-042/session-0-setup", false},
		{"repo root itself", "/repo", true},
		{"outside repo root", "/other/dir", true},
		{"relative path", ".worktrees-042", true},
		{"traversal", "/repo/.worktrees-042/../../etc", true},
		{"critical system dir", "/etc", true},
		{"root", "/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateForDeletion(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateForDeletion(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizePathForDeletion(t *testing.T) {
	if err := SanitizePathForDeletion("/repo", "/repo/.worktrees-042"); err != nil {
		t.Errorf("expected path under repo root to validate, got %v", err)
	}
	if err := SanitizePathForDeletion("/repo", "/"); err == nil {
		t.Error("expected root deletion to be rejected")
	}
}
