package errors

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrCyclicDependency", ErrCyclicDependency, "cyclic dependency detected"},
		{"ErrInvalidArgument", ErrInvalidArgument, "invalid argument"},
		{"ErrWorktreeExists", ErrWorktreeExists, "working-copy already exists"},
		{"ErrMergeConflict", ErrMergeConflict, "merge conflict"},
		{"ErrCorruptState", ErrCorruptState, "corrupt orchestration state"},
		{"ErrTimeout", ErrTimeout, "timed out waiting for completion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlowError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *FlowError
		want string
	}{
		{
			name: "with cause",
			err:  New(CodeCyclicDependency, "cycle detected", ErrCyclicDependency),
			want: "[CYCLIC_DEPENDENCY] cycle detected: cyclic dependency detected",
		},
		{
			name: "without cause",
			err:  New(CodeFeatureNotFound, "no feature directory", nil),
			want: "[FEATURE_NOT_FOUND] no feature directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlowError_Unwrap(t *testing.T) {
	cause := ErrWorktreeExists
	err := New(CodeWorktreeExists, "path exists", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestFlowError_Unwrap_Nil(t *testing.T) {
	err := New(CodeInvalidArgument, "bad input", nil)
	if unwrapped := err.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestNew(t *testing.T) {
	err := New(CodeMergeConflict, "conflict on merge", ErrMergeConflict)

	if err.Code != CodeMergeConflict {
		t.Errorf("Code = %v, want %v", err.Code, CodeMergeConflict)
	}
	if err.Message != "conflict on merge" {
		t.Errorf("Message = %v, want %v", err.Message, "conflict on merge")
	}
	if err.Cause != ErrMergeConflict {
		t.Errorf("Cause = %v, want %v", err.Cause, ErrMergeConflict)
	}
	if err.Context == nil {
		t.Error("Context should be initialized, got nil")
	}
}

func TestWithContext(t *testing.T) {
	err := New(CodeCyclicDependency, "cycle", nil)
	err = WithContext(err, "cycle", []string{"T001", "T002", "T001"})
	err = WithContext(err, "note", "")

	cycle, ok := err.Context["cycle"].([]string)
	if !ok || len(cycle) != 3 {
		t.Errorf("Context[cycle] = %v, want 3-element slice", err.Context["cycle"])
	}
	if err.Context["note"] != "" {
		t.Errorf("Context[note] = %v, want empty string", err.Context["note"])
	}
}

func TestWithContext_NilContext(t *testing.T) {
	err := &FlowError{Code: CodeInvalidArgument, Message: "test", Context: nil}

	err = WithContext(err, "key", "value")

	if err.Context == nil {
		t.Error("Context should be initialized after WithContext")
	}
	if err.Context["key"] != "value" {
		t.Errorf("Context[key] = %v, want %v", err.Context["key"], "value")
	}
}

func TestErrorsIs(t *testing.T) {
	wrapped := New(CodeWorktreeExists, "exists", ErrWorktreeExists)

	if !errors.Is(wrapped, ErrWorktreeExists) {
		t.Error("errors.Is should return true for wrapped sentinel error")
	}
	if errors.Is(wrapped, ErrMergeConflict) {
		t.Error("errors.Is should return false for different sentinel error")
	}
}

func TestErrorsAs(t *testing.T) {
	wrapped := New(CodeMergeConflict, "conflict", ErrMergeConflict)

	var flowErr *FlowError
	if !errors.As(wrapped, &flowErr) {
		t.Error("errors.As should return true for FlowError")
	}
	if flowErr.Code != CodeMergeConflict {
		t.Errorf("Code = %v, want %v", flowErr.Code, CodeMergeConflict)
	}
}

func TestIs_Wrapper(t *testing.T) {
	err := New(CodeWorktreeExists, "exists", ErrWorktreeExists)

	if !Is(err, ErrWorktreeExists) {
		t.Error("Is should return true for wrapped error")
	}
	if Is(err, ErrMergeConflict) {
		t.Error("Is should return false for non-matching error")
	}
}

func TestAs_Wrapper(t *testing.T) {
	err := New(CodeCorruptState, "bad field", nil)

	var target *FlowError
	if !As(err, &target) {
		t.Error("As should return true and set target")
	}
	if target.Code != CodeCorruptState {
		t.Errorf("target.Code = %v, want %v", target.Code, CodeCorruptState)
	}
}

func TestChainedContext(t *testing.T) {
	err := New(CodeMergeConflict, "conflict", ErrMergeConflict)
	err = WithContext(err, "session", 1)
	err = WithContext(err, "files", []string{"shared.py"})

	if len(err.Context) != 2 {
		t.Errorf("Context length = %d, want 2", len(err.Context))
	}
	if err.Context["session"] != 1 {
		t.Errorf("Context[session] = %v, want 1", err.Context["session"])
	}
}
