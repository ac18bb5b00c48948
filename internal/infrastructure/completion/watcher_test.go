package completion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTaskFileWatcherEmitsNewlyCompleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	if err := os.WriteFile(path, []byte("- [ ] [T001] todo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewTaskFileWatcher(path, WatcherConfig{
		DebounceDuration: 10 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewTaskFileWatcher: %v", err)
	}

	newlyCh := make(chan []string, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(newly []string) {
			newlyCh <- newly
		})
	}()

	time.Sleep(30 * time.Millisecond)
	if err := os.WriteFile(path, []byte("- [x] [T001] todo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case newly := <-newlyCh:
		found := false
		for _, id := range newly {
			if id == "T001" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected T001 in newly-completed set, got %v", newly)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for completion callback")
	}

	cancel()
	<-done
}

func TestTaskFileWatcherStopsWhenFileDisappears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	if err := os.WriteFile(path, []byte("- [ ] [T001] todo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewTaskFileWatcher(path, WatcherConfig{
		DebounceDuration: 10 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewTaskFileWatcher: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(context.Background(), func(newly []string) {})
	}()

	time.Sleep(20 * time.Millisecond)
	os.Remove(path)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean nil-error termination, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not terminate after file removal")
	}
}
