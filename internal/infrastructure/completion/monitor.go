package completion

import (
	"context"
	"fmt"
	"sort"
	"time"

	flowerrors "github.com/speckit/flowctl/internal/domain/errors"
)

// DefaultPollInterval is the polling cadence for WaitFor.
const DefaultPollInterval = 500 * time.Millisecond

// Monitor unions the marker channel and the observation channel into a
// single completed-task query, with a blocking wait for a target set.
type Monitor struct {
	markers *MarkerStore
}

// NewMonitor returns a completion monitor backed by markers rooted at
// markerDir (typically ".speckit/completions").
func NewMonitor(markerDir string) *Monitor {
	return &Monitor{markers: NewMarkerStore(markerDir)}
}

// MarkComplete records a manual completion for task.
func (m *Monitor) MarkComplete(task string) error {
	return m.markers.MarkComplete(task)
}

// IsComplete checks only the marker channel.
func (m *Monitor) IsComplete(task string) bool {
	return m.markers.IsComplete(task)
}

// Completed returns the union of marker completions and, if tasksFile is
// non-empty, observed completions from that file. If the file is missing
// or unreadable, only the marker set is returned: observation failures
// never mask marker results.
func (m *Monitor) Completed(tasksFile string) (map[string]struct{}, error) {
	result, err := m.markers.Completed()
	if err != nil {
		return nil, err
	}

	if tasksFile == "" {
		return result, nil
	}

	observed, err := ParseObservedCompletions(tasksFile)
	if err != nil {
		return result, nil
	}
	for id := range observed {
		result[id] = struct{}{}
	}
	return result, nil
}

// WaitFor polls Completed every pollInterval until target is a subset of
// the completed set, or ctx is cancelled, or timeout elapses (timeout <= 0
// means no deadline). Returns the completed subset of target on success.
// On timeout or cancellation it returns a CodeTimeout FlowError carrying
// both the completed and still-pending subsets. An empty target returns
// immediately.
func (m *Monitor) WaitFor(ctx context.Context, target []string, tasksFile string, timeout time.Duration, pollInterval time.Duration) (map[string]struct{}, error) {
	if len(target) == 0 {
		return map[string]struct{}{}, nil
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	check := func() (map[string]struct{}, bool, error) {
		completed, err := m.Completed(tasksFile)
		if err != nil {
			return nil, false, err
		}
		done := make(map[string]struct{}, len(target))
		for _, id := range target {
			if _, ok := completed[id]; ok {
				done[id] = struct{}{}
			}
		}
		return done, len(done) == len(target), nil
	}

	if done, ok, err := check(); err != nil {
		return nil, err
	} else if ok {
		return done, nil
	}

	for {
		select {
		case <-ctx.Done():
			return m.timeoutError(target, tasksFile)
		case <-deadline:
			return m.timeoutError(target, tasksFile)
		case <-ticker.C:
			done, ok, err := check()
			if err != nil {
				return nil, err
			}
			if ok {
				return done, nil
			}
		}
	}
}

func (m *Monitor) timeoutError(target []string, tasksFile string) (map[string]struct{}, error) {
	completed, cerr := m.Completed(tasksFile)
	if cerr != nil {
		completed = map[string]struct{}{}
	}

	done := make([]string, 0, len(target))
	pending := make([]string, 0, len(target))
	for _, id := range target {
		if _, ok := completed[id]; ok {
			done = append(done, id)
		} else {
			pending = append(pending, id)
		}
	}
	sort.Strings(done)
	sort.Strings(pending)

	err := flowerrors.New(flowerrors.CodeTimeout,
		fmt.Sprintf("timed out waiting for completion: completed=%v pending=%v", done, pending),
		flowerrors.ErrTimeout)
	err = flowerrors.WithContext(err, "completed", done)
	err = flowerrors.WithContext(err, "pending", pending)
	return nil, err
}
