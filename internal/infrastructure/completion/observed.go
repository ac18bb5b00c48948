package completion

import (
	"bufio"
	"os"
	"strings"

	"github.com/dlclark/regexp2"
)

// checkboxPattern matches "- [x] [T###]" or "- [X] [T###]" anywhere at the
// start of a line (leading whitespace ignored); trailing content on the
// line is irrelevant to completion detection.
var checkboxPattern = regexp2.MustCompile(`^\s*-\s*\[[xX]\]\s*\[(?<id>[^\]]+)\]`, regexp2.None)

// ParseObservedCompletions reads path and returns the set of task
// identifiers whose checkbox line is checked. A missing or unreadable
// file is reported via the returned error; callers treat that as "no
// observed completions" rather than masking marker-based results.
func ParseObservedCompletions(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id, ok := matchCheckbox(scanner.Text())
		if ok {
			result[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// matchCheckbox reports the captured task id if line is a checked
// checkbox line. A malformed line is treated as a non-match rather than
// an error, matching spec's "individual parse failures are swallowed"
// policy for the observer.
func matchCheckbox(line string) (string, bool) {
	m, err := checkboxPattern.FindStringMatch(line)
	if err != nil || m == nil {
		return "", false
	}
	g := m.GroupByName("id")
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return strings.TrimSpace(g.String()), true
}
