// Package dag builds the dependency graph over a task list: cycle
// detection, topological phases, critical path, and session assignment.
package dag

import (
	"fmt"
	"sort"
	"time"

	"github.com/speckit/flowctl/internal/domain/errors"
	"github.com/speckit/flowctl/internal/domain/task"
)

// DocumentVersion is the schema version written into serialised DAG documents.
const DocumentVersion = "1.0"

// node wraps a task with graph metadata.
type node struct {
	Task     task.Task
	InDegree int
	OutEdges []string // task IDs that depend on this task
}

// DAG is a directed acyclic graph over a task list, keyed by task ID.
type DAG struct {
	nodes map[string]*node
	ids   []string // insertion order, for stable iteration
}

// Build constructs a DAG from an ordered list of tasks. For each declared
// dependency of task v it adds edge u -> v. Construction fails loudly on a
// missing dependency or a cycle; the cycle is reported as a closed sequence
// of identifiers suitable for direct display.
func Build(tasks []task.Task) (*DAG, error) {
	d := &DAG{nodes: make(map[string]*node, len(tasks))}

	for _, t := range tasks {
		if _, exists := d.nodes[t.ID]; exists {
			return nil, errors.WithContext(
				errors.New(errors.CodeInvalidTaskFormat, "duplicate task identifier", errors.ErrInvalidTaskFormat),
				"task_id", t.ID,
			)
		}
		d.nodes[t.ID] = &node{Task: t.Clone(), InDegree: 0, OutEdges: make([]string, 0)}
		d.ids = append(d.ids, t.ID)
	}

	for _, t := range tasks {
		for _, depID := range t.Dependencies {
			dep, exists := d.nodes[depID]
			if !exists {
				return nil, errors.WithContext(
					errors.WithContext(
						errors.New(errors.CodeInvalidTaskFormat, "dependency not found", errors.ErrInvalidTaskFormat),
						"task_id", t.ID,
					),
					"dependency_id", depID,
				)
			}
			dep.OutEdges = append(dep.OutEdges, t.ID)
			d.nodes[t.ID].InDegree++
		}
	}

	if cycle := d.findCycle(); cycle != nil {
		return nil, errors.WithContext(
			errors.New(errors.CodeCyclicDependency, formatCycle(cycle), errors.ErrCyclicDependency),
			"cycle", cycle,
		)
	}

	return d, nil
}

func formatCycle(cycle []string) string {
	s := "["
	for i, id := range cycle {
		if i > 0 {
			s += ", "
		}
		s += id
	}
	return s + "]"
}

// Validate re-runs acyclicity checking against the current graph.
func (d *DAG) Validate() error {
	if cycle := d.findCycle(); cycle != nil {
		return errors.WithContext(
			errors.New(errors.CodeCyclicDependency, formatCycle(cycle), errors.ErrCyclicDependency),
			"cycle", cycle,
		)
	}
	return nil
}

// findCycle runs DFS from every node and returns the first cycle found as a
// closed sequence [a, b, ..., a], or nil if the graph is acyclic.
func (d *DAG) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.nodes))
	var path []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		path = append(path, id)

		for _, next := range d.nodes[id].OutEdges {
			switch color[next] {
			case gray:
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle = append(append([]string(nil), path[start:]...), next)
				return true
			case white:
				if dfs(next) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	ids := append([]string(nil), d.ids...)
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			if dfs(id) {
				return cycle
			}
		}
	}
	return nil
}

// Phases returns the topological generations of the graph, each sorted
// lexically by task identifier. Empty input yields an empty list.
func (d *DAG) Phases() ([][]string, error) {
	if len(d.nodes) == 0 {
		return [][]string{}, nil
	}

	inDegree := make(map[string]int, len(d.nodes))
	for id, n := range d.nodes {
		inDegree[id] = n.InDegree
	}

	phases := make([][]string, 0)
	remaining := len(d.nodes)

	for remaining > 0 {
		generation := make([]string, 0)
		for id, deg := range inDegree {
			if deg == 0 {
				generation = append(generation, id)
			}
		}
		if len(generation) == 0 {
			return nil, errors.New(errors.CodeCyclicDependency, "cycle detected while computing phases", errors.ErrCyclicDependency)
		}
		sort.Strings(generation)

		for _, id := range generation {
			inDegree[id] = -1
			remaining--
			for _, dependent := range d.nodes[id].OutEdges {
				if inDegree[dependent] > 0 {
					inDegree[dependent]--
				}
			}
		}

		phases = append(phases, generation)
	}

	return phases, nil
}

// CriticalPath returns the longest path in the graph (unit edge weights) as
// an ordered sequence of task identifiers. On a disconnected graph it
// returns the longest path across all components.
func (d *DAG) CriticalPath() ([]string, error) {
	phases, err := d.Phases()
	if err != nil {
		return nil, err
	}

	longest := make(map[string]int, len(d.nodes))
	predecessor := make(map[string]string, len(d.nodes))

	for _, generation := range phases {
		for _, id := range generation {
			best := 0
			bestPred := ""
			for _, depID := range d.nodes[id].Task.Dependencies {
				if longest[depID]+1 > best {
					best = longest[depID] + 1
					bestPred = depID
				}
			}
			longest[id] = best
			if bestPred != "" {
				predecessor[id] = bestPred
			}
		}
	}

	end := ""
	best := -1
	ids := append([]string(nil), d.ids...)
	sort.Strings(ids)
	for _, id := range ids {
		if longest[id] > best {
			best = longest[id]
			end = id
		}
	}
	if end == "" {
		return nil, nil
	}

	path := []string{end}
	for {
		pred, ok := predecessor[path[0]]
		if !ok {
			break
		}
		path = append([]string{pred}, path...)
	}
	return path, nil
}

// AssignSessions distributes tasks across sessionCount sessions. Within a
// phase that has a single task, or any non-parallelisable task, every task
// goes to session 0; otherwise tasks are distributed round-robin over
// 0..sessionCount-1 in lexical identifier order. Mutates the graph's tasks.
func (d *DAG) AssignSessions(sessionCount int) error {
	if sessionCount < 1 {
		return errors.New(errors.CodeInvalidArgument, "session count must be at least 1", errors.ErrInvalidArgument)
	}

	phases, err := d.Phases()
	if err != nil {
		return err
	}

	for _, generation := range phases {
		sequential := len(generation) == 1
		if !sequential {
			for _, id := range generation {
				if !d.nodes[id].Task.Parallelizable {
					sequential = true
					break
				}
			}
		}

		for i, id := range generation {
			session := 0
			if !sequential {
				session = i % sessionCount
			}
			s := session
			d.nodes[id].Task.Session = &s
		}
	}

	return nil
}

// SessionTasks returns the identifiers of tasks assigned to session, in
// topological order (dependencies first).
func (d *DAG) SessionTasks(session int) ([]string, error) {
	phases, err := d.Phases()
	if err != nil {
		return nil, err
	}

	result := make([]string, 0)
	for _, generation := range phases {
		for _, id := range generation {
			n := d.nodes[id]
			if n.Task.Session != nil && *n.Task.Session == session {
				result = append(result, id)
			}
		}
	}
	return result, nil
}

// GetDependencies returns the task identifiers that the given task depends
// on. Returns nil if the task doesn't exist or has no dependencies.
func (d *DAG) GetDependencies(id string) []string {
	n, exists := d.nodes[id]
	if !exists || len(n.Task.Dependencies) == 0 {
		return nil
	}
	deps := make([]string, len(n.Task.Dependencies))
	copy(deps, n.Task.Dependencies)
	return deps
}

// GetDependents returns the task identifiers that depend on the given task.
// Returns nil if the task doesn't exist or has no dependents.
func (d *DAG) GetDependents(id string) []string {
	n, exists := d.nodes[id]
	if !exists || len(n.OutEdges) == 0 {
		return nil
	}
	dependents := make([]string, len(n.OutEdges))
	copy(dependents, n.OutEdges)
	return dependents
}

// GetTask returns a copy of the task for the given identifier, or nil if it
// doesn't exist.
func (d *DAG) GetTask(id string) *task.Task {
	n, exists := d.nodes[id]
	if !exists {
		return nil
	}
	t := n.Task.Clone()
	return &t
}

// Size returns the number of tasks in the graph.
func (d *DAG) Size() int {
	return len(d.nodes)
}

// Document is the serialised form of a DAG: schema version, specification
// identifier, generation timestamp, session count, and an ordered list of
// phases each carrying its tasks.
type Document struct {
	Version     string           `yaml:"version"`
	SpecID      string           `yaml:"spec_id"`
	GeneratedAt string           `yaml:"generated_at"`
	NumSessions int              `yaml:"num_sessions"`
	Phases      []PhaseDocument  `yaml:"phases"`
}

// PhaseDocument is one topological generation within a Document.
type PhaseDocument struct {
	Name  string      `yaml:"name"`
	Tasks []task.Task `yaml:"tasks"`
}

// Serialize produces a Document capturing the graph's current phases,
// session assignment, and every task field.
func (d *DAG) Serialize(specID string, generatedAt time.Time, numSessions int) (*Document, error) {
	phases, err := d.Phases()
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Version:     DocumentVersion,
		SpecID:      specID,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		NumSessions: numSessions,
		Phases:      make([]PhaseDocument, 0, len(phases)),
	}

	for i, generation := range phases {
		tasks := make([]task.Task, 0, len(generation))
		for _, id := range generation {
			tasks = append(tasks, d.nodes[id].Task.Clone())
		}
		doc.Phases = append(doc.Phases, PhaseDocument{
			Name:  fmt.Sprintf("phase-%d", i),
			Tasks: tasks,
		})
	}

	return doc, nil
}

// FromDocument rebuilds a DAG from a deserialised Document, failing loudly
// if a mandatory task field is missing.
func FromDocument(doc *Document) (*DAG, error) {
	if doc.SpecID == "" {
		return nil, errors.New(errors.CodeCorruptDAG, "missing field: spec_id", errors.ErrCorruptDAG)
	}
	if doc.Version == "" {
		return nil, errors.New(errors.CodeCorruptDAG, "missing field: version", errors.ErrCorruptDAG)
	}

	tasks := make([]task.Task, 0)
	for _, phase := range doc.Phases {
		for _, t := range phase.Tasks {
			if t.ID == "" {
				return nil, errors.New(errors.CodeCorruptDAG, "missing field: id", errors.ErrCorruptDAG)
			}
			if t.Name == "" {
				return nil, errors.WithContext(
					errors.New(errors.CodeCorruptDAG, "missing field: name", errors.ErrCorruptDAG),
					"task_id", t.ID,
				)
			}
			tasks = append(tasks, t)
		}
	}

	return Build(tasks)
}
