// Package output provides CLI output formatting utilities.
package output

import (
	"fmt"
	"strings"

	"github.com/speckit/flowctl/internal/domain/dag"
	"github.com/speckit/flowctl/internal/domain/orchestration"
)

// DAGRenderer renders DAG phase plans and live orchestration state.
type DAGRenderer struct {
	formatter *Formatter
}

// NewDAGRenderer creates a new DAG renderer with the given formatter.
func NewDAGRenderer(formatter *Formatter) *DAGRenderer {
	return &DAGRenderer{
		formatter: formatter,
	}
}

// RenderPlan renders a DAG's phases, one box per phase, with the tasks
// assigned to each session within it.
func (r *DAGRenderer) RenderPlan(specID string, d *dag.DAG, numSessions int) error {
	if err := d.AssignSessions(numSessions); err != nil {
		return err
	}

	phases, err := d.Phases()
	if err != nil {
		return err
	}

	_ = r.formatter.Header("Execution Plan")
	_ = r.formatter.Item("Spec", specID)
	_ = r.formatter.Item("Sessions", fmt.Sprintf("%d", numSessions))
	_ = r.formatter.Item("Tasks", fmt.Sprintf("%d", d.Size()))
	_ = r.formatter.Println("")

	for i, phaseTasks := range phases {
		r.renderPhaseBox(i, phaseTasks, d, i == 0, i == len(phases)-1)
	}

	critical, err := d.CriticalPath()
	if err == nil && len(critical) > 0 {
		_ = r.formatter.Println("")
		_ = r.formatter.Item("Critical Path", strings.Join(critical, " → "))
	}

	return nil
}

// renderPhaseBox renders a single phase as a box listing its tasks and
// their assigned session.
func (r *DAGRenderer) renderPhaseBox(index int, taskIDs []string, d *dag.DAG, isFirst, isLast bool) {
	const boxWidth = 56

	title := fmt.Sprintf("phase-%d", index)

	if isFirst {
		_ = r.formatter.Println("┌%s┐", strings.Repeat("─", boxWidth-2))
	} else {
		_ = r.formatter.Println("├%s┤", strings.Repeat("─", boxWidth-2))
	}
	r.renderBoxLine(title, fmt.Sprintf("[%d tasks]", len(taskIDs)), boxWidth)

	for _, id := range taskIDs {
		t := d.GetTask(id)
		if t == nil {
			continue
		}
		session := "-"
		if t.Session != nil {
			session = fmt.Sprintf("session-%d", *t.Session)
		}
		line := fmt.Sprintf("%s  %s", id, t.Name)
		r.renderBoxLine(line, session, boxWidth)
	}

	if isLast {
		_ = r.formatter.Println("└%s┘", strings.Repeat("─", boxWidth-2))
	}
}

// renderBoxLine renders a line inside the box with proper padding.
func (r *DAGRenderer) renderBoxLine(left, right string, boxWidth int) {
	availableWidth := boxWidth - 4

	if right != "" {
		rightPadded := " " + right
		leftWidth := availableWidth - len(rightPadded)
		if leftWidth < 0 {
			leftWidth = 0
		}
		if len(left) > leftWidth {
			if leftWidth > 3 {
				left = left[:leftWidth-3] + "..."
			} else {
				left = left[:leftWidth]
			}
		}
		padding := strings.Repeat(" ", leftWidth-len(left))
		_ = r.formatter.Println("│ %s%s%s │", left, padding, rightPadded)
		return
	}

	if len(left) > availableWidth {
		left = left[:availableWidth-3] + "..."
	}
	padding := strings.Repeat(" ", availableWidth-len(left))
	_ = r.formatter.Println("│ %s%s │", left, padding)
}

// RenderApprovalPrompt renders the approval prompt.
func (r *DAGRenderer) RenderApprovalPrompt() {
	_ = r.formatter.Print("%s", r.formatter.Bold("Proceed with execution? [Y/n] "))
}

// RenderState renders the live orchestration state: current phase,
// phases completed, and a per-session status table.
func (r *DAGRenderer) RenderState(state *orchestration.State) error {
	_ = r.formatter.Header("Orchestration Status")
	_ = r.formatter.Item("Spec", state.SpecID)
	_ = r.formatter.Item("Current Phase", state.CurrentPhase)
	_ = r.formatter.Item("Phases Completed", fmt.Sprintf("%d", len(state.PhasesCompleted)))
	if state.MergeStatus != nil {
		_ = r.formatter.Item("Merge Status", string(*state.MergeStatus))
	}
	_ = r.formatter.Println("")

	table := TableData{
		Columns: []TableColumn{
			{Header: "SESSION", Width: 9},
			{Header: "STATUS", Width: 10},
			{Header: "CURRENT TASK", Width: 14},
			{Header: "COMPLETED", Width: 10},
		},
	}
	for _, s := range state.Sessions {
		current := "-"
		if s.CurrentTask != nil {
			current = *s.CurrentTask
		}
		table.Rows = append(table.Rows, []string{
			fmt.Sprintf("session-%d", s.ID),
			string(s.Status),
			current,
			fmt.Sprintf("%d", len(s.CompletedTasks)),
		})
	}
	return r.formatter.Table(table)
}

// RenderPlanSaved renders a message indicating the DAG document was saved.
func (r *DAGRenderer) RenderPlanSaved(path string) {
	_ = r.formatter.Success("DAG saved to: %s", path)
}

// RenderPlanJSON outputs the DAG document as JSON.
func (r *DAGRenderer) RenderPlanJSON(doc *dag.Document) error {
	return r.formatter.JSON(doc)
}
