package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	"github.com/mrz1836/taskreview/internal/task"
	"github.com/mrz1836/taskreview/internal/tui"
)

// renderView prints one task with its derived signals.
func renderView(out tui.Output, view *task.View) {
	t := view.Task
	out.Field("Task", t.ID)
	out.Field("Label", t.Label)
	out.Field("Project", joinNonEmpty(" / ", firstNonEmpty(t.ProjectLabel, t.ProjectID), t.Phase, t.Section, t.Subsection))
	out.Field("Status", tui.RenderStatus(t.Status))
	out.Field("Version", fmt.Sprintf("%d", t.Version))
	out.Field("Assignee", t.Assignee)
	out.Field("Validators", strings.Join(t.Validators, ", "))
	out.Field("Deadline", deadlineText(view.Derived.Deadline))
	out.Field("Review deadline", deadlineText(view.Derived.ValidationDeadline))
	out.Field("Expected format", t.ExpectedFormat)
	out.Field("Instructions", t.InstructionComment)
	out.Field("Current file", firstNonEmpty(t.CurrentFileName, t.CurrentFileRef))
	if view.Derived.PendingSubmission {
		out.Field("Pending review", "yes")
	}
	if t.DecisionActor != "" {
		out.Field("Decision", fmt.Sprintf("%s: %s", t.DecisionActor, t.DecisionComment))
	}
	out.Field("Updated", tui.RelativeTime(t.UpdatedAt))

	allowed := make([]string, len(view.Allowed))
	for i, tr := range view.Allowed {
		allowed[i] = string(tr)
	}
	out.Field("You may", strings.Join(allowed, ", "))
}

// renderTaskTable prints tasks as a table.
func renderTaskTable(w io.Writer, out tui.Output, tasks []*domain.Task) {
	if len(tasks) == 0 {
		out.Info("No tasks found.")
		return
	}

	table := tui.NewTable(w, []tui.TableColumn{
		{Name: "ID", Width: 36},
		{Name: "LABEL", Width: 28},
		{Name: "STATUS", Width: 16},
		{Name: "ASSIGNEE", Width: 14},
		{Name: "DEADLINE", Width: 12},
		{Name: "UPDATED", Width: 16},
	})
	table.WriteHeader()
	for _, t := range tasks {
		due := ""
		if t.Deadline != nil {
			due = t.Deadline.Format(constants.DateLayout)
		}
		table.WriteRow(t.ID, t.Label, tui.RenderStatus(t.Status), t.Assignee, due, tui.RelativeTime(t.UpdatedAt))
	}
}

// renderHistory prints the audit log one entry per line.
func renderHistory(w io.Writer, history []domain.HistoryEntry) {
	table := tui.NewTable(w, []tui.TableColumn{
		{Name: "#", Width: 4},
		{Name: "WHEN", Width: 20},
		{Name: "ACTION", Width: 12},
		{Name: "BY", Width: 14},
		{Name: "TRANSITION", Width: 26},
		{Name: "DETAIL", Width: 40},
	})
	table.WriteHeader()
	for _, e := range history {
		edge := tui.StatusLabel(e.ToStatus.String())
		if e.FromStatus != "" {
			edge = tui.StatusLabel(e.FromStatus.String()) + " → " + edge
		}
		table.WriteRow(
			fmt.Sprintf("%d", e.Sequence),
			e.PerformedAt.UTC().Format("2006-01-02 15:04"),
			string(e.ActionType),
			e.PerformedBy,
			edge,
			historyDetail(e),
		)
	}
}

// historyDetail summarizes what an entry carried besides its status edge.
func historyDetail(e domain.HistoryEntry) string {
	if e.ActionType == constants.ActionAssigned && e.Sequence > 1 {
		return "reassigned to " + e.Metadata[task.MetaAssignee]
	}
	return firstNonEmpty(e.DecisionComment, joinNonEmpty(": ", e.FileName, e.Comment))
}

func deadlineText(d task.DeadlineStatus) string {
	if !d.Set {
		return ""
	}
	return fmt.Sprintf("%s (%s)", d.Date.Format(constants.DateLayout), tui.DaysLabel(d.RemainingDays))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
