package task

import (
	"time"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
)

// testEpoch is the fixed start time used by tests driving a manual clock.
var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // Test fixture

// createTestTask returns a valid task in status with assignee u1 and validators u2, u3.
func createTestTask(id string, status constants.TaskStatus) *domain.Task {
	return &domain.Task{
		ID:            id,
		ProjectID:     "proj-1",
		Label:         "Foundation drawings",
		Assignee:      "u1",
		Validators:    []string{"u2", "u3"},
		Status:        status,
		Version:       1,
		CreatedAt:     testEpoch,
		UpdatedAt:     testEpoch,
		SchemaVersion: constants.TaskSchemaVersion,
	}
}

// buildHistory chains entries with the given actions, one minute apart.
func buildHistory(taskID string, actions ...constants.ActionType) []domain.HistoryEntry {
	var history []domain.HistoryEntry
	status := constants.TaskStatus("")
	for i, a := range actions {
		e := domain.HistoryEntry{
			ID:          taskID + "-e" + string(rune('a'+i)),
			TaskID:      taskID,
			ActionType:  a,
			PerformedBy: "u1",
			PerformedAt: testEpoch.Add(time.Duration(i) * time.Minute),
			FromStatus:  status,
			ToStatus:    statusAfter(a),
		}
		chainEntry(history, &e)
		history = append(history, e)
		status = e.ToStatus
	}
	return history
}

func statusAfter(a constants.ActionType) constants.TaskStatus {
	switch a {
	case constants.ActionAssigned:
		return constants.TaskStatusAssigned
	case constants.ActionStarted:
		return constants.TaskStatusInProgress
	case constants.ActionSubmitted, constants.ActionResubmitted:
		return constants.TaskStatusSubmitted
	case constants.ActionValidated:
		return constants.TaskStatusValidated
	case constants.ActionRejected:
		return constants.TaskStatusRejected
	case constants.ActionFinalized:
		return constants.TaskStatusFinalized
	}
	return ""
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
