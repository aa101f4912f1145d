package constants

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_IsKnown(t *testing.T) {
	for _, s := range AllTaskStatuses() {
		assert.True(t, s.IsKnown(), "%s should be known", s)
	}
	assert.False(t, TaskStatus("archived").IsKnown())
	assert.False(t, TaskStatus("").IsKnown())
}

func TestTaskStatus_JSON(t *testing.T) {
	data, err := json.Marshal(TaskStatusInProgress)
	require.NoError(t, err)
	assert.JSONEq(t, `"in_progress"`, string(data))

	var s TaskStatus
	require.NoError(t, json.Unmarshal([]byte(`"finalized"`), &s))
	assert.Equal(t, TaskStatusFinalized, s)
}

func TestActionType_Classification(t *testing.T) {
	tests := []struct {
		action     ActionType
		submission bool
		decision   bool
	}{
		{ActionAssigned, false, false},
		{ActionStarted, false, false},
		{ActionSubmitted, true, false},
		{ActionResubmitted, true, false},
		{ActionValidated, false, true},
		{ActionRejected, false, true},
		{ActionFinalized, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.action.String(), func(t *testing.T) {
			assert.Equal(t, tt.submission, tt.action.IsSubmission())
			assert.Equal(t, tt.decision, tt.action.IsDecision())
		})
	}
}
