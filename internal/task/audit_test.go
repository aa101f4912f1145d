package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

func TestChainEntry(t *testing.T) {
	history := buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted)

	e := domain.HistoryEntry{
		ID:          "late",
		TaskID:      "t-1",
		ActionType:  constants.ActionRejected,
		PerformedAt: history[1].PerformedAt.Add(-time.Hour),
		FromStatus:  constants.TaskStatusSubmitted,
		ToStatus:    constants.TaskStatusRejected,
	}
	chainEntry(history, &e)

	assert.Equal(t, int64(3), e.Sequence)
	assert.Equal(t, history[1].Hash, e.PrevHash)
	assert.Equal(t, history[1].PerformedAt, e.PerformedAt, "time must never go backwards")
	assert.Equal(t, HashEntry(e), e.Hash)
}

func TestHashEntry_EmptyMetadataIsNil(t *testing.T) {
	e := buildHistory("t-1", constants.ActionAssigned)[0]
	withEmpty := e
	withEmpty.Metadata = map[string]string{}
	assert.Equal(t, HashEntry(e), HashEntry(withEmpty))

	withValue := e
	withValue.Metadata = map[string]string{"k": "v"}
	assert.NotEqual(t, HashEntry(e), HashEntry(withValue))
}

func TestVerifyHistory(t *testing.T) {
	valid := func() []domain.HistoryEntry {
		return buildHistory("t-1",
			constants.ActionAssigned, constants.ActionStarted, constants.ActionSubmitted,
			constants.ActionRejected, constants.ActionResubmitted, constants.ActionValidated,
			constants.ActionFinalized)
	}

	require.NoError(t, VerifyHistory("t-1", valid()))
	require.NoError(t, VerifyHistory("t-1", nil))

	tests := []struct {
		name   string
		tamper func([]domain.HistoryEntry) []domain.HistoryEntry
	}{
		{"edited comment", func(h []domain.HistoryEntry) []domain.HistoryEntry {
			h[3].DecisionComment = "actually fine"
			return h
		}},
		{"deleted entry", func(h []domain.HistoryEntry) []domain.HistoryEntry {
			return append(h[:2], h[3:]...)
		}},
		{"foreign entry", func(h []domain.HistoryEntry) []domain.HistoryEntry {
			h[1].TaskID = "t-2"
			return h
		}},
		{"rehashed but unlinked", func(h []domain.HistoryEntry) []domain.HistoryEntry {
			h[2].PrevHash = "bogus"
			h[2].Hash = HashEntry(h[2])
			return h
		}},
		{"illegal edge", func(h []domain.HistoryEntry) []domain.HistoryEntry {
			out := buildHistory("t-1", constants.ActionAssigned)
			e := domain.HistoryEntry{
				ID: "x", TaskID: "t-1", ActionType: constants.ActionFinalized,
				PerformedAt: testEpoch.Add(time.Minute),
				FromStatus:  constants.TaskStatusAssigned, ToStatus: constants.TaskStatusFinalized,
			}
			chainEntry(out, &e)
			return append(out, e)
		}},
		{"missing creation entry", func(h []domain.HistoryEntry) []domain.HistoryEntry {
			e := h[1]
			e.Sequence = 1
			e.PrevHash = ""
			e.Hash = HashEntry(e)
			return []domain.HistoryEntry{e}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyHistory("t-1", tc.tamper(valid()))
			require.ErrorIs(t, err, reviewerrors.ErrHistoryTampered)
		})
	}
}

func TestVerifyHistory_Reassignment(t *testing.T) {
	reassign := func(h []domain.HistoryEntry, to constants.TaskStatus) []domain.HistoryEntry {
		last := h[len(h)-1]
		e := domain.HistoryEntry{
			ID: "r", TaskID: "t-1", ActionType: constants.ActionAssigned,
			PerformedAt: last.PerformedAt.Add(time.Minute),
			FromStatus:  last.ToStatus, ToStatus: to,
			Metadata:    map[string]string{MetaAssignee: "u9", MetaValidators: `["u2"]`},
		}
		chainEntry(h, &e)
		return append(h, e)
	}

	submitted := buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted)
	history := reassign(submitted, constants.TaskStatusSubmitted)
	require.NoError(t, VerifyHistory("t-1", history))
	assert.True(t, HasPendingSubmission(history), "reassignment is not a decision")

	moved := reassign(buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted), constants.TaskStatusValidated)
	require.ErrorIs(t, VerifyHistory("t-1", moved), reviewerrors.ErrHistoryTampered)

	finalized := buildHistory("t-1", constants.ActionAssigned, constants.ActionSubmitted,
		constants.ActionValidated, constants.ActionFinalized)
	closed := reassign(finalized, constants.TaskStatusFinalized)
	require.ErrorIs(t, VerifyHistory("t-1", closed), reviewerrors.ErrHistoryTampered)
}

func TestVerifyParties(t *testing.T) {
	task := createTestTask("t-1", constants.TaskStatusAssigned)
	history := buildHistory("t-1", constants.ActionAssigned)
	require.NoError(t, VerifyParties(task, history), "entries without parties are not checked")

	history[0].Metadata = assignmentMetadata(nil, task)
	require.NoError(t, VerifyParties(task, history))

	task.Validators = []string{"u2"}
	require.ErrorIs(t, VerifyParties(task, history), reviewerrors.ErrHistoryTampered)
}
