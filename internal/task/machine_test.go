package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskreview/internal/clock"
	"github.com/mrz1836/taskreview/internal/constants"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

func TestMachine_ClockSkewNeverReordersHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clk := clock.NewManual(testEpoch)
	m := NewMachine(store, clk, "")

	created, _, err := m.Create(ctx, createTestTask("t-1", constants.TaskStatusAssigned), "admin")
	require.NoError(t, err)

	clk.Set(testEpoch.Add(-time.Hour))
	_, history, err := store.Load(ctx, "t-1")
	require.NoError(t, err)
	next, entry, err := m.Apply(ctx, created, history, Command{
		Transition: constants.TransitionSubmit,
		ActorID:    "u1",
		FileRef:    "f1",
	})
	require.NoError(t, err)

	assert.Equal(t, testEpoch, entry.PerformedAt)
	assert.Equal(t, testEpoch, next.UpdatedAt)
	require.NotNil(t, next.SubmittedAt)
	assert.Equal(t, testEpoch, *next.SubmittedAt)
}

func TestMachine_DecisionFields(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewMachine(store, clock.NewManual(testEpoch), "Closed by the office.")

	created, _, err := m.Create(ctx, createTestTask("t-1", constants.TaskStatusAssigned), "admin")
	require.NoError(t, err)

	apply := func(tr constants.Transition, actor, comment string) {
		t.Helper()
		current, history, err := store.Load(ctx, "t-1")
		require.NoError(t, err)
		_, _, err = m.Apply(ctx, current, history, Command{Transition: tr, ActorID: actor, FileRef: "f1", Comment: comment})
		require.NoError(t, err)
	}
	apply(constants.TransitionSubmit, "u1", "first draft")
	apply(constants.TransitionValidate, "u2", "")
	apply(constants.TransitionFinalize, "boss", "")

	got, history, err := store.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "boss", got.DecisionActor)
	assert.Equal(t, "Closed by the office.", got.DecisionComment)
	assert.Equal(t, int64(4), got.Version)
	require.Len(t, history, 4)
	assert.Equal(t, "first draft", history[1].Comment)
	assert.Equal(t, "Closed by the office.", history[3].DecisionComment)
	assert.False(t, created.UpdatedAt.IsZero())
}

func TestMachine_RejectsIllegalSource(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewMachine(store, nil, "")

	created, _, err := m.Create(ctx, createTestTask("t-1", constants.TaskStatusAssigned), "admin")
	require.NoError(t, err)
	_, history, err := store.Load(ctx, "t-1")
	require.NoError(t, err)

	_, _, err = m.Apply(ctx, created, history, Command{Transition: constants.TransitionFinalize, ActorID: "boss"})
	conflict, ok := reviewerrors.AsStateConflict(err)
	require.True(t, ok)
	assert.Equal(t, []constants.TaskStatus{constants.TaskStatusValidated}, conflict.Expected)

	_, _, err = m.Apply(ctx, created, history, Command{Transition: "archive", ActorID: "boss"})
	require.ErrorIs(t, err, reviewerrors.ErrValidation)

	h, err := store.History(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, h, 1)
}
