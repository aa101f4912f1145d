package task

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// storeFactories lists every Store implementation exercised by the contract tests.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLStore(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "tasks.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// seedTask creates id through a Machine so the creation entry is properly chained.
func seedTask(t *testing.T, store Store, id string) *domain.Task {
	t.Helper()
	m := NewMachine(store, nil, "")
	task := createTestTask(id, constants.TaskStatusAssigned)
	task.Deadline = ptrTime(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	created, _, err := m.Create(context.Background(), task, "admin")
	require.NoError(t, err)
	return created
}

func TestStoreContract(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("create and load round trip", func(t *testing.T) {
				store := factory(t)
				created := seedTask(t, store, "t-1")

				got, history, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)
				assert.Equal(t, created.ID, got.ID)
				assert.Equal(t, created.Validators, got.Validators)
				assert.Equal(t, constants.TaskStatusAssigned, got.Status)
				assert.Equal(t, int64(1), got.Version)
				require.NotNil(t, got.Deadline)
				assert.True(t, created.Deadline.Equal(*got.Deadline))
				assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
				require.Len(t, history, 1)
				assert.Equal(t, constants.ActionAssigned, history[0].ActionType)
				require.NoError(t, VerifyHistory("t-1", history))
			})

			t.Run("duplicate create", func(t *testing.T) {
				store := factory(t)
				seedTask(t, store, "t-1")

				m := NewMachine(store, nil, "")
				_, _, err := m.Create(context.Background(), createTestTask("t-1", constants.TaskStatusAssigned), "admin")
				require.ErrorIs(t, err, reviewerrors.ErrTaskExists)
			})

			t.Run("missing task", func(t *testing.T) {
				store := factory(t)
				_, err := store.Get(context.Background(), "nope")
				require.ErrorIs(t, err, reviewerrors.ErrTaskNotFound)
				_, err = store.History(context.Background(), "nope")
				require.ErrorIs(t, err, reviewerrors.ErrTaskNotFound)

				err = store.Apply(context.Background(), Mutation{
					ExpectedStatus:  constants.TaskStatusAssigned,
					ExpectedVersion: 1,
					Task:            createTestTask("nope", constants.TaskStatusInProgress),
				})
				require.ErrorIs(t, err, reviewerrors.ErrTaskNotFound)
			})

			t.Run("apply appends and survives reload", func(t *testing.T) {
				store := factory(t)
				created := seedTask(t, store, "t-1")
				_, history, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)

				m := NewMachine(store, nil, "")
				next, entry, err := m.Apply(context.Background(), created, history, Command{
					Transition: constants.TransitionSubmit,
					ActorID:    "u1",
					FileRef:    "ref-1",
					FileName:   "drawing.pdf",
					Metadata:   map[string]string{"pages": "12"},
				})
				require.NoError(t, err)
				assert.Equal(t, int64(2), entry.Sequence)

				got, history, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)
				assert.Equal(t, next.Version, got.Version)
				assert.Equal(t, "ref-1", got.CurrentFileRef)
				require.NotNil(t, got.SubmittedAt)
				require.Len(t, history, 2)
				assert.Equal(t, "12", history[1].Metadata["pages"])
				require.NoError(t, VerifyHistory("t-1", history))
			})

			t.Run("stale version is a conflict and writes nothing", func(t *testing.T) {
				store := factory(t)
				created := seedTask(t, store, "t-1")

				stale := created.Clone()
				stale.Version = 7
				next := created.Clone()
				next.Status = constants.TaskStatusInProgress
				next.Version = 8

				err := store.Apply(context.Background(), Mutation{
					Transition:      constants.TransitionStart,
					ExpectedStatus:  constants.TaskStatusAssigned,
					ExpectedVersion: stale.Version,
					Task:            next,
					Entry:           &domain.HistoryEntry{ID: "x", TaskID: "t-1", Sequence: 2, Hash: "h"},
				})
				require.ErrorIs(t, err, reviewerrors.ErrStateConflict)
				conflict, ok := reviewerrors.AsStateConflict(err)
				require.True(t, ok)
				assert.Equal(t, constants.TaskStatusAssigned, conflict.Actual)

				got, history, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)
				assert.Equal(t, constants.TaskStatusAssigned, got.Status)
				assert.Len(t, history, 1)
			})

			t.Run("entry that does not extend the log writes nothing", func(t *testing.T) {
				store := factory(t)
				created := seedTask(t, store, "t-1")
				_, history, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)

				next := created.Clone()
				next.Status = constants.TaskStatusInProgress
				next.Version = created.Version + 1
				duplicate := history[0]
				duplicate.ID = "dup"
				duplicate.ActionType = constants.ActionStarted

				err = store.Apply(context.Background(), Mutation{
					Transition:      constants.TransitionStart,
					ExpectedStatus:  created.Status,
					ExpectedVersion: created.Version,
					Task:            next,
					Entry:           &duplicate,
				})
				require.ErrorIs(t, err, reviewerrors.ErrHistoryAppend)

				got, after, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)
				assert.Equal(t, constants.TaskStatusAssigned, got.Status)
				assert.Equal(t, created.Version, got.Version)
				assert.Equal(t, history, after)
			})

			t.Run("reassignment appends a chained entry", func(t *testing.T) {
				store := factory(t)
				created := seedTask(t, store, "t-1")
				_, history, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)

				proposed := created.Clone()
				proposed.Assignee = "u9"
				m := NewMachine(store, nil, "")
				next, entry, err := m.Reassign(context.Background(), created, history, proposed, "admin")
				require.NoError(t, err)
				assert.Equal(t, int64(2), entry.Sequence)

				got, after, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)
				assert.Equal(t, next.Version, got.Version)
				assert.Equal(t, "u9", got.Assignee)
				require.Len(t, after, 2)
				require.NoError(t, VerifyHistory("t-1", after))
				require.NoError(t, VerifyParties(got, after))
			})

			t.Run("list filters and orders newest first", func(t *testing.T) {
				store := factory(t)
				m := NewMachine(store, nil, "")
				for i, id := range []string{"a", "b", "c"} {
					task := createTestTask(id, constants.TaskStatusAssigned)
					if id == "c" {
						task.ProjectID = "proj-2"
						task.Validators = []string{"u7"}
					}
					m.clock = fixedClock(testEpoch.Add(time.Duration(i) * time.Hour))
					_, _, err := m.Create(context.Background(), task, "admin")
					require.NoError(t, err)
				}

				all, err := store.List(context.Background(), ListFilter{})
				require.NoError(t, err)
				require.Len(t, all, 3)
				assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

				byProject, err := store.List(context.Background(), ListFilter{ProjectID: "proj-1"})
				require.NoError(t, err)
				assert.Len(t, byProject, 2)

				byValidator, err := store.List(context.Background(), ListFilter{Validator: "u7"})
				require.NoError(t, err)
				require.Len(t, byValidator, 1)
				assert.Equal(t, "c", byValidator[0].ID)

				none, err := store.List(context.Background(), ListFilter{Status: constants.TaskStatusFinalized})
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("concurrent applies on one version commit once", func(t *testing.T) {
				store := factory(t)
				created := seedTask(t, store, "t-1")
				_, history, err := store.Load(context.Background(), "t-1")
				require.NoError(t, err)

				m := NewMachine(store, nil, "")
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					successes int
					conflicts int
				)
				for range 8 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, _, err := m.Apply(context.Background(), created, history, Command{
							Transition: constants.TransitionStart,
							ActorID:    "u1",
						})
						mu.Lock()
						defer mu.Unlock()
						switch {
						case err == nil:
							successes++
						case reviewerrors.KindOf(err) == reviewerrors.KindConflict:
							conflicts++
						default:
							t.Errorf("unexpected error: %v", err)
						}
					}()
				}
				wg.Wait()

				assert.Equal(t, 1, successes)
				assert.Equal(t, 7, conflicts)
				h, err := store.History(context.Background(), "t-1")
				require.NoError(t, err)
				assert.Len(t, h, 2)
			})

			t.Run("canceled context", func(t *testing.T) {
				store := factory(t)
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_, err := store.Get(ctx, "t-1")
				require.ErrorIs(t, err, context.Canceled)
			})
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)
	seedTask(t, store, "t-1")

	path := filepath.Join(root, constants.TasksDir, "t-1", constants.TaskFileName)
	data, err := os.ReadFile(path) //nolint:gosec // Test file path is controlled
	require.NoError(t, err)
	assert.Contains(t, string(data), `"history"`)
	assert.NoFileExists(t, path+".tmp")
}

func TestFileStore_CorruptedDocument(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)
	seedTask(t, store, "t-1")

	path := filepath.Join(root, constants.TasksDir, "t-1", constants.TaskFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err = store.Get(context.Background(), "t-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted")

	tasks, err := store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSQLStore_HistoryIsAppendOnly(t *testing.T) {
	s, err := OpenSQLStore(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	seedTask(t, s, "t-1")

	_, err = s.db.ExecContext(context.Background(), `UPDATE task_history SET comment = 'x'`)
	require.Error(t, err)
	_, err = s.db.ExecContext(context.Background(), `DELETE FROM task_history`)
	require.Error(t, err)
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestOpenSQLStore_UnknownDialect(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "oracle", "dsn")
	require.ErrorIs(t, err, reviewerrors.ErrConfigInvalidStore)
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }
