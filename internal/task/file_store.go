package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/ctxutil"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/flock"
)

// Directory and file permission constants.
const (
	dirPerm  = 0o750 // Secure directory permissions
	filePerm = 0o600 // Secure file permissions
)

// taskDocument is the on-disk shape of one task: its state and its audit log
// live in one file so a single atomic rename commits both.
type taskDocument struct {
	Task    *domain.Task          `json:"task"`
	History []domain.HistoryEntry `json:"history"`
}

// FileStore implements Store using the local filesystem. Each task lives at
// <root>/tasks/<id>/task.json, guarded by an flock on task.json.lock.
type FileStore struct {
	root        string
	lockTimeout time.Duration
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a new FileStore rooted at root.
// If root is empty, uses the default ~/.taskreview directory.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		root = filepath.Join(home, constants.AppHome)
	}
	if err := os.MkdirAll(filepath.Join(root, constants.TasksDir), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create tasks directory: %w", err)
	}
	return &FileStore{root: root, lockTimeout: constants.DefaultLockTimeout}, nil
}

// WithLockTimeout sets how long writers wait for a task lock. Non-positive
// values keep the current timeout.
func (s *FileStore) WithLockTimeout(d time.Duration) *FileStore {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

// Create persists a new task together with its creation entry.
func (s *FileStore) Create(ctx context.Context, task *domain.Task, entry domain.HistoryEntry) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("failed to create task: task %w", reviewerrors.ErrEmptyValue)
	}
	if !ValidTaskID(task.ID) {
		return fmt.Errorf("failed to create task: %w: invalid task ID %q", reviewerrors.ErrValidation, task.ID)
	}

	lock, err := s.lock(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to create task '%s': %w", task.ID, err)
	}
	defer func() { _ = lock.Release() }()

	if _, err := os.Stat(s.taskFilePath(task.ID)); err == nil {
		return fmt.Errorf("failed to create task '%s': %w", task.ID, reviewerrors.ErrTaskExists)
	}

	doc := taskDocument{Task: task.Clone(), History: []domain.HistoryEntry{entry}}
	if err := s.write(&doc); err != nil {
		return fmt.Errorf("failed to create task '%s': %w", task.ID, err)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *FileStore) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	t, _, err := s.Load(ctx, taskID)
	return t, err
}

// History returns the task's audit log in chronological order.
func (s *FileStore) History(ctx context.Context, taskID string) ([]domain.HistoryEntry, error) {
	_, h, err := s.Load(ctx, taskID)
	return h, err
}

// Load returns a task and its history read under the task lock.
func (s *FileStore) Load(ctx context.Context, taskID string) (*domain.Task, []domain.HistoryEntry, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, nil, err
	}
	if err := s.exists(taskID); err != nil {
		return nil, nil, err
	}

	lock, err := s.lock(ctx, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get task '%s': %w", taskID, err)
	}
	defer func() { _ = lock.Release() }()

	doc, err := s.read(taskID)
	if err != nil {
		return nil, nil, err
	}
	return doc.Task, chronological(doc.History), nil
}

// Apply commits m if the persisted status and version still match.
func (s *FileStore) Apply(ctx context.Context, m Mutation) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if m.Task == nil {
		return fmt.Errorf("failed to apply mutation: task %w", reviewerrors.ErrEmptyValue)
	}
	if err := s.exists(m.Task.ID); err != nil {
		return err
	}

	lock, err := s.lock(ctx, m.Task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task '%s': %w", m.Task.ID, err)
	}
	defer func() { _ = lock.Release() }()

	doc, err := s.read(m.Task.ID)
	if err != nil {
		return err
	}
	if err := checkExpected(doc.Task, m); err != nil {
		return err
	}
	if err := checkAppend(m.Task.ID, doc.History, m.Entry); err != nil {
		return err
	}

	doc.Task = m.Task.Clone()
	if m.Entry != nil {
		doc.History = append(doc.History, *m.Entry)
	}
	if err := s.write(doc); err != nil {
		return fmt.Errorf("failed to update task '%s': %w", m.Task.ID, err)
	}
	return nil
}

// List returns tasks matching filter, newest first. Unreadable task
// directories are skipped.
func (s *FileStore) List(ctx context.Context, filter ListFilter) ([]*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.tasksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.Task{}, nil
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !ValidTaskID(entry.Name()) {
			continue
		}
		if err := ctxutil.Canceled(ctx); err != nil {
			return nil, err
		}
		t, err := s.Get(ctx, entry.Name())
		if err != nil {
			continue
		}
		if filter.Matches(t) {
			tasks = append(tasks, t)
		}
	}

	sortNewestFirst(tasks)
	return tasks, nil
}

// Close implements Store. FileStore holds no open handles between calls.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) exists(taskID string) error {
	if !ValidTaskID(taskID) {
		return fmt.Errorf("failed to get task '%s': %w", taskID, reviewerrors.ErrTaskNotFound)
	}
	if _, err := os.Stat(s.taskFilePath(taskID)); os.IsNotExist(err) {
		return fmt.Errorf("failed to get task '%s': %w", taskID, reviewerrors.ErrTaskNotFound)
	}
	return nil
}

func (s *FileStore) read(taskID string) (*taskDocument, error) {
	data, err := os.ReadFile(s.taskFilePath(taskID)) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to get task '%s': %w", taskID, reviewerrors.ErrTaskNotFound)
		}
		return nil, fmt.Errorf("failed to read task '%s': %w", taskID, err)
	}

	var doc taskDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse task '%s': corrupted state file: %w", taskID, err)
	}
	if doc.Task == nil {
		return nil, fmt.Errorf("failed to parse task '%s': corrupted state file: %w", taskID, reviewerrors.ErrEmptyValue)
	}
	return &doc, nil
}

func (s *FileStore) write(doc *taskDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.taskFilePath(doc.Task.ID), data)
}

// lock acquires the per-task flock, creating the task directory if needed.
func (s *FileStore) lock(ctx context.Context, taskID string) (*flock.Lock, error) {
	if err := os.MkdirAll(s.taskDir(taskID), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return flock.Acquire(ctx, s.taskFilePath(taskID)+constants.LockFileSuffix, s.lockTimeout)
}

func (s *FileStore) tasksDir() string {
	return filepath.Join(s.root, constants.TasksDir)
}

func (s *FileStore) taskDir(taskID string) string {
	return filepath.Join(s.tasksDir(), taskID)
}

func (s *FileStore) taskFilePath(taskID string) string {
	return filepath.Join(s.taskDir(taskID), constants.TaskFileName)
}

// checkExpected is the compare half of compare-and-swap, shared by the
// in-process stores.
func checkExpected(persisted *domain.Task, m Mutation) error {
	if persisted.Status == m.ExpectedStatus && persisted.Version == m.ExpectedVersion {
		return nil
	}
	reason := ""
	if persisted.Status == m.ExpectedStatus {
		reason = "the task was modified concurrently"
	}
	return &reviewerrors.StateConflictError{
		TaskID:     persisted.ID,
		Transition: m.Transition,
		Actual:     persisted.Status,
		Expected:   []constants.TaskStatus{m.ExpectedStatus},
		Reason:     reason,
	}
}

func sortNewestFirst(tasks []*domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// atomicWrite writes data to a file atomically using write-then-rename.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync to disk (ensure data is persisted before rename)
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
