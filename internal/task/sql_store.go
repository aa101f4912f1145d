package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/ctxutil"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// SQL dialects understood by OpenSQLStore.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// storedTimeLayout is fixed width so TEXT columns sort chronologically.
const storedTimeLayout = hashTimeLayout

const taskColumns = `id, project_id, project_label, phase, section, subsection, label,
	assignee, validators, deadline, validation_deadline, expected_format, status, version,
	current_file_ref, current_file_name, instruction_comment, decision_comment, decision_actor,
	created_at, updated_at, submitted_at, decided_at, schema_version`

const historyColumns = `id, task_id, sequence, action_type, performed_by, performed_at,
	from_status, to_status, file_ref, file_name, comment, decision_comment, metadata,
	prev_hash, hash`

// SQLStore implements Store over database/sql. The conditional UPDATE on
// (id, status, version) and the audit INSERT run in one transaction.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

var _ Store = (*SQLStore)(nil)

// OpenSQLStore opens dsn with the given dialect and applies the schema.
// For SQLite, dsn is a file path; its directory is created if missing.
func OpenSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), dirPerm); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("%w: unsupported SQL dialect %q", reviewerrors.ErrConfigInvalidStore, dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if dialect == DialectSQLite {
		// One connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}
	if err := s.configure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) configure(ctx context.Context) error {
	if s.dialect != DialectSQLite {
		return s.db.PingContext(ctx)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	versionType := "INTEGER"
	if s.dialect == DialectPostgres {
		versionType = "BIGINT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			project_label TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL DEFAULT '',
			section TEXT NOT NULL DEFAULT '',
			subsection TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL,
			assignee TEXT NOT NULL,
			validators TEXT NOT NULL,
			deadline TEXT,
			validation_deadline TEXT,
			expected_format TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			version ` + versionType + ` NOT NULL,
			current_file_ref TEXT NOT NULL DEFAULT '',
			current_file_name TEXT NOT NULL DEFAULT '',
			instruction_comment TEXT NOT NULL DEFAULT '',
			decision_comment TEXT NOT NULL DEFAULT '',
			decision_actor TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			submitted_at TEXT,
			decided_at TEXT,
			schema_version TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE TABLE IF NOT EXISTS task_history (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id),
			sequence ` + versionType + ` NOT NULL,
			action_type TEXT NOT NULL,
			performed_by TEXT NOT NULL,
			performed_at TEXT NOT NULL,
			from_status TEXT NOT NULL DEFAULT '',
			to_status TEXT NOT NULL,
			file_ref TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL DEFAULT '',
			decision_comment TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '',
			prev_hash TEXT NOT NULL DEFAULT '',
			hash TEXT NOT NULL,
			UNIQUE (task_id, sequence)
		)`,
	}
	stmts = append(stmts, s.appendOnlyStatements()...)

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// appendOnlyStatements make task_history refuse UPDATE and DELETE.
func (s *SQLStore) appendOnlyStatements() []string {
	if s.dialect == DialectPostgres {
		return []string{
			`CREATE OR REPLACE RULE task_history_no_update AS ON UPDATE TO task_history DO INSTEAD NOTHING`,
			`CREATE OR REPLACE RULE task_history_no_delete AS ON DELETE TO task_history DO INSTEAD NOTHING`,
		}
	}
	return []string{
		`CREATE TRIGGER IF NOT EXISTS task_history_no_update BEFORE UPDATE ON task_history
		BEGIN SELECT RAISE(ABORT, 'task_history is append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS task_history_no_delete BEFORE DELETE ON task_history
		BEGIN SELECT RAISE(ABORT, 'task_history is append-only'); END`,
	}
}

// Create implements Store.
func (s *SQLStore) Create(ctx context.Context, task *domain.Task, entry domain.HistoryEntry) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("failed to create task: task %w", reviewerrors.ErrEmptyValue)
	}

	return s.inTx(ctx, nil, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM tasks WHERE id = ?`), task.ID).Scan(&one)
		switch {
		case err == nil:
			return fmt.Errorf("failed to create task '%s': %w", task.ID, reviewerrors.ErrTaskExists)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to create task '%s': %w", task.ID, err)
		}

		args, err := taskArgs(task)
		if err != nil {
			return err
		}
		query := `INSERT INTO tasks (` + taskColumns + `) VALUES (` + placeholders(len(args)) + `)`
		if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("failed to create task '%s': %w", task.ID, reviewerrors.ErrTaskExists)
			}
			return fmt.Errorf("failed to create task '%s': %w", task.ID, err)
		}
		return s.insertEntry(ctx, tx, entry)
	})
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	return s.getTask(ctx, s.db.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), taskID), taskID)
}

// History implements Store.
func (s *SQLStore) History(ctx context.Context, taskID string) ([]domain.HistoryEntry, error) {
	_, h, err := s.Load(ctx, taskID)
	return h, err
}

// Load reads the task and its history inside one read-only transaction.
func (s *SQLStore) Load(ctx context.Context, taskID string) (*domain.Task, []domain.HistoryEntry, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, nil, err
	}

	var opts *sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}

	var (
		t       *domain.Task
		history []domain.HistoryEntry
	)
	err := s.inTx(ctx, opts, func(tx *sql.Tx) error {
		var err error
		row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), taskID)
		if t, err = s.getTask(ctx, row, taskID); err != nil {
			return err
		}
		history, err = s.history(ctx, tx, taskID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return t, history, nil
}

// Apply implements Store.
func (s *SQLStore) Apply(ctx context.Context, m Mutation) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if m.Task == nil {
		return fmt.Errorf("failed to apply mutation: task %w", reviewerrors.ErrEmptyValue)
	}

	return s.inTx(ctx, nil, func(tx *sql.Tx) error {
		args, err := taskArgs(m.Task)
		if err != nil {
			return err
		}
		cols := strings.Split(taskColumns, ",")
		sets := make([]string, 0, len(cols)-1)
		for _, c := range cols[1:] {
			sets = append(sets, strings.TrimSpace(c)+" = ?")
		}
		query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ? AND version = ?`
		updateArgs := append(args[1:], m.Task.ID, m.ExpectedStatus.String(), m.ExpectedVersion)

		res, err := tx.ExecContext(ctx, s.rebind(query), updateArgs...)
		if err != nil {
			return fmt.Errorf("failed to update task '%s': %w", m.Task.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update task '%s': %w", m.Task.ID, err)
		}
		if n == 0 {
			return s.explainMiss(ctx, tx, m)
		}

		if m.Entry == nil {
			return nil
		}
		if err := s.checkTail(ctx, tx, m.Task.ID, m.Entry); err != nil {
			return err
		}
		return s.insertEntry(ctx, tx, *m.Entry)
	})
}

// explainMiss turns a zero-row conditional update into ErrTaskNotFound or a
// StateConflictError carrying the persisted status.
func (s *SQLStore) explainMiss(ctx context.Context, tx *sql.Tx, m Mutation) error {
	var (
		status  string
		version int64
	)
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT status, version FROM tasks WHERE id = ?`), m.Task.ID).Scan(&status, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update task '%s': %w", m.Task.ID, reviewerrors.ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update task '%s': %w", m.Task.ID, err)
	}
	persisted := &domain.Task{ID: m.Task.ID, Status: constants.TaskStatus(status), Version: version}
	if err := checkExpected(persisted, m); err != nil {
		return err
	}
	return fmt.Errorf("failed to update task '%s': %w", m.Task.ID, reviewerrors.ErrStateConflict)
}

// List implements Store. The validator filter is applied after the query
// because validators are stored as a JSON array.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Assignee != "" {
		where = append(where, "assignee = ?")
		args = append(args, filter.Assignee)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status.String())
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		if filter.Matches(t) {
			tasks = append(tasks, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) inTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) getTask(_ context.Context, row *sql.Row, taskID string) (*domain.Task, error) {
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get task '%s': %w", taskID, reviewerrors.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task '%s': %w", taskID, err)
	}
	return t, nil
}

func (s *SQLStore) history(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM task_history WHERE task_id = ? ORDER BY performed_at, sequence`
	rows, err := tx.QueryContext(ctx, s.rebind(query), taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history of task '%s': %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	history := []domain.HistoryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read history of task '%s': %w", taskID, err)
		}
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history of task '%s': %w", taskID, err)
	}
	return history, nil
}

// checkTail compares e with the last persisted entry inside tx. The unique
// UNIQUE (task_id, sequence) backs this check against concurrent writers.
func (s *SQLStore) checkTail(ctx context.Context, tx *sql.Tx, taskID string, e *domain.HistoryEntry) error {
	var (
		lastSeq  int64
		lastHash string
	)
	err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT sequence, hash FROM task_history WHERE task_id = ? ORDER BY sequence DESC LIMIT 1`),
		taskID).Scan(&lastSeq, &lastHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read history of task '%s': %w", taskID, err)
	}
	return checkTail(taskID, lastSeq, lastHash, e)
}

func (s *SQLStore) insertEntry(ctx context.Context, tx *sql.Tx, e domain.HistoryEntry) error {
	metadata := ""
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode entry metadata: %w", err)
		}
		metadata = string(data)
	}
	args := []any{
		e.ID, e.TaskID, e.Sequence, e.ActionType.String(), e.PerformedBy, formatTime(e.PerformedAt),
		e.FromStatus.String(), e.ToStatus.String(), e.FileRef, e.FileName, e.Comment, e.DecisionComment,
		metadata, e.PrevHash, e.Hash,
	}
	query := `INSERT INTO task_history (` + historyColumns + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return fmt.Errorf("failed to append history entry for task '%s': %w", e.TaskID, err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func taskArgs(t *domain.Task) ([]any, error) {
	validators, err := json.Marshal(t.Validators)
	if err != nil {
		return nil, fmt.Errorf("failed to encode validators: %w", err)
	}
	return []any{
		t.ID, t.ProjectID, t.ProjectLabel, t.Phase, t.Section, t.Subsection, t.Label,
		t.Assignee, string(validators), formatTimePtr(t.Deadline), formatTimePtr(t.ValidationDeadline),
		t.ExpectedFormat, t.Status.String(), t.Version,
		t.CurrentFileRef, t.CurrentFileName, t.InstructionComment, t.DecisionComment, t.DecisionActor,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), formatTimePtr(t.SubmittedAt), formatTimePtr(t.DecidedAt),
		t.SchemaVersion,
	}, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                            domain.Task
		status, validators           string
		createdAt, updatedAt         string
		deadline, validationDeadline sql.NullString
		submittedAt, decidedAt       sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.ProjectLabel, &t.Phase, &t.Section, &t.Subsection, &t.Label,
		&t.Assignee, &validators, &deadline, &validationDeadline, &t.ExpectedFormat, &status, &t.Version,
		&t.CurrentFileRef, &t.CurrentFileName, &t.InstructionComment, &t.DecisionComment, &t.DecisionActor,
		&createdAt, &updatedAt, &submittedAt, &decidedAt, &t.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}
	t.Status = constants.TaskStatus(status)
	if err := json.Unmarshal([]byte(validators), &t.Validators); err != nil {
		return nil, fmt.Errorf("corrupted validators column: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{deadline, &t.Deadline},
		{validationDeadline, &t.ValidationDeadline},
		{submittedAt, &t.SubmittedAt},
		{decidedAt, &t.DecidedAt},
	} {
		if *f.dst, err = parseTimePtr(f.src); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func scanEntry(row rowScanner) (domain.HistoryEntry, error) {
	var (
		e                                  domain.HistoryEntry
		action, performedAt, from, to, raw string
	)
	err := row.Scan(&e.ID, &e.TaskID, &e.Sequence, &action, &e.PerformedBy, &performedAt,
		&from, &to, &e.FileRef, &e.FileName, &e.Comment, &e.DecisionComment, &raw, &e.PrevHash, &e.Hash)
	if err != nil {
		return e, err
	}
	e.ActionType = constants.ActionType(action)
	e.FromStatus = constants.TaskStatus(from)
	e.ToStatus = constants.TaskStatus(to)
	if e.PerformedAt, err = parseTime(performedAt); err != nil {
		return e, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Metadata); err != nil {
			return e, fmt.Errorf("corrupted metadata column: %w", err)
		}
	}
	return e, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(storedTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupted timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil //nolint:nilnil // absent optional timestamp
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
