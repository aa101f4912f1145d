package task

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/taskreview/internal/clock"
	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/ctxutil"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// Uploader stores deliverable bytes and returns a durable, opaque reference.
// internal/artifact provides the implementations.
type Uploader interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// ServiceConfig tunes Service behavior.
type ServiceConfig struct {
	// FinalizeNote is recorded when finalize is called without a comment.
	FinalizeNote string
	// EnforceDeadlineOrder rejects validation deadlines earlier than deadlines.
	EnforceDeadlineOrder bool
	// NotifyTimeout bounds one notification dispatch.
	NotifyTimeout time.Duration
}

// Service is the façade other subsystems call. Each transition runs:
// load → guard → conditional apply (task write + audit append in one unit) →
// best-effort notification outside the commit.
type Service struct {
	store    Store
	machine  *Machine
	guard    *Guard
	notifier Notifier
	metrics  Metrics
	uploader Uploader
	clock    clock.Clock
	logger   zerolog.Logger
	cfg      ServiceConfig
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets the notification dispatcher.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithUploader sets the artifact storage used by SubmitUpload.
func WithUploader(u Uploader) ServiceOption {
	return func(s *Service) { s.uploader = u }
}

// WithClock sets the time source.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithQuorumPolicy replaces the validate/reject authorization policy.
func WithQuorumPolicy(p QuorumPolicy) ServiceOption {
	return func(s *Service) { s.guard = NewGuard(p) }
}

// WithConfig sets the service configuration.
func WithConfig(cfg ServiceConfig) ServiceOption {
	return func(s *Service) { s.cfg = cfg }
}

// NewService builds a Service over store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		guard:    NewGuard(nil),
		notifier: NoopNotifier{},
		metrics:  NoopMetrics{},
		clock:    clock.RealClock{},
		logger:   zerolog.Nop(),
		cfg:      ServiceConfig{NotifyTimeout: constants.DefaultNotifyTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.NotifyTimeout <= 0 {
		s.cfg.NotifyTimeout = constants.DefaultNotifyTimeout
	}
	s.machine = NewMachine(store, s.clock, s.cfg.FinalizeNote)
	s.logger = s.logger.With().Str("component", "task_service").Logger()
	return s
}

// CreateInput describes a new task. Status, version and timestamps are set by the engine.
type CreateInput struct {
	ID                 string     `json:"id,omitempty" yaml:"id,omitempty"`
	ProjectID          string     `json:"project_id" yaml:"project_id"`
	ProjectLabel       string     `json:"project_label,omitempty" yaml:"project_label,omitempty"`
	Phase              string     `json:"phase,omitempty" yaml:"phase,omitempty"`
	Section            string     `json:"section,omitempty" yaml:"section,omitempty"`
	Subsection         string     `json:"subsection,omitempty" yaml:"subsection,omitempty"`
	Label              string     `json:"label" yaml:"label"`
	Assignee           string     `json:"assignee" yaml:"assignee"`
	Validators         []string   `json:"validators" yaml:"validators"`
	Deadline           *time.Time `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	ValidationDeadline *time.Time `json:"validation_deadline,omitempty" yaml:"validation_deadline,omitempty"`
	ExpectedFormat     string     `json:"expected_format,omitempty" yaml:"expected_format,omitempty"`
	InstructionComment string     `json:"instruction_comment,omitempty" yaml:"instruction_comment,omitempty"`
}

// ReassignInput replaces the parties of a task. A nil deadline keeps the
// current date; the Clear flags remove it.
type ReassignInput struct {
	Assignee                string     `json:"assignee"`
	Validators              []string   `json:"validators"`
	Deadline                *time.Time `json:"deadline,omitempty"`
	ValidationDeadline      *time.Time `json:"validation_deadline,omitempty"`
	ClearDeadline           bool       `json:"clear_deadline,omitempty"`
	ClearValidationDeadline bool       `json:"clear_validation_deadline,omitempty"`
}

// SubmitInput carries an already durable artifact reference.
type SubmitInput struct {
	FileRef  string            `json:"file_ref"`
	FileName string            `json:"file_name,omitempty"`
	Comment  string            `json:"comment,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Upload carries deliverable bytes for SubmitUpload.
type Upload struct {
	FileName    string
	ContentType string
	Body        io.Reader
	Comment     string
	Metadata    map[string]string
}

// DecisionInput carries the comment of validate, reject and finalize.
type DecisionInput struct {
	Comment  string            `json:"comment,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// View is a task snapshot with its derived signals, for read paths.
type View struct {
	Task    *domain.Task           `json:"task"`
	Derived Derived                `json:"derived"`
	Allowed []constants.Transition `json:"allowed_transitions"`
}

// Create validates and persists a new task in Assigned. Administrator only.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if !actor.Admin {
		return nil, reviewerrors.Authorizationf("only an administrator may create tasks")
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = GenerateTaskID()
	}
	if !ValidTaskID(id) {
		return nil, reviewerrors.Validationf("invalid task ID %q", id)
	}

	t := &domain.Task{
		ID:                 id,
		ProjectID:          strings.TrimSpace(in.ProjectID),
		ProjectLabel:       in.ProjectLabel,
		Phase:              in.Phase,
		Section:            in.Section,
		Subsection:         in.Subsection,
		Label:              strings.TrimSpace(in.Label),
		Assignee:           strings.TrimSpace(in.Assignee),
		Validators:         trimAll(in.Validators),
		Deadline:           normalizeDate(in.Deadline),
		ValidationDeadline: normalizeDate(in.ValidationDeadline),
		ExpectedFormat:     in.ExpectedFormat,
		InstructionComment: in.InstructionComment,
	}
	if err := ValidateStructure(t, StructureOptions{EnforceDeadlineOrder: s.cfg.EnforceDeadlineOrder}); err != nil {
		return nil, err
	}

	created, _, err := s.machine.Create(ctx, t, actor.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.TaskCreated()
	s.logger.Info().
		Str("task_id", created.ID).
		Str("project_id", created.ProjectID).
		Str("assignee", created.Assignee).
		Strs("validators", created.Validators).
		Str("actor", actor.ID).
		Msg("task created")
	return created, nil
}

// Reassign replaces assignee, validators and deadlines. Administrator only;
// refused on finalized tasks.
func (s *Service) Reassign(ctx context.Context, taskID string, actor domain.Actor, in ReassignInput) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if !actor.Admin {
		return nil, reviewerrors.Authorizationf("only an administrator may reassign tasks")
	}
	if in.ClearDeadline && in.Deadline != nil {
		return nil, reviewerrors.Validationf("deadline cannot be both set and cleared")
	}
	if in.ClearValidationDeadline && in.ValidationDeadline != nil {
		return nil, reviewerrors.Validationf("validation deadline cannot be both set and cleared")
	}
	current, history, err := s.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}

	proposed := current.Clone()
	proposed.Assignee = strings.TrimSpace(in.Assignee)
	proposed.Validators = trimAll(in.Validators)
	switch {
	case in.ClearDeadline:
		proposed.Deadline = nil
	case in.Deadline != nil:
		proposed.Deadline = normalizeDate(in.Deadline)
	}
	switch {
	case in.ClearValidationDeadline:
		proposed.ValidationDeadline = nil
	case in.ValidationDeadline != nil:
		proposed.ValidationDeadline = normalizeDate(in.ValidationDeadline)
	}
	if err := ValidateStructure(proposed, StructureOptions{EnforceDeadlineOrder: s.cfg.EnforceDeadlineOrder}); err != nil {
		return nil, err
	}

	updated, _, err := s.machine.Reassign(ctx, current, history, proposed, actor.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("task_id", updated.ID).
		Str("assignee", updated.Assignee).
		Strs("validators", updated.Validators).
		Str("actor", actor.ID).
		Msg("task reassigned")
	return updated, nil
}

// Start moves an Assigned task to InProgress. Assignee only.
func (s *Service) Start(ctx context.Context, taskID string, actor domain.Actor) (*domain.Task, error) {
	return s.transition(ctx, taskID, actor, Request{Transition: constants.TransitionStart}, nil)
}

// Submit records a deliverable whose bytes are already durable. Assignee only;
// refused while a submission is pending.
func (s *Service) Submit(ctx context.Context, taskID string, actor domain.Actor, in SubmitInput) (*domain.Task, error) {
	req := Request{
		Transition: constants.TransitionSubmit,
		FileRef:    strings.TrimSpace(in.FileRef),
		FileName:   in.FileName,
		Comment:    in.Comment,
	}
	return s.transition(ctx, taskID, actor, req, in.Metadata)
}

// SubmitUpload stores up.Body through the configured Uploader and submits the
// returned reference. The transition is never applied unless the upload was
// acknowledged; a storage failure returns ErrResourceUnavailable and leaves the
// task untouched.
func (s *Service) SubmitUpload(ctx context.Context, taskID string, actor domain.Actor, up Upload) (*domain.Task, error) {
	if s.uploader == nil {
		return nil, reviewerrors.Resourcef(nil, "no artifact storage configured")
	}
	if up.Body == nil {
		return nil, reviewerrors.Validationf("a file is required to submit")
	}

	// Refuse early so a doomed submission does not leave an orphan upload.
	current, history, err := s.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	pre := Request{
		Transition: constants.TransitionSubmit,
		Caps:       domain.CapabilitiesFor(current, actor),
		FileRef:    "pending-upload",
	}
	if err := s.guard.Check(current, history, pre); err != nil {
		s.metrics.TransitionFailed(pre.Transition, reviewerrors.KindOf(err))
		return nil, err
	}
	if rule, _ := RuleFor(constants.TransitionSubmit); !rule.Allows(current.Status) {
		return nil, &reviewerrors.StateConflictError{
			TaskID: current.ID, Transition: pre.Transition, Actual: current.Status, Expected: rule.From,
		}
	}

	key := artifactKey(current, up.FileName, s.clock.Now())
	ref, err := s.uploader.Put(ctx, key, up.ContentType, up.Body)
	if err != nil {
		if reviewerrors.KindOf(err) == reviewerrors.KindInternal {
			err = reviewerrors.Resourcef(err, "upload of %q was not acknowledged", up.FileName)
		}
		s.metrics.TransitionFailed(pre.Transition, reviewerrors.KindOf(err))
		return nil, err
	}

	return s.Submit(ctx, taskID, actor, SubmitInput{
		FileRef:  ref,
		FileName: up.FileName,
		Comment:  up.Comment,
		Metadata: up.Metadata,
	})
}

// Validate approves the pending submission. Validator or administrator.
func (s *Service) Validate(ctx context.Context, taskID string, actor domain.Actor, in DecisionInput) (*domain.Task, error) {
	return s.transition(ctx, taskID, actor, Request{Transition: constants.TransitionValidate, Comment: in.Comment}, in.Metadata)
}

// Reject refuses the pending submission. Validator or administrator; a
// non-empty comment is required.
func (s *Service) Reject(ctx context.Context, taskID string, actor domain.Actor, in DecisionInput) (*domain.Task, error) {
	return s.transition(ctx, taskID, actor, Request{Transition: constants.TransitionReject, Comment: in.Comment}, in.Metadata)
}

// Finalize closes a Validated task for good. Administrator only.
func (s *Service) Finalize(ctx context.Context, taskID string, actor domain.Actor, in DecisionInput) (*domain.Task, error) {
	return s.transition(ctx, taskID, actor, Request{Transition: constants.TransitionFinalize, Comment: in.Comment}, in.Metadata)
}

// Get returns the persisted task.
func (s *Service) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.store.Get(ctx, taskID)
}

// History returns the task's audit log in chronological order.
func (s *Service) History(ctx context.Context, taskID string) ([]domain.HistoryEntry, error) {
	return s.store.History(ctx, taskID)
}

// Verify checks the integrity of the task's audit log.
func (s *Service) Verify(ctx context.Context, taskID string) error {
	current, history, err := s.store.Load(ctx, taskID)
	if err != nil {
		return err
	}
	if err := VerifyHistory(taskID, history); err != nil {
		return err
	}
	if n := len(history); n > 0 && history[n-1].ToStatus != current.Status {
		return fmt.Errorf("%w: task %q is %s but its last entry records %s",
			reviewerrors.ErrHistoryTampered, taskID, current.Status, history[n-1].ToStatus)
	}
	return VerifyParties(current, history)
}

// View returns the task, its derived signals and the transitions actor may request.
func (s *Service) View(ctx context.Context, taskID string, actor domain.Actor) (*View, error) {
	current, history, err := s.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &View{
		Task:    current,
		Derived: Derive(current, history, s.clock.Now()),
		Allowed: s.guard.AllowedTransitions(current, history, domain.CapabilitiesFor(current, actor)),
	}, nil
}

// List returns tasks matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*domain.Task, error) {
	return s.store.List(ctx, filter)
}

// transition is the shared path of every status-changing operation.
func (s *Service) transition(ctx context.Context, taskID string, actor domain.Actor, req Request, metadata map[string]string) (*domain.Task, error) {
	started := time.Now()
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	current, history, err := s.store.Load(ctx, taskID)
	if err != nil {
		s.metrics.TransitionFailed(req.Transition, reviewerrors.KindOf(err))
		return nil, err
	}

	req.Caps = domain.CapabilitiesFor(current, actor)
	if err := s.guard.Check(current, history, req); err != nil {
		s.refused(current, req, err)
		return nil, err
	}

	next, entry, err := s.machine.Apply(ctx, current, history, Command{
		Transition: req.Transition,
		ActorID:    actor.ID,
		FileRef:    req.FileRef,
		FileName:   req.FileName,
		Comment:    req.Comment,
		Metadata:   metadata,
	})
	if err != nil {
		s.refused(current, req, err)
		return nil, err
	}

	s.metrics.TransitionApplied(req.Transition, current.Status, next.Status, time.Since(started))
	s.logger.Info().
		Str("task_id", next.ID).
		Str("transition", req.Transition.String()).
		Str("action", entry.ActionType.String()).
		Str("actor", actor.ID).
		Str("from", current.Status.String()).
		Str("to", next.Status.String()).
		Int64("sequence", entry.Sequence).
		Msg("transition applied")

	s.notify(ctx, next, entry, req.Transition, actor.ID)
	return next, nil
}

// refused records a guard or machine refusal.
func (s *Service) refused(current *domain.Task, req Request, err error) {
	kind := reviewerrors.KindOf(err)
	s.metrics.TransitionFailed(req.Transition, kind)
	s.logger.Debug().
		Err(err).
		Str("task_id", current.ID).
		Str("transition", req.Transition.String()).
		Str("actor", req.Caps.ActorID).
		Str("status", current.Status.String()).
		Str("kind", string(kind)).
		Msg("transition refused")
}

// notify dispatches after commit. Errors are logged and swallowed; the caller
// hanging up does not cancel the dispatch.
func (s *Service) notify(ctx context.Context, t *domain.Task, entry domain.HistoryEntry, tr constants.Transition, actorID string) {
	nctx, cancel := ctxutil.Detached(ctx, s.cfg.NotifyTimeout)
	defer cancel()

	n := domain.Notification{
		TaskID:       t.ID,
		Transition:   tr,
		Action:       entry.ActionType,
		ActorID:      actorID,
		TaskLabel:    t.Label,
		ProjectID:    t.ProjectID,
		ProjectLabel: t.ProjectLabel,
		Status:       t.Status,
		Recipients:   recipientsFor(t, actorID),
		OccurredAt:   entry.PerformedAt,
	}
	if err := s.notifier.Notify(nctx, n); err != nil {
		s.metrics.NotificationFailed(tr)
		s.logger.Warn().
			Err(err).
			Str("task_id", t.ID).
			Str("transition", tr.String()).
			Msg("notification dispatch failed")
	}
}

// artifactKey builds the storage key for an uploaded deliverable:
// <project>/<task>/<unix-nanos>-<base name>.
func artifactKey(t *domain.Task, fileName string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "deliverable"
	}
	project := t.ProjectID
	if !ValidTaskID(project) {
		project = "project"
	}
	return fmt.Sprintf("%s/%s/%d-%s", project, t.ID, now.UnixNano(), base)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
