package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	"github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/task"
	"github.com/mrz1836/taskreview/internal/tui"
)

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty means no date.
func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil //nolint:nilnil // absent date is not an error
	}
	for _, layout := range []string{constants.DateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Validationf("--%s must be a date like 2006-01-02, got %q", field, value)
}

// readSeed decodes a YAML seed file holding one task or a list of tasks.
func readSeed(path string) ([]task.CreateInput, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is supplied by the operator
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read seed file %s", path)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, errors.Validationf("seed file %s is not valid YAML: %v", path, err)
	}
	if len(node.Content) == 0 {
		return nil, errors.Validationf("seed file %s is empty", path)
	}

	doc := node.Content[0]
	if doc.Kind == yaml.SequenceNode {
		var inputs []task.CreateInput
		if err := doc.Decode(&inputs); err != nil {
			return nil, errors.Validationf("seed file %s: %v", path, err)
		}
		return inputs, nil
	}

	var in task.CreateInput
	if err := doc.Decode(&in); err != nil {
		return nil, errors.Validationf("seed file %s: %v", path, err)
	}
	return []task.CreateInput{in}, nil
}

func newTaskCreateCmd(s *session, actors *actorFlags) *cobra.Command {
	var (
		in                         task.CreateInput
		seed                       string
		deadline, validationByDate string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create tasks from flags or a YAML seed file (administrators only)",
		Example: `  taskreview task create --as root --project p1 --label "Kitchen plan" \
      --assignee alice --validators bob,carol --deadline 2026-03-10

  taskreview task create --as root -f tasks.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inputs := []task.CreateInput{in}
			if seed != "" {
				var err error
				if inputs, err = readSeed(seed); err != nil {
					return err
				}
			} else {
				var err error
				if inputs[0].Deadline, err = parseDate("deadline", deadline); err != nil {
					return err
				}
				if inputs[0].ValidationDeadline, err = parseDate("validation-deadline", validationByDate); err != nil {
					return err
				}
			}

			return withApp(cmd.Context(), s, func(a *app) error {
				actor, err := actors.resolve(cmd.Context(), a)
				if err != nil {
					return err
				}

				created := make([]*domain.Task, 0, len(inputs))
				for i := range inputs {
					t, err := a.service.Create(cmd.Context(), actor, inputs[i])
					if err != nil {
						if len(inputs) > 1 {
							return errors.Wrapf(err, "seed entry %d (%s)", i+1, inputs[i].Label)
						}
						return err
					}
					created = append(created, t)
				}

				out := s.output(cmd)
				if out.IsJSON() {
					if seed == "" {
						return out.JSON(created[0])
					}
					return out.JSON(created)
				}
				for _, t := range created {
					out.Success(fmt.Sprintf("created %s (%s) for %s", t.ID, t.Label, t.Assignee))
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&seed, "file", "f", "", "YAML file with one task or a list of tasks")
	f.StringVar(&in.ID, "id", "", "task ID (generated when empty)")
	f.StringVar(&in.ProjectID, "project", "", "project ID")
	f.StringVar(&in.ProjectLabel, "project-label", "", "project display name")
	f.StringVar(&in.Phase, "phase", "", "phase within the project")
	f.StringVar(&in.Section, "section", "", "section within the phase")
	f.StringVar(&in.Subsection, "subsection", "", "subsection within the section")
	f.StringVar(&in.Label, "label", "", "task name")
	f.StringVar(&in.Assignee, "assignee", "", "actor who produces the deliverable")
	f.StringSliceVar(&in.Validators, "validators", nil, "actors who review the deliverable")
	f.StringVar(&deadline, "deadline", "", "submission due date (YYYY-MM-DD)")
	f.StringVar(&validationByDate, "validation-deadline", "", "review due date (YYYY-MM-DD)")
	f.StringVar(&in.ExpectedFormat, "format", "", "expected deliverable format, e.g. pdf")
	f.StringVar(&in.InstructionComment, "instruction", "", "instructions for the assignee")
	cmd.MarkFlagsMutuallyExclusive("file", "label")
	cmd.MarkFlagsMutuallyExclusive("file", "assignee")
	cmd.MarkFlagsMutuallyExclusive("file", "validators")
	return cmd
}

func newTaskReassignCmd(s *session, actors *actorFlags) *cobra.Command {
	var (
		in                         task.ReassignInput
		deadline, validationByDate string
	)

	cmd := &cobra.Command{
		Use:   "reassign <task-id>",
		Short: "Replace the assignee, validators and deadlines (administrators only)",
		Long: `Replace the assignee and validators of a task that is not finalized.

Deadlines keep their current value unless a new date is given or the matching
--clear flag is set.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.Deadline, err = parseDate("deadline", deadline); err != nil {
				return err
			}
			if in.ValidationDeadline, err = parseDate("validation-deadline", validationByDate); err != nil {
				return err
			}
			return runTransition(cmd, s, actors, func(ctx context.Context, a *app, actor domain.Actor) (*domain.Task, error) {
				return a.service.Reassign(ctx, args[0], actor, in)
			}, "reassigned")
		},
	}

	cmd.Flags().StringVar(&in.Assignee, "assignee", "", "new assignee")
	cmd.Flags().StringSliceVar(&in.Validators, "validators", nil, "new validators")
	cmd.Flags().StringVar(&deadline, "deadline", "", "new submission due date (YYYY-MM-DD), default keeps the current one")
	cmd.Flags().StringVar(&validationByDate, "validation-deadline", "", "new review due date (YYYY-MM-DD), default keeps the current one")
	cmd.Flags().BoolVar(&in.ClearDeadline, "clear-deadline", false, "remove the submission due date")
	cmd.Flags().BoolVar(&in.ClearValidationDeadline, "clear-validation-deadline", false, "remove the review due date")
	cmd.MarkFlagsMutuallyExclusive("deadline", "clear-deadline")
	cmd.MarkFlagsMutuallyExclusive("validation-deadline", "clear-validation-deadline")
	_ = cmd.MarkFlagRequired("assignee")
	_ = cmd.MarkFlagRequired("validators")
	return cmd
}

func newTaskStartCmd(s *session, actors *actorFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start work on an assigned task (assignee only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, s, actors, func(ctx context.Context, a *app, actor domain.Actor) (*domain.Task, error) {
				return a.service.Start(ctx, args[0], actor)
			}, "started")
		},
	}
}

func newTaskSubmitCmd(s *session, actors *actorFlags) *cobra.Command {
	var (
		file    string
		ref     string
		name    string
		comment string
	)

	cmd := &cobra.Command{
		Use:   "submit <task-id>",
		Short: "Submit a deliverable for review (assignee only)",
		Long: `Submit a deliverable for review.

With --file the bytes are uploaded to artifact storage first and the task
records the resulting reference. With --ref an already stored artifact is
submitted as is. Submitting a rejected task records a resubmission.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && ref == "" {
				return errors.Validationf("one of --file or --ref is required")
			}
			return runTransition(cmd, s, actors, func(ctx context.Context, a *app, actor domain.Actor) (*domain.Task, error) {
				if ref != "" {
					return a.service.Submit(ctx, args[0], actor, task.SubmitInput{FileRef: ref, FileName: name, Comment: comment})
				}
				return submitFile(ctx, a, args[0], actor, file, name, comment)
			}, "submitted")
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "deliverable to upload")
	cmd.Flags().StringVar(&ref, "ref", "", "reference of an already stored artifact")
	cmd.Flags().StringVar(&name, "name", "", "display file name (defaults to the file's base name)")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "submission comment")
	cmd.MarkFlagsMutuallyExclusive("file", "ref")
	return cmd
}

// submitFile streams path into artifact storage through SubmitUpload.
func submitFile(ctx context.Context, a *app, taskID string, actor domain.Actor, path, name, comment string) (*domain.Task, error) {
	f, err := os.Open(path) //#nosec G304 -- path is supplied by the operator
	if err != nil {
		return nil, errors.Validationf("cannot open deliverable: %v", err)
	}
	defer func() { _ = f.Close() }()

	if info, statErr := f.Stat(); statErr == nil {
		logger := GetLogger()
		logger.Debug().Str("file", path).Str("size", tui.Bytes(info.Size())).Msg("uploading deliverable")
	}

	if name == "" {
		name = filepath.Base(path)
	}
	return a.service.SubmitUpload(ctx, taskID, actor, task.Upload{
		FileName:    name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Body:        f,
		Comment:     comment,
	})
}

func newTaskDecisionCmd(s *session, actors *actorFlags, tr constants.Transition) *cobra.Command {
	var (
		in  task.DecisionInput
		yes bool
	)

	short := map[constants.Transition]string{
		constants.TransitionValidate: "Approve the pending submission (validators only)",
		constants.TransitionReject:   "Reject the pending submission with a reason (validators only)",
		constants.TransitionFinalize: "Finalize a validated task (administrators only)",
	}
	past := map[constants.Transition]string{
		constants.TransitionValidate: "validated",
		constants.TransitionReject:   "rejected",
		constants.TransitionFinalize: "finalized",
	}

	cmd := &cobra.Command{
		Use:   string(tr) + " <task-id>",
		Short: short[tr],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptDecision(tr, args[0], &in, yes); err != nil {
				return err
			}
			return runTransition(cmd, s, actors, func(ctx context.Context, a *app, actor domain.Actor) (*domain.Task, error) {
				switch tr {
				case constants.TransitionValidate:
					return a.service.Validate(ctx, args[0], actor, in)
				case constants.TransitionReject:
					return a.service.Reject(ctx, args[0], actor, in)
				default:
					return a.service.Finalize(ctx, args[0], actor, in)
				}
			}, past[tr])
		},
	}

	usage := "decision comment"
	if tr == constants.TransitionReject {
		usage = "rejection reason (required)"
	}
	cmd.Flags().StringVarP(&in.Comment, "comment", "m", "", usage)
	if tr == constants.TransitionFinalize {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	}
	return cmd
}

// promptDecision fills in what a person at a terminal left out: the reason of
// a rejection and the confirmation of a finalize. Without a terminal nothing
// is asked and the service enforces the rules.
func promptDecision(tr constants.Transition, taskID string, in *task.DecisionInput, yes bool) error {
	if !tui.IsInteractive() {
		return nil
	}
	switch tr {
	case constants.TransitionReject:
		if strings.TrimSpace(in.Comment) != "" {
			return nil
		}
		reason, err := tui.TextArea("Why is "+taskID+" rejected?", true)
		if err != nil {
			return err
		}
		in.Comment = reason
	case constants.TransitionFinalize:
		if yes {
			return nil
		}
		ok, err := tui.Confirm("Finalize "+taskID+"?", "A finalized task accepts no further changes.")
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrPromptCanceled
		}
	case constants.TransitionStart, constants.TransitionSubmit, constants.TransitionValidate:
	}
	return nil
}

// runTransition authenticates the caller, runs op and prints the result.
func runTransition(cmd *cobra.Command, s *session, actors *actorFlags,
	op func(ctx context.Context, a *app, actor domain.Actor) (*domain.Task, error), verb string,
) error {
	return withApp(cmd.Context(), s, func(a *app) error {
		actor, err := actors.resolve(cmd.Context(), a)
		if err != nil {
			return err
		}
		t, err := op(cmd.Context(), a, actor)
		if err != nil {
			return err
		}

		out := s.output(cmd)
		if out.IsJSON() {
			return out.JSON(t)
		}
		out.Success(fmt.Sprintf("%s %s", t.ID, verb))
		out.Field("Status", tui.RenderStatus(t.Status))
		out.Field("Version", fmt.Sprintf("%d", t.Version))
		return nil
	})
}
