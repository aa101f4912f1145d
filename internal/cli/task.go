package cli

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrz1836/taskreview/internal/config"
	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	"github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/task"
)

// actorFlags resolves who a task command acts as.
// --as / TASKREVIEW_ACTOR names the actor in static mode; --token /
// TASKREVIEW_TOKEN carries a signed token in jwt mode.
type actorFlags struct {
	v *viper.Viper
}

func newActorFlags(cmd *cobra.Command) *actorFlags {
	f := &actorFlags{v: viper.New()}
	cmd.PersistentFlags().String("as", "", "actor ID to act as (static identity mode)")
	cmd.PersistentFlags().String("token", "", "bearer token to act with (jwt identity mode)")

	f.v.SetEnvPrefix(constants.EnvPrefix)
	_ = f.v.BindEnv("actor")
	_ = f.v.BindEnv("token")
	_ = f.v.BindPFlag("actor", cmd.PersistentFlags().Lookup("as"))
	_ = f.v.BindPFlag("token", cmd.PersistentFlags().Lookup("token"))
	return f
}

// credential returns what the identity provider should authenticate.
func (f *actorFlags) credential(cfg *config.Config) string {
	if cfg.Identity.Mode == config.IdentityJWT {
		return strings.TrimSpace(f.v.GetString("token"))
	}
	return strings.TrimSpace(f.v.GetString("actor"))
}

// resolve authenticates the caller.
func (f *actorFlags) resolve(ctx context.Context, a *app) (domain.Actor, error) {
	return a.auth.Authenticate(ctx, f.credential(a.cfg))
}

// resolveOptional authenticates the caller when a credential was given and
// returns the anonymous actor otherwise.
func (f *actorFlags) resolveOptional(ctx context.Context, a *app) (domain.Actor, error) {
	if f.credential(a.cfg) == "" {
		return domain.Actor{}, nil
	}
	return f.resolve(ctx, a)
}

// withApp opens the engine, runs fn and closes the engine again.
func withApp(ctx context.Context, s *session, fn func(a *app) error) error {
	a, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger := GetLogger()
			logger.Warn().Err(cerr).Msg("engine close failed")
		}
	}()
	return fn(a)
}

// addTaskCommand adds the task command group.
func addTaskCommand(root *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks", "t"},
		Short:   "Create, inspect and move tasks through review",
	}
	actors := newActorFlags(cmd)

	cmd.AddCommand(
		newTaskCreateCmd(s, actors),
		newTaskShowCmd(s, actors),
		newTaskListCmd(s),
		newTaskHistoryCmd(s),
		newTaskVerifyCmd(s),
		newTaskReassignCmd(s, actors),
		newTaskStartCmd(s, actors),
		newTaskSubmitCmd(s, actors),
		newTaskDecisionCmd(s, actors, constants.TransitionValidate),
		newTaskDecisionCmd(s, actors, constants.TransitionReject),
		newTaskDecisionCmd(s, actors, constants.TransitionFinalize),
	)
	root.AddCommand(cmd)
}

func newTaskShowCmd(s *session, actors *actorFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its deadlines and allowed transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), s, func(a *app) error {
				actor, err := actors.resolveOptional(cmd.Context(), a)
				if err != nil {
					return err
				}
				view, err := a.service.View(cmd.Context(), args[0], actor)
				if err != nil {
					return err
				}
				out := s.output(cmd)
				if out.IsJSON() {
					return out.JSON(view)
				}
				renderView(out, view)
				return nil
			})
		},
	}
}

func newTaskListCmd(s *session) *cobra.Command {
	var (
		filter task.ListFilter
		status string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "" {
				filter.Status = constants.TaskStatus(status)
				if !filter.Status.IsKnown() {
					return errors.Validationf("unknown status %q", status)
				}
			}
			return withApp(cmd.Context(), s, func(a *app) error {
				tasks, err := a.service.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := s.output(cmd)
				if out.IsJSON() {
					if tasks == nil {
						tasks = []*domain.Task{}
					}
					return out.JSON(tasks)
				}
				renderTaskTable(cmd.OutOrStdout(), out, tasks)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.ProjectID, "project", "", "only tasks of this project")
	cmd.Flags().StringVar(&filter.Assignee, "assignee", "", "only tasks assigned to this actor")
	cmd.Flags().StringVar(&filter.Validator, "validator", "", "only tasks this actor validates")
	cmd.Flags().StringVar(&status, "status", "", "only tasks in this status")
	return cmd
}

func newTaskHistoryCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show the audit history of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), s, func(a *app) error {
				history, err := a.service.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := s.output(cmd)
				if out.IsJSON() {
					return out.JSON(history)
				}
				renderHistory(cmd.OutOrStdout(), history)
				return nil
			})
		},
	}
}

// verifyResult is the JSON shape of task verify.
type verifyResult struct {
	TaskID   string `json:"task_id"`
	Verified bool   `json:"verified"`
	Problem  string `json:"problem,omitempty"`
}

func newTaskVerifyCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <task-id>",
		Short: "Check the audit history hash chain of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), s, func(a *app) error {
				err := a.service.Verify(cmd.Context(), args[0])
				if err != nil && !stderrors.Is(err, errors.ErrHistoryTampered) {
					return err
				}

				result := verifyResult{TaskID: args[0], Verified: err == nil}
				if err != nil {
					result.Problem = err.Error()
				}
				out := s.output(cmd)
				if out.IsJSON() {
					if jerr := out.JSON(result); jerr != nil {
						return jerr
					}
				} else if result.Verified {
					out.Success("history of " + args[0] + " verified")
				}
				if err != nil {
					return errors.NewExitCode2Error(err)
				}
				return nil
			})
		},
	}
}
