package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrz1836/taskreview/internal/config"
	"github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/tui"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	// Version is the semantic version (e.g., "1.0.0").
	Version string
	// Commit is the git commit hash.
	Commit string
	// Date is the build date.
	Date string
}

// globalLogger stores the initialized logger for use by subcommands.
// It is set during PersistentPreRunE and read through GetLogger.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// GetLogger returns the initialized logger for use by subcommands.
//
// It MUST only be called after the root command's PersistentPreRunE has
// executed. Before that it returns a zero-value logger that discards output.
func GetLogger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// session carries what PersistentPreRunE resolved to the subcommands.
type session struct {
	flags *GlobalFlags
	cfg   *config.Config
}

// output returns the writer-backed Output for the selected format.
func (s *session) output(cmd *cobra.Command) tui.Output {
	return tui.NewOutput(cmd.OutOrStdout(), s.flags.Output)
}

// open wires the engine. Callers must Close the returned app.
func (s *session) open(ctx context.Context) (*app, error) {
	if s.cfg == nil {
		return nil, errors.ErrConfigNil
	}
	return newApp(ctx, s.cfg, GetLogger())
}

// loadConfig reads the layered configuration and applies the flag overrides.
func loadConfig(ctx context.Context, flags *GlobalFlags) (*config.Config, error) {
	overrides := &config.Config{}
	overrides.Store.Driver = flags.Store
	overrides.Store.Path = flags.StorePath

	cfg, err := config.LoadWithOverrides(ctx, overrides)
	if err != nil {
		return nil, err
	}

	home, err := config.GlobalConfigDir()
	if err != nil {
		return nil, err
	}
	cfg.ResolvePaths(home)
	return cfg, nil
}

// newRootCmd creates the root command for the taskreview CLI.
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	v := viper.New()
	s := &session{flags: flags}

	cmd := &cobra.Command{
		Use:   "taskreview",
		Short: "Task review workflow engine",
		Long: `taskreview tracks deliverables through assignment, submission and review.

An assignee starts and submits work, validators approve or reject it, and an
administrator finalizes validated tasks. Every transition is recorded in a
tamper-evident audit history.`,
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := BindGlobalFlags(v, cmd); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			flags.Output = v.GetString("output")
			flags.Verbose = v.GetBool("verbose")
			flags.Quiet = v.GetBool("quiet")

			if !IsValidOutputFormat(flags.Output) {
				return fmt.Errorf("%w: %q must be one of %v", errors.ErrInvalidOutputFormat, flags.Output, ValidOutputFormats())
			}

			cfg, err := loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			s.cfg = cfg

			tui.CheckNoColor()

			globalLoggerMu.Lock()
			globalLogger = InitLogger(flags.Verbose, flags.Quiet, cfg.Log)
			globalLoggerMu.Unlock()

			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			CloseLogFile()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(cmd, flags)

	addServeCommand(cmd, s)
	addTaskCommand(cmd, s)
	addConfigCommand(cmd, s)
	addTokenCommand(cmd, s)

	return cmd
}

// formatVersion creates the version string from build info.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command. Errors are printed in the selected output
// format before being returned for the exit code.
func Execute(ctx context.Context, info BuildInfo) error {
	flags := &GlobalFlags{}
	//nolint:contextcheck // Cobra command pattern uses cmd.Context() internally
	cmd := newRootCmd(flags, info)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		format := flags.Output
		if !IsValidOutputFormat(format) {
			format = OutputText
		}
		tui.NewOutput(cmd.ErrOrStderr(), format).Error(err)
	}
	return err
}
