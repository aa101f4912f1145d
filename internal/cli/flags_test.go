package cli

import (
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/errors"
)

func TestExitCodeForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", errors.Validationf("comment required"), ExitInvalidInput},
		{"authorization", errors.Authorizationf("not a validator"), ExitInvalidInput},
		{"conflict", &errors.StateConflictError{TaskID: "t-1", Actual: constants.TaskStatusValidated}, ExitInvalidInput},
		{"output format", fmt.Errorf("%w: xml", errors.ErrInvalidOutputFormat), ExitInvalidInput},
		{"exit code 2 wrapper", errors.NewExitCode2Error(assert.AnError), ExitInvalidInput},
		{"cobra flag error", fmt.Errorf("unknown flag: --nope"), ExitInvalidInput},
		{"not found", errors.ErrTaskNotFound, ExitError},
		{"resource", errors.Resourcef(nil, "down"), ExitError},
		{"internal", assert.AnError, ExitError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, ExitCodeForError(tc.err))
		})
	}
}

func TestIsValidOutputFormat(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidOutputFormat(OutputText))
	assert.True(t, IsValidOutputFormat(OutputJSON))
	assert.False(t, IsValidOutputFormat("yaml"))
}

func TestBindGlobalFlags(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "test"}
	AddGlobalFlags(cmd, &GlobalFlags{})
	v := viper.New()

	require.NoError(t, BindGlobalFlags(v, cmd))
	require.NoError(t, cmd.PersistentFlags().Set("output", OutputJSON))
	assert.Equal(t, OutputJSON, v.GetString("output"))
}
