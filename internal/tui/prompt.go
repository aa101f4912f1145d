package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// promptWidth caps prompts on wide terminals.
const promptWidth = 72

// IsInteractive reports whether stdin is a terminal a prompt can read from.
//
//nolint:gochecknoglobals // Replaced in tests
var IsInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Theme returns the huh theme mapped onto the status palette.
func Theme() *huh.Theme {
	CheckNoColor()

	t := huh.ThemeBase()
	t.Focused.Base = t.Focused.Base.BorderForeground(ColorPrimary)
	t.Focused.Title = t.Focused.Title.Foreground(ColorPrimary)
	t.Focused.TextInput.Cursor = t.Focused.TextInput.Cursor.Foreground(ColorPrimary)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorError)
	t.Focused.ErrorIndicator = t.Focused.ErrorIndicator.Foreground(ColorError)
	t.Focused.Description = t.Focused.Description.Foreground(ColorMuted)
	t.Blurred.Title = t.Blurred.Title.Foreground(ColorMuted)
	return t
}

// runField shows a single-field form. Without a terminal it returns
// ErrPromptCanceled instead of blocking.
func runField(field huh.Field, errorContext string) error {
	if !IsInteractive() {
		return reviewerrors.ErrPromptCanceled
	}

	_, accessible := os.LookupEnv("ACCESSIBLE")
	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(Theme()).
		WithWidth(promptWidth).
		WithAccessible(accessible)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return reviewerrors.ErrPromptCanceled
		}
		return fmt.Errorf("%s: %w", errorContext, err)
	}
	return nil
}

// Confirm asks a yes/no question.
func Confirm(title, description string) (bool, error) {
	var confirmed bool
	field := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)

	if err := runField(field, "confirm prompt failed"); err != nil {
		return false, err
	}
	return confirmed, nil
}

// TextArea asks for free text. required rejects blank answers in the form.
func TextArea(title string, required bool) (string, error) {
	var value string
	field := huh.NewText().
		Title(title).
		Value(&value)
	if required {
		field = field.Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a response is required")
			}
			return nil
		})
	}

	if err := runField(field, "text prompt failed"); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}
