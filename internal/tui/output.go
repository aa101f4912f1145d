package tui

import (
	"encoding/json"
	"fmt"
	"io"

	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// Output provides methods for structured output to a terminal.
type Output interface {
	// Success prints a success message.
	Success(msg string)
	// Error prints an error with its suggested action.
	Error(err error)
	// Warning prints a warning message.
	Warning(msg string)
	// Info prints an informational message.
	Info(msg string)
	// Field prints one aligned "label: value" line.
	Field(label, value string)
	// JSON outputs a value as formatted JSON.
	JSON(v any) error
	// IsJSON reports whether callers should emit JSON instead of text.
	IsJSON() bool
}

// TTYOutput provides styled output for terminal displays.
type TTYOutput struct {
	w      io.Writer
	styles *OutputStyles
}

// NewTTYOutput creates a new TTYOutput.
func NewTTYOutput(w io.Writer) *TTYOutput {
	return &TTYOutput{w: w, styles: NewOutputStyles()}
}

// Success prints a success message.
func (o *TTYOutput) Success(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Success.Render("✓ "+msg))
}

// Error prints the user message of err and its suggested action.
func (o *TTYOutput) Error(err error) {
	message, action := reviewerrors.Actionable(err)
	_, _ = fmt.Fprintln(o.w, o.styles.Error.Render("✗ "+message))
	if detail := err.Error(); detail != message {
		_, _ = fmt.Fprintln(o.w, o.styles.Dim.Render("  "+detail))
	}
	if action != "" {
		_, _ = fmt.Fprintln(o.w, o.styles.Info.Render("  → "+action))
	}
}

// Warning prints a warning message.
func (o *TTYOutput) Warning(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Warning.Render("⚠ "+msg))
}

// Info prints an informational message.
func (o *TTYOutput) Info(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Info.Render(msg))
}

// Field prints one aligned detail line. Empty values are skipped.
func (o *TTYOutput) Field(label, value string) {
	if value == "" {
		return
	}
	_, _ = fmt.Fprintln(o.w, o.styles.Label.Render(label+":")+value)
}

// JSON outputs a value as formatted JSON.
func (o *TTYOutput) JSON(v any) error {
	return encodeJSON(o.w, v)
}

// IsJSON implements Output.
func (o *TTYOutput) IsJSON() bool { return false }

// JSONOutput provides plain JSON output without styling.
type JSONOutput struct {
	w io.Writer
}

// NewJSONOutput creates a new JSONOutput.
func NewJSONOutput(w io.Writer) *JSONOutput {
	return &JSONOutput{w: w}
}

// Success is a no-op for JSON output.
func (o *JSONOutput) Success(_ string) {}

// jsonError is the shape of errors in JSON mode.
type jsonError struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// Error outputs the error as JSON.
func (o *JSONOutput) Error(err error) {
	message, action := reviewerrors.Actionable(err)
	_ = encodeJSON(o.w, jsonError{
		Error:   err.Error(),
		Kind:    string(reviewerrors.KindOf(err)),
		Message: message,
		Action:  action,
	})
}

// Warning is a no-op for JSON output.
func (o *JSONOutput) Warning(_ string) {}

// Info is a no-op for JSON output.
func (o *JSONOutput) Info(_ string) {}

// Field is a no-op for JSON output.
func (o *JSONOutput) Field(_, _ string) {}

// JSON outputs a value as formatted JSON.
func (o *JSONOutput) JSON(v any) error {
	return encodeJSON(o.w, v)
}

// IsJSON implements Output.
func (o *JSONOutput) IsJSON() bool { return true }

func encodeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// NewOutput creates the appropriate output based on format.
func NewOutput(w io.Writer, format string) Output {
	if format == "json" {
		return NewJSONOutput(w)
	}
	return NewTTYOutput(w)
}
