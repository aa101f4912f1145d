// Package tui provides terminal output components for taskreview.
//
// Colors use lipgloss.AdaptiveColor for light and dark terminals. Every status
// display pairs an icon, a color and the status text so it stays readable
// without color.
//
// Call CheckNoColor() at the start of commands to respect NO_COLOR and TERM=dumb.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mrz1836/taskreview/internal/constants"
)

//nolint:gochecknoglobals // Intentional package-level constants for styling API
var (
	// ColorPrimary is blue, used for active states.
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green, used for approved and closed items.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorWarning is yellow, used for items that wait on someone.
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorError is red, used for rejections and overdue deadlines.
	ColorError = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorMuted is gray, used for secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}

	// StyleBold applies bold formatting to text.
	StyleBold = lipgloss.NewStyle().Bold(true)

	// StyleDim applies faint formatting to text.
	StyleDim = lipgloss.NewStyle().Faint(true)
)

// TaskStatusColors returns the color of each task status.
func TaskStatusColors() map[constants.TaskStatus]lipgloss.AdaptiveColor {
	return map[constants.TaskStatus]lipgloss.AdaptiveColor{
		constants.TaskStatusAssigned:   ColorMuted,
		constants.TaskStatusInProgress: ColorPrimary,
		constants.TaskStatusSubmitted:  ColorWarning,
		constants.TaskStatusRejected:   ColorError,
		constants.TaskStatusValidated:  ColorSuccess,
		constants.TaskStatusFinalized:  ColorSuccess,
	}
}

// TaskStatusIcon returns the icon for a task status.
func TaskStatusIcon(status constants.TaskStatus) string {
	icons := map[constants.TaskStatus]string{
		constants.TaskStatusAssigned:   "○",
		constants.TaskStatusInProgress: "●",
		constants.TaskStatusSubmitted:  "⧗",
		constants.TaskStatusRejected:   "✗",
		constants.TaskStatusValidated:  "✓",
		constants.TaskStatusFinalized:  "■",
	}
	if icon, ok := icons[status]; ok {
		return icon
	}
	return "?"
}

// StatusLabel turns a status or action value into display text: "in_progress" becomes "In Progress".
func StatusLabel(value string) string {
	runes := []rune(value)
	for i, r := range runes {
		if r == '_' {
			runes[i] = ' '
		}
	}
	return cases.Title(language.English).String(string(runes))
}

// RenderStatus renders icon, color and label for status.
func RenderStatus(status constants.TaskStatus) string {
	text := TaskStatusIcon(status) + " " + StatusLabel(status.String())
	color, ok := TaskStatusColors()[status]
	if !ok || !HasColorSupport() {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

// OutputStyles holds common output styles.
type OutputStyles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
}

// NewOutputStyles creates common output styles.
func NewOutputStyles() *OutputStyles {
	return &OutputStyles{
		Success: lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Info:    lipgloss.NewStyle().Foreground(ColorPrimary),
		Dim:     lipgloss.NewStyle().Foreground(ColorMuted),
		Label:   lipgloss.NewStyle().Bold(true).Width(labelWidth),
	}
}

// labelWidth aligns key/value detail lines.
const labelWidth = 20

// CheckNoColor disables colors when the terminal does not want them.
func CheckNoColor() {
	if !HasColorSupport() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// HasColorSupport returns false if NO_COLOR is set (any value) or TERM=dumb.
func HasColorSupport() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}
