// Package console formats the human-facing progress/summary lines the CLI
// prints to stderr while a batch run is in flight: per-repo success/failure
// markers, the final run summary, and error messages with suggestions.
package console

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/ci-migrate/cipilot/pkg/logger"
	"github.com/ci-migrate/cipilot/pkg/styles"
	"golang.org/x/term"
)

var consoleLog = logger.New("console:console")

// isTTY checks if stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// applyStyle conditionally applies styling based on TTY status.
func applyStyle(style lipgloss.Style, text string) string {
	if isTTY() {
		return style.Render(text)
	}
	return text
}

// FormatSuccessMessage formats a success message with styling.
func FormatSuccessMessage(message string) string {
	return applyStyle(styles.Success, "✓ ") + message
}

// FormatInfoMessage formats an informational message.
func FormatInfoMessage(message string) string {
	return applyStyle(styles.Info, "ℹ ") + message
}

// FormatWarningMessage formats a warning message.
func FormatWarningMessage(message string) string {
	return applyStyle(styles.Warning, "⚠ ") + message
}

// FormatErrorMessage formats a simple error message (for stderr output).
func FormatErrorMessage(message string) string {
	return applyStyle(styles.Error, "✗ ") + message
}

// FormatProgressMessage formats a progress/activity message; PrintProgress
// uses it for its per-repo line.
func FormatProgressMessage(message string) string {
	return applyStyle(styles.Progress, "⚒ ") + message
}

// FormatCountMessage formats a count/numeric status message.
func FormatCountMessage(message string) string {
	return applyStyle(styles.Count, "\U0001F4CA ") + message
}

// FormatVerboseMessage formats verbose debugging output.
func FormatVerboseMessage(message string) string {
	return applyStyle(styles.Verbose, "\U0001F50D ") + message
}

// FormatErrorWithSuggestions formats an error message followed by a list
// of actionable suggestions.
func FormatErrorWithSuggestions(message string, suggestions []string) string {
	out := FormatErrorMessage(message)
	if len(suggestions) == 0 {
		return out
	}
	out += "\n\nSuggestions:\n"
	for _, s := range suggestions {
		out += "  • " + s + "\n"
	}
	return out
}

// PrintProgress logs a progress message to stderr, gated the same way the
// namespaced debug logger is, plus an always-on human summary line.
func PrintProgress(repoFullName, message string) {
	fmt.Fprintln(os.Stderr, FormatProgressMessage(fmt.Sprintf("%s: %s", repoFullName, message)))
	consoleLog.Printf("%s: %s", repoFullName, message)
}
