// Package printer provides colored terminal output for the CLI.
package printer

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a success message in green with a checkmark prefix.
func Success(format string, a ...any) {
	green.Printf("✓ %s\n", fmt.Sprintf(format, a...))
}

// Info prints an informational message in the default color.
func Info(format string, a ...any) {
	fmt.Printf(format+"\n", a...)
}

// Warning prints a warning message in yellow.
func Warning(format string, a ...any) {
	yellow.Printf("! %s\n", fmt.Sprintf(format, a...))
}

// Step prints a step message, used in multi-step operations.
func Step(format string, a ...any) {
	cyan.Printf("→ %s\n", fmt.Sprintf(format, a...))
}

// Error prints a message to stderr in red and returns a plain error for
// Cobra (which won't reprint it due to SilenceErrors).
func Error(format string, a ...any) error {
	msg := fmt.Sprintf(format, a...)
	red.Fprintf(os.Stderr, "%s\n", msg)
	return fmt.Errorf("%s", msg)
}

// Printf prints a plain formatted message.
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}
