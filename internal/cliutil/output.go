// Package cliutil provides the debug CLI's output helpers: indented JSON
// printing and lipgloss-styled status lines, matching the palette the
// teacher's terminal UI uses for healthy/degraded/unhealthy states.
package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.Color("#22c55e")
	colorWarn    = lipgloss.Color("#eab308")
	colorError   = lipgloss.Color("#ef4444")
	colorMuted   = lipgloss.Color("#9ca3af")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
)

// PrintJSON writes v to w as indented JSON, matching the two-space layout
// the original implementation's _print helper used.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success prints msg to stdout in the success style.
func Success(msg string) {
	fmt.Fprintln(os.Stdout, successStyle.Render(msg))
}

// Warn prints msg to stderr in the warn style.
func Warn(msg string) {
	fmt.Fprintln(os.Stderr, warnStyle.Render(msg))
}

// Error prints msg to stderr in the error style.
func Error(msg string) {
	fmt.Fprintln(os.Stderr, errorStyle.Render(msg))
}

// Dim prints msg to stderr in a muted style, for secondary/hint text.
func Dim(msg string) {
	fmt.Fprintln(os.Stderr, dimStyle.Render(msg))
}
