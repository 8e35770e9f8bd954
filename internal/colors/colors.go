// Package colors provides terminal color support for ivm output.
//
// This package provides:
// - ANSI color codes for terminal output
// - Functions to colorize commit ids, operations, phases and troubles
// - Automatic color detection and fallback for non-color terminals
package colors

import (
	"os"
	"runtime"
	"strings"
)

// ANSI color codes
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorDim   = "\033[2m"

	ColorGray = "\033[90m"

	BrightRed     = "\033[91m"
	BrightGreen   = "\033[92m"
	BrightYellow  = "\033[93m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"
)

// colorEnabled determines if color output should be used
var colorEnabled = shouldUseColor()

// shouldUseColor determines if the terminal supports colors
func shouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}

	term := strings.ToLower(os.Getenv("TERM"))
	if runtime.GOOS == "windows" {
		return os.Getenv("WT_SESSION") != "" || os.Getenv("VSCODE_PID") != "" ||
			strings.Contains(term, "color") || strings.Contains(term, "xterm")
	}
	if term == "dumb" || term == "" {
		return false
	}

	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return true
}

// SetColorEnabled allows manual control of color output
func SetColorEnabled(enabled bool) {
	colorEnabled = enabled
}

// IsColorEnabled returns whether colors are currently enabled
func IsColorEnabled() bool {
	return colorEnabled
}

func colorize(text, color string) string {
	if !colorEnabled {
		return text
	}
	return color + text + ColorReset
}

// CommitID colors a commit hash.
func CommitID(text string) string {
	return colorize(text, BrightYellow)
}

// Op colors an operation label.
func Op(text string) string {
	return colorize(text, BrightCyan)
}

// Hidden marks a commit that default queries do not show.
func Hidden(text string) string {
	return colorize(text, ColorGray)
}

// Trouble colors an instability flag such as orphan.
func Trouble(text string) string {
	return colorize(text, BrightRed)
}

// Phase colors a phase name.
func Phase(name string) string {
	switch name {
	case "public":
		return colorize(name, BrightGreen)
	case "draft":
		return colorize(name, BrightBlue)
	case "secret":
		return colorize(name, BrightMagenta)
	default:
		return name
	}
}

func Bold(text string) string {
	return colorize(text, ColorBold)
}

func Dim(text string) string {
	return colorize(text, ColorDim)
}

func SectionHeader(text string) string {
	return Bold(text)
}

func ErrorText(text string) string {
	return colorize(text, BrightRed)
}

func SuccessText(text string) string {
	return colorize(text, BrightGreen)
}

func InfoText(text string) string {
	return colorize(text, BrightCyan)
}

func WarningText(text string) string {
	return colorize(text, BrightYellow)
}
