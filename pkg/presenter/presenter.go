// Package presenter provides consistent CLI output for user-facing messages,
// covering success, error, warning, and informational output with color
// support and a quiet mode. Structured logs stay in pkg/logger; everything a
// human is meant to read goes through here.
package presenter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// CorpusStats summarizes a workspace snapshot for display after commands
// that walk the whole corpus (lint, sync, init).
type CorpusStats struct {
	Commands int
	Skills   int
	Agents   int
	Plugins  int
	Shadowed int
}

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Prompt(question string, options ...string) string
	Stats(stats *CorpusStats)
	Separator()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto lets the color package detect terminal capabilities
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output
	ColorAlways
	// ColorNever disables colored output
	ColorNever
)

// New creates a TerminalPresenter with default settings
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a TerminalPresenter with custom settings
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	p := &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}

	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
		// color package auto-detects
	}

	return p
}

// detectColorMode determines the color mode from the environment. NO_COLOR
// always wins; PROMPTPACK_COLOR can force either direction.
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("PROMPTPACK_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error displays an error message to stderr. Errors print even in quiet mode.
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}

	successColor := color.New(color.FgGreen, color.Bold)
	successColor.Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}

	warningColor := color.New(color.FgYellow, color.Bold)
	warningColor.Fprintf(p.output, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}

	fmt.Fprintf(p.output, "%s\n", message)
}

// Section displays a section header with consistent formatting
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Prompt displays a prompt and reads a line from stdin
func (p *TerminalPresenter) Prompt(question string, options ...string) string {
	promptColor := color.New(color.FgCyan)

	if len(options) > 0 {
		promptColor.Fprintf(p.output, "%s [%s]: ", question, strings.Join(options, "/"))
	} else {
		promptColor.Fprintf(p.output, "%s: ", question)
	}

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}

	return strings.TrimSpace(response)
}

// Stats displays corpus totals in a consistent format
func (p *TerminalPresenter) Stats(stats *CorpusStats) {
	if p.quiet || stats == nil {
		return
	}

	statsColor := color.New(color.FgCyan, color.Bold)
	total := stats.Commands + stats.Skills + stats.Agents
	statsColor.Fprintf(p.output, "[Corpus] Commands: %d | Skills: %d | Agents: %d | Plugins: %d | Total entries: %d\n",
		stats.Commands, stats.Skills, stats.Agents, stats.Plugins, total)

	if stats.Shadowed > 0 {
		statsColor.Fprintf(p.output, "[Shadowed] %d lower-precedence entries hidden\n", stats.Shadowed)
	}
}

// Separator displays a visual separator
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}

	separatorColor := color.New(color.Faint)
	separatorColor.Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet returns whether quiet mode is enabled
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

// Global presenter instance for convenience
var defaultPresenter = New()

// Error displays an error message using the default presenter instance.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success displays a success message using the default presenter instance.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning displays a warning message using the default presenter instance.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info displays an informational message using the default presenter instance.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section displays a section header using the default presenter instance.
func Section(title string) {
	defaultPresenter.Section(title)
}

// Prompt displays a prompt and reads user input using the default presenter instance.
func Prompt(question string, options ...string) string {
	return defaultPresenter.Prompt(question, options...)
}

// Stats displays corpus totals using the default presenter instance.
func Stats(stats *CorpusStats) {
	defaultPresenter.Stats(stats)
}

// Separator displays a visual separator using the default presenter instance.
func Separator() {
	defaultPresenter.Separator()
}

// SetQuiet enables or disables quiet mode for the default presenter instance.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}

// IsQuiet returns whether quiet mode is enabled for the default presenter instance.
func IsQuiet() bool {
	return defaultPresenter.IsQuiet()
}
