// Package logger provides the console logger used across Overseer commands.
//
// Output is timestamped, level-filtered, and thread-safe. Color is enabled
// automatically when writing to a TTY and suppressed otherwise (including
// when NO_COLOR is set).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Numeric log levels for filtering.
const (
	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
)

// Console logs progress messages to a writer with [HH:MM:SS] prefixes.
// A nil writer silently discards everything.
type Console struct {
	writer   io.Writer
	level    int
	mu       sync.Mutex
	colorize bool
}

// NewConsole creates a Console writing to w at the given level. Valid levels
// are trace, debug, info, warn, error (case-insensitive); anything else
// defaults to info.
func NewConsole(w io.Writer, level string) *Console {
	return &Console{
		writer:   w,
		level:    parseLevel(level),
		colorize: isTerminal(w),
	}
}

// isTerminal reports whether w is a TTY that should receive color output.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		// color.NoColor already folds in NO_COLOR and TTY detection.
		return !color.NoColor
	}
	return false
}

func parseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// Tracef logs at trace level.
func (c *Console) Tracef(format string, args ...any) {
	c.logf(levelTrace, "TRACE", format, args...)
}

// Debugf logs at debug level.
func (c *Console) Debugf(format string, args ...any) {
	c.logf(levelDebug, "DEBUG", format, args...)
}

// Infof logs at info level.
func (c *Console) Infof(format string, args ...any) {
	c.logf(levelInfo, "INFO", format, args...)
}

// Warnf logs at warn level.
func (c *Console) Warnf(format string, args ...any) {
	c.logf(levelWarn, "WARN", format, args...)
}

// Errorf logs at error level.
func (c *Console) Errorf(format string, args ...any) {
	c.logf(levelError, "ERROR", format, args...)
}

func (c *Console) logf(level int, tag, format string, args ...any) {
	if c == nil || c.writer == nil || level < c.level {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ts := time.Now().Format("15:04:05")
	if c.colorize {
		tag = colorTag(tag)
	}
	fmt.Fprintf(c.writer, "[%s] [%s] %s\n", ts, tag, fmt.Sprintf(format, args...))
}

func colorTag(tag string) string {
	switch tag {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(tag)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(tag)
	case "INFO":
		return color.New(color.FgBlue).Sprint(tag)
	case "WARN":
		return color.New(color.FgYellow).Sprint(tag)
	case "ERROR":
		return color.New(color.FgRed).Sprint(tag)
	default:
		return tag
	}
}

// StepStart logs the start of a plan step.
func (c *Console) StepStart(ordinal int, description string) {
	if c.colorize {
		description = color.New(color.Bold).Sprint(description)
	}
	c.Infof("Step %d started: %s", ordinal, description)
}

// StepEnd logs a step reaching a terminal state.
func (c *Console) StepEnd(ordinal int, state string, duration time.Duration) {
	if c.colorize {
		switch state {
		case "completed":
			state = color.New(color.FgGreen).Sprint(state)
		case "failed":
			state = color.New(color.FgRed).Sprint(state)
		case "skipped":
			state = color.New(color.FgYellow).Sprint(state)
		}
	}
	c.Infof("Step %d %s (%s)", ordinal, state, duration.Round(time.Millisecond))
}
