package checkpoint

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ConsoleDecider asks questions on a terminal and blocks until the operator
// answers. When input is not a terminal there is no decision-maker to wait
// for, so Ask returns ErrNoDecision instead of inventing a default.
type ConsoleDecider struct {
	in  io.Reader
	out io.Writer
	// interactive overrides TTY detection in tests
	interactive *bool
}

// NewConsoleDecider creates a decider over stdin/stdout.
func NewConsoleDecider() *ConsoleDecider {
	return &ConsoleDecider{in: os.Stdin, out: os.Stdout}
}

func (d *ConsoleDecider) isInteractive() bool {
	if d.interactive != nil {
		return *d.interactive
	}
	if f, ok := d.in.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Ask renders the question and options, then reads answers until one matches
// an option label or index. Interrupting the context aborts the wait.
func (d *ConsoleDecider) Ask(ctx context.Context, q Question) (string, error) {
	if !d.isInteractive() {
		return "", fmt.Errorf("%w: no interactive terminal", ErrNoDecision)
	}

	header := "Decision required"
	if !color.NoColor {
		header = color.New(color.Bold, color.FgYellow).Sprint(header)
	}
	fmt.Fprintf(d.out, "\n%s: %s\n", header, q.Text)
	for i, opt := range q.Options {
		fmt.Fprintf(d.out, "  %d) %-10s %s\n", i+1, opt.Label, opt.Description)
	}

	// Read on a goroutine so a cancelled context does not leave the engine
	// wedged behind a blocking read.
	type answer struct {
		text string
		err  error
	}
	lines := make(chan answer, 1)
	go func() {
		reader := bufio.NewReader(d.in)
		for {
			fmt.Fprintf(d.out, "Select an option: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				lines <- answer{err: err}
				return
			}
			line = strings.TrimSpace(line)
			if label, ok := d.match(q, line); ok {
				lines <- answer{text: label}
				return
			}
			fmt.Fprintf(d.out, "Unrecognized answer %q\n", line)
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-lines:
		if a.err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoDecision, a.err)
		}
		return a.text, nil
	}
}

// match resolves a typed answer to an option label, accepting either the
// label itself or the 1-based option number.
func (d *ConsoleDecider) match(q Question, line string) (string, bool) {
	if label, ok := canonicalLabel(q, line); ok {
		return label, true
	}
	if idx, err := strconv.Atoi(line); err == nil && idx >= 1 && idx <= len(q.Options) {
		return q.Options[idx-1].Label, true
	}
	return "", false
}
