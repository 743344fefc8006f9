package models

import (
	"errors"
	"fmt"
	"time"
)

// Step state constants. Completed and skipped are immutable once set; failed
// steps force the plan to abort when execution finishes.
const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepSkipped    = "skipped"
	StepFailed     = "failed"
)

// stepStates is the set of recognised step states.
var stepStates = map[string]bool{
	StepPending:    true,
	StepInProgress: true,
	StepCompleted:  true,
	StepSkipped:    true,
	StepFailed:     true,
}

// Step is one unit of executable work inside a plan. State transitions are
// owned exclusively by the execution engine.
type Step struct {
	Ordinal     int        // 1-based position inside the plan
	Description string     // What the step does
	Domain      string     // Assigned specialist domain tag
	State       string     // Current step state
	Resources   []string   // Affected resource identifiers (file paths etc.)
	Notes       string     // Free-text execution notes
	StartedAt   *time.Time // When execution started (nil if never started)
	CompletedAt *time.Time // When the step reached a terminal state
}

// Validate checks the step has the fields required for execution.
func (s *Step) Validate() error {
	if s.Ordinal < 1 {
		return errors.New("step ordinal must be >= 1")
	}
	if s.Description == "" {
		return errors.New("step description is required")
	}
	if s.Domain == "" {
		return errors.New("step domain is required")
	}
	if s.State != "" && !stepStates[s.State] {
		return fmt.Errorf("unknown step state %q", s.State)
	}
	return nil
}

// IsTerminal returns true once the step can no longer change state.
func (s *Step) IsTerminal() bool {
	return s.State == StepCompleted || s.State == StepSkipped || s.State == StepFailed
}

// CheckboxMark returns the checklist marker persisted for this step:
// "x" for completed, "~" for skipped, " " otherwise.
func (s *Step) CheckboxMark() string {
	switch s.State {
	case StepCompleted:
		return "x"
	case StepSkipped:
		return "~"
	default:
		return " "
	}
}
