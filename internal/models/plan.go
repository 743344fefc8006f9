package models

import (
	"errors"
	"fmt"
	"time"
)

// Plan status constants. Transitions are monotonic along
// drafted -> pending_approval -> approved -> in_progress -> {completed | aborted}.
// A plan never moves backward; re-drafting creates a new plan.
const (
	PlanDrafted         = "drafted"
	PlanPendingApproval = "pending_approval"
	PlanApproved        = "approved"
	PlanInProgress      = "in_progress"
	PlanCompleted       = "completed"
	PlanAborted         = "aborted"
)

// planRank orders plan statuses along the forward lifecycle.
var planRank = map[string]int{
	PlanDrafted:         0,
	PlanPendingApproval: 1,
	PlanApproved:        2,
	PlanInProgress:      3,
	PlanCompleted:       4,
	PlanAborted:         4,
}

// ErrInvalidTransition indicates a plan status change that would violate the
// monotonic lifecycle.
var ErrInvalidTransition = errors.New("invalid plan status transition")

// Plan represents the unit of coordinated work: an ordered checklist of steps
// plus the consultations gathered while drafting it.
type Plan struct {
	ID            string            // Unique plan identifier (UUID)
	CreatedAt     time.Time         // Creation timestamp
	Status        string            // Current lifecycle status
	Description   string            // Free-text task description
	Steps         []Step            // Ordered executable steps
	Consultations []Consultation    // Specialist consultations recorded during drafting and execution
	Resolutions   map[string]string // Conflict key -> recorded decision label
	ArchivedAt    *time.Time        // Set once the plan has been archived (immutable from then on)
	FilePath      string            // Backing file path (empty for unsaved plans)
}

// Validate checks structural requirements before a plan can be persisted.
func (p *Plan) Validate() error {
	if p.ID == "" {
		return errors.New("plan id is required")
	}
	if p.Description == "" {
		return errors.New("plan description is required")
	}
	if _, ok := planRank[p.Status]; !ok {
		return fmt.Errorf("unknown plan status %q", p.Status)
	}
	for i := range p.Steps {
		if err := p.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", p.Steps[i].Ordinal, err)
		}
		if p.Steps[i].Ordinal != i+1 {
			return fmt.Errorf("step ordinals must be contiguous from 1, got %d at position %d", p.Steps[i].Ordinal, i)
		}
	}
	return nil
}

// CanTransition reports whether a status change is allowed by the lifecycle.
// Aborting is permitted from any non-terminal status; every other change must
// move exactly one stage forward.
func CanTransition(from, to string) bool {
	fromRank, ok := planRank[from]
	if !ok {
		return false
	}
	toRank, ok := planRank[to]
	if !ok {
		return false
	}
	if from == PlanCompleted || from == PlanAborted {
		return false
	}
	if to == PlanAborted {
		return true
	}
	if to == PlanCompleted {
		return from == PlanInProgress
	}
	return toRank == fromRank+1
}

// Transition applies a status change, rejecting anything the lifecycle forbids.
func (p *Plan) Transition(to string) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	return nil
}

// IsTerminal returns true once the plan has finished, successfully or not.
func (p *Plan) IsTerminal() bool {
	return p.Status == PlanCompleted || p.Status == PlanAborted
}

// IsArchived returns true once the archival manager has sealed the plan.
func (p *Plan) IsArchived() bool {
	return p.ArchivedAt != nil
}

// FirstNonTerminalStep returns the first step that still needs work, or nil
// when every step has reached a terminal state. Execution resumes here after
// a crash.
func (p *Plan) FirstNonTerminalStep() *Step {
	for i := range p.Steps {
		if !p.Steps[i].IsTerminal() {
			return &p.Steps[i]
		}
	}
	return nil
}

// InProgressCount returns the number of steps currently marked in_progress.
// The execution engine keeps this at most 1.
func (p *Plan) InProgressCount() int {
	count := 0
	for i := range p.Steps {
		if p.Steps[i].State == StepInProgress {
			count++
		}
	}
	return count
}

// StepByOrdinal returns the step with the given ordinal, or nil if out of range.
func (p *Plan) StepByOrdinal(ordinal int) *Step {
	if ordinal < 1 || ordinal > len(p.Steps) {
		return nil
	}
	return &p.Steps[ordinal-1]
}

// RollUpStatus derives the terminal plan status from step states once every
// step is terminal: completed when nothing failed, aborted otherwise.
// Skipped steps do not force an abort.
func (p *Plan) RollUpStatus() string {
	for i := range p.Steps {
		if p.Steps[i].State == StepFailed {
			return PlanAborted
		}
	}
	return PlanCompleted
}

// RecordResolution records an explicit decision against a conflict key.
func (p *Plan) RecordResolution(key, decision string) {
	if p.Resolutions == nil {
		p.Resolutions = make(map[string]string)
	}
	p.Resolutions[key] = decision
}

// ResolutionFor returns the recorded decision for a conflict key, if any.
func (p *Plan) ResolutionFor(key string) (string, bool) {
	decision, ok := p.Resolutions[key]
	return decision, ok
}
