package cmd

import (
	"errors"

	"github.com/harrison/overseer/internal/checkpoint"
	"github.com/harrison/overseer/internal/engine"
	"github.com/harrison/overseer/internal/planstore"
)

// Sentinel errors commands return so the process exit code reflects what
// actually happened.
var (
	// ErrValidationFailed indicates the validation pass reported failures.
	ErrValidationFailed = errors.New("validation failed")
	// ErrConflictsUnresolved indicates the plan has conflicts awaiting a decision.
	ErrConflictsUnresolved = errors.New("unresolved consultation conflicts")
)

// Exit codes. Scripts drive overseer, so outcomes that are not plain errors
// get distinct codes.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitBlocked = 2 // waiting on a decision that never arrived
	ExitInvalid = 3 // validation reported failures
	ExitAborted = 4 // plan aborted or a retry ceiling was exhausted
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, checkpoint.ErrNoDecision),
		errors.Is(err, ErrConflictsUnresolved),
		errors.Is(err, planstore.ErrConflictGate):
		return ExitBlocked
	case errors.Is(err, ErrValidationFailed):
		return ExitInvalid
	case errors.Is(err, engine.ErrPlanAborted):
		return ExitAborted
	default:
		return ExitError
	}
}
