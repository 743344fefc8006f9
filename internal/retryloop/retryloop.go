// Package retryloop bounds every repair loop with an explicit iteration
// ceiling. A loop that exhausts its ceiling never silently continues: the
// controller assembles an escalation payload from the full attempt history
// and routes it through the decision checkpoint.
package retryloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/overseer/internal/checkpoint"
	"github.com/harrison/overseer/internal/config"
	"github.com/harrison/overseer/internal/models"
)

// Outcome is the terminal state of one bounded loop.
type Outcome int

const (
	// OutcomeSucceeded means the work function reported success before the
	// ceiling was reached.
	OutcomeSucceeded Outcome = iota
	// OutcomeAccepted means the decision-maker accepted the failure as-is.
	OutcomeAccepted
	// OutcomeAborted means the decision-maker gave up on the loop.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what one iteration of work reports back.
type Result struct {
	Attempt      models.Attempt // What was tried and, on failure, why it failed
	Done         bool           // True when the loop goal is reached
	Alternatives []string       // Suggested alternative approaches, surfaced on escalation
}

// Work runs one iteration. It receives the 1-based iteration number and every
// prior attempt in the scope, so each retry can build on accumulated
// diagnostic context instead of rediscovering the same failure.
type Work func(ctx context.Context, iteration int, prior []models.Attempt) (Result, error)

// Asker is the checkpoint surface the controller escalates through.
type Asker interface {
	Ask(ctx context.Context, q checkpoint.Question) (string, error)
}

// AttemptLog persists attempts so a restarted loop resumes its count instead
// of restarting from zero.
type AttemptLog interface {
	RecordAttempt(ctx context.Context, planID, scope string, stepOrdinal int, attempt models.Attempt) error
	AttemptsForScope(ctx context.Context, planID, scope string) ([]models.Attempt, error)
}

// Controller runs bounded repair loops against configured ceilings.
type Controller struct {
	ceilings config.CeilingConfig
	ask      Asker
	log      AttemptLog
}

// NewController creates a controller. The attempt log may be nil, in which
// case attempts are tracked in memory only for the lifetime of the loop.
func NewController(ceilings config.CeilingConfig, ask Asker, log AttemptLog) *Controller {
	return &Controller{ceilings: ceilings, ask: ask, log: log}
}

func (c *Controller) ceiling(scope string) int {
	switch scope {
	case config.ScopeFeature:
		return c.ceilings.Feature
	case config.ScopeFullPass:
		return c.ceilings.FullPass
	default:
		return c.ceilings.StepFix
	}
}

// Run executes work until it succeeds, the ceiling is exhausted and the
// decision-maker declines to extend it, or work returns an error. The ceiling
// only ever grows: an extension adds the configured increment, never resets
// the count. The returned payload is non-nil whenever an escalation happened.
func (c *Controller) Run(ctx context.Context, planID, scope string, stepOrdinal int, work Work) (Outcome, *models.EscalationPayload, error) {
	ceiling := c.ceiling(scope)

	var attempts []models.Attempt
	if c.log != nil {
		prior, err := c.log.AttemptsForScope(ctx, planID, scope)
		if err != nil {
			return OutcomeAborted, nil, err
		}
		attempts = prior
	}

	var alternatives []string
	for {
		if err := ctx.Err(); err != nil {
			return OutcomeAborted, nil, err
		}

		if len(attempts) >= ceiling {
			payload := buildPayload(scope, ceiling, attempts, alternatives)
			answer, err := c.escalate(ctx, planID, payload)
			if err != nil {
				return OutcomeAborted, &payload, err
			}
			switch answer {
			case "extend":
				ceiling += c.ceilings.Increment
				continue
			case "accept":
				return OutcomeAccepted, &payload, nil
			default:
				return OutcomeAborted, &payload, nil
			}
		}

		iteration := len(attempts) + 1
		result, err := work(ctx, iteration, attempts)
		if err != nil {
			return OutcomeAborted, nil, err
		}
		result.Attempt.Number = iteration
		if len(result.Alternatives) > 0 {
			alternatives = result.Alternatives
		}

		if c.log != nil {
			if err := c.log.RecordAttempt(ctx, planID, scope, stepOrdinal, result.Attempt); err != nil {
				return OutcomeAborted, nil, err
			}
		}
		attempts = append(attempts, result.Attempt)

		if result.Done {
			return OutcomeSucceeded, nil, nil
		}
	}
}

// escalate asks the decision-maker what to do with an exhausted loop. The
// question key includes the exhausted ceiling so each extension produces a
// fresh question instead of replaying the previous answer forever.
func (c *Controller) escalate(ctx context.Context, planID string, payload models.EscalationPayload) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Loop %q exhausted its ceiling of %d attempts.", payload.Scope, payload.Ceiling)
	if len(payload.BlockingIssues) > 0 {
		fmt.Fprintf(&sb, " Blocking issues: %s.", strings.Join(payload.BlockingIssues, "; "))
	}
	if len(payload.Alternatives) > 0 {
		fmt.Fprintf(&sb, " Alternatives: %s.", strings.Join(payload.Alternatives, "; "))
	}

	q := checkpoint.Question{
		Scope: fmt.Sprintf("%s/%s/ceiling-%d", planID, payload.Scope, payload.Ceiling),
		Text:  sb.String(),
		Options: []checkpoint.Option{
			{Label: "extend", Description: fmt.Sprintf("raise the ceiling by %d and keep trying", c.ceilings.Increment)},
			{Label: "accept", Description: "accept the current state and move on"},
			{Label: "abort", Description: "give up on this loop"},
		},
	}
	return c.ask.Ask(ctx, q)
}

// buildPayload assembles the escalation record: every attempt in order plus
// the deduplicated failure reasons as blocking issues.
func buildPayload(scope string, ceiling int, attempts []models.Attempt, alternatives []string) models.EscalationPayload {
	seen := make(map[string]bool)
	var issues []string
	for _, attempt := range attempts {
		reason := strings.TrimSpace(attempt.FailureReason)
		if reason == "" || seen[reason] {
			continue
		}
		seen[reason] = true
		issues = append(issues, reason)
	}

	return models.EscalationPayload{
		Scope:          scope,
		Ceiling:        ceiling,
		Attempts:       append([]models.Attempt(nil), attempts...),
		BlockingIssues: issues,
		Alternatives:   alternatives,
	}
}
