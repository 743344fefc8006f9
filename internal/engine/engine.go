// Package engine drives approved plans to a terminal status. It executes
// steps strictly in ordinal order with at most one step in flight, persists
// the plan after every state change, and routes every failure through the
// decision checkpoint instead of guessing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/overseer/internal/archive"
	"github.com/harrison/overseer/internal/checkpoint"
	"github.com/harrison/overseer/internal/config"
	"github.com/harrison/overseer/internal/consult"
	"github.com/harrison/overseer/internal/logger"
	"github.com/harrison/overseer/internal/models"
	"github.com/harrison/overseer/internal/planstore"
	"github.com/harrison/overseer/internal/retryloop"
)

var (
	// ErrNotRunnable indicates the plan is not approved or in progress.
	ErrNotRunnable = errors.New("engine: plan is not runnable")
	// ErrPlanAborted indicates execution ended with the plan aborted.
	ErrPlanAborted = errors.New("engine: plan aborted")
)

// Runner executes one step and reports the specialist's verdict. The
// diagnostics slice carries every prior attempt for the step, so a retry
// works from accumulated context. An error means infrastructure failure, not
// a failed step.
type Runner interface {
	RunStep(ctx context.Context, plan *models.Plan, step models.Step, diagnostics []models.Attempt) (models.Consultation, error)
}

// Validator runs the whole-plan validation pass after every step is terminal.
// Implemented by the consultation aggregator.
type Validator interface {
	Validate(ctx context.Context, plan *models.Plan) (*consult.Result, error)
}

// Engine executes plans.
type Engine struct {
	store     *planstore.Store
	runner    Runner
	cp        *checkpoint.Checkpoint
	retries   *retryloop.Controller
	archiver  *archive.Archiver
	validator Validator
	console   *logger.Console
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchiver enables automatic archival of terminal plans.
func WithArchiver(a *archive.Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithValidator enables the post-execution validation pass.
func WithValidator(v Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithLogger sets the console logger.
func WithLogger(c *logger.Console) Option {
	return func(e *Engine) { e.console = c }
}

// New creates an engine.
func New(store *planstore.Store, runner Runner, cp *checkpoint.Checkpoint, retries *retryloop.Controller, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		runner:  runner,
		cp:      cp,
		retries: retries,
		console: logger.NewConsole(nil, "info"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Run executes the plan at path until it reaches a terminal status. A plan
// that is already mid-execution resumes at its first non-terminal step.
// Returns the final plan; the error is ErrPlanAborted when execution ended in
// an abort, checkpoint.ErrNoDecision when blocked on a decision.
func (e *Engine) Run(ctx context.Context, path string) (*models.Plan, error) {
	plan, err := e.store.Load(path)
	if err != nil {
		return nil, err
	}
	if plan.IsArchived() || plan.IsTerminal() {
		return plan, fmt.Errorf("%w: status %s", ErrNotRunnable, plan.Status)
	}

	switch plan.Status {
	case models.PlanApproved:
		if err := e.store.UpdateStatus(path, models.PlanInProgress); err != nil {
			return plan, err
		}
	case models.PlanInProgress:
		e.console.Infof("Resuming plan %s at step %d", plan.ID, resumeOrdinal(plan))
	default:
		return plan, fmt.Errorf("%w: status %s", ErrNotRunnable, plan.Status)
	}

	for {
		plan, err = e.store.Load(path)
		if err != nil {
			return nil, err
		}
		step := plan.FirstNonTerminalStep()
		if step == nil {
			break
		}
		if err := e.executeStep(ctx, plan, *step); err != nil {
			if errors.Is(err, ErrPlanAborted) {
				return e.finish(ctx, path, models.PlanAborted)
			}
			return plan, err
		}
	}

	plan, err = e.store.Load(path)
	if err != nil {
		return nil, err
	}

	final := plan.RollUpStatus()
	if final == models.PlanCompleted && e.validator != nil {
		ok, err := e.validate(ctx, plan)
		if err != nil {
			return plan, err
		}
		if !ok {
			final = models.PlanAborted
		}
	}
	return e.finish(ctx, path, final)
}

func resumeOrdinal(plan *models.Plan) int {
	if step := plan.FirstNonTerminalStep(); step != nil {
		return step.Ordinal
	}
	return len(plan.Steps)
}

// executeStep runs one step to a terminal state. Every failure stops at the
// checkpoint; the answers are retry (bounded repair loop), debug (one more
// run with the failure in context), skip, or abort.
func (e *Engine) executeStep(ctx context.Context, plan *models.Plan, step models.Step) error {
	path := plan.FilePath
	if step.State != models.StepInProgress {
		if err := e.store.UpdateStep(path, step.Ordinal, models.StepInProgress, ""); err != nil {
			return err
		}
	}
	e.console.StepStart(step.Ordinal, step.Description)
	started := time.Now()

	var diagnostics []models.Attempt
	for failure := 1; ; failure++ {
		verdict, err := e.runOnce(ctx, plan, step, diagnostics)
		if err != nil {
			return err
		}
		if verdict.Pass {
			e.console.StepEnd(step.Ordinal, models.StepCompleted, time.Since(started))
			return e.store.UpdateStep(path, step.Ordinal, models.StepCompleted, verdict.Recommendation)
		}

		diagnostics = append(diagnostics, models.Attempt{
			Number:        failure,
			Specialist:    verdict.Specialist,
			Summary:       "execute step",
			FailureReason: verdict.Summary(),
		})

		answer, err := e.askFailure(ctx, plan, step, failure, verdict)
		if err != nil {
			return err
		}
		switch answer {
		case "retry":
			outcome, err := e.repairLoop(ctx, plan, step, diagnostics)
			if err != nil {
				return err
			}
			switch outcome {
			case retryloop.OutcomeSucceeded:
				e.console.StepEnd(step.Ordinal, models.StepCompleted, time.Since(started))
				return e.store.UpdateStep(path, step.Ordinal, models.StepCompleted, "")
			case retryloop.OutcomeAccepted:
				e.console.StepEnd(step.Ordinal, models.StepSkipped, time.Since(started))
				return e.store.UpdateStep(path, step.Ordinal, models.StepSkipped, "accepted after exhausted repair loop")
			default:
				e.console.StepEnd(step.Ordinal, models.StepFailed, time.Since(started))
				if err := e.store.UpdateStep(path, step.Ordinal, models.StepFailed, verdict.Summary()); err != nil {
					return err
				}
				return ErrPlanAborted
			}
		case "debug":
			// Loop around: the failure is already in the diagnostics the
			// next run receives.
			continue
		case "skip":
			e.console.StepEnd(step.Ordinal, models.StepSkipped, time.Since(started))
			return e.store.UpdateStep(path, step.Ordinal, models.StepSkipped, verdict.Summary())
		default: // abort
			e.console.StepEnd(step.Ordinal, models.StepFailed, time.Since(started))
			if err := e.store.UpdateStep(path, step.Ordinal, models.StepFailed, verdict.Summary()); err != nil {
				return err
			}
			return ErrPlanAborted
		}
	}
}

// runOnce invokes the runner and records the resulting consultation on the
// plan before acting on the verdict.
func (e *Engine) runOnce(ctx context.Context, plan *models.Plan, step models.Step, diagnostics []models.Attempt) (models.Consultation, error) {
	verdict, err := e.runner.RunStep(ctx, plan, step, diagnostics)
	if err != nil {
		return models.Consultation{}, err
	}
	verdict.StepOrdinal = step.Ordinal
	if err := e.store.RecordConsultations(plan.FilePath, []models.Consultation{verdict}); err != nil {
		return models.Consultation{}, err
	}
	return verdict, nil
}

// askFailure poses the step-failure question. The failure count is part of
// the scope so a second failure after a "debug" answer is a fresh question,
// not a replay of the first one.
func (e *Engine) askFailure(ctx context.Context, plan *models.Plan, step models.Step, failure int, verdict models.Consultation) (string, error) {
	q := checkpoint.Question{
		Scope: fmt.Sprintf("%s/step-%d/failure-%d", plan.ID, step.Ordinal, failure),
		Text:  fmt.Sprintf("Step %d (%s) failed: %s. How should execution proceed?", step.Ordinal, step.Description, verdict.Summary()),
		Options: []checkpoint.Option{
			{Label: "retry", Description: "run a bounded repair loop on this step"},
			{Label: "debug", Description: "run the step once more with the failure in context"},
			{Label: "skip", Description: "mark the step skipped and continue"},
			{Label: "abort", Description: "abort the whole plan"},
		},
	}
	return e.cp.Ask(ctx, q)
}

// repairLoop drives the bounded step-fix loop and reports how it ended.
func (e *Engine) repairLoop(ctx context.Context, plan *models.Plan, step models.Step, diagnostics []models.Attempt) (retryloop.Outcome, error) {
	work := func(ctx context.Context, iteration int, prior []models.Attempt) (retryloop.Result, error) {
		combined := append(append([]models.Attempt(nil), diagnostics...), prior...)
		verdict, err := e.runOnce(ctx, plan, step, combined)
		if err != nil {
			return retryloop.Result{}, err
		}
		return retryloop.Result{
			Attempt: models.Attempt{
				Specialist:    verdict.Specialist,
				Summary:       fmt.Sprintf("repair step %d", step.Ordinal),
				FailureReason: failureReason(verdict),
			},
			Done: verdict.Pass,
		}, nil
	}

	scope := fmt.Sprintf("%s/step-%d", config.ScopeStepFix, step.Ordinal)
	outcome, _, err := e.retries.Run(ctx, plan.ID, scope, step.Ordinal, work)
	if err != nil {
		return retryloop.OutcomeAborted, err
	}
	return outcome, nil
}

func failureReason(verdict models.Consultation) string {
	if verdict.Pass {
		return ""
	}
	return verdict.Summary()
}

// validate runs the whole-plan validation pass inside a bounded loop. True
// means validation eventually passed.
func (e *Engine) validate(ctx context.Context, plan *models.Plan) (bool, error) {
	e.console.Infof("Validating plan %s", plan.ID)

	work := func(ctx context.Context, iteration int, prior []models.Attempt) (retryloop.Result, error) {
		result, err := e.validator.Validate(ctx, plan)
		if err != nil {
			return retryloop.Result{}, err
		}
		var reasons []string
		for i := range result.Consultations {
			if !result.Consultations[i].Pass {
				reasons = append(reasons, result.Consultations[i].Summary())
			}
		}
		return retryloop.Result{
			Attempt: models.Attempt{
				Summary:       fmt.Sprintf("validation pass %d", iteration),
				FailureReason: strings.Join(reasons, "; "),
			},
			Done: result.Passed(),
		}, nil
	}

	outcome, _, err := e.retries.Run(ctx, plan.ID, config.ScopeFullPass, 0, work)
	if err != nil {
		return false, err
	}
	// An accepted validation failure still completes the plan; the findings
	// stay on record.
	return outcome != retryloop.OutcomeAborted, nil
}

// finish rolls the plan into its terminal status and archives it.
func (e *Engine) finish(ctx context.Context, path, status string) (*models.Plan, error) {
	if err := e.store.UpdateStatus(path, status); err != nil {
		return nil, err
	}
	plan, err := e.store.Load(path)
	if err != nil {
		return nil, err
	}

	if e.archiver != nil {
		dest, err := e.archiver.Archive(plan)
		if err != nil {
			return plan, err
		}
		e.console.Infof("Archived plan %s to %s", plan.ID, dest)
	}

	if status == models.PlanAborted {
		return plan, ErrPlanAborted
	}
	e.console.Infof("Plan %s completed", plan.ID)
	return plan, nil
}
