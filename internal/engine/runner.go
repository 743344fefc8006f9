package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/overseer/internal/history"
	"github.com/harrison/overseer/internal/models"
	"github.com/harrison/overseer/internal/specialist"
)

// SpecialistRunner executes steps by consulting the specialist registered for
// the step's domain. The specialist receives the step description, its
// resources, and a digest of every prior failed attempt.
type SpecialistRunner struct {
	invoker *specialist.Invoker
	store   *history.Store // optional; nil disables invocation history
}

// NewSpecialistRunner creates a runner over the given invoker.
func NewSpecialistRunner(invoker *specialist.Invoker, store *history.Store) *SpecialistRunner {
	return &SpecialistRunner{invoker: invoker, store: store}
}

// RunStep consults the step's domain specialist and records the outcome.
func (r *SpecialistRunner) RunStep(ctx context.Context, plan *models.Plan, step models.Step, diagnostics []models.Attempt) (models.Consultation, error) {
	verdict, err := r.invoker.Invoke(ctx, step.Domain, stepContext(plan, step, diagnostics), plan.Consultations)
	if err != nil {
		return models.Consultation{}, err
	}
	verdict.StepOrdinal = step.Ordinal

	if r.store != nil {
		if err := r.store.RecordConsultation(ctx, plan.ID, verdict); err != nil {
			return models.Consultation{}, err
		}
	}
	return verdict, nil
}

// stepContext assembles the task text a specialist receives for one step.
func stepContext(plan *models.Plan, step models.Step, diagnostics []models.Attempt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan: %s\n", plan.Description)
	fmt.Fprintf(&sb, "Step %d of %d: %s\n", step.Ordinal, len(plan.Steps), step.Description)
	if len(step.Resources) > 0 {
		fmt.Fprintf(&sb, "Resources: %s\n", strings.Join(step.Resources, ", "))
	}
	if step.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", step.Notes)
	}
	for _, attempt := range diagnostics {
		fmt.Fprintf(&sb, "Previous attempt %d failed: %s\n", attempt.Number, attempt.FailureReason)
	}
	return sb.String()
}
