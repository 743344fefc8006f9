package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/overseer/internal/consult"
	"github.com/harrison/overseer/internal/models"
)

// AggregatorValidator adapts the consultation aggregator into the
// whole-plan validation pass: every domain the finished work touches is
// consulted again over a digest of what was actually done.
type AggregatorValidator struct {
	agg *consult.Aggregator
}

// NewAggregatorValidator wraps an aggregator for validation.
func NewAggregatorValidator(agg *consult.Aggregator) *AggregatorValidator {
	return &AggregatorValidator{agg: agg}
}

// Validate consults every relevant specialist over the execution digest.
func (v *AggregatorValidator) Validate(ctx context.Context, plan *models.Plan) (*consult.Result, error) {
	return v.agg.Consult(ctx, executionDigest(plan), plan.Consultations)
}

// executionDigest summarises a finished plan for the validation pass.
func executionDigest(plan *models.Plan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Validate completed work for: %s\n", plan.Description)
	for i := range plan.Steps {
		step := &plan.Steps[i]
		fmt.Fprintf(&sb, "Step %d (%s, %s): %s", step.Ordinal, step.Domain, step.State, step.Description)
		if step.Notes != "" {
			fmt.Fprintf(&sb, " - %s", step.Notes)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
