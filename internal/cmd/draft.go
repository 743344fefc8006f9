package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/overseer/internal/consult"
	"github.com/harrison/overseer/internal/models"
)

// NewDraftCommand creates the draft command
func NewDraftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft <task description>",
		Short: "Draft a plan and consult specialists over it",
		Long: `Draft a new plan from a task description.

The description is classified into specialist domains by keyword, every
matched specialist is consulted concurrently, and the findings are recorded
on the plan together with the risk matrix and any consultation conflicts.

Steps are given with repeated --step flags as "domain: description". A step
without a domain prefix is classified from its text.

Drafted plans move to pending_approval. A plan whose consultations conflict
cannot be approved until every conflict has a recorded decision (see
"overseer approve").

Examples:
  overseer draft "add rate limiting to the public API" \
    --step "backend: add limiter middleware" \
    --step "testing: load-test the limit"

  overseer draft "tighten CSP headers"`,
		Args: cobra.ExactArgs(1),
		RunE: draftCommand,
	}

	cmd.Flags().StringArray("step", nil, `Plan step as "domain: description" (repeatable)`)

	return cmd
}

func draftCommand(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	description := strings.TrimSpace(args[0])
	if description == "" {
		return fmt.Errorf("task description must not be empty")
	}

	stepFlags, _ := cmd.Flags().GetStringArray("step")
	steps, err := buildSteps(a, description, stepFlags)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Consulting specialists...\n")
	result, err := a.agg.Consult(cmd.Context(), description, nil)
	if err != nil {
		return fmt.Errorf("consultation failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Consulted domains: %s\n", strings.Join(result.Domains, ", "))
	printRiskMatrix(cmd, result.Matrix)

	plan := &models.Plan{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Status:        models.PlanDrafted,
		Description:   description,
		Steps:         steps,
		Consultations: result.Consultations,
	}

	for _, c := range result.Consultations {
		if err := a.history.RecordConsultation(cmd.Context(), plan.ID, c); err != nil {
			return fmt.Errorf("record consultation: %w", err)
		}
	}

	// Every draft moves straight to pending_approval; open conflicts block
	// the approved transition itself, not the drafting phase.
	if err := plan.Transition(models.PlanPendingApproval); err != nil {
		return err
	}
	if err := a.store.Save(plan); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nDrafted plan %s (%d steps) at %s\n", plan.ID, len(plan.Steps), plan.FilePath)

	if len(result.Conflicts) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d conflict(s) need a decision before approval:\n", len(result.Conflicts))
		for _, conflict := range result.Conflicts {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s (key %s)\n", conflict.Reason, conflict.Key())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resolve with: overseer approve\n")
		return fmt.Errorf("%w: %d open", ErrConflictsUnresolved, len(result.Conflicts))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Plan is pending approval. Approve with: overseer approve\n")
	return nil
}

// buildSteps turns --step flags into ordered steps. Without flags the whole
// task becomes a single step in its primary classified domain.
func buildSteps(a *app, description string, stepFlags []string) ([]models.Step, error) {
	classifier := consult.NewClassifier(a.registry.KeywordTable(), a.cfg.DefaultDomain)

	if len(stepFlags) == 0 {
		return []models.Step{{
			Ordinal:     1,
			Domain:      classifier.Classify(description)[0],
			Description: description,
			State:       models.StepPending,
		}}, nil
	}

	steps := make([]models.Step, 0, len(stepFlags))
	for i, raw := range stepFlags {
		domain, text := splitStepFlag(raw)
		if text == "" {
			return nil, fmt.Errorf("step %d has no description: %q", i+1, raw)
		}
		if domain == "" {
			domain = classifier.Classify(text)[0]
		}
		steps = append(steps, models.Step{
			Ordinal:     i + 1,
			Domain:      domain,
			Description: text,
			State:       models.StepPending,
		})
	}
	return steps, nil
}

// splitStepFlag splits "domain: description" into its parts. A step with no
// colon, or whose prefix contains spaces, has no explicit domain.
func splitStepFlag(raw string) (domain, text string) {
	before, after, found := strings.Cut(raw, ":")
	before = strings.TrimSpace(before)
	if !found || before == "" || strings.ContainsAny(before, " \t") {
		return "", strings.TrimSpace(raw)
	}
	return before, strings.TrimSpace(after)
}

// printRiskMatrix renders finding counts per domain and severity.
func printRiskMatrix(cmd *cobra.Command, matrix models.RiskMatrix) {
	domains := matrix.Domains()
	if len(domains) == 0 {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nRisk matrix:\n")
	for _, domain := range domains {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-12s critical=%d warning=%d info=%d\n",
			domain,
			matrix.Count(domain, models.SeverityCritical),
			matrix.Count(domain, models.SeverityWarning),
			matrix.Count(domain, models.SeverityInfo))
	}
}
