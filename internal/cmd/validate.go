package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/overseer/internal/engine"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [plan-file]",
		Short: "Run one validation pass over a plan",
		Long: `Run a single validation pass: every domain the plan's work touches is
re-consulted over a digest of the steps and their outcomes.

Unlike the validation stage of "overseer run", this command never retries;
it reports the verdicts and exits. Exit code 3 means at least one specialist
failed the work.

Examples:
  overseer validate
  overseer validate .overseer/archive/<stamp>-<id>.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: validateCommand,
	}

	return cmd
}

func validateCommand(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	plan, err := resolvePlan(a.store, args)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Validating plan %s...\n", plan.ID)
	result, err := engine.NewAggregatorValidator(a.agg).Validate(cmd.Context(), plan)
	if err != nil {
		return fmt.Errorf("validation pass failed to run: %w", err)
	}

	for i := range result.Consultations {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", result.Consultations[i].Summary())
	}
	printRiskMatrix(cmd, result.Matrix)

	if !result.Passed() {
		return fmt.Errorf("%w: plan %s", ErrValidationFailed, plan.ID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nValidation passed.\n")
	return nil
}
