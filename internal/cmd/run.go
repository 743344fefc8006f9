package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/overseer/internal/models"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [plan-file]",
		Short: "Execute an approved plan",
		Long: `Execute the current approved plan (or the given plan file).

Steps run strictly in order with at most one step in flight. Each step is
delegated to the specialist registered for its domain; every state change is
written back to the plan file before execution proceeds, so an interrupted
run picks up exactly where it stopped.

A failing step stops at the decision checkpoint (retry, debug, skip, abort).
Retries run inside a bounded repair loop; an exhausted ceiling escalates back
to the checkpoint with the full attempt history.

After the last step, the whole result is validated by re-consulting the
affected domains, and the finished plan is archived.

Exit codes:
  0  plan completed
  2  blocked waiting on a decision
  4  plan aborted or a retry ceiling was exhausted

Examples:
  overseer run
  overseer run .overseer/plans/<id>.md
  overseer run --invoke-timeout 30m`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("invoke-timeout", "", "Maximum duration for one specialist invocation (e.g. 10m)")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	plan, err := resolvePlan(a.store, args)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Executing plan %s (%d steps)...\n", plan.ID, len(plan.Steps))
	started := time.Now()

	final, err := a.engine().Run(cmd.Context(), plan.FilePath)
	if err != nil {
		if final != nil {
			printOutcome(cmd, final, time.Since(started))
		}
		return err
	}

	printOutcome(cmd, final, time.Since(started))
	return nil
}

func printOutcome(cmd *cobra.Command, plan *models.Plan, elapsed time.Duration) {
	counts := map[string]int{}
	for i := range plan.Steps {
		counts[plan.Steps[i].State]++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nPlan %s %s in %s\n", plan.ID, plan.Status, elapsed.Round(time.Second))
	fmt.Fprintf(cmd.OutOrStdout(), "  Completed: %d  Skipped: %d  Failed: %d\n",
		counts[models.StepCompleted], counts[models.StepSkipped], counts[models.StepFailed])
	if plan.IsArchived() {
		fmt.Fprintf(cmd.OutOrStdout(), "  Archived to: %s\n", plan.FilePath)
	}
}
