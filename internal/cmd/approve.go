package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/overseer/internal/checkpoint"
	"github.com/harrison/overseer/internal/consult"
	"github.com/harrison/overseer/internal/models"
	"github.com/harrison/overseer/internal/planstore"
)

// NewApproveCommand creates the approve command
func NewApproveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve [plan-file]",
		Short: "Resolve conflicts and approve a plan for execution",
		Long: `Approve the current plan (or the given plan file).

Approval is gated on conflict resolution: while any consultation conflict
has no recorded decision the plan cannot move forward. Open conflicts are
resolved interactively through the decision checkpoint, or non-interactively
with repeated --resolve flags.

Examples:
  overseer approve
  overseer approve .overseer/plans/<id>.md
  overseer approve --resolve "backend|security|redis=backend"`,
		Args: cobra.MaximumNArgs(1),
		RunE: approveCommand,
	}

	cmd.Flags().StringArray("resolve", nil, `Conflict resolution as "conflict-key=winning-domain" (repeatable)`)

	return cmd
}

func approveCommand(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	plan, err := resolvePlan(a.store, args)
	if err != nil {
		return err
	}

	switch plan.Status {
	case models.PlanDrafted, models.PlanPendingApproval:
	default:
		return fmt.Errorf("plan %s is %s; only drafted or pending_approval plans can be approved", plan.ID, plan.Status)
	}

	resolveFlags, _ := cmd.Flags().GetStringArray("resolve")
	for _, raw := range resolveFlags {
		key, decision, found := strings.Cut(raw, "=")
		if !found || key == "" || decision == "" {
			return fmt.Errorf(`invalid --resolve %q, expected "conflict-key=decision"`, raw)
		}
		if err := a.store.RecordResolution(plan.FilePath, key, decision); err != nil {
			return err
		}
	}

	// Re-read so flag resolutions are visible, then work through whatever is
	// still open via the checkpoint.
	plan, err = a.store.Load(plan.FilePath)
	if err != nil {
		return err
	}

	conflicts := consult.DetectConflicts(plan.Consultations)
	consult.ApplyResolutions(conflicts, plan.Resolutions)
	for _, conflict := range consult.Unresolved(conflicts) {
		decision, err := askConflict(cmd, a, plan, conflict)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Conflict %s is still open: %s\n", conflict.Key(), conflict.Reason)
			return fmt.Errorf("%w: %v", ErrConflictsUnresolved, err)
		}
		if err := a.store.RecordResolution(plan.FilePath, conflict.Key(), decision); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s in favor of %s\n", conflict.Key(), decision)
	}

	if plan.Status == models.PlanDrafted {
		if err := a.store.UpdateStatus(plan.FilePath, models.PlanPendingApproval); err != nil {
			return err
		}
	}
	if err := a.store.UpdateStatus(plan.FilePath, models.PlanApproved); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Plan %s approved. Execute with: overseer run\n", plan.ID)
	return nil
}

// askConflict routes one conflict through the decision checkpoint. The answer
// names the domain whose recommendation wins.
func askConflict(cmd *cobra.Command, a *app, plan *models.Plan, conflict models.ConflictRecord) (string, error) {
	q := checkpoint.Question{
		Scope: fmt.Sprintf("%s/conflict/%s", plan.ID, conflict.Key()),
		Text:  fmt.Sprintf("Consultation conflict: %s. Which recommendation should win?", conflict.Reason),
		Options: []checkpoint.Option{
			{Label: conflict.DomainA, Description: fmt.Sprintf("keep %q as %s requires", conflict.Resource, conflict.DomainA)},
			{Label: conflict.DomainB, Description: fmt.Sprintf("drop %q as %s forbids", conflict.Resource, conflict.DomainB)},
		},
	}
	return a.cp.Ask(cmd.Context(), q)
}

// resolvePlan loads the plan named on the command line, or the current one.
func resolvePlan(store *planstore.Store, args []string) (*models.Plan, error) {
	if len(args) == 1 {
		return store.Load(args[0])
	}
	plan, err := store.Current()
	if err != nil {
		return nil, fmt.Errorf("no active plan found; draft one first: %w", err)
	}
	return plan, nil
}
