package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/harrison/overseer/internal/models"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [plan-file]",
		Short: "Show the state of the current plan",
		Long: `Show the lifecycle status and step checklist of the current plan (or the
given plan file).

With --watch the plans directory is watched and the status re-rendered on
every change, which makes a second terminal a live progress view while
"overseer run" executes.

Examples:
  overseer status
  overseer status --watch
  overseer status .overseer/plans/<id>.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: statusCommand,
	}

	cmd.Flags().Bool("watch", false, "Keep watching the plans directory and re-render on change")

	return cmd
}

func statusCommand(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	render := func() error {
		plan, err := resolvePlan(a.store, args)
		if err != nil {
			return err
		}
		printPlan(cmd, plan)
		return nil
	}

	if err := render(); err != nil {
		return err
	}

	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(a.store.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", a.store.Dir(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching %s (Ctrl-C to stop)...\n", a.store.Dir())

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Lock files and temp files churn constantly; only re-render when
			// a plan file itself changes.
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n")
			if err := render(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No active plan.\n")
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStderr(), "Warning: watcher error: %v\n", watchErr)
		}
	}
}

// printPlan renders a plan as a checklist.
func printPlan(cmd *cobra.Command, plan *models.Plan) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Plan %s\n", plan.ID)
	fmt.Fprintf(out, "  Status:  %s\n", colorStatus(plan.Status))
	fmt.Fprintf(out, "  Created: %s\n", plan.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Task:    %s\n", plan.Description)
	if plan.IsArchived() {
		fmt.Fprintf(out, "  Archived: %s\n", plan.ArchivedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(out, "\nSteps:\n")
	for i := range plan.Steps {
		step := &plan.Steps[i]
		fmt.Fprintf(out, "  [%s] %d. %s (%s)", step.CheckboxMark(), step.Ordinal, step.Description, colorState(step.State))
		if step.Notes != "" {
			fmt.Fprintf(out, " - %s", step.Notes)
		}
		fmt.Fprintf(out, "\n")
	}

	if matrix := consultationMatrix(plan); len(matrix) > 0 {
		printRiskMatrix(cmd, matrix)
	}

	if fails := failingConsultations(plan); len(fails) > 0 {
		fmt.Fprintf(out, "\nFailing consultations:\n")
		for _, c := range fails {
			fmt.Fprintf(out, "  - %s\n", c.Summary())
		}
	}
}

// consultationMatrix rebuilds the domain/severity matrix from the recorded
// consultations.
func consultationMatrix(plan *models.Plan) models.RiskMatrix {
	matrix := make(models.RiskMatrix)
	for i := range plan.Consultations {
		for _, finding := range plan.Consultations[i].Findings {
			matrix.Add(plan.Consultations[i].Domain, finding.Severity)
		}
	}
	return matrix
}

func failingConsultations(plan *models.Plan) []models.Consultation {
	var fails []models.Consultation
	for i := range plan.Consultations {
		if !plan.Consultations[i].Pass {
			fails = append(fails, plan.Consultations[i])
		}
	}
	return fails
}

func colorStatus(status string) string {
	if color.NoColor {
		return status
	}
	switch status {
	case models.PlanCompleted:
		return color.GreenString(status)
	case models.PlanAborted:
		return color.RedString(status)
	case models.PlanInProgress:
		return color.CyanString(status)
	default:
		return color.YellowString(status)
	}
}

func colorState(state string) string {
	if state == "" {
		state = models.StepPending
	}
	if color.NoColor {
		return state
	}
	switch state {
	case models.StepCompleted:
		return color.GreenString(state)
	case models.StepFailed:
		return color.RedString(state)
	case models.StepInProgress:
		return color.CyanString(state)
	case models.StepSkipped:
		return color.YellowString(state)
	default:
		return state
	}
}
