package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for overseer
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overseer",
		Short: "Multi-phase task orchestration with specialist consultation",
		Long: `Overseer turns a task description into an executable plan, consults
domain specialists over it, and drives the approved plan through execution,
validation, and archival.

Plans live as markdown checklist files under .overseer/plans. Every state
transition is persisted before execution proceeds, so an interrupted run
resumes exactly where it stopped.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .overseer/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log verbosity (trace, debug, info, warn, error)")
	cmd.PersistentFlags().String("specialists-dir", "", "Directory holding specialist definitions")

	cmd.AddCommand(NewDraftCommand())
	cmd.AddCommand(NewApproveCommand())
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewSpecialistsCommand())

	return cmd
}
