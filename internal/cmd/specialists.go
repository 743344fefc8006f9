package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewSpecialistsCommand creates the specialists command
func NewSpecialistsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specialists",
		Short: "List registered specialists",
		Long: `List every specialist definition in the specialists directory, with its
domain tag and classification keywords.

With --check each definition is also linted for common problems (missing
description, no keywords, no command).

Examples:
  overseer specialists
  overseer specialists --check
  overseer specialists --specialists-dir ./team-specialists`,
		Args: cobra.NoArgs,
		RunE: specialistsCommand,
	}

	cmd.Flags().Bool("check", false, "Lint definitions for common problems")

	return cmd
}

func specialistsCommand(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	defs := a.registry.List()
	if len(defs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No specialists found in %s.\n", a.registry.Dir)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Specialists in %s:\n\n", a.registry.Dir)
	for _, def := range defs {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-14s %s\n", def.Domain, def.Name)
		if def.Description != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-14s %s\n", "", def.Description)
		}
		if len(def.Keywords) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-14s keywords: %s\n", "", strings.Join(def.Keywords, ", "))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n")
	}

	check, _ := cmd.Flags().GetBool("check")
	if !check {
		return nil
	}

	problems := a.registry.Check()
	if len(problems) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No problems found.\n")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Problems:\n")
	for _, p := range problems {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
	}
	return nil
}
