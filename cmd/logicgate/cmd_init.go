package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/logicgate/internal/scaffold"
)

func newInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter logicgate.yml and register the MCP server in .mcp.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if err := scaffold.Install(a.projectRoot, scaffold.Options{Force: force, Out: out}); err != nil {
				return err
			}
			fmt.Fprintln(out, "\nSetup complete. Run 'logicgate routes' to see what was found.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}
