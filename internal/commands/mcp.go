package commands

import (
	"github.com/spf13/cobra"

	"github.com/moasq/storecheck/internal/mcpserver"
)

func newMCPCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Long: "Starts an MCP server over stdio exposing each checker and the full audit as tools, " +
			"so coding agents can validate a project while they work on it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.log.Debugw("starting mcp server", "version", Version)
			return mcpserver.Run(cmd.Context(), mcpserver.Deps{
				Options:  a.runnerOptions(),
				Parallel: a.cfg.Parallel,
				Version:  Version,
				Logger:   a.log,
			})
		},
	}
	cmd.Flags().String("prior-build", "", "default build number of the last upload")
	cmd.Flags().StringSlice("exclude", nil, "directory names to skip in addition to Pods, Carthage and build output")
	return cmd
}
