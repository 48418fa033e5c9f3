package main

import (
	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/internal/topology"
)

func newGraphCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the resource dependency graph",
		Long: `Render the resources of the stack and their dependencies as DOT or Mermaid.
No account access is needed.

Examples:
    perimeter graph | dot -Tpng -o stack.png
    perimeter graph -f mermaid`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := topology.Build(a.cfg.Stack)
			if err != nil {
				return err
			}
			return topology.Render(g, topology.Format(format), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "dot", "Output format: dot or mermaid")

	return cmd
}
