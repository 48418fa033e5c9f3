package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Create or correct every resource of the stack",
		Long: `Apply walks the resource graph in dependency order, creating what is missing
and correcting what drifted, then records a new state snapshot and prints
the stack outputs. Running it again without changes does nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				res, err := s.Apply(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), a.output, res, func(w io.Writer) error {
					return printResult(w, res)
				})
			})
		},
	}
}
