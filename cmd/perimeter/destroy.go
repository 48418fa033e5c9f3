package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newDestroyCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete every resource of the stack",
		Long: `Destroy deletes the stack in reverse dependency order. Unless
DB_SKIP_FINAL_SNAPSHOT is set, the database is snapshotted first.
A database with deletion protection is refused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("destroy deletes every resource of %q; pass --yes to confirm", a.cfg.Stack.Project)
			}
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				res, err := s.Destroy(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), a.output, res, func(w io.Writer) error {
					return printResult(w, res)
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}
