package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newUnlockCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock [holder]",
		Short: "Release the state lock of a run that died",
		Long: `Unlock releases the project's state lock when the run holding it was
killed before it could release it. The holder is the run ID printed by
the failing command ("held by <holder> since <time>"). Without a holder
--force is required and whoever holds the lock loses it.

Only unlock when no apply, plan or destroy of the project is running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			holder := ""
			if len(args) == 1 {
				holder = args[0]
			}
			if holder == "" && !force {
				return fmt.Errorf("name the holder to release, or pass --force to release %q unconditionally", a.cfg.Stack.Project)
			}
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				released, err := s.ForceUnlock(cmd.Context(), holder)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), a.output, released, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Released lock on %s held by %s since %s.\n",
						released.Project, released.Holder, released.AcquiredAt.Format(time.RFC3339))
					return err
				})
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Release the lock whoever holds it")

	return cmd
}
