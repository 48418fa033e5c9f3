package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded state snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				snaps, err := s.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), a.output, snaps, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "VERSION\tSTATUS\tRESOURCES\tCREATED\tRUN")
					for _, snap := range snaps {
						fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", snap.Version, snap.Status,
							len(snap.Resources), snap.CreatedAt.Format(time.RFC3339), snap.RunID)
					}
					return tw.Flush()
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of snapshots to list")

	return cmd
}
