package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/internal/reconcile"
	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newPlanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the changes apply would make",
		Long: `Plan reads the recorded state and the live account and prints, per resource,
whether apply would create, update, replace or leave it. Nothing is written.

Examples:
    perimeter plan
    perimeter plan -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				res, err := s.Plan(cmd.Context())
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

var actionSymbols = map[reconcile.Action]string{
	reconcile.ActionCreate:  "+",
	reconcile.ActionUpdate:  "~",
	reconcile.ActionReplace: "-/+",
	reconcile.ActionDelete:  "-",
}

func printResult(w io.Writer, res *perimeter.Result) error {
	for _, c := range res.Actions {
		if c.Action == reconcile.ActionNoop {
			continue
		}
		fmt.Fprintf(w, "%3s %s %s (%s)", actionSymbols[c.Action], c.Action, c.Resource, c.Kind)
		if c.PhysicalID != "" {
			fmt.Fprintf(w, " %s", c.PhysicalID)
		}
		fmt.Fprintln(w)
		for _, d := range c.Details {
			fmt.Fprintf(w, "      %s\n", d)
		}
	}

	verb := "changed"
	if res.DryRun {
		verb = "to change"
	}
	fmt.Fprintf(w, "\n%d of %d resources %s.\n", res.Changed(), len(res.Actions), verb)
	if !res.DryRun && res.Outputs.LoadBalancerDNS != "" {
		fmt.Fprintln(w)
		printOutputs(w, res.Outputs)
	}
	return nil
}
