package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/pkg/perimeter"
)

type reachView struct {
	Source      string   `json:"source" yaml:"source"`
	Destination string   `json:"destination" yaml:"destination"`
	Reachable   bool     `json:"reachable" yaml:"reachable"`
	Reason      string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Path        []string `json:"path,omitempty" yaml:"path,omitempty"`
}

func newReachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reach <source> <destination>",
		Short: "Trace traffic between two endpoints of the stack",
		Long: `Reach traces a connection through route tables, gateways, network ACLs and
security groups. Endpoints are app, db, alb or ip:port. Between two resources
both directions are traced; an ip:port can only be the destination.

Examples:
    perimeter reach app db
    perimeter reach app 203.0.113.80:443`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := perimeter.ParseRef(args[0])
			if err != nil {
				return err
			}
			dst, err := perimeter.ParseRef(args[1])
			if err != nil {
				return err
			}
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				res, err := s.Reach(cmd.Context(), src, dst)
				if err != nil {
					return err
				}
				view := reachView{Source: src.String(), Destination: dst.String(), Reachable: res.OverallSuccess, Reason: res.Reason(), Path: res.Path()}
				if err := render(cmd.OutOrStdout(), a.output, view, func(w io.Writer) error {
					if view.Reachable {
						fmt.Fprintf(w, "%s -> %s: reachable\n", view.Source, view.Destination)
						for i, hop := range view.Path {
							fmt.Fprintf(w, "  %2d  %s\n", i+1, hop)
						}
						return nil
					}
					_, err := fmt.Fprintf(w, "%s -> %s: blocked: %s\n", view.Source, view.Destination, view.Reason)
					return err
				}); err != nil {
					return err
				}
				if !view.Reachable {
					return &exitError{code: 1}
				}
				return nil
			})
		},
	}
}
