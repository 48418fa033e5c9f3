package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newOutputsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "outputs",
		Short: "Print the outputs of the last apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				out, err := s.Outputs(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), a.output, out, func(w io.Writer) error {
					printOutputs(w, out)
					return nil
				})
			})
		},
	}
}

func printOutputs(w io.Writer, out perimeter.Outputs) {
	fmt.Fprintf(w, "load_balancer_dns = %s\n", out.LoadBalancerDNS)
	fmt.Fprintf(w, "instance_id       = %s\n", out.InstanceID)
	fmt.Fprintf(w, "database_endpoint = %s\n", out.DatabaseEndpoint)
}
