package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newDeployCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Converge this host's checkout and container onto the latest commit",
		Long: `Deploy runs on the application host. It resets the checkout in DEPLOY_DIR to
origin/DEPLOY_BRANCH, rebuilds and restarts DEPLOY_SERVICE with docker compose,
probes DEPLOY_HEALTH_URL once and prints the service's recent logs.

A failed health probe is reported as a WARNING and does not change the exit
status. Any other failure stops the run and exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stage banners stay off stdout when it carries a structured report
			out := cmd.OutOrStdout()
			if a.output != "text" {
				out = cmd.ErrOrStderr()
			}
			report, err := perimeter.Deploy(cmd.Context(), a.cfg, out, a.log)
			if err != nil {
				return err
			}
			if a.output != "text" {
				if err := render(cmd.OutOrStdout(), a.output, report, func(io.Writer) error { return nil }); err != nil {
					return err
				}
			}
			if code := report.ExitCode(); code != 0 {
				fatal, _ := report.Fatal()
				return &exitError{code: code, msg: fmt.Sprintf("deploy failed at %s", fatal.Stage)}
			}
			return nil
		},
	}
}
