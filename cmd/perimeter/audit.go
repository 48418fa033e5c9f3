package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eleven-am/perimeter/internal/audit"
	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newAuditCmd(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the running stack against its declared boundaries",
		Long: `Audit reads the live account and reports, per check, whether the stack still
matches its topology: which tiers admit which sources, subnet placement,
default routes, load balancer targets and instance management.

Exits non-zero when any check fails. Warnings never change the exit status.

Examples:
    perimeter audit
    perimeter audit --quiet      # only warnings and failures
    perimeter audit -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), func(s *perimeter.Stack) error {
				report, err := s.Audit(cmd.Context())
				if err != nil {
					return err
				}
				err = render(cmd.OutOrStdout(), a.output, report, func(w io.Writer) error {
					printReport(w, report, quiet)
					return nil
				})
				if err != nil {
					return err
				}
				if !report.Passed() {
					return &exitError{code: 1, msg: fmt.Sprintf("audit: %d checks failed", report.Count(audit.Fail))}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print warnings and failures")

	return cmd
}

func printReport(w io.Writer, r *perimeter.Report, quiet bool) {
	for _, f := range r.Findings {
		if quiet && f.Severity == audit.Pass {
			continue
		}
		fmt.Fprintf(w, "%-4s  %s: %s\n", strings.ToUpper(string(f.Severity)), f.Check, f.Message)
	}
	fmt.Fprintf(w, "\n%s v%d: %d passed, %d warnings, %d failed\n",
		r.Project, r.Version, r.Count(audit.Pass), r.Count(audit.Warn), r.Count(audit.Fail))
}
