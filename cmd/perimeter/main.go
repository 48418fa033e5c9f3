// Command perimeter provisions a single-project web stack on AWS, audits its
// network boundaries and converges a host checkout onto the latest commit.
//
// Usage:
//
//	perimeter plan               Show what apply would change
//	perimeter apply              Create or correct every resource
//	perimeter audit              Check the running stack against its topology
//	perimeter deploy             Pull, rebuild and restart the service on this host
//	perimeter db upgrade         Apply pending schema migrations
//	perimeter unlock <holder>    Release the lock of a run that died
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// exitError carries a specific process exit status up through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	a := &app{}
	rootCmd := newRootCmd(a)
	rootCmd.AddCommand(
		newPlanCmd(a),
		newApplyCmd(a),
		newDestroyCmd(a),
		newOutputsCmd(a),
		newHistoryCmd(a),
		newUnlockCmd(a),
		newAuditCmd(a),
		newReachCmd(a),
		newGraphCmd(a),
		newDeployCmd(a),
		newDBCmd(a),
		newProbeCmd(a),
		newVersionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	a.sync()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(os.Stderr, exit.msg)
		}
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
