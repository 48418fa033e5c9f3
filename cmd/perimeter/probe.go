package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eleven-am/perimeter/internal/health"
	"github.com/eleven-am/perimeter/pkg/perimeter"
)

func newProbeCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "probe [url]",
		Short: "Poll the service health endpoint the way the load balancer does",
		Long: `Probe polls a health URL and prints each observation. The target only turns
healthy after HEALTHY_THRESHOLD consecutive successes and unhealthy after
UNHEALTHY_THRESHOLD consecutive failures, so a single transient failure never
flips it. Without a URL the load balancer of the last apply is probed.

Examples:
    perimeter probe
    perimeter probe http://localhost:8000/health --once`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			url := ""
			if len(args) == 1 {
				url = args[0]
			} else {
				err := a.open(ctx, func(s *perimeter.Stack) error {
					out, err := s.Outputs(ctx)
					if err != nil {
						return err
					}
					url = loadBalancerURL(out.LoadBalancerDNS, a.cfg.Stack.ListenerPort, a.cfg.Stack.HealthPath)
					return nil
				})
				if err != nil {
					return err
				}
			}

			matcher, err := health.ParseMatcher(a.cfg.Stack.HealthMatcher)
			if err != nil {
				return err
			}
			prober := health.NewProber(time.Duration(a.cfg.Stack.HealthTimeout)*time.Second, matcher)

			if once {
				if err := prober.Probe(ctx, url); err != nil {
					return &exitError{code: 1, msg: err.Error()}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: healthy\n", url)
				return nil
			}

			if interval <= 0 {
				interval = time.Duration(a.cfg.Stack.HealthInterval) * time.Second
			}
			tracker := health.NewTracker(a.cfg.Stack.HealthyThreshold, a.cfg.Stack.UnhealthyThreshold)
			w := cmd.OutOrStdout()
			err = health.Watch(ctx, prober, url, interval, tracker, func(t health.Transition) {
				mark := " "
				if t.Changed {
					mark = "*"
				}
				result := "ok"
				if t.Err != nil {
					result = t.Err.Error()
				}
				fmt.Fprintf(w, "%s %s %-9s %s\n", t.At.Format(time.RFC3339), mark, t.State, result)
				if t.Changed {
					a.log.Info("target state changed", zap.String("url", url), zap.String("state", string(t.State)))
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between probes (default HEALTH_INTERVAL)")
	cmd.Flags().BoolVar(&once, "once", false, "Probe once and exit non-zero unless healthy")

	return cmd
}

func loadBalancerURL(dns string, port int, path string) string {
	host := dns
	if port != 80 {
		host = net.JoinHostPort(dns, strconv.Itoa(port))
	}
	return "http://" + host + path
}
