package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eleven-am/perimeter/internal/config"
	"github.com/eleven-am/perimeter/internal/logging"
	"github.com/eleven-am/perimeter/pkg/perimeter"
)

// app is the state shared by every command once flags are parsed.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	output string

	simulate bool
	logLevel string
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perimeter",
		Short: "Provision, audit and deploy a single-project web stack on AWS",
		Long: `perimeter provisions a VPC with public and private subnets, an internet-facing
load balancer, one application instance and a managed PostgreSQL database,
and keeps them converged with the declared topology.

Inputs come from the environment:

    PERIMETER_PROJECT=emit DB_NAME=emit DB_USERNAME=emit DB_PASSWORD=... perimeter apply

Try it without an account:

    perimeter plan --simulate`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVar(&a.simulate, "simulate", false, "Use an in-memory simulated account")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "Output format: text, json or yaml")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override LOG_LEVEL")

	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.simulate {
		cfg.AWS.Simulate = true
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch a.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (use text, json or yaml)", a.output)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// open connects the configured stack and hands it to fn, closing it after.
func (a *app) open(ctx context.Context, fn func(*perimeter.Stack) error) error {
	stack, err := perimeter.Open(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			a.log.Warn("closing stack", zap.Error(err))
		}
	}()
	return fn(stack)
}

func (a *app) sync() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}
