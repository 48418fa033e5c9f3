package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/eleven-am/perimeter/internal/config"
	"github.com/eleven-am/perimeter/internal/health"
	"github.com/eleven-am/perimeter/internal/metrics"
)

const (
	StageLocate      = "locate"
	StageSynchronize = "synchronize"
	StageRebuild     = "rebuild"
	StageVerify      = "verify"
	StageReport      = "report"
)

// ErrBusy is returned when another deploy holds the host lock.
var ErrBusy = errors.New("another deploy is running on this host")

type Deployer struct {
	cfg     config.DeployConfig
	runner  Runner
	prober  *health.Prober
	out     io.Writer
	log     *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Deployer)

func WithRunner(r Runner) Option { return func(d *Deployer) { d.runner = r } }

func WithProber(p *health.Prober) Option { return func(d *Deployer) { d.prober = p } }

func WithLogger(l *zap.Logger) Option { return func(d *Deployer) { d.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(d *Deployer) { d.metrics = m } }

func New(cfg config.DeployConfig, out io.Writer, opts ...Option) *Deployer {
	d := &Deployer{
		cfg:    cfg,
		runner: ExecRunner{},
		out:    out,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.prober == nil {
		d.prober = health.NewProber(cfg.ProbeTimeout, health.MustParseMatcher("200-399"))
	}
	return d
}

// Run takes the host lock and runs the five stages. The returned error is
// only set when the lock could not be taken; stage failures are in the Report.
func (d *Deployer) Run(ctx context.Context) (*Report, error) {
	lock := flock.New(d.cfg.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", d.cfg.LockFile, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", d.cfg.LockFile, ErrBusy)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.log.Warn("releasing deploy lock", zap.Error(err))
		}
	}()

	p := &Pipeline{Stages: d.Stages(), Out: d.out, Logger: d.log, Metrics: d.metrics}
	report := p.Run(ctx)
	d.log.Info("deploy finished", zap.Int("exit_code", report.ExitCode()))
	return report, nil
}

func (d *Deployer) Stages() []Stage {
	return []Stage{
		NewStage(StageLocate, false, d.locate),
		NewStage(StageSynchronize, false, d.synchronize),
		NewStage(StageRebuild, false, d.rebuild),
		NewStage(StageVerify, false, d.verify),
		NewStage(StageReport, true, d.report),
	}
}

func (d *Deployer) locate(ctx context.Context) Outcome {
	info, err := os.Stat(d.cfg.Dir)
	if err != nil {
		return failed(err, "deployment directory %s", d.cfg.Dir)
	}
	if !info.IsDir() {
		return failed(fmt.Errorf("%s is not a directory", d.cfg.Dir), "deployment directory")
	}
	return succeeded("%s", d.cfg.Dir)
}

// synchronize discards local drift so repeated runs land on the same tree.
func (d *Deployer) synchronize(ctx context.Context) Outcome {
	if _, err := d.runner.Run(ctx, d.cfg.Dir, "git", "fetch", "--all", "--tags"); err != nil {
		return failed(err, "fetch")
	}
	if _, err := d.runner.Run(ctx, d.cfg.Dir, "git", "reset", "--hard", "origin/"+d.cfg.Branch); err != nil {
		return failed(err, "reset to origin/%s", d.cfg.Branch)
	}
	rev, err := d.runner.Run(ctx, d.cfg.Dir, "git", "rev-parse", "--short", "HEAD")
	if head := strings.TrimSpace(string(rev)); err == nil && head != "" {
		return succeeded("at origin/%s (%s)", d.cfg.Branch, head)
	}
	return succeeded("at origin/%s", d.cfg.Branch)
}

// rebuild builds before restarting, so a failed build leaves the running
// container alone.
func (d *Deployer) rebuild(ctx context.Context) Outcome {
	if _, err := d.runner.Run(ctx, d.cfg.Dir, "docker", d.compose("build", d.cfg.Service)...); err != nil {
		return failed(err, "build %s", d.cfg.Service)
	}
	if _, err := d.runner.Run(ctx, d.cfg.Dir, "docker", d.compose("up", "-d", d.cfg.Service)...); err != nil {
		return failed(err, "restart %s", d.cfg.Service)
	}
	return succeeded("%s rebuilt and restarted", d.cfg.Service)
}

func (d *Deployer) verify(ctx context.Context) Outcome {
	if err := d.prober.Probe(ctx, d.cfg.HealthURL); err != nil {
		return warned(err, "health check failed")
	}
	return succeeded("%s is healthy", d.cfg.HealthURL)
}

func (d *Deployer) report(ctx context.Context) Outcome {
	logs, err := d.runner.Run(ctx, d.cfg.Dir, "docker", d.compose("logs", "--tail", strconv.Itoa(d.cfg.LogLines), d.cfg.Service)...)
	if len(logs) > 0 {
		fmt.Fprintf(d.out, "%s", logs)
		if logs[len(logs)-1] != '\n' {
			fmt.Fprintln(d.out)
		}
	}
	if err != nil {
		return warned(err, "reading logs of %s", d.cfg.Service)
	}
	return succeeded("last %d lines of %s", d.cfg.LogLines, d.cfg.Service)
}

func (d *Deployer) compose(args ...string) []string {
	return append([]string{"compose", "-f", d.cfg.ComposeFile}, args...)
}
