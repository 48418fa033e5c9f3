// Package deploy converges a host onto the latest revision of its service:
// locate the checkout, synchronize it, rebuild and restart the container,
// verify it answers and report its logs.
package deploy

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/eleven-am/perimeter/internal/metrics"
)

type Status string

const (
	Success Status = "success"
	// Warning is reported but does not stop the pipeline or change the exit code.
	Warning Status = "warning"
	Fatal   Status = "fatal"
	Skipped Status = "skipped"
)

// Outcome is the tagged result of one stage.
type Outcome struct {
	Stage    string        `json:"stage" yaml:"stage"`
	Status   Status        `json:"status" yaml:"status"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Err      error         `json:"-" yaml:"-"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

func succeeded(format string, args ...any) Outcome {
	return Outcome{Status: Success, Message: fmt.Sprintf(format, args...)}
}

func warned(err error, format string, args ...any) Outcome {
	return Outcome{Status: Warning, Message: fmt.Sprintf(format, args...), Err: err}
}

func failed(err error, format string, args ...any) Outcome {
	return Outcome{Status: Fatal, Message: fmt.Sprintf(format, args...), Err: err}
}

type Stage interface {
	Name() string
	// Always stages run even after an earlier stage was fatal or the run was
	// cancelled. They get a context that is never cancelled.
	Always() bool
	Run(ctx context.Context) Outcome
}

type stageFunc struct {
	name   string
	always bool
	run    func(ctx context.Context) Outcome
}

func (s stageFunc) Name() string                    { return s.name }
func (s stageFunc) Always() bool                    { return s.always }
func (s stageFunc) Run(ctx context.Context) Outcome { return s.run(ctx) }

// NewStage adapts a function to a Stage.
func NewStage(name string, always bool, run func(ctx context.Context) Outcome) Stage {
	return stageFunc{name: name, always: always, run: run}
}

type Report struct {
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`
}

// ExitCode is 1 when any stage was fatal and 0 otherwise.
func (r *Report) ExitCode() int {
	if _, ok := r.Fatal(); ok {
		return 1
	}
	return 0
}

// Fatal returns the first fatal outcome.
func (r *Report) Fatal() (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Status == Fatal {
			return o, true
		}
	}
	return Outcome{}, false
}

func (r *Report) Outcome(stage string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Stage == stage {
			return o, true
		}
	}
	return Outcome{}, false
}

// Pipeline runs stages strictly in order. A fatal outcome skips every later
// stage that is not marked Always; warnings are printed and the run goes on.
type Pipeline struct {
	Stages  []Stage
	Out     io.Writer
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (p *Pipeline) Run(ctx context.Context) *Report {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	out := p.Out
	if out == nil {
		out = io.Discard
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	report := &Report{}
	aborted := false
	for _, stage := range p.Stages {
		if aborted && !stage.Always() {
			report.Outcomes = append(report.Outcomes, Outcome{Stage: stage.Name(), Status: Skipped})
			fmt.Fprintf(out, "==> %s: skipped\n", stage.Name())
			continue
		}

		fmt.Fprintf(out, "==> %s\n", stage.Name())
		stageCtx := ctx
		if stage.Always() {
			stageCtx = context.WithoutCancel(ctx)
		}
		start := now()
		o := stage.Run(stageCtx)
		o.Stage = stage.Name()
		o.Duration = now().Sub(start)
		report.Outcomes = append(report.Outcomes, o)
		p.Metrics.ObserveStage(o.Stage, string(o.Status), o.Duration)

		fields := []zap.Field{zap.String("stage", o.Stage), zap.String("status", string(o.Status)), zap.Duration("duration", o.Duration)}
		switch o.Status {
		case Fatal:
			aborted = true
			log.Error("stage failed", append(fields, zap.Error(o.Err))...)
			fmt.Fprintf(out, "FAILED: %s: %s\n", o.Stage, describe(o))
		case Warning:
			log.Warn("stage warning", append(fields, zap.Error(o.Err))...)
			fmt.Fprintf(out, "WARNING: %s: %s\n", o.Stage, describe(o))
		default:
			log.Info("stage finished", fields...)
			if o.Message != "" {
				fmt.Fprintf(out, "    %s\n", o.Message)
			}
		}
	}
	return report
}

func describe(o Outcome) string {
	switch {
	case o.Err == nil:
		return o.Message
	case o.Message == "":
		return o.Err.Error()
	default:
		return o.Message + ": " + o.Err.Error()
	}
}
