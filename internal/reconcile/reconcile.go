// Package reconcile converges a project's cloud resources onto a topology
// graph. Each run walks the graph level by level, resolves references from
// the records of earlier levels and applies only the difference between the
// desired and the observed resource.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/metrics"
	"github.com/eleven-am/perimeter/internal/state"
	"github.com/eleven-am/perimeter/internal/topology"
)

// Unknown stands in for identifiers a plan cannot know yet.
const Unknown = "(known after apply)"

type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionNoop    Action = "no-op"
	ActionDelete  Action = "delete"
)

type Change struct {
	Resource   string              `json:"resource" yaml:"resource"`
	Kind       domain.ResourceKind `json:"kind" yaml:"kind"`
	Action     Action              `json:"action" yaml:"action"`
	PhysicalID string              `json:"physical_id,omitempty" yaml:"physical_id,omitempty"`
	Details    []string            `json:"details,omitempty" yaml:"details,omitempty"`
}

type Result struct {
	RunID   string         `json:"run_id" yaml:"run_id"`
	DryRun  bool           `json:"dry_run" yaml:"dry_run"`
	Actions []Change       `json:"actions" yaml:"actions"`
	Outputs domain.Outputs `json:"outputs" yaml:"outputs"`
}

// Changed counts the actions that are not no-ops.
func (r *Result) Changed() int {
	n := 0
	for _, a := range r.Actions {
		if a.Action != ActionNoop {
			n++
		}
	}
	return n
}

// Change returns the action taken for a resource.
func (r *Result) Change(resource string) (Change, bool) {
	for _, a := range r.Actions {
		if a.Resource == resource {
			return a, true
		}
	}
	return Change{}, false
}

type Options struct {
	// Parallelism bounds concurrent resources within one level.
	Parallelism int
	// Timeout bounds a whole run. Zero means no bound.
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Reconciler struct {
	cloud domain.Cloud
	store state.Store
	opts  Options
	log   *zap.Logger
}

func New(cloud domain.Cloud, store state.Store, opts Options) *Reconciler {
	if opts.Parallelism < 1 {
		opts.Parallelism = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{cloud: cloud, store: store, opts: opts, log: log}
}

// Apply creates or corrects every resource of the graph.
func (rc *Reconciler) Apply(ctx context.Context, g *topology.Graph) (*Result, error) {
	return rc.converge(ctx, g, false)
}

// Plan computes the actions Apply would take without writing anything.
func (rc *Reconciler) Plan(ctx context.Context, g *topology.Graph) (*Result, error) {
	return rc.converge(ctx, g, true)
}

func (rc *Reconciler) converge(ctx context.Context, g *topology.Graph, dryRun bool) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	if rc.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.opts.Timeout)
		defer cancel()
	}

	r, err := rc.begin(ctx, g, dryRun)
	if err != nil {
		return nil, err
	}
	defer r.end(ctx)

	start := rc.opts.Now()
	defer func() { rc.opts.Metrics.ObserveReconcile(rc.opts.Now().Sub(start)) }()

	for i, level := range levels {
		levelErr := r.level(ctx, level, r.reconcile)
		if !dryRun {
			if err := r.save(ctx, state.StatusPartial, nil); err != nil {
				return r.result(), errors.Join(levelErr, err)
			}
		}
		if levelErr != nil {
			r.log.Error("level failed", zap.Int("level", i), zap.Error(levelErr))
			if !dryRun {
				if err := r.save(ctx, state.StatusFailed, levelErr); err != nil {
					r.log.Warn("saving failed snapshot", zap.Error(err))
				}
			}
			return r.result(), levelErr
		}
	}

	r.snap.Outputs = r.outputs()
	if !dryRun {
		if err := r.save(ctx, state.StatusApplied, nil); err != nil {
			return r.result(), err
		}
	}
	res := r.result()
	r.log.Info("reconcile finished", zap.Int("changed", res.Changed()), zap.Bool("dry_run", dryRun))
	return res, nil
}

// run is the mutable state of one Apply, Plan or Destroy.
type run struct {
	*Reconciler
	graph  *topology.Graph
	id     string
	dryRun bool
	locked bool
	log    *zap.Logger

	mu      sync.Mutex
	prev    map[string]state.Record
	records map[string]state.Record
	removed map[string]bool
	changes []Change
	snap    *state.Snapshot
}

func (rc *Reconciler) begin(ctx context.Context, g *topology.Graph, dryRun bool) (*run, error) {
	r := &run{
		Reconciler: rc,
		graph:      g,
		id:         uuid.NewString(),
		dryRun:     dryRun,
		prev:       make(map[string]state.Record),
		records:    make(map[string]state.Record),
		removed:    make(map[string]bool),
	}
	r.log = rc.log.With(zap.String("run_id", r.id), zap.String("project", g.Project))

	if !dryRun {
		if err := rc.store.Lock(ctx, g.Project, r.id); err != nil {
			return nil, err
		}
		r.locked = true
	}

	latest, err := rc.store.Latest(ctx, g.Project)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		latest = nil
	case err != nil:
		r.end(ctx)
		return nil, fmt.Errorf("load state of %s: %w", g.Project, err)
	}
	if latest != nil {
		r.prev = latest.Resources
	}
	r.snap = state.Next(g.Project, r.id, latest)
	return r, nil
}

func (r *run) end(ctx context.Context) {
	if !r.locked {
		return
	}
	if err := r.store.Unlock(context.WithoutCancel(ctx), r.graph.Project, r.id); err != nil {
		r.log.Warn("releasing state lock", zap.Error(err))
	}
	r.locked = false
}

// level reconciles resources concurrently. A failure does not cancel its
// siblings; every in-flight resource finishes and all errors are returned.
func (r *run) level(ctx context.Context, level []*topology.Resource, fn func(context.Context, *topology.Resource) error) error {
	var g errgroup.Group
	g.SetLimit(r.opts.Parallelism)

	var mu sync.Mutex
	var errs []error
	for _, res := range level {
		g.Go(func() error {
			if err := fn(ctx, res); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s %q: %w", res.Kind, res.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *run) save(ctx context.Context, status state.Status, runErr error) error {
	r.mu.Lock()
	for name, rec := range r.records {
		if rec.PhysicalID != Unknown {
			r.snap.Resources[name] = rec
		}
	}
	for name := range r.removed {
		delete(r.snap.Resources, name)
	}
	r.mu.Unlock()

	r.snap.Status = status
	if runErr != nil {
		r.snap.Error = runErr.Error()
	}
	if err := r.store.Save(context.WithoutCancel(ctx), r.snap); err != nil {
		return fmt.Errorf("save snapshot %d of %s: %w", r.snap.Version, r.graph.Project, err)
	}
	r.snap = state.Next(r.graph.Project, r.id, r.snap)
	return nil
}

func (r *run) record(res *topology.Resource, rec state.Record, ch Change) {
	ch.Resource = res.Name
	ch.Kind = res.Kind
	rec.Kind = res.Kind

	r.mu.Lock()
	if ch.Action == ActionDelete || rec.PhysicalID == "" {
		r.removed[res.Name] = true
		delete(r.records, res.Name)
	} else {
		r.records[res.Name] = rec
	}
	r.changes = append(r.changes, ch)
	r.mu.Unlock()

	r.opts.Metrics.ObserveAction(string(res.Kind), string(ch.Action))
	fields := []zap.Field{
		zap.String("resource", res.Name),
		zap.String("kind", string(res.Kind)),
		zap.String("action", string(ch.Action)),
		zap.String("id", ch.PhysicalID),
	}
	if ch.Action == ActionNoop {
		r.log.Debug("resource unchanged", fields...)
		return
	}
	r.log.Info("resource reconciled", append(fields, zap.Strings("details", ch.Details))...)
}

func (r *run) result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Report in graph order regardless of completion order.
	position := make(map[string]int)
	for i, res := range r.graph.Resources() {
		position[res.Name] = i
	}
	actions := slices.Clone(r.changes)
	slices.SortStableFunc(actions, func(a, b Change) int {
		return position[a.Resource] - position[b.Resource]
	})
	return &Result{RunID: r.id, DryRun: r.dryRun, Actions: actions, Outputs: r.snap.Outputs}
}

// ref resolves the physical ID of a resource reconciled earlier in the run.
func (r *run) ref(from, name string) (string, error) {
	return r.attr(from, name, "")
}

// attr resolves an attribute of an earlier resource; an empty key is its
// physical ID. During a plan, resources that do not exist yet resolve to
// Unknown.
func (r *run) attr(from, name, key string) (string, error) {
	r.mu.Lock()
	rec, ok := r.records[name]
	r.mu.Unlock()
	if !ok || rec.PhysicalID == "" {
		return "", &domain.DependencyError{Resource: from, Missing: name}
	}
	if rec.PhysicalID == Unknown {
		if r.dryRun {
			return Unknown, nil
		}
		return "", &domain.DependencyError{Resource: from, Missing: name}
	}
	if key == "" {
		return rec.PhysicalID, nil
	}
	return rec.Attr(key), nil
}

func (r *run) refs(from string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		id, err := r.ref(from, name)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// write runs a mutation unless this is a plan.
func (r *run) write(fn func() error) error {
	if r.dryRun {
		return nil
	}
	return fn()
}

func (r *run) ident(name string) domain.Ident {
	return r.graph.Ident(name)
}

func (r *run) outputs() domain.Outputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Outputs{
		LoadBalancerDNS:  r.records[topology.NameLoadBalancer].Attr("dns"),
		InstanceID:       r.records[topology.NameInstance].PhysicalID,
		DatabaseEndpoint: r.records[topology.NameDB].Attr("endpoint"),
	}
}
