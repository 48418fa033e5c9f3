// Package perimeter is the public entry point: it wires configuration to a
// cloud, a state store and metrics, and exposes the stack operations the
// command line drives.
package perimeter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/eleven-am/perimeter/internal/audit"
	internalaws "github.com/eleven-am/perimeter/internal/aws"
	"github.com/eleven-am/perimeter/internal/config"
	"github.com/eleven-am/perimeter/internal/deploy"
	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/metrics"
	"github.com/eleven-am/perimeter/internal/reconcile"
	"github.com/eleven-am/perimeter/internal/schema"
	"github.com/eleven-am/perimeter/internal/simulate"
	"github.com/eleven-am/perimeter/internal/state"
	"github.com/eleven-am/perimeter/internal/state/memory"
	sqlstore "github.com/eleven-am/perimeter/internal/state/sql"
	"github.com/eleven-am/perimeter/internal/topology"
)

type (
	Result   = reconcile.Result
	Change   = reconcile.Change
	Outputs  = domain.Outputs
	Report   = audit.Report
	Finding  = audit.Finding
	Snapshot = state.Snapshot
	Lock     = state.Lock
)

// Stack is one project's topology bound to an account and a state store.
type Stack struct {
	cfg      *config.Config
	cloud    domain.Cloud
	accounts domain.AccountContext
	store    state.Store
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type Option func(*Stack)

// WithCloud replaces the cloud Open would connect to.
func WithCloud(cloud domain.Cloud, accounts domain.AccountContext) Option {
	return func(s *Stack) {
		s.cloud = cloud
		s.accounts = accounts
	}
}

func WithStore(store state.Store) Option {
	return func(s *Stack) { s.store = store }
}

// Open connects to the account (or builds a simulated one) and the state store.
// A simulated cloud lives only as long as the process, so it always pairs
// with an in-memory store.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*Stack, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Stack{cfg: cfg, metrics: metrics.New(), log: log}
	for _, opt := range opts {
		opt(s)
	}

	if s.cloud == nil {
		if cfg.AWS.Simulate {
			sim := simulate.New(simulate.WithRegion(cfg.Stack.Region))
			s.cloud, s.accounts = sim, sim
			if s.store == nil {
				s.store = memory.New()
			}
			log.Info("using simulated cloud", zap.String("region", cfg.Stack.Region))
		} else {
			session, err := internalaws.LoadSession(ctx, internalaws.SessionOptions{
				Region:      cfg.AWS.Region,
				RoleARN:     cfg.AWS.DeployRoleARN,
				WaitTimeout: cfg.Stack.WaitTimeout,
			})
			if err != nil {
				return nil, err
			}
			s.cloud, s.accounts = session.Client(), session
			log.Info("connected to aws", zap.String("account", session.AccountID()), zap.String("region", session.Region()))
		}
	}

	if s.store == nil {
		store, err := openStore(cfg.State)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	return s, nil
}

func openStore(cfg config.StateConfig) (state.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite3", "postgres":
		return sqlstore.New(cfg.Driver, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown state driver %q", cfg.Driver)
	}
}

// Close releases the state store and flushes metrics to the configured
// textfile.
func (s *Stack) Close() error {
	var errs []error
	if err := s.metrics.Flush(s.cfg.Metrics.Textfile); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Stack) Project() string { return s.cfg.Stack.Project }

func (s *Stack) Metrics() *metrics.Metrics { return s.metrics }

// Graph builds the resource graph from the configured inputs.
func (s *Stack) Graph() (*topology.Graph, error) {
	return topology.Build(s.cfg.Stack)
}

func (s *Stack) reconciler() *reconcile.Reconciler {
	return reconcile.New(s.cloud, s.store, reconcile.Options{
		Parallelism: s.cfg.Stack.Parallelism,
		Timeout:     s.cfg.Stack.WaitTimeout,
		Logger:      s.log,
		Metrics:     s.metrics,
	})
}

func (s *Stack) Apply(ctx context.Context) (*Result, error) {
	g, err := s.Graph()
	if err != nil {
		return nil, err
	}
	return s.reconciler().Apply(ctx, g)
}

func (s *Stack) Plan(ctx context.Context) (*Result, error) {
	g, err := s.Graph()
	if err != nil {
		return nil, err
	}
	return s.reconciler().Plan(ctx, g)
}

func (s *Stack) Destroy(ctx context.Context) (*Result, error) {
	g, err := s.Graph()
	if err != nil {
		return nil, err
	}
	return s.reconciler().Destroy(ctx, g)
}

// Latest returns the newest snapshot of the project.
func (s *Stack) Latest(ctx context.Context) (*Snapshot, error) {
	return s.store.Latest(ctx, s.Project())
}

func (s *Stack) History(ctx context.Context, limit int) ([]*Snapshot, error) {
	return s.store.History(ctx, s.Project(), limit)
}

// ForceUnlock releases the run lock of a process that died while holding
// it. holder, when set, must name the current holder.
func (s *Stack) ForceUnlock(ctx context.Context, holder string) (*Lock, error) {
	released, err := s.store.ForceUnlock(ctx, s.Project(), holder)
	if err != nil {
		return nil, err
	}
	s.log.Warn("state lock forcibly released",
		zap.String("project", released.Project),
		zap.String("holder", released.Holder),
		zap.Time("acquired_at", released.AcquiredAt))
	return released, nil
}

// Outputs returns the outputs of the last successful apply.
func (s *Stack) Outputs(ctx context.Context) (Outputs, error) {
	snap, err := s.Latest(ctx)
	if err != nil {
		return Outputs{}, err
	}
	if snap.Status != state.StatusApplied {
		return Outputs{}, fmt.Errorf("%s: latest run is %s: %w", s.Project(), snap.Status, domain.ErrNotFound)
	}
	return snap.Outputs, nil
}

func (s *Stack) Audit(ctx context.Context) (*Report, error) {
	g, err := s.Graph()
	if err != nil {
		return nil, err
	}
	snap, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	auditor := audit.New(s.cloud, s.accounts, s.cloud.AccountID(), audit.Options{Logger: s.log, Metrics: s.metrics})
	return auditor.Run(ctx, g, snap)
}

// Migrator connects to the application database published by the last apply.
func (s *Stack) Migrator(ctx context.Context) (*schema.Migrator, error) {
	out, err := s.Outputs(ctx)
	if err != nil {
		return nil, err
	}
	return schema.Open(schema.Target{
		Endpoint: out.DatabaseEndpoint,
		Port:     s.cfg.Stack.DBPort,
		User:     s.cfg.Stack.DBUsername,
		Password: s.cfg.Stack.DBPassword,
		Name:     s.cfg.Stack.DBName,
		SSLMode:  s.cfg.Schema.SSLMode,
	}, s.cfg.Schema.Dir, s.log)
}

// Deploy runs the convergence pipeline on this host. It needs no cloud access.
func Deploy(ctx context.Context, cfg *config.Config, w io.Writer, log *zap.Logger) (*deploy.Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := metrics.New()
	d := deploy.New(cfg.Deploy, w, deploy.WithLogger(log), deploy.WithMetrics(m))
	report, err := d.Run(ctx)
	if ferr := m.Flush(cfg.Metrics.Textfile); ferr != nil {
		log.Warn("flushing metrics", zap.Error(ferr))
	}
	return report, err
}
