// Package audit compares what is running in the account with the topology a
// project was applied from. It never writes; every problem becomes a finding.
package audit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/metrics"
	"github.com/eleven-am/perimeter/internal/state"
	"github.com/eleven-am/perimeter/internal/topology"
)

type Severity string

const (
	Pass Severity = "pass"
	Warn Severity = "warn"
	Fail Severity = "fail"
)

type Finding struct {
	Check    string   `json:"check" yaml:"check"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

type Report struct {
	Project  string    `json:"project" yaml:"project"`
	Version  int       `json:"state_version" yaml:"state_version"`
	Findings []Finding `json:"findings" yaml:"findings"`
}

func (r *Report) Count(s Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Passed reports whether no check failed. Warnings do not count.
func (r *Report) Passed() bool {
	return r.Count(Fail) == 0
}

// Finding returns the first finding of a check.
func (r *Report) Finding(check string) (Finding, bool) {
	for _, f := range r.Findings {
		if f.Check == check {
			return f, true
		}
	}
	return Finding{}, false
}

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Auditor struct {
	client    domain.AWSClient
	accounts  domain.AccountContext
	accountID string
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func New(client domain.AWSClient, accounts domain.AccountContext, accountID string, opts Options) *Auditor {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{client: client, accounts: accounts, accountID: accountID, log: log, metrics: opts.Metrics}
}

// Run audits the resources recorded in snap against the graph they were
// built from.
func (a *Auditor) Run(ctx context.Context, g *topology.Graph, snap *state.Snapshot) (*Report, error) {
	if snap == nil || snap.Status == state.StatusDestroyed || len(snap.Resources) == 0 {
		return nil, fmt.Errorf("audit %s: nothing applied: %w", g.Project, domain.ErrNotFound)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	s := &session{Auditor: a, ctx: ctx, graph: g, snap: snap, groups: make(map[string]*domain.SecurityGroupData)}
	s.report = &Report{Project: g.Project, Version: snap.Version}

	s.checkIngress()
	s.checkPlacement()
	s.checkRoutes()
	s.checkReachability()
	s.checkTargets()
	s.checkManagement()

	for _, sev := range []Severity{Pass, Warn, Fail} {
		a.metrics.SetFindings(string(sev), s.report.Count(sev))
	}
	a.log.Info("audit finished",
		zap.String("project", g.Project),
		zap.Int("pass", s.report.Count(Pass)),
		zap.Int("warn", s.report.Count(Warn)),
		zap.Int("fail", s.report.Count(Fail)))
	return s.report, nil
}

// session holds the lookups of one Run.
type session struct {
	*Auditor
	ctx    context.Context
	graph  *topology.Graph
	snap   *state.Snapshot
	report *Report
	groups map[string]*domain.SecurityGroupData
}

func (s *session) add(check string, sev Severity, format string, args ...any) {
	f := Finding{Check: check, Severity: sev, Message: fmt.Sprintf(format, args...)}
	s.report.Findings = append(s.report.Findings, f)
	if sev == Fail {
		s.log.Warn("audit check failed", zap.String("check", check), zap.String("message", f.Message))
	}
}

// id returns the recorded physical ID of a resource and fails check when
// there is none.
func (s *session) id(check, name string) (string, bool) {
	rec, ok := s.snap.Resources[name]
	if !ok || rec.PhysicalID == "" {
		s.add(check, Fail, "%s is not recorded in state", name)
		return "", false
	}
	return rec.PhysicalID, true
}

func (s *session) securityGroup(name string) (*domain.SecurityGroupData, error) {
	if sg, ok := s.groups[name]; ok {
		return sg, nil
	}
	rec, ok := s.snap.Resources[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
	}
	sg, err := s.client.GetSecurityGroup(s.ctx, rec.PhysicalID)
	if err != nil {
		return nil, err
	}
	s.groups[name] = sg
	return sg, nil
}

// securityGroups lists the graph's groups in declaration order.
func (s *session) securityGroups() []*topology.Resource {
	var out []*topology.Resource
	for _, res := range s.graph.Resources() {
		if _, ok := res.Spec.(topology.SecurityGroupSpec); ok {
			out = append(out, res)
		}
	}
	return out
}

func internetFacing(spec topology.SecurityGroupSpec) bool {
	for _, in := range spec.Ingress {
		if in.CIDR == topology.InternetCIDR {
			return true
		}
	}
	return false
}

func isInternet(cidr string) bool {
	return cidr == "0.0.0.0/0" || cidr == "::/0"
}

func describe(rule domain.SecurityGroupRule) string {
	sources := append(append(append([]string{}, rule.CIDRBlocks...), rule.IPv6CIDRBlocks...), rule.ReferencedSecurityGroups...)
	port := fmt.Sprint(rule.FromPort)
	if rule.ToPort != rule.FromPort {
		port = fmt.Sprintf("%d-%d", rule.FromPort, rule.ToPort)
	}
	return fmt.Sprintf("%s/%s from %s", rule.Protocol, port, strings.Join(sources, ","))
}
