package perimeter

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/eleven-am/perimeter/internal/analyzer"
	"github.com/eleven-am/perimeter/internal/components"
	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/state"
	"github.com/eleven-am/perimeter/internal/topology"
)

type ReachabilityResult = domain.ReachabilityResult

type refKind int

const (
	refInstance refKind = iota
	refDatabase
	refLoadBalancer
	refIP
)

// Ref names an endpoint of a reachability test: a resource of the stack by
// its logical name, or a bare address.
type Ref struct {
	kind refKind
	name string
	ip   string
	port int
}

func Instance() Ref { return Ref{kind: refInstance, name: topology.NameInstance} }

func Database() Ref { return Ref{kind: refDatabase, name: topology.NameDB} }

func LoadBalancer() Ref { return Ref{kind: refLoadBalancer, name: topology.NameLoadBalancer} }

// IP refers to an address outside the stack, e.g. a client on the internet.
func IP(ip string, port int) Ref { return Ref{kind: refIP, ip: ip, port: port} }

func (r Ref) String() string {
	if r.kind == refIP {
		return r.ip + ":" + strconv.Itoa(r.port)
	}
	return r.name
}

// ParseRef accepts a logical name (app, db, alb) or ip:port.
func ParseRef(s string) (Ref, error) {
	switch s {
	case topology.NameInstance:
		return Instance(), nil
	case topology.NameDB:
		return Database(), nil
	case topology.NameLoadBalancer:
		return LoadBalancer(), nil
	}
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Ref{}, fmt.Errorf("unknown endpoint %q: want %s, %s, %s or ip:port",
			s, topology.NameInstance, topology.NameDB, topology.NameLoadBalancer)
	}
	return IP(ap.Addr().String(), int(ap.Port())), nil
}

// Reach traces traffic between two endpoints through the route tables,
// gateways and filters of the applied stack. Between two resources both
// directions are walked. An address can only be a destination, and only the
// forward leg is walked since nothing answers for it.
func (s *Stack) Reach(ctx context.Context, source, dest Ref) (ReachabilityResult, error) {
	if source.kind == refIP {
		return ReachabilityResult{}, fmt.Errorf("source %s: an address can only be a destination", source)
	}
	snap, err := s.Latest(ctx)
	if err != nil {
		return ReachabilityResult{}, err
	}
	src, err := s.resolve(ctx, snap.Resources, source)
	if err != nil {
		return ReachabilityResult{}, fmt.Errorf("resolve source: %w", err)
	}
	dst, err := s.resolve(ctx, snap.Resources, dest)
	if err != nil {
		return ReachabilityResult{}, fmt.Errorf("resolve destination: %w", err)
	}
	if dest.kind == refIP {
		leg := analyzer.TestForward(ctx, src, dst, dest.port, s.accounts)
		return domain.CombineResults(leg, domain.SuccessResult{}), nil
	}
	return analyzer.TestReachability(ctx, src, dst, s.accounts), nil
}

func (s *Stack) resolve(ctx context.Context, records map[string]state.Record, r Ref) (domain.Component, error) {
	if r.kind == refIP {
		return components.NewIPTarget(&domain.IPTargetData{IP: r.ip, Port: r.port}, ""), nil
	}
	rec, ok := records[r.name]
	if !ok || rec.PhysicalID == "" {
		return nil, fmt.Errorf("%s is not recorded in state: %w", r.name, domain.ErrNotFound)
	}
	accountID := s.cloud.AccountID()
	switch r.kind {
	case refInstance:
		data, err := s.cloud.GetEC2Instance(ctx, rec.PhysicalID)
		if err != nil {
			return nil, err
		}
		return components.NewEC2Instance(data, accountID), nil
	case refDatabase:
		data, err := s.cloud.GetRDSInstance(ctx, rec.PhysicalID)
		if err != nil {
			return nil, err
		}
		return components.NewRDSInstance(data, accountID), nil
	case refLoadBalancer:
		data, err := s.cloud.GetALB(ctx, rec.PhysicalID)
		if err != nil {
			return nil, err
		}
		return components.NewALB(data, accountID), nil
	}
	return nil, fmt.Errorf("unsupported endpoint %s", r)
}
