package audit

import (
	"github.com/eleven-am/perimeter/internal/analyzer"
	"github.com/eleven-am/perimeter/internal/components"
	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/topology"
)

// internetProbe stands in for an arbitrary client on the internet.
const internetProbe = "198.51.100.23"

// egressProbe is an internet address the instance should reach through NAT.
const egressProbe = "203.0.113.80"

// checkReachability evaluates each group's ingress against concrete
// sources: an internet address and the interfaces of every other tier.
// A tier must admit exactly the peer it declares as its source.
func (s *session) checkReachability() {
	groups := s.securityGroups()
	actx := analyzer.NewAnalyzerContext(s.ctx, s.accounts)

	for _, res := range groups {
		spec := res.Spec.(topology.SecurityGroupSpec)
		sg, err := s.securityGroup(res.Name)
		if err != nil {
			continue
		}
		filter := components.NewSecurityGroup(sg, s.accountID)
		ports := ingressPorts(spec)

		s.probe("reachability/internet->"+res.Name, filter, internetProbe, ports, internetFacing(spec), actx)
		if internetFacing(spec) {
			continue
		}
		for _, peer := range groups {
			if peer.Name == res.Name {
				continue
			}
			check := "reachability/" + peer.Name + "->" + res.Name
			peerSG, err := s.securityGroup(peer.Name)
			if err != nil {
				continue
			}
			enis, err := s.client.GetENIsBySecurityGroup(s.ctx, peerSG.ID)
			if err != nil {
				s.add(check, Warn, "listing interfaces of %s: %v", peer.Name, err)
				continue
			}
			if len(enis) == 0 {
				s.add(check, Warn, "%s has no interfaces to test from", peer.Name)
				continue
			}
			s.probe(check, filter, enis[0].PrivateIP, ports, declaresSource(spec, peer.Name), actx)
		}
	}

	s.endToEnd()
}

func (s *session) probe(check string, filter *components.SecurityGroup, ip string, ports []int, allowed bool, actx domain.AnalyzerContext) {
	for _, port := range ports {
		src := domain.RoutingTarget{IP: ip, Port: port, Protocol: "tcp"}.Inbound()
		err := filter.EvaluateInbound(src, actx)
		switch {
		case allowed && err != nil:
			s.add(check, Fail, "tcp/%d from %s is blocked: %v", port, ip, err)
			return
		case !allowed && err == nil:
			s.add(check, Fail, "tcp/%d from %s is allowed", port, ip)
			return
		}
	}
	if allowed {
		s.add(check, Pass, "allowed from %s", ip)
	} else {
		s.add(check, Pass, "blocked from %s", ip)
	}
}

// endToEnd walks the instance to the database and the instance out to the
// internet through the route tables, gateways and filters.
func (s *session) endToEnd() {
	const dbCheck = "reachability/" + topology.NameInstance + "->" + topology.NameDB
	const egressCheck = "reachability/" + topology.NameInstance + "->internet"

	instID, ok := s.id(dbCheck, topology.NameInstance)
	if !ok {
		return
	}
	inst, err := s.client.GetEC2Instance(s.ctx, instID)
	if err != nil {
		s.add(dbCheck, Fail, "reading %s: %v", instID, err)
		return
	}
	source := components.NewEC2Instance(inst, s.accountID)

	if dbID, ok := s.id(dbCheck, topology.NameDB); ok {
		db, err := s.client.GetRDSInstance(s.ctx, dbID)
		if err != nil {
			s.add(dbCheck, Fail, "reading %s: %v", dbID, err)
		} else {
			result := analyzer.TestReachability(s.ctx, source, components.NewRDSInstance(db, s.accountID), s.accounts)
			if result.OverallSuccess {
				s.add(dbCheck, Pass, "%s reaches %s:%d", instID, db.Endpoint, db.Port)
			} else {
				s.add(dbCheck, Fail, "%s", result.Reason())
			}
		}
	}

	egress := analyzer.TestEgress(s.ctx, source, domain.RoutingTarget{IP: egressProbe, Port: 443, Protocol: "tcp"}, s.accounts)
	if egress.IsBlocked() {
		s.add(egressCheck, Fail, "%s", egress.GetBlockingReason())
		return
	}
	s.add(egressCheck, Pass, "%s reaches the internet through the NAT gateway", instID)
}

func ingressPorts(spec topology.SecurityGroupSpec) []int {
	var ports []int
	for _, in := range spec.Ingress {
		ports = append(ports, in.Port)
	}
	return ports
}

func declaresSource(spec topology.SecurityGroupSpec, group string) bool {
	for _, in := range spec.Ingress {
		if in.Source == group {
			return true
		}
	}
	return false
}
