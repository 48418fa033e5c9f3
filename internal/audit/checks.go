package audit

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/health"
	"github.com/eleven-am/perimeter/internal/topology"
)

var managementPorts = []int{22, 3389}

func covers(rule domain.SecurityGroupRule, port int) bool {
	if rule.Protocol == "-1" || rule.Protocol == "all" {
		return true
	}
	return rule.FromPort <= port && port <= rule.ToPort
}

// checkIngress compares each group's observed ingress with the rules the
// graph declares for it.
func (s *session) checkIngress() {
	for _, res := range s.securityGroups() {
		spec := res.Spec.(topology.SecurityGroupSpec)
		check := "ingress/" + res.Name
		sg, err := s.securityGroup(res.Name)
		if err != nil {
			s.add(check, Fail, "reading %s: %v", res.Name, err)
			continue
		}

		want := make(map[string]domain.SecurityGroupRule)
		for _, in := range spec.Ingress {
			rule := domain.SecurityGroupRule{Protocol: "tcp", FromPort: in.Port, ToPort: in.Port}
			if in.Source != "" {
				rule.ReferencedSecurityGroups = []string{s.snap.Resources[in.Source].PhysicalID}
			} else {
				rule.CIDRBlocks = []string{in.CIDR}
			}
			for _, atom := range domain.AtomizeRules([]domain.SecurityGroupRule{rule}) {
				want[atom.Key()] = atom
			}
		}

		facing := internetFacing(spec)
		var problems []string
		seen := make(map[string]bool)
		for _, atom := range domain.AtomizeRules(sg.InboundRules) {
			seen[atom.Key()] = true
			if _, ok := want[atom.Key()]; ok {
				continue
			}
			switch {
			case slices.ContainsFunc(managementPorts, func(p int) bool { return covers(atom, p) }):
				problems = append(problems, "management port open: "+describe(atom))
			case !facing && (slices.ContainsFunc(atom.CIDRBlocks, isInternet) || slices.ContainsFunc(atom.IPv6CIDRBlocks, isInternet)):
				problems = append(problems, "internet ingress: "+describe(atom))
			default:
				problems = append(problems, "unexpected ingress: "+describe(atom))
			}
		}
		for key, atom := range want {
			if !seen[key] {
				problems = append(problems, "missing ingress: "+describe(atom))
			}
		}
		if len(problems) > 0 {
			slices.Sort(problems)
			s.add(check, Fail, "%s", strings.Join(problems, "; "))
			continue
		}
		s.add(check, Pass, "%s admits only its declared sources", res.Name)
	}
}

// routeTableOf returns the table a subnet uses, falling back to the VPC's
// main table when none is associated.
func (s *session) routeTableOf(subnet *domain.SubnetData) (*domain.RouteTableData, error) {
	rtID := subnet.RouteTableID
	if rtID == "" {
		vpc, err := s.client.GetVPC(s.ctx, subnet.VPCID)
		if err != nil {
			return nil, err
		}
		rtID = vpc.MainRouteTableID
	}
	return s.client.GetRouteTable(s.ctx, rtID)
}

// exposure explains why a subnet is reachable from the internet, or returns "".
func (s *session) exposure(subnet *domain.SubnetData) (string, error) {
	if subnet.MapPublicIPOnLaunch {
		return fmt.Sprintf("subnet %s assigns public addresses", subnet.ID), nil
	}
	rt, err := s.routeTableOf(subnet)
	if err != nil {
		return "", err
	}
	for _, route := range rt.Routes {
		if route.TargetType == string(domain.KindInternetGateway) {
			return fmt.Sprintf("subnet %s routes %s to %s", subnet.ID, route.DestinationCIDR, route.TargetID), nil
		}
	}
	return "", nil
}

func (s *session) checkPlacement() {
	const instanceCheck = "placement/" + topology.NameInstance
	if id, ok := s.id(instanceCheck, topology.NameInstance); ok {
		s.instancePlacement(instanceCheck, id)
	}

	const dbCheck = "placement/" + topology.NameDB
	dbID, ok := s.id(dbCheck, topology.NameDB)
	if !ok {
		return
	}
	groupName, ok := s.id(dbCheck, topology.NameDBSubnetGroup)
	if !ok {
		return
	}
	db, err := s.client.GetRDSInstance(s.ctx, dbID)
	if err != nil {
		s.add(dbCheck, Fail, "reading %s: %v", dbID, err)
		return
	}
	group, err := s.client.GetDBSubnetGroup(s.ctx, groupName)
	if err != nil {
		s.add(dbCheck, Fail, "reading %s: %v", groupName, err)
		return
	}

	var problems []string
	if db.PubliclyAccessible {
		problems = append(problems, "database is publicly accessible")
	}
	if len(group.AvailabilityZones) < 2 {
		problems = append(problems, fmt.Sprintf("subnet group spans %d availability zone(s)", len(group.AvailabilityZones)))
	}
	for _, subnetID := range group.SubnetIDs {
		subnet, err := s.client.GetSubnet(s.ctx, subnetID)
		if err != nil {
			problems = append(problems, fmt.Sprintf("reading %s: %v", subnetID, err))
			continue
		}
		why, err := s.exposure(subnet)
		if err != nil {
			problems = append(problems, fmt.Sprintf("reading routes of %s: %v", subnetID, err))
			continue
		}
		if why != "" {
			problems = append(problems, why)
		}
	}
	if len(problems) > 0 {
		s.add(dbCheck, Fail, "%s", strings.Join(problems, "; "))
		return
	}
	s.add(dbCheck, Pass, "%s is private across %s", dbID, strings.Join(group.AvailabilityZones, ", "))
}

func (s *session) instancePlacement(check, id string) {
	inst, err := s.client.GetEC2Instance(s.ctx, id)
	if err != nil {
		s.add(check, Fail, "reading %s: %v", id, err)
		return
	}
	if inst.PublicIP != "" {
		s.add(check, Fail, "instance %s has public address %s", id, inst.PublicIP)
		return
	}
	subnet, err := s.client.GetSubnet(s.ctx, inst.SubnetID)
	if err != nil {
		s.add(check, Fail, "reading %s: %v", inst.SubnetID, err)
		return
	}
	why, err := s.exposure(subnet)
	switch {
	case err != nil:
		s.add(check, Fail, "reading routes of %s: %v", subnet.ID, err)
	case why != "":
		s.add(check, Fail, "instance %s: %s", id, why)
	default:
		s.add(check, Pass, "instance %s is in private subnet %s", id, subnet.ID)
	}
}

// checkRoutes verifies each route table's default route and that no private
// subnet routes to an internet gateway.
func (s *session) checkRoutes() {
	for _, res := range s.graph.Resources() {
		switch spec := res.Spec.(type) {
		case topology.RouteTableSpec:
			s.defaultRoute(res.Name, spec)
		case topology.SubnetSpec:
			if spec.Public {
				continue
			}
			check := "routes/" + res.Name
			id, ok := s.id(check, res.Name)
			if !ok {
				continue
			}
			subnet, err := s.client.GetSubnet(s.ctx, id)
			if err != nil {
				s.add(check, Fail, "reading %s: %v", id, err)
				continue
			}
			why, err := s.exposure(subnet)
			switch {
			case err != nil:
				s.add(check, Fail, "reading routes of %s: %v", id, err)
			case why != "":
				s.add(check, Fail, "private %s", why)
			default:
				s.add(check, Pass, "%s has no internet gateway route", res.Name)
			}
		}
	}
}

func (s *session) defaultRoute(name string, spec topology.RouteTableSpec) {
	check := "routes/" + name
	rtID, ok := s.id(check, name)
	if !ok {
		return
	}
	targetID, ok := s.id(check, spec.Target)
	if !ok {
		return
	}
	rt, err := s.client.GetRouteTable(s.ctx, rtID)
	if err != nil {
		s.add(check, Fail, "reading %s: %v", rtID, err)
		return
	}
	def := rt.DefaultRoute()
	switch {
	case def == nil:
		s.add(check, Fail, "%s has no default route", rtID)
	case def.TargetType != string(spec.TargetKind) || def.TargetID != targetID:
		s.add(check, Fail, "%s default route goes to %s %s, want %s %s", rtID, def.TargetType, def.TargetID, spec.TargetKind, targetID)
	default:
		s.add(check, Pass, "%s default route goes to %s %s", name, spec.TargetKind, targetID)
	}
}

// checkTargets verifies the target group's health check settings and that
// exactly the current instance is registered.
func (s *session) checkTargets() {
	res, ok := s.graph.Get(topology.NameTargetGroup)
	if !ok {
		return
	}
	spec, ok := res.Spec.(topology.TargetGroupSpec)
	if !ok {
		return
	}

	const healthCheck = "targets/health-check"
	const registration = "targets/registration"
	tgARN, ok := s.id(healthCheck, res.Name)
	if !ok {
		return
	}
	tg, err := s.client.GetTargetGroup(s.ctx, tgARN)
	if err != nil {
		s.add(healthCheck, Fail, "reading %s: %v", tgARN, err)
		return
	}
	if tg.HealthCheck != spec.HealthCheck {
		s.add(healthCheck, Fail, "health check is %+v, want %+v", tg.HealthCheck, spec.HealthCheck)
	} else {
		s.add(healthCheck, Pass, "GET %s every %ds, %d healthy / %d unhealthy",
			spec.HealthCheck.Path, spec.HealthCheck.IntervalSeconds, spec.HealthCheck.HealthyThreshold, spec.HealthCheck.UnhealthyThreshold)
	}

	instanceID, ok := s.id(registration, topology.NameInstance)
	if !ok {
		return
	}
	var current *domain.TargetData
	var others []string
	for i, t := range tg.Targets {
		if t.ID == instanceID {
			current = &tg.Targets[i]
			continue
		}
		others = append(others, t.ID)
	}
	switch {
	case current == nil:
		s.add(registration, Fail, "instance %s is not registered", instanceID)
	case len(others) > 0:
		s.add(registration, Fail, "stale targets registered: %s", strings.Join(others, ", "))
	case current.HealthStatus == string(health.StateUnhealthy):
		s.add(registration, Warn, "instance %s is registered but %s", instanceID, current.HealthStatus)
	default:
		s.add(registration, Pass, "instance %s is the only target", instanceID)
	}
}

// checkManagement reports the session manager agent. It only ever warns.
func (s *session) checkManagement() {
	const check = "management/ssm"
	rec, ok := s.snap.Resources[topology.NameInstance]
	if !ok {
		s.add(check, Warn, "no instance recorded")
		return
	}
	mi, err := s.client.GetManagedInstance(s.ctx, rec.PhysicalID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.add(check, Warn, "instance %s is not registered with the session manager", rec.PhysicalID)
	case err != nil:
		s.add(check, Warn, "reading session manager status: %v", err)
	case mi.PingStatus != "Online":
		s.add(check, Warn, "session manager agent on %s is %s", rec.PhysicalID, mi.PingStatus)
	default:
		s.add(check, Pass, "session manager agent %s online on %s", mi.AgentVersion, rec.PhysicalID)
	}
}
