package simulate

import (
	"context"
	"fmt"
	"slices"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/health"
)

func trackerKey(tgARN, targetID string, port int) string {
	return fmt.Sprintf("%s|%s|%d", tgARN, targetID, port)
}

// targetGroup copies a group and fills in target health. Must be called
// with c.mu held.
func (c *Cloud) targetGroup(tg *domain.TargetGroupData) *domain.TargetGroupData {
	out := *tg
	out.Targets = make([]domain.TargetData, 0, len(tg.Targets))
	for _, t := range tg.Targets {
		status := string(health.StateInitial)
		if tr, ok := c.trackers[trackerKey(tg.ARN, t.ID, t.Port)]; ok {
			status = string(tr.State())
		}
		out.Targets = append(out.Targets, domain.TargetData{ID: t.ID, Port: t.Port, HealthStatus: status})
	}
	return &out
}

func (c *Cloud) GetTargetGroup(ctx context.Context, tgARN string) (*domain.TargetGroupData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tg, ok := c.tgs[tgARN]
	if !ok {
		return nil, notFound("target group", tgARN)
	}
	return c.targetGroup(tg), nil
}

func (c *Cloud) FindTargetGroup(ctx context.Context, name string) (*domain.TargetGroupData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, arn := range sortedKeys(c.tgs) {
		if c.tgs[arn].Name == name {
			return c.targetGroup(c.tgs[arn]), nil
		}
	}
	return nil, nil
}

func (c *Cloud) CreateTargetGroup(ctx context.Context, name string, in domain.TargetGroupInput, tags domain.Tags) (*domain.TargetGroupData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("CreateTargetGroup"); err != nil {
		return nil, err
	}
	if _, ok := c.vpcs[in.VPCID]; !ok {
		return nil, notFound("vpc", in.VPCID)
	}
	for _, tg := range c.tgs {
		if tg.Name == name {
			return nil, fmt.Errorf("create target group %s: DuplicateTargetGroupName", name)
		}
	}
	arn := fmt.Sprintf("arn:aws:elasticloadbalancing:%s:%s:targetgroup/%s/%s", c.region, c.accountID, name, c.nextHex("tg"))
	tg := &domain.TargetGroupData{
		ARN:         arn,
		Name:        name,
		TargetType:  in.TargetType,
		Protocol:    in.Protocol,
		Port:        in.Port,
		VPCID:       in.VPCID,
		HealthCheck: in.HealthCheck,
	}
	c.tgs[arn] = tg
	return c.targetGroup(tg), nil
}

func (c *Cloud) SetTargetGroupHealthCheck(ctx context.Context, tgARN string, hc domain.HealthCheckData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetTargetGroupHealthCheck"); err != nil {
		return err
	}
	tg, ok := c.tgs[tgARN]
	if !ok {
		return notFound("target group", tgARN)
	}
	tg.HealthCheck = hc
	for _, t := range tg.Targets {
		if tr, ok := c.trackers[trackerKey(tgARN, t.ID, t.Port)]; ok {
			tr.HealthyThreshold = hc.HealthyThreshold
			tr.UnhealthyThreshold = hc.UnhealthyThreshold
		}
	}
	return nil
}

func (c *Cloud) RegisterTarget(ctx context.Context, tgARN, targetID string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("RegisterTarget"); err != nil {
		return err
	}
	tg, ok := c.tgs[tgARN]
	if !ok {
		return notFound("target group", tgARN)
	}
	if tg.TargetType == "instance" {
		inst, ok := c.instances[targetID]
		if !ok || inst.State != "running" {
			return fmt.Errorf("register %s with %s: InvalidTarget", targetID, tg.Name)
		}
	}
	for _, t := range tg.Targets {
		if t.ID == targetID && t.Port == port {
			return nil
		}
	}
	tg.Targets = append(slices.Clone(tg.Targets), domain.TargetData{ID: targetID, Port: port})
	c.trackers[trackerKey(tgARN, targetID, port)] = health.NewTracker(tg.HealthCheck.HealthyThreshold, tg.HealthCheck.UnhealthyThreshold)
	return nil
}

func (c *Cloud) DeregisterTarget(ctx context.Context, tgARN, targetID string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("DeregisterTarget"); err != nil {
		return err
	}
	tg, ok := c.tgs[tgARN]
	if !ok {
		return nil
	}
	tg.Targets = slices.DeleteFunc(slices.Clone(tg.Targets), func(t domain.TargetData) bool {
		return t.ID == targetID && t.Port == port
	})
	delete(c.trackers, trackerKey(tgARN, targetID, port))
	return nil
}

// deregisterEverywhere drops a target from every group. Must be called with
// c.mu held.
func (c *Cloud) deregisterEverywhere(targetID string) {
	for arn, tg := range c.tgs {
		var kept []domain.TargetData
		for _, t := range tg.Targets {
			if t.ID == targetID {
				delete(c.trackers, trackerKey(arn, t.ID, t.Port))
				continue
			}
			kept = append(kept, t)
		}
		tg.Targets = kept
	}
}

// HealthCheckRound runs one health check against every registered target.
// probe reports whether the target answered with a matching status.
func (c *Cloud) HealthCheckRound(probe func(targetID string, port int) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, arn := range sortedKeys(c.tgs) {
		for _, t := range c.tgs[arn].Targets {
			if tr, ok := c.trackers[trackerKey(arn, t.ID, t.Port)]; ok {
				tr.Observe(probe(t.ID, t.Port))
			}
		}
	}
}

// lb copies a load balancer and derives its target groups from listeners.
// Must be called with c.mu held.
func (c *Cloud) lb(lb *domain.ALBData) *domain.ALBData {
	out := *lb
	out.SubnetIDs = slices.Clone(lb.SubnetIDs)
	out.SecurityGroups = slices.Clone(lb.SecurityGroups)
	out.TargetGroupARNs = nil
	for _, arn := range sortedKeys(c.listeners) {
		l := c.listeners[arn]
		if l.LoadBalancerARN == lb.ARN && l.TargetGroupARN != "" && !slices.Contains(out.TargetGroupARNs, l.TargetGroupARN) {
			out.TargetGroupARNs = append(out.TargetGroupARNs, l.TargetGroupARN)
		}
	}
	return &out
}

func (c *Cloud) GetALB(ctx context.Context, albARN string) (*domain.ALBData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lb, ok := c.lbs[albARN]
	if !ok {
		return nil, notFound("load balancer", albARN)
	}
	return c.lb(lb), nil
}

func (c *Cloud) FindLoadBalancer(ctx context.Context, name string) (*domain.ALBData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, arn := range sortedKeys(c.lbs) {
		if c.lbs[arn].Name == name {
			return c.lb(c.lbs[arn]), nil
		}
	}
	return nil, nil
}

// lbSubnets checks that an ALB spans at least two zones of one VPC. Must be
// called with c.mu held.
func (c *Cloud) lbSubnets(name string, subnetIDs []string) (string, error) {
	var vpcID string
	zones := make(map[string]bool)
	for _, id := range subnetIDs {
		subnet, ok := c.subnets[id]
		if !ok {
			return "", notFound("subnet", id)
		}
		if vpcID != "" && subnet.VPCID != vpcID {
			return "", fmt.Errorf("load balancer %s: InvalidConfigurationRequest: subnets span vpcs", name)
		}
		vpcID = subnet.VPCID
		zones[subnet.AvailabilityZone] = true
	}
	if len(zones) < 2 {
		return "", fmt.Errorf("load balancer %s: InvalidConfigurationRequest: at least two availability zones are required", name)
	}
	return vpcID, nil
}

// placeENIs gives the load balancer one interface per subnet. Must be called
// with c.mu held.
func (c *Cloud) placeENIs(lb *domain.ALBData) {
	var enis []domain.ENIData
	for _, subnetID := range lb.SubnetIDs {
		ip := c.nextHost(subnetID)
		enis = append(enis, domain.ENIData{
			ID:             "eni-elb-" + c.nextHex("eni-elb"),
			PrivateIP:      ip,
			PrivateIPs:     []string{ip},
			SubnetID:       subnetID,
			SecurityGroups: slices.Clone(lb.SecurityGroups),
		})
	}
	c.lbENIs[lb.ARN] = enis
}

func (c *Cloud) CreateLoadBalancer(ctx context.Context, name string, in domain.LoadBalancerInput, tags domain.Tags) (*domain.ALBData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("CreateLoadBalancer"); err != nil {
		return nil, err
	}
	for _, lb := range c.lbs {
		if lb.Name == name {
			return nil, fmt.Errorf("create load balancer %s: DuplicateLoadBalancerName", name)
		}
	}
	vpcID, err := c.lbSubnets(name, in.SubnetIDs)
	if err != nil {
		return nil, err
	}
	scheme := in.Scheme
	if scheme == "" {
		scheme = "internet-facing"
	}
	c.seq["lb-dns"]++
	arn := fmt.Sprintf("arn:aws:elasticloadbalancing:%s:%s:loadbalancer/app/%s/%s", c.region, c.accountID, name, c.nextHex("lb"))
	lb := &domain.ALBData{
		ARN:            arn,
		Name:           name,
		DNSName:        fmt.Sprintf("%s-%d.%s.elb.amazonaws.com", name, 1000000+c.seq["lb-dns"], c.region),
		Scheme:         scheme,
		State:          "active",
		VPCID:          vpcID,
		SubnetIDs:      slices.Clone(in.SubnetIDs),
		SecurityGroups: slices.Clone(in.SecurityGroupIDs),
	}
	c.lbs[arn] = lb
	c.placeENIs(lb)
	return c.lb(lb), nil
}

func (c *Cloud) SetLoadBalancerSecurityGroups(ctx context.Context, lbARN string, sgIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetLoadBalancerSecurityGroups"); err != nil {
		return err
	}
	lb, ok := c.lbs[lbARN]
	if !ok {
		return notFound("load balancer", lbARN)
	}
	lb.SecurityGroups = slices.Clone(sgIDs)
	for i := range c.lbENIs[lbARN] {
		c.lbENIs[lbARN][i].SecurityGroups = slices.Clone(sgIDs)
	}
	return nil
}

func (c *Cloud) SetLoadBalancerSubnets(ctx context.Context, lbARN string, subnetIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetLoadBalancerSubnets"); err != nil {
		return err
	}
	lb, ok := c.lbs[lbARN]
	if !ok {
		return notFound("load balancer", lbARN)
	}
	if _, err := c.lbSubnets(lb.Name, subnetIDs); err != nil {
		return err
	}
	lb.SubnetIDs = slices.Clone(subnetIDs)
	c.placeENIs(lb)
	return nil
}

func (c *Cloud) FindListener(ctx context.Context, lbARN string, port int) (*domain.ListenerData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, arn := range sortedKeys(c.listeners) {
		l := c.listeners[arn]
		if l.LoadBalancerARN == lbARN && l.Port == port {
			out := *l
			return &out, nil
		}
	}
	return nil, nil
}

func (c *Cloud) CreateListener(ctx context.Context, lbARN string, port int, protocol, tgARN string) (*domain.ListenerData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("CreateListener"); err != nil {
		return nil, err
	}
	lb, ok := c.lbs[lbARN]
	if !ok {
		return nil, notFound("load balancer", lbARN)
	}
	if _, ok := c.tgs[tgARN]; !ok {
		return nil, notFound("target group", tgARN)
	}
	for _, l := range c.listeners {
		if l.LoadBalancerARN == lbARN && l.Port == port {
			return nil, fmt.Errorf("create listener on %s:%d: DuplicateListener", lb.Name, port)
		}
	}
	arn := fmt.Sprintf("arn:aws:elasticloadbalancing:%s:%s:listener/app/%s/%s", c.region, c.accountID, lb.Name, c.nextHex("listener"))
	l := &domain.ListenerData{
		ARN:             arn,
		LoadBalancerARN: lbARN,
		Port:            port,
		Protocol:        protocol,
		TargetGroupARN:  tgARN,
	}
	c.listeners[arn] = l
	out := *l
	return &out, nil
}

func (c *Cloud) SetListenerTarget(ctx context.Context, listenerARN, tgARN string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetListenerTarget"); err != nil {
		return err
	}
	l, ok := c.listeners[listenerARN]
	if !ok {
		return notFound("listener", listenerARN)
	}
	if _, ok := c.tgs[tgARN]; !ok {
		return notFound("target group", tgARN)
	}
	l.TargetGroupARN = tgARN
	return nil
}
