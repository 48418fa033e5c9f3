package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/eleven-am/perimeter/internal/domain"
)

func elbv2Tags(tags domain.Tags) []elbv2types.Tag {
	var out []elbv2types.Tag
	for _, k := range sortedTagKeys(tags) {
		out = append(out, elbv2types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func forwardTo(tgARN string) []elbv2types.Action {
	return []elbv2types.Action{{
		Type:           elbv2types.ActionTypeEnumForward,
		TargetGroupArn: aws.String(tgARN),
	}}
}

func (c *Client) GetALB(ctx context.Context, albARN string) (*domain.ALBData, error) {
	out, err := c.elbv2Client.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{albARN},
	})
	if err != nil {
		return nil, fmt.Errorf("describe alb %s: %w", albARN, err)
	}
	if len(out.LoadBalancers) == 0 {
		return nil, fmt.Errorf("alb %s: %w", albARN, domain.ErrNotFound)
	}
	return c.albData(ctx, &out.LoadBalancers[0])
}

func (c *Client) albData(ctx context.Context, lb *elbv2types.LoadBalancer) (*domain.ALBData, error) {
	lbARN := derefString(lb.LoadBalancerArn)
	if lb.Type != elbv2types.LoadBalancerTypeEnumApplication {
		return nil, fmt.Errorf("load balancer %s is not an ALB", lbARN)
	}
	tgARNs, err := c.getTargetGroupARNsForLB(ctx, lbARN)
	if err != nil {
		return nil, err
	}
	return toALBData(lb, tgARNs), nil
}

func (c *Client) getTargetGroupARNsForLB(ctx context.Context, lbARN string) ([]string, error) {
	out, err := c.elbv2Client.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
		LoadBalancerArn: aws.String(lbARN),
	})
	if err != nil {
		return nil, fmt.Errorf("describe listeners for %s: %w", lbARN, err)
	}

	tgMap := make(map[string]bool)
	for _, listener := range out.Listeners {
		for _, action := range listener.DefaultActions {
			if action.TargetGroupArn != nil {
				tgMap[*action.TargetGroupArn] = true
			}
			if action.ForwardConfig != nil {
				for _, tgTuple := range action.ForwardConfig.TargetGroups {
					if tgTuple.TargetGroupArn != nil {
						tgMap[*tgTuple.TargetGroupArn] = true
					}
				}
			}
		}
	}

	var tgARNs []string
	for arn := range tgMap {
		tgARNs = append(tgARNs, arn)
	}
	sort.Strings(tgARNs)
	return tgARNs, nil
}

func (c *Client) FindLoadBalancer(ctx context.Context, name string) (*domain.ALBData, error) {
	out, err := c.elbv2Client.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Names: []string{name},
	})
	if err != nil {
		if isErrorCode(err, "LoadBalancerNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("find load balancer %s: %w", name, err)
	}
	lb := firstOf(out.LoadBalancers)
	if lb == nil {
		return nil, nil
	}
	return c.albData(ctx, lb)
}

func (c *Client) CreateLoadBalancer(ctx context.Context, name string, in domain.LoadBalancerInput, tags domain.Tags) (*domain.ALBData, error) {
	scheme := elbv2types.LoadBalancerSchemeEnumInternetFacing
	if in.Scheme == string(elbv2types.LoadBalancerSchemeEnumInternal) {
		scheme = elbv2types.LoadBalancerSchemeEnumInternal
	}
	out, err := c.elbv2Client.CreateLoadBalancer(ctx, &elbv2.CreateLoadBalancerInput{
		Name:           aws.String(name),
		Type:           elbv2types.LoadBalancerTypeEnumApplication,
		Scheme:         scheme,
		IpAddressType:  elbv2types.IpAddressTypeIpv4,
		Subnets:        in.SubnetIDs,
		SecurityGroups: in.SecurityGroupIDs,
		Tags:           elbv2Tags(tags),
	})
	if err != nil {
		return nil, fmt.Errorf("create load balancer %s: %w", name, err)
	}
	lb := firstOf(out.LoadBalancers)
	if lb == nil {
		return nil, fmt.Errorf("create load balancer %s: no load balancer returned", name)
	}
	lbARN := derefString(lb.LoadBalancerArn)
	waiter := elbv2.NewLoadBalancerAvailableWaiter(c.elbv2Client)
	if err := waiter.Wait(ctx, &elbv2.DescribeLoadBalancersInput{LoadBalancerArns: []string{lbARN}}, c.waitTimeout); err != nil {
		return nil, fmt.Errorf("wait for load balancer %s: %w", name, err)
	}
	c.cache.invalidatePrefix("eni:")
	return c.GetALB(ctx, lbARN)
}

func (c *Client) SetLoadBalancerSecurityGroups(ctx context.Context, lbARN string, sgIDs []string) error {
	_, err := c.elbv2Client.SetSecurityGroups(ctx, &elbv2.SetSecurityGroupsInput{
		LoadBalancerArn: aws.String(lbARN),
		SecurityGroups:  sgIDs,
	})
	if err != nil {
		return fmt.Errorf("set security groups on %s: %w", lbARN, err)
	}
	c.cache.invalidatePrefix("eni:")
	return nil
}

func (c *Client) SetLoadBalancerSubnets(ctx context.Context, lbARN string, subnetIDs []string) error {
	_, err := c.elbv2Client.SetSubnets(ctx, &elbv2.SetSubnetsInput{
		LoadBalancerArn: aws.String(lbARN),
		Subnets:         subnetIDs,
	})
	if err != nil {
		return fmt.Errorf("set subnets on %s: %w", lbARN, err)
	}
	c.cache.invalidatePrefix("eni:")
	return nil
}

func (c *Client) FindListener(ctx context.Context, lbARN string, port int) (*domain.ListenerData, error) {
	out, err := c.elbv2Client.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
		LoadBalancerArn: aws.String(lbARN),
	})
	if err != nil {
		if isErrorCode(err, "LoadBalancerNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("describe listeners for %s: %w", lbARN, err)
	}
	for i := range out.Listeners {
		if int(derefInt32(out.Listeners[i].Port)) == port {
			return toListenerData(&out.Listeners[i]), nil
		}
	}
	return nil, nil
}

func (c *Client) CreateListener(ctx context.Context, lbARN string, port int, protocol, tgARN string) (*domain.ListenerData, error) {
	out, err := c.elbv2Client.CreateListener(ctx, &elbv2.CreateListenerInput{
		LoadBalancerArn: aws.String(lbARN),
		Port:            int32Ptr(port),
		Protocol:        elbv2types.ProtocolEnum(protocol),
		DefaultActions:  forwardTo(tgARN),
	})
	if err != nil {
		return nil, fmt.Errorf("create listener on %s:%d: %w", lbARN, port, err)
	}
	listener := firstOf(out.Listeners)
	if listener == nil {
		return nil, fmt.Errorf("create listener on %s:%d: no listener returned", lbARN, port)
	}
	return toListenerData(listener), nil
}

func (c *Client) SetListenerTarget(ctx context.Context, listenerARN, tgARN string) error {
	_, err := c.elbv2Client.ModifyListener(ctx, &elbv2.ModifyListenerInput{
		ListenerArn:    aws.String(listenerARN),
		DefaultActions: forwardTo(tgARN),
	})
	if err != nil {
		return fmt.Errorf("modify listener %s: %w", listenerARN, err)
	}
	return nil
}

func (c *Client) GetTargetGroup(ctx context.Context, tgARN string) (*domain.TargetGroupData, error) {
	out, err := c.elbv2Client.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		TargetGroupArns: []string{tgARN},
	})
	if err != nil {
		return nil, fmt.Errorf("describe target group %s: %w", tgARN, err)
	}
	if len(out.TargetGroups) == 0 {
		return nil, fmt.Errorf("target group %s: %w", tgARN, domain.ErrNotFound)
	}
	return c.targetGroupData(ctx, &out.TargetGroups[0])
}

func (c *Client) targetGroupData(ctx context.Context, tg *elbv2types.TargetGroup) (*domain.TargetGroupData, error) {
	tgARN := derefString(tg.TargetGroupArn)
	healthOut, err := c.elbv2Client.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(tgARN),
	})
	if err != nil {
		return nil, fmt.Errorf("describe target health for %s: %w", tgARN, err)
	}
	return toTargetGroupData(tg, healthOut.TargetHealthDescriptions), nil
}

func (c *Client) FindTargetGroup(ctx context.Context, name string) (*domain.TargetGroupData, error) {
	out, err := c.elbv2Client.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		Names: []string{name},
	})
	if err != nil {
		if isErrorCode(err, "TargetGroupNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("find target group %s: %w", name, err)
	}
	tg := firstOf(out.TargetGroups)
	if tg == nil {
		return nil, nil
	}
	return c.targetGroupData(ctx, tg)
}

func (c *Client) CreateTargetGroup(ctx context.Context, name string, in domain.TargetGroupInput, tags domain.Tags) (*domain.TargetGroupData, error) {
	hc := in.HealthCheck
	out, err := c.elbv2Client.CreateTargetGroup(ctx, &elbv2.CreateTargetGroupInput{
		Name:                       aws.String(name),
		Protocol:                   elbv2types.ProtocolEnum(in.Protocol),
		Port:                       int32Ptr(in.Port),
		VpcId:                      aws.String(in.VPCID),
		TargetType:                 elbv2types.TargetTypeEnum(in.TargetType),
		HealthCheckEnabled:         aws.Bool(true),
		HealthCheckPath:            aws.String(hc.Path),
		HealthCheckProtocol:        elbv2types.ProtocolEnum(hc.Protocol),
		HealthCheckPort:            aws.String(hc.Port),
		HealthCheckIntervalSeconds: int32Ptr(hc.IntervalSeconds),
		HealthCheckTimeoutSeconds:  int32Ptr(hc.TimeoutSeconds),
		HealthyThresholdCount:      int32Ptr(hc.HealthyThreshold),
		UnhealthyThresholdCount:    int32Ptr(hc.UnhealthyThreshold),
		Matcher:                    &elbv2types.Matcher{HttpCode: aws.String(hc.Matcher)},
		Tags:                       elbv2Tags(tags),
	})
	if err != nil {
		return nil, fmt.Errorf("create target group %s: %w", name, err)
	}
	tg := firstOf(out.TargetGroups)
	if tg == nil {
		return nil, fmt.Errorf("create target group %s: no target group returned", name)
	}
	return toTargetGroupData(tg, nil), nil
}

func (c *Client) SetTargetGroupHealthCheck(ctx context.Context, tgARN string, hc domain.HealthCheckData) error {
	_, err := c.elbv2Client.ModifyTargetGroup(ctx, &elbv2.ModifyTargetGroupInput{
		TargetGroupArn:             aws.String(tgARN),
		HealthCheckEnabled:         aws.Bool(true),
		HealthCheckPath:            aws.String(hc.Path),
		HealthCheckProtocol:        elbv2types.ProtocolEnum(hc.Protocol),
		HealthCheckPort:            aws.String(hc.Port),
		HealthCheckIntervalSeconds: int32Ptr(hc.IntervalSeconds),
		HealthCheckTimeoutSeconds:  int32Ptr(hc.TimeoutSeconds),
		HealthyThresholdCount:      int32Ptr(hc.HealthyThreshold),
		UnhealthyThresholdCount:    int32Ptr(hc.UnhealthyThreshold),
		Matcher:                    &elbv2types.Matcher{HttpCode: aws.String(hc.Matcher)},
	})
	if err != nil {
		return fmt.Errorf("modify target group %s health check: %w", tgARN, err)
	}
	return nil
}

func (c *Client) RegisterTarget(ctx context.Context, tgARN, targetID string, port int) error {
	_, err := c.elbv2Client.RegisterTargets(ctx, &elbv2.RegisterTargetsInput{
		TargetGroupArn: aws.String(tgARN),
		Targets:        []elbv2types.TargetDescription{{Id: aws.String(targetID), Port: int32Ptr(port)}},
	})
	if err != nil {
		return fmt.Errorf("register %s:%d with %s: %w", targetID, port, tgARN, err)
	}
	return nil
}

func (c *Client) DeregisterTarget(ctx context.Context, tgARN, targetID string, port int) error {
	_, err := c.elbv2Client.DeregisterTargets(ctx, &elbv2.DeregisterTargetsInput{
		TargetGroupArn: aws.String(tgARN),
		Targets:        []elbv2types.TargetDescription{{Id: aws.String(targetID), Port: int32Ptr(port)}},
	})
	if err != nil && !isErrorCode(err, "InvalidTarget", "TargetGroupNotFound") {
		return fmt.Errorf("deregister %s:%d from %s: %w", targetID, port, tgARN, err)
	}
	return nil
}
