package components

import (
	"errors"
	"testing"

	"github.com/eleven-am/perimeter/internal/domain"
)

func tierGroups() (edge, compute, data *domain.SecurityGroupData) {
	allOut := []domain.SecurityGroupRule{{Protocol: "-1", CIDRBlocks: []string{"0.0.0.0/0"}}}
	edge = &domain.SecurityGroupData{
		ID: "sg-edge", VPCID: "vpc-1",
		InboundRules:  []domain.SecurityGroupRule{{Protocol: "tcp", FromPort: 80, ToPort: 80, CIDRBlocks: []string{"0.0.0.0/0"}}},
		OutboundRules: allOut,
	}
	compute = &domain.SecurityGroupData{
		ID: "sg-compute", VPCID: "vpc-1",
		InboundRules:  []domain.SecurityGroupRule{{Protocol: "tcp", FromPort: 8000, ToPort: 8000, ReferencedSecurityGroups: []string{"sg-edge"}}},
		OutboundRules: allOut,
	}
	data = &domain.SecurityGroupData{
		ID: "sg-data", VPCID: "vpc-1",
		InboundRules:  []domain.SecurityGroupRule{{Protocol: "tcp", FromPort: 5432, ToPort: 5432, ReferencedSecurityGroups: []string{"sg-compute"}}},
		OutboundRules: allOut,
	}
	return edge, compute, data
}

func TestSecurityGroup_Inbound(t *testing.T) {
	client, _, analyzerCtx := newTestContext()
	client.enisBySG["sg-edge"] = []domain.ENIData{{ID: "eni-elb-1", PrivateIP: "10.0.1.10", PrivateIPs: []string{"10.0.1.10"}}}
	client.enisBySG["sg-compute"] = []domain.ENIData{{ID: "eni-app", PrivateIP: "10.0.10.10"}}

	edge, compute, data := tierGroups()

	tests := []struct {
		name    string
		group   *domain.SecurityGroupData
		source  domain.RoutingTarget
		allowed bool
	}{
		{"edge takes http from anywhere", edge, domain.RoutingTarget{IP: "203.0.113.9", Port: 80, Protocol: "tcp"}, true},
		{"edge refuses ssh", edge, domain.RoutingTarget{IP: "203.0.113.9", Port: 22, Protocol: "tcp"}, false},
		{"compute takes 8000 from the balancer", compute, domain.RoutingTarget{IP: "10.0.1.10", Port: 8000, Protocol: "tcp"}, true},
		{"compute refuses 8000 from the internet", compute, domain.RoutingTarget{IP: "203.0.113.9", Port: 8000, Protocol: "tcp"}, false},
		{"compute refuses 80 from the balancer", compute, domain.RoutingTarget{IP: "10.0.1.10", Port: 80, Protocol: "tcp"}, false},
		{"data takes 5432 from compute", data, domain.RoutingTarget{IP: "10.0.10.10", Port: 5432, Protocol: "tcp"}, true},
		{"data refuses 5432 from the balancer", data, domain.RoutingTarget{IP: "10.0.1.10", Port: 5432, Protocol: "tcp"}, false},
		{"data refuses udp", data, domain.RoutingTarget{IP: "10.0.10.10", Port: 5432, Protocol: "udp"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg := NewSecurityGroup(tt.group, testAccount)
			hops, err := sg.GetNextHops(tt.source.Inbound(), analyzerCtx)
			if tt.allowed {
				if err != nil {
					t.Fatalf("expected allowed, got %v", err)
				}
				if len(hops) != 0 {
					t.Errorf("expected no hops without next, got %d", len(hops))
				}
				return
			}
			var blocking *domain.BlockingError
			if !errors.As(err, &blocking) {
				t.Fatalf("expected BlockingError, got %v", err)
			}
			if blocking.ComponentID != testAccount+":"+tt.group.ID {
				t.Errorf("unexpected component %s", blocking.ComponentID)
			}
		})
	}
}

func TestSecurityGroup_ReferenceWithoutContext(t *testing.T) {
	_, compute, _ := tierGroups()
	sg := NewSecurityGroup(compute, testAccount)
	if err := sg.EvaluateInbound(domain.RoutingTarget{IP: "10.0.1.10", Port: 8000, Protocol: "tcp"}, nil); err == nil {
		t.Error("a referenced group cannot match without an account context")
	}
}

func TestSecurityGroup_Outbound(t *testing.T) {
	sg := NewSecurityGroup(&domain.SecurityGroupData{
		ID: "sg-1",
		OutboundRules: []domain.SecurityGroupRule{
			{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRBlocks: []string{"10.0.0.0/8"}},
		},
	}, testAccount)

	if err := sg.EvaluateOutbound(domain.RoutingTarget{IP: "10.2.3.4", Port: 443, Protocol: "tcp"}, nil); err != nil {
		t.Errorf("expected allowed, got %v", err)
	}
	if err := sg.EvaluateOutbound(domain.RoutingTarget{IP: "8.8.8.8", Port: 443, Protocol: "tcp"}, nil); err == nil {
		t.Error("expected block for address outside the rule")
	}
}

func TestSecurityGroupSet_AnyMemberAllows(t *testing.T) {
	client, _, analyzerCtx := newTestContext()
	client.enisBySG["sg-edge"] = []domain.ENIData{{ID: "eni-elb-1", PrivateIP: "10.0.1.10"}}
	_, compute, data := tierGroups()

	next := NewIPTarget(&domain.IPTargetData{IP: "10.0.10.10", Port: 8000}, testAccount)
	set := NewSecurityGroupSet([]*domain.SecurityGroupData{data, compute}, testAccount, next)

	hops, err := set.GetNextHops(domain.RoutingTarget{IP: "10.0.1.10", Port: 8000, Protocol: "tcp"}.Inbound(), analyzerCtx)
	if err != nil {
		t.Fatalf("expected compute member to allow, got %v", err)
	}
	if len(hops) != 1 || hops[0] != next {
		t.Fatalf("expected the next component, got %v", hops)
	}

	_, err = set.GetNextHops(domain.RoutingTarget{IP: "10.0.1.10", Port: 22, Protocol: "tcp"}.Inbound(), analyzerCtx)
	if err == nil {
		t.Fatal("expected block on port 22")
	}

	if got := set.GetID(); got != testAccount+":sgset:sg-data+sg-compute" {
		t.Errorf("unexpected id %s", got)
	}

	empty := NewSecurityGroupSet(nil, testAccount, nil)
	if err := empty.EvaluateOutbound(domain.RoutingTarget{IP: "8.8.8.8", Port: 443, Protocol: "tcp"}, nil); err == nil {
		t.Error("an interface without groups allows nothing")
	}
}
