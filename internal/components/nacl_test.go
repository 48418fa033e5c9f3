package components

import (
	"testing"

	"github.com/eleven-am/perimeter/internal/domain"
)

func TestNACL_FirstMatchDecides(t *testing.T) {
	nacl := NewNACL(&domain.NACLData{
		ID: "acl-1",
		InboundRules: []domain.NACLRule{
			{RuleNumber: 200, Protocol: "-1", CIDRBlock: "0.0.0.0/0", Action: "allow"},
			{RuleNumber: 100, Protocol: "tcp", FromPort: 22, ToPort: 22, CIDRBlock: "0.0.0.0/0", Action: "deny"},
		},
		OutboundRules: []domain.NACLRule{
			{RuleNumber: 100, Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRBlock: "0.0.0.0/0", Action: "allow"},
		},
	}, testAccount)

	tests := []struct {
		name    string
		target  domain.RoutingTarget
		allowed bool
	}{
		{"inbound http", domain.RoutingTarget{IP: "1.2.3.4", Port: 80, Protocol: "tcp", Direction: domain.DirectionInbound}, true},
		{"inbound ssh denied by lower rule", domain.RoutingTarget{IP: "1.2.3.4", Port: 22, Protocol: "tcp", Direction: domain.DirectionInbound}, false},
		{"outbound https", domain.RoutingTarget{IP: "1.2.3.4", Port: 443, Protocol: "tcp", Direction: domain.DirectionOutbound}, true},
		{"outbound http implicit deny", domain.RoutingTarget{IP: "1.2.3.4", Port: 80, Protocol: "tcp", Direction: domain.DirectionOutbound}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nacl.GetNextHops(tt.target, nil)
			if tt.allowed && err != nil {
				t.Errorf("expected allowed, got %v", err)
			}
			if !tt.allowed && err == nil {
				t.Error("expected block")
			}
		})
	}
}

func TestNACL_ForwardsToNext(t *testing.T) {
	next := NewIPTarget(&domain.IPTargetData{IP: "10.0.0.5"}, testAccount)
	nacl := NewNACLWithNext(&domain.NACLData{
		ID:            "acl-1",
		OutboundRules: []domain.NACLRule{{RuleNumber: 100, Protocol: "-1", CIDRBlock: "0.0.0.0/0", Action: "allow"}},
	}, testAccount, next)

	hops, err := nacl.GetNextHops(domain.RoutingTarget{IP: "10.0.0.5", Port: 5432, Protocol: "tcp"}.Outbound(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hops) != 1 || hops[0] != next {
		t.Fatalf("expected next component, got %v", hops)
	}
}
