package components

import (
	"testing"

	"github.com/eleven-am/perimeter/internal/domain"
)

func TestInternetGateway(t *testing.T) {
	attached := NewInternetGateway(&domain.InternetGatewayData{ID: "igw-1", VPCID: "vpc-1"}, testAccount)
	detached := NewInternetGateway(&domain.InternetGatewayData{ID: "igw-2"}, testAccount)

	hops, err := attached.GetNextHops(domain.RoutingTarget{IP: "8.8.8.8", Port: 443}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hops) != 1 || hops[0].GetRoutingTarget().IP != "8.8.8.8" {
		t.Fatalf("expected IPTarget for 8.8.8.8, got %v", hops)
	}
	if _, err := attached.GetNextHops(domain.RoutingTarget{IP: "10.0.0.1"}, nil); err == nil {
		t.Error("expected block for private destination")
	}
	if _, err := detached.GetNextHops(domain.RoutingTarget{IP: "8.8.8.8"}, nil); err == nil {
		t.Error("expected block for detached gateway")
	}
	if !attached.IsTerminal() {
		t.Error("internet gateway should be terminal")
	}
}

func TestNATGateway(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		target  domain.RoutingTarget
		allowed bool
	}{
		{"private source outbound", "available", domain.RoutingTarget{IP: "8.8.8.8", Port: 443, SourceIsPrivate: true}, true},
		{"inbound", "available", domain.RoutingTarget{IP: "8.8.8.8", Port: 443, SourceIsPrivate: true, Direction: domain.DirectionInbound}, false},
		{"pending", "pending", domain.RoutingTarget{IP: "8.8.8.8", Port: 443, SourceIsPrivate: true}, false},
		{"private destination", "available", domain.RoutingTarget{IP: "10.1.0.1", Port: 443, SourceIsPrivate: true}, false},
		{"public source", "available", domain.RoutingTarget{IP: "8.8.8.8", Port: 443}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nat := NewNATGateway(&domain.NATGatewayData{ID: "nat-1", State: tt.state}, testAccount)
			_, err := nat.GetNextHops(tt.target, nil)
			if tt.allowed && err != nil {
				t.Errorf("expected allowed, got %v", err)
			}
			if !tt.allowed && err == nil {
				t.Error("expected block")
			}
		})
	}
}
