package components

import (
	"testing"

	"github.com/eleven-am/perimeter/internal/domain"
)

func TestSubnet_WrapsRouteTableInNACL(t *testing.T) {
	client, _, analyzerCtx := newTestContext()
	client.routeTables["rtb-1"] = publicRouteTable()
	client.nacls["acl-1"] = &domain.NACLData{ID: "acl-1"}

	subnet := NewSubnet(&domain.SubnetData{ID: "subnet-1", RouteTableID: "rtb-1", NaclID: "acl-1"}, testAccount)
	hops, err := subnet.GetNextHops(domain.RoutingTarget{IP: "8.8.8.8"}, analyzerCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hops) != 1 {
		t.Fatalf("expected one hop, got %d", len(hops))
	}
	if _, ok := hops[0].(*NACL); !ok {
		t.Fatalf("expected NACL first, got %T", hops[0])
	}
}

func TestSubnet_WithoutNACL(t *testing.T) {
	client, _, analyzerCtx := newTestContext()
	client.routeTables["rtb-1"] = publicRouteTable()

	subnet := NewSubnet(&domain.SubnetData{ID: "subnet-1", RouteTableID: "rtb-1"}, testAccount)
	hops, err := subnet.GetNextHops(domain.RoutingTarget{IP: "8.8.8.8"}, analyzerCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := hops[0].(*RouteTable); !ok {
		t.Fatalf("expected RouteTable, got %T", hops[0])
	}
}

func TestSubnet_NoRouteTable(t *testing.T) {
	_, _, analyzerCtx := newTestContext()
	subnet := NewSubnet(&domain.SubnetData{ID: "subnet-1"}, testAccount)
	if _, err := subnet.GetNextHops(domain.RoutingTarget{IP: "8.8.8.8"}, analyzerCtx); err == nil {
		t.Fatal("expected block without a route table")
	}
}
