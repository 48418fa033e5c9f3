package components

import (
	"testing"

	"github.com/eleven-am/perimeter/internal/domain"
)

func TestEC2Instance_ChainsGroupsThenSubnet(t *testing.T) {
	client, _, analyzerCtx := newTestContext()
	_, compute, _ := tierGroups()
	client.securityGroups["sg-compute"] = compute
	client.subnets["subnet-a"] = &domain.SubnetData{ID: "subnet-a", RouteTableID: "rtb-1"}

	inst := NewEC2Instance(&domain.EC2InstanceData{
		ID: "i-1", PrivateIP: "10.0.10.10", SubnetID: "subnet-a",
		SecurityGroups: []string{"sg-compute"}, State: "running",
	}, testAccount)

	hops, err := inst.GetNextHops(domain.RoutingTarget{IP: "8.8.8.8"}, analyzerCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, ok := hops[0].(*SecurityGroupSet)
	if !ok {
		t.Fatalf("expected SecurityGroupSet, got %T", hops[0])
	}
	if set.next == nil {
		t.Fatal("security group set should lead to the subnet")
	}
	if _, ok := set.next.(*Subnet); !ok {
		t.Fatalf("expected Subnet after groups, got %T", set.next)
	}

	if rt := inst.GetRoutingTarget(); rt.IP != "10.0.10.10" || rt.Protocol != "tcp" {
		t.Errorf("unexpected routing target %+v", rt)
	}
}

func TestEC2Instance_Stopped(t *testing.T) {
	inst := NewEC2Instance(&domain.EC2InstanceData{ID: "i-1", State: "stopped"}, testAccount)
	if _, err := inst.GetNextHops(domain.RoutingTarget{}, nil); err == nil {
		t.Fatal("expected stopped instance to block")
	}
}

func TestRDSInstance_HomeSubnet(t *testing.T) {
	client, _, analyzerCtx := newTestContext()
	_, _, data := tierGroups()
	client.securityGroups["sg-data"] = data
	client.subnets["subnet-a"] = &domain.SubnetData{ID: "subnet-a", CIDRBlock: "10.0.10.0/24"}
	client.subnets["subnet-b"] = &domain.SubnetData{ID: "subnet-b", CIDRBlock: "10.0.11.0/24"}

	db := NewRDSInstance(&domain.RDSInstanceData{
		ID: "shop-db", PrivateIP: "10.0.11.12", Port: 5432,
		SubnetIDs: []string{"subnet-a", "subnet-b"}, SecurityGroups: []string{"sg-data"},
	}, testAccount)

	hops, err := db.GetNextHops(domain.RoutingTarget{}, analyzerCtx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set := hops[0].(*SecurityGroupSet)
	subnet := set.next.(*Subnet)
	if subnet.data.ID != "subnet-b" {
		t.Errorf("expected subnet-b to hold 10.0.11.12, got %s", subnet.data.ID)
	}
	if rt := db.GetRoutingTarget(); rt.Port != 5432 {
		t.Errorf("expected port 5432, got %d", rt.Port)
	}

	orphan := NewRDSInstance(&domain.RDSInstanceData{ID: "x"}, testAccount)
	if _, err := orphan.GetNextHops(domain.RoutingTarget{}, analyzerCtx); err == nil {
		t.Error("expected block for database without subnets")
	}
}
