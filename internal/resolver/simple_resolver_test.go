package resolver

import (
	"context"
	"testing"

	"github.com/eleven-am/perimeter/internal/components"
	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/simulate"
)

func TestSimpleResolver(t *testing.T) {
	ctx := context.Background()
	c := simulate.New()
	id := func(name string) domain.Ident { return domain.Ident{Project: "shop", Name: name} }

	vpc, err := c.CreateVPC(ctx, id("vpc"), "10.0.0.0/16")
	if err != nil {
		t.Fatal(err)
	}
	a, err := c.CreateSubnet(ctx, id("private-a"), domain.SubnetInput{VPCID: vpc.ID, CIDRBlock: "10.0.10.0/24", AvailabilityZone: "us-east-1a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.CreateSubnet(ctx, id("private-b"), domain.SubnetInput{VPCID: vpc.ID, CIDRBlock: "10.0.11.0/24", AvailabilityZone: "us-east-1b"})
	if err != nil {
		t.Fatal(err)
	}
	inst, err := c.RunInstance(ctx, id("app"), domain.InstanceInput{ImageID: "ami-1", InstanceType: "t3.micro", SubnetID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateDBSubnetGroup(ctx, "db", "db", []string{a.ID, b.ID}, nil); err != nil {
		t.Fatal(err)
	}
	db, err := c.CreateDBInstance(ctx, domain.DBInstanceInput{Identifier: "shop-db", Username: "u", Password: "p", SubnetGroup: "db"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	r := NewSimpleResolver(c)
	acct := c.AccountID()

	tests := []struct {
		ip       string
		wantType string
	}{
		{inst.PrivateIP, "EC2Instance"},
		{db.PrivateIP, "RDSInstance"},
		{"10.0.10.200", ""},
		{"", ""},
	}
	for _, tt := range tests {
		comp, err := r.ResolveByIP(ctx, acct, vpc.ID, tt.ip)
		if err != nil {
			t.Fatalf("%s: %v", tt.ip, err)
		}
		if tt.wantType == "" {
			if comp != nil {
				t.Errorf("%s: expected nothing, got %s", tt.ip, comp.GetComponentType())
			}
			continue
		}
		if comp == nil || comp.GetComponentType() != tt.wantType {
			t.Errorf("%s: expected %s, got %v", tt.ip, tt.wantType, comp)
		}
	}

	c.Terminate(inst.ID)
	comp, err := r.ResolveByIP(ctx, acct, vpc.ID, inst.PrivateIP)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := comp.(*components.EC2Instance); !ok {
		t.Error("hits are memoized for the life of the resolver")
	}

	if _, err := r.ResolveByIP(ctx, "999999999999", vpc.ID, "10.0.0.1"); err == nil {
		t.Error("expected error for unknown account")
	}
}
