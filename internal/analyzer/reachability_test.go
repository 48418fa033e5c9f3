package analyzer

import (
	"context"
	"strings"
	"testing"

	"github.com/eleven-am/perimeter/internal/components"
	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/simulate"
)

type tiers struct {
	cloud    *simulate.Cloud
	app      *domain.EC2InstanceData
	stranger *domain.EC2InstanceData
	db       *domain.RDSInstanceData
}

// must takes a (value, error) pair and returns a check that fails t on the
// error, so setup reads must(c.CreateVPC(...))(t).
func must[T any](v T, err error) func(*testing.T) T {
	return func(t *testing.T) T {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
}

// buildTiers lays out a two-zone network with a private app instance, a
// private database, and a second instance outside the compute tier.
func buildTiers(t *testing.T) *tiers {
	t.Helper()
	ctx := context.Background()
	c := simulate.New()
	id := func(name string) domain.Ident { return domain.Ident{Project: "shop", Name: name} }

	vpc := must(c.CreateVPC(ctx, id("vpc"), "10.0.0.0/16"))(t)
	subnet := func(name, cidr, az string) *domain.SubnetData {
		return must(c.CreateSubnet(ctx, id(name), domain.SubnetInput{VPCID: vpc.ID, CIDRBlock: cidr, AvailabilityZone: az}))(t)
	}
	publicA := subnet("public-a", "10.0.1.0/24", "us-east-1a")
	subnet("public-b", "10.0.2.0/24", "us-east-1b")
	privateA := subnet("private-a", "10.0.10.0/24", "us-east-1a")
	privateB := subnet("private-b", "10.0.11.0/24", "us-east-1b")

	igw := must(c.CreateInternetGateway(ctx, id("igw")))(t)
	if err := c.AttachInternetGateway(ctx, igw.ID, vpc.ID); err != nil {
		t.Fatal(err)
	}
	eip := must(c.AllocateElasticIP(ctx, id("nat-eip")))(t)
	nat := must(c.CreateNATGateway(ctx, id("nat"), publicA.ID, eip.AllocationID))(t)

	rtPublic := must(c.CreateRouteTable(ctx, id("rt-public"), vpc.ID))(t)
	rtPrivate := must(c.CreateRouteTable(ctx, id("rt-private"), vpc.ID))(t)
	for _, step := range []error{
		c.SetDefaultRoute(ctx, rtPublic.ID, "internet-gateway", igw.ID, false),
		c.SetDefaultRoute(ctx, rtPrivate.ID, "nat-gateway", nat.ID, false),
		c.AssociateRouteTable(ctx, rtPublic.ID, publicA.ID),
		c.AssociateRouteTable(ctx, rtPrivate.ID, privateA.ID),
		c.AssociateRouteTable(ctx, rtPrivate.ID, privateB.ID),
	} {
		if step != nil {
			t.Fatal(step)
		}
	}

	compute := must(c.CreateSecurityGroup(ctx, id("sg-compute"), vpc.ID, "compute"))(t)
	data := must(c.CreateSecurityGroup(ctx, id("sg-data"), vpc.ID, "data"))(t)
	other := must(c.CreateSecurityGroup(ctx, id("sg-other"), vpc.ID, "other"))(t)
	if err := c.AuthorizeIngress(ctx, data.ID, []domain.SecurityGroupRule{
		{Protocol: "tcp", FromPort: 5432, ToPort: 5432, ReferencedSecurityGroups: []string{compute.ID}},
	}); err != nil {
		t.Fatal(err)
	}

	app := must(c.RunInstance(ctx, id("app"), domain.InstanceInput{
		ImageID: "ami-1", InstanceType: "t3.micro", SubnetID: privateA.ID, SecurityGroupIDs: []string{compute.ID},
	}))(t)
	stranger := must(c.RunInstance(ctx, id("stranger"), domain.InstanceInput{
		ImageID: "ami-1", InstanceType: "t3.micro", SubnetID: privateA.ID, SecurityGroupIDs: []string{other.ID},
	}))(t)

	must(c.CreateDBSubnetGroup(ctx, "shop-db-subnets", "db", []string{privateA.ID, privateB.ID}, nil))(t)
	db := must(c.CreateDBInstance(ctx, domain.DBInstanceInput{
		Identifier: "shop-db", Engine: "postgres", InstanceClass: "db.t3.micro", AllocatedStorage: 20,
		Username: "app", Password: "secret", SubnetGroup: "shop-db-subnets", SecurityGroupIDs: []string{data.ID},
	}, nil))(t)

	return &tiers{cloud: c, app: app, stranger: stranger, db: db}
}

func TestReachability_ComputeToData(t *testing.T) {
	tt := buildTiers(t)
	acct := tt.cloud.AccountID()

	result := TestReachability(context.Background(),
		components.NewEC2Instance(tt.app, acct), components.NewRDSInstance(tt.db, acct), tt.cloud)
	if !result.OverallSuccess {
		t.Fatalf("app should reach the database: %s", result.Reason())
	}
}

func TestReachability_DataRejectsOtherTiers(t *testing.T) {
	tt := buildTiers(t)
	acct := tt.cloud.AccountID()

	result := TestReachability(context.Background(),
		components.NewEC2Instance(tt.stranger, acct), components.NewRDSInstance(tt.db, acct), tt.cloud)
	if result.OverallSuccess {
		t.Fatal("an instance outside the compute tier must not reach the database")
	}
	if !strings.Contains(result.Reason(), "sgset") {
		t.Errorf("expected the data security groups to block, got %s", result.Reason())
	}
}

func TestEgress_PrivateInstanceViaNAT(t *testing.T) {
	tt := buildTiers(t)
	acct := tt.cloud.AccountID()

	result := TestEgress(context.Background(), components.NewEC2Instance(tt.app, acct),
		domain.RoutingTarget{IP: "203.0.113.10", Port: 443, Protocol: "tcp"}, tt.cloud)
	if result.IsBlocked() {
		t.Fatalf("private instance should reach the internet through the NAT: %s", result.GetBlockingReason())
	}
}

func TestForward_WrongPort(t *testing.T) {
	tt := buildTiers(t)
	acct := tt.cloud.AccountID()

	// The forward leg only checks the sender; the database's groups are
	// evaluated on the return leg.
	forward := TestForward(context.Background(), components.NewEC2Instance(tt.app, acct),
		components.NewRDSInstance(tt.db, acct), 22, tt.cloud)
	if forward.IsBlocked() {
		t.Fatalf("forward leg should pass: %s", forward.GetBlockingReason())
	}

	db := *tt.db
	db.Port = 22
	result := TestReachability(context.Background(), components.NewEC2Instance(tt.app, acct),
		components.NewRDSInstance(&db, acct), tt.cloud)
	if result.OverallSuccess {
		t.Fatal("port 22 is not open on the data tier")
	}
}
