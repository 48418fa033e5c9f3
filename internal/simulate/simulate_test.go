package simulate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/perimeter/internal/domain"
)

func ident(name string) domain.Ident {
	return domain.Ident{Project: "shop", Name: name}
}

type fixture struct {
	cloud    *Cloud
	vpc      *domain.VPCData
	publicA  *domain.SubnetData
	publicB  *domain.SubnetData
	privateA *domain.SubnetData
	privateB *domain.SubnetData
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	c := New()
	vpc, err := c.CreateVPC(ctx, ident("vpc"), "10.0.0.0/16")
	require.NoError(t, err)

	f := &fixture{cloud: c, vpc: vpc}
	for _, s := range []struct {
		dst  **domain.SubnetData
		name string
		cidr string
		az   string
	}{
		{&f.publicA, "public-a", "10.0.1.0/24", "us-east-1a"},
		{&f.publicB, "public-b", "10.0.2.0/24", "us-east-1b"},
		{&f.privateA, "private-a", "10.0.10.0/24", "us-east-1a"},
		{&f.privateB, "private-b", "10.0.11.0/24", "us-east-1b"},
	} {
		subnet, err := c.CreateSubnet(ctx, ident(s.name), domain.SubnetInput{VPCID: vpc.ID, CIDRBlock: s.cidr, AvailabilityZone: s.az})
		require.NoError(t, err)
		*s.dst = subnet
	}
	return f
}

func TestCreateVPCDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.vpc.EnableDNSSupport)
	assert.False(t, f.vpc.EnableDNSHostnames)

	rt, err := f.cloud.GetRouteTable(ctx, f.vpc.MainRouteTableID)
	require.NoError(t, err)
	assert.True(t, rt.Main)
	require.Len(t, rt.Routes, 1)
	assert.Equal(t, "local", rt.Routes[0].TargetType)

	assert.Equal(t, rt.ID, f.publicA.RouteTableID, "unassociated subnets use the main table")
	nacl, err := f.cloud.GetNACL(ctx, f.publicA.NaclID)
	require.NoError(t, err)
	assert.Len(t, nacl.InboundRules, 2)

	found, err := f.cloud.FindVPC(ctx, ident("vpc"))
	require.NoError(t, err)
	assert.Equal(t, f.vpc.ID, found.ID)

	missing, err := f.cloud.FindVPC(ctx, ident("other"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateSubnetValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   domain.SubnetInput
	}{
		{"outside vpc", domain.SubnetInput{VPCID: f.vpc.ID, CIDRBlock: "10.1.0.0/24", AvailabilityZone: "us-east-1a"}},
		{"overlap", domain.SubnetInput{VPCID: f.vpc.ID, CIDRBlock: "10.0.1.128/25", AvailabilityZone: "us-east-1a"}},
		{"bad cidr", domain.SubnetInput{VPCID: f.vpc.ID, CIDRBlock: "nope", AvailabilityZone: "us-east-1a"}},
		{"foreign zone", domain.SubnetInput{VPCID: f.vpc.ID, CIDRBlock: "10.0.50.0/24", AvailabilityZone: "eu-west-1a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cloud.CreateSubnet(ctx, ident(tt.name), tt.in)
			assert.Error(t, err)
		})
	}

	_, err := f.cloud.CreateSubnet(ctx, ident("x"), domain.SubnetInput{VPCID: "vpc-missing", CIDRBlock: "10.0.60.0/24", AvailabilityZone: "us-east-1a"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDefaultRoute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cloud

	igw, err := c.CreateInternetGateway(ctx, ident("igw"))
	require.NoError(t, err)
	rt, err := c.CreateRouteTable(ctx, ident("rt-public"), f.vpc.ID)
	require.NoError(t, err)

	err = c.SetDefaultRoute(ctx, rt.ID, "internet-gateway", igw.ID, false)
	assert.Error(t, err, "gateway must be attached first")

	require.NoError(t, c.AttachInternetGateway(ctx, igw.ID, f.vpc.ID))
	require.NoError(t, c.SetDefaultRoute(ctx, rt.ID, "internet-gateway", igw.ID, false))
	assert.Error(t, c.SetDefaultRoute(ctx, rt.ID, "internet-gateway", igw.ID, false), "route already exists")

	eip, err := c.AllocateElasticIP(ctx, ident("nat-eip"))
	require.NoError(t, err)
	nat, err := c.CreateNATGateway(ctx, ident("nat"), f.publicA.ID, eip.AllocationID)
	require.NoError(t, err)
	assert.Equal(t, eip.PublicIP, nat.PublicIP)

	require.NoError(t, c.SetDefaultRoute(ctx, rt.ID, "nat-gateway", nat.ID, true))
	got, err := c.GetRouteTable(ctx, rt.ID)
	require.NoError(t, err)
	require.Len(t, got.Routes, 2)
	assert.Equal(t, nat.ID, got.Routes[1].TargetID)

	fresh, err := c.CreateRouteTable(ctx, ident("rt-private"), f.vpc.ID)
	require.NoError(t, err)
	assert.Error(t, c.SetDefaultRoute(ctx, fresh.ID, "nat-gateway", nat.ID, true), "nothing to replace")

	require.NoError(t, c.AssociateRouteTable(ctx, fresh.ID, f.privateA.ID))
	subnet, err := c.GetSubnet(ctx, f.privateA.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, subnet.RouteTableID)

	require.NoError(t, c.AssociateRouteTable(ctx, rt.ID, f.privateA.ID))
	subnet, err = c.GetSubnet(ctx, f.privateA.ID)
	require.NoError(t, err)
	assert.Equal(t, rt.ID, subnet.RouteTableID, "association moves")
}

func TestSecurityGroupRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cloud

	edge, err := c.CreateSecurityGroup(ctx, ident("sg-edge"), f.vpc.ID, "edge")
	require.NoError(t, err)
	compute, err := c.CreateSecurityGroup(ctx, ident("sg-compute"), f.vpc.ID, "compute")
	require.NoError(t, err)

	_, err = c.CreateSecurityGroup(ctx, ident("sg-edge"), f.vpc.ID, "again")
	assert.Error(t, err)

	rule := domain.SecurityGroupRule{Protocol: "tcp", FromPort: 8000, ToPort: 8000, ReferencedSecurityGroups: []string{edge.ID}}
	require.NoError(t, c.AuthorizeIngress(ctx, compute.ID, []domain.SecurityGroupRule{rule}))
	require.NoError(t, c.AuthorizeIngress(ctx, compute.ID, []domain.SecurityGroupRule{rule}))

	got, err := c.GetSecurityGroup(ctx, compute.ID)
	require.NoError(t, err)
	assert.Len(t, got.InboundRules, 1, "authorize is idempotent per atom")
	assert.Len(t, got.OutboundRules, 1)

	bad := domain.SecurityGroupRule{Protocol: "tcp", FromPort: 1, ToPort: 1, ReferencedSecurityGroups: []string{"sg-missing"}}
	assert.Error(t, c.AuthorizeIngress(ctx, compute.ID, []domain.SecurityGroupRule{bad}))

	err = c.Delete(ctx, domain.KindSecurityGroup, edge.ID)
	assert.ErrorContains(t, err, "DependencyViolation")

	require.NoError(t, c.RevokeIngress(ctx, compute.ID, []domain.SecurityGroupRule{rule}))
	got, err = c.GetSecurityGroup(ctx, compute.ID)
	require.NoError(t, err)
	assert.Empty(t, got.InboundRules)
	assert.NoError(t, c.Delete(ctx, domain.KindSecurityGroup, edge.ID))
}

func TestInstanceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cloud

	sg, err := c.CreateSecurityGroup(ctx, ident("sg-compute"), f.vpc.ID, "compute")
	require.NoError(t, err)
	_, err = c.CreateRole(ctx, "shop-instance-role", "{}", nil)
	require.NoError(t, err)
	profile, err := c.CreateInstanceProfile(ctx, "shop-instance-profile", nil)
	require.NoError(t, err)
	require.NoError(t, c.AddRoleToInstanceProfile(ctx, profile.Name, "shop-instance-role"))
	require.NoError(t, c.AddRoleToInstanceProfile(ctx, profile.Name, "shop-instance-role"))

	ami, err := c.ResolveImage(ctx, "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64")
	require.NoError(t, err)

	inst, err := c.RunInstance(ctx, ident("app"), domain.InstanceInput{
		ImageID:          ami,
		InstanceType:     "t3.micro",
		SubnetID:         f.privateA.ID,
		SecurityGroupIDs: []string{sg.ID},
		InstanceProfile:  profile.Name,
	})
	require.NoError(t, err)
	assert.Equal(t, "10.0.10.10", inst.PrivateIP)
	assert.Empty(t, inst.PublicIP)
	assert.Equal(t, profile.ARN, inst.InstanceProfileARN)

	_, err = c.GetManagedInstance(ctx, inst.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no management policy yet")

	require.NoError(t, c.AttachRolePolicy(ctx, "shop-instance-role", managementPolicy))
	managed, err := c.GetManagedInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "Online", managed.PingStatus)

	byIP, err := c.GetEC2InstanceByPrivateIP(ctx, inst.PrivateIP, f.vpc.ID)
	require.NoError(t, err)
	require.NotNil(t, byIP)
	assert.Equal(t, inst.ID, byIP.ID)

	enis, err := c.GetENIsBySecurityGroup(ctx, sg.ID)
	require.NoError(t, err)
	assert.Len(t, enis, 1)

	assert.ErrorContains(t, c.Delete(ctx, domain.KindSubnet, f.privateA.ID), "DependencyViolation")

	c.Terminate(inst.ID)
	found, err := c.FindInstance(ctx, ident("app"))
	require.NoError(t, err)
	assert.Nil(t, found)

	assert.ErrorContains(t, c.Delete(ctx, domain.KindRole, "shop-instance-role"), "DeleteConflict")
	require.NoError(t, c.Delete(ctx, domain.KindInstanceProfile, profile.Name))
	require.NoError(t, c.Delete(ctx, domain.KindRole, "shop-instance-role"))
}

func TestAddSecondRoleToProfile(t *testing.T) {
	c := New()
	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		_, err := c.CreateRole(ctx, name, "{}", nil)
		require.NoError(t, err)
	}
	_, err := c.CreateInstanceProfile(ctx, "p", nil)
	require.NoError(t, err)
	require.NoError(t, c.AddRoleToInstanceProfile(ctx, "p", "a"))
	assert.ErrorContains(t, c.AddRoleToInstanceProfile(ctx, "p", "b"), "LimitExceeded")
}

func TestTargetHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cloud

	inst, err := c.RunInstance(ctx, ident("app"), domain.InstanceInput{ImageID: defaultImageID, InstanceType: "t3.micro", SubnetID: f.privateA.ID})
	require.NoError(t, err)

	tg, err := c.CreateTargetGroup(ctx, "shop-app-tg", domain.TargetGroupInput{
		Protocol:   "HTTP",
		Port:       8000,
		VPCID:      f.vpc.ID,
		TargetType: "instance",
		HealthCheck: domain.HealthCheckData{
			Path: "/health", Matcher: "200-399", HealthyThreshold: 2, UnhealthyThreshold: 3,
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, c.RegisterTarget(ctx, tg.ARN, inst.ID, 8000))

	status := func() string {
		got, err := c.GetTargetGroup(ctx, tg.ARN)
		require.NoError(t, err)
		require.Len(t, got.Targets, 1)
		return got.Targets[0].HealthStatus
	}
	assert.Equal(t, "initial", status())

	up := func(string, int) bool { return true }
	down := func(string, int) bool { return false }

	c.HealthCheckRound(up)
	assert.Equal(t, "initial", status())
	c.HealthCheckRound(up)
	assert.Equal(t, "healthy", status())

	c.HealthCheckRound(down)
	c.HealthCheckRound(down)
	assert.Equal(t, "healthy", status())
	c.HealthCheckRound(down)
	assert.Equal(t, "unhealthy", status())

	require.NoError(t, c.DeregisterTarget(ctx, tg.ARN, inst.ID, 8000))
	got, err := c.GetTargetGroup(ctx, tg.ARN)
	require.NoError(t, err)
	assert.Empty(t, got.Targets)
}

func TestLoadBalancer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cloud

	sg, err := c.CreateSecurityGroup(ctx, ident("sg-edge"), f.vpc.ID, "edge")
	require.NoError(t, err)

	_, err = c.CreateLoadBalancer(ctx, "shop-alb", domain.LoadBalancerInput{SubnetIDs: []string{f.publicA.ID}}, nil)
	assert.Error(t, err, "one zone is not enough")

	lb, err := c.CreateLoadBalancer(ctx, "shop-alb", domain.LoadBalancerInput{
		SubnetIDs:        []string{f.publicA.ID, f.publicB.ID},
		SecurityGroupIDs: []string{sg.ID},
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, lb.DNSName, ".us-east-1.elb.amazonaws.com")
	assert.Equal(t, "internet-facing", lb.Scheme)

	enis, err := c.GetENIsBySecurityGroup(ctx, sg.ID)
	require.NoError(t, err)
	assert.Len(t, enis, 2)

	tg, err := c.CreateTargetGroup(ctx, "shop-app-tg", domain.TargetGroupInput{Protocol: "HTTP", Port: 8000, VPCID: f.vpc.ID, TargetType: "instance"}, nil)
	require.NoError(t, err)
	l, err := c.CreateListener(ctx, lb.ARN, 80, "HTTP", tg.ARN)
	require.NoError(t, err)
	_, err = c.CreateListener(ctx, lb.ARN, 80, "HTTP", tg.ARN)
	assert.Error(t, err)

	got, err := c.GetALB(ctx, lb.ARN)
	require.NoError(t, err)
	assert.Equal(t, []string{tg.ARN}, got.TargetGroupARNs)

	found, err := c.FindListener(ctx, lb.ARN, 80)
	require.NoError(t, err)
	assert.Equal(t, l.ARN, found.ARN)

	assert.ErrorContains(t, c.Delete(ctx, domain.KindTargetGroup, tg.ARN), "ResourceInUse")
	require.NoError(t, c.Delete(ctx, domain.KindLoadBalancer, lb.ARN))
	require.NoError(t, c.Delete(ctx, domain.KindTargetGroup, tg.ARN))
}

func TestDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cloud

	_, err := c.CreateDBSubnetGroup(ctx, "shop-db-subnets", "db", []string{f.privateA.ID}, nil)
	assert.ErrorContains(t, err, "DBSubnetGroupDoesNotCoverEnoughAZs")

	group, err := c.CreateDBSubnetGroup(ctx, "shop-db-subnets", "db", []string{f.privateA.ID, f.privateB.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1a", "us-east-1b"}, group.AvailabilityZones)

	in := domain.DBInstanceInput{
		Identifier:         "shop-db",
		Engine:             "postgres",
		InstanceClass:      "db.t3.micro",
		AllocatedStorage:   20,
		Username:           "app",
		Password:           "secret",
		SubnetGroup:        group.Name,
		DeletionProtection: true,
	}
	db, err := c.CreateDBInstance(ctx, in, nil)
	require.NoError(t, err)
	assert.False(t, db.PubliclyAccessible)
	assert.Equal(t, 5432, db.Port)
	assert.Equal(t, "10.0.10.10", db.PrivateIP)
	assert.Contains(t, db.Endpoint, "shop-db.")

	byIP, err := c.GetRDSInstanceByPrivateIP(ctx, db.PrivateIP, f.vpc.ID)
	require.NoError(t, err)
	require.NotNil(t, byIP)

	err = c.DeleteDBInstance(ctx, "shop-db", true, "")
	assert.ErrorIs(t, err, domain.ErrDeletionProtected)

	_, err = c.ModifyDBInstance(ctx, "shop-db", domain.DBModifyInput{DeletionProtection: false})
	require.NoError(t, err)
	assert.ErrorContains(t, c.Delete(ctx, domain.KindDBSubnetGroup, group.Name), "in use")

	require.NoError(t, c.DeleteDBInstance(ctx, "shop-db", false, "shop-db-final-1700000000"))
	assert.Equal(t, []string{"shop-db-final-1700000000"}, c.FinalSnapshots())
	assert.NoError(t, c.DeleteDBInstance(ctx, "shop-db", true, ""), "already gone")
	assert.NoError(t, c.Delete(ctx, domain.KindDBSubnetGroup, group.Name))
}

func TestFailOn(t *testing.T) {
	c := New()
	ctx := context.Background()
	boom := errors.New("throttled")

	c.FailOn("CreateVPC", boom)
	_, err := c.CreateVPC(ctx, ident("vpc"), "10.0.0.0/16")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.Mutations())

	c.FailOn("CreateVPC", nil)
	_, err = c.CreateVPC(ctx, ident("vpc"), "10.0.0.0/16")
	assert.NoError(t, err)
}

func TestDeleteVPC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.cloud

	assert.ErrorContains(t, c.Delete(ctx, domain.KindVPC, f.vpc.ID), "DependencyViolation")
	for _, s := range []*domain.SubnetData{f.publicA, f.publicB, f.privateA, f.privateB} {
		require.NoError(t, c.Delete(ctx, domain.KindSubnet, s.ID))
	}
	require.NoError(t, c.Delete(ctx, domain.KindVPC, f.vpc.ID))
	_, err := c.GetVPC(ctx, f.vpc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, c.Delete(ctx, domain.KindVPC, f.vpc.ID))
}

func TestGetClient(t *testing.T) {
	c := New(WithAccount("111122223333"), WithRegion("eu-west-1"))
	client, err := c.GetClient("111122223333")
	require.NoError(t, err)
	assert.NotNil(t, client)
	_, err = c.GetClient("999999999999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "eu-west-1", c.Region())
}

var _ domain.Cloud = (*Cloud)(nil)
