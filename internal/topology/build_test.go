package topology

import (
	"errors"
	"testing"

	"github.com/eleven-am/perimeter/internal/config"
	"github.com/eleven-am/perimeter/internal/domain"
)

func TestBuild_MissingInputs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *config.Stack)
		field  string
	}{
		{name: "project", mutate: func(s *config.Stack) { s.Project = "" }, field: "project"},
		{name: "region", mutate: func(s *config.Stack) { s.Region = "" }, field: "region"},
		{name: "cidr", mutate: func(s *config.Stack) { s.VPCCIDR = "" }, field: "vpc cidr"},
		{name: "db name", mutate: func(s *config.Stack) { s.DBName = "" }, field: "database name"},
		{name: "db user", mutate: func(s *config.Stack) { s.DBUsername = "" }, field: "database username"},
		{name: "db password", mutate: func(s *config.Stack) { s.DBPassword = "" }, field: "database password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := testStack()
			tt.mutate(&stack)
			_, err := Build(stack)
			var missing *domain.MissingInputError
			if !errors.As(err, &missing) {
				t.Fatalf("Build() error = %v, want MissingInputError", err)
			}
			if missing.Field != tt.field {
				t.Errorf("Field = %s, want %s", missing.Field, tt.field)
			}
		})
	}
}

func TestBuild_Topology(t *testing.T) {
	g, err := Build(testStack())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if g.Len() != 22 {
		t.Errorf("Len() = %d, want 22", g.Len())
	}

	subnets := map[string]struct {
		cidr   string
		zone   string
		public bool
	}{
		NamePublicA:  {"10.0.1.0/24", "us-east-1a", true},
		NamePublicB:  {"10.0.2.0/24", "us-east-1b", true},
		NamePrivateA: {"10.0.10.0/24", "us-east-1a", false},
		NamePrivateB: {"10.0.11.0/24", "us-east-1b", false},
	}
	for name, want := range subnets {
		r, ok := g.Get(name)
		if !ok {
			t.Fatalf("missing %s", name)
		}
		s := r.Spec.(SubnetSpec)
		if s.CIDR != want.cidr || s.Zone != want.zone || s.Public != want.public {
			t.Errorf("%s = %+v, want %+v", name, s, want)
		}
	}

	nat, _ := g.Get(NameNAT)
	if nat.Spec.(NATGatewaySpec).Subnet != NamePublicA {
		t.Errorf("nat placed in %s", nat.Spec.(NATGatewaySpec).Subnet)
	}

	pub, _ := g.Get(NamePublicRT)
	if s := pub.Spec.(RouteTableSpec); s.TargetKind != domain.KindInternetGateway || s.Target != NameIGW {
		t.Errorf("public route = %+v", s)
	}
	priv, _ := g.Get(NamePrivateRT)
	if s := priv.Spec.(RouteTableSpec); s.TargetKind != domain.KindNATGateway || s.Target != NameNAT {
		t.Errorf("private route = %+v", s)
	}

	inst, _ := g.Get(NameInstance)
	is := inst.Spec.(InstanceSpec)
	if is.Subnet != NamePrivateA || len(is.SecurityGroups) != 1 || is.SecurityGroups[0] != "sg-compute" || is.Profile != NameProfile {
		t.Errorf("instance spec = %+v", is)
	}

	role, _ := g.Get(NameRole)
	if rs := role.Spec.(RoleSpec); rs.TrustedService != "ec2.amazonaws.com" || rs.Policies[0] != SSMManagedPolicyARN {
		t.Errorf("role spec = %+v", rs)
	}

	tg, _ := g.Get(NameTargetGroup)
	hc := tg.Spec.(TargetGroupSpec).HealthCheck
	if hc.Path != "/health" || hc.Matcher != "200-399" || hc.HealthyThreshold != 2 || hc.UnhealthyThreshold != 3 {
		t.Errorf("health check = %+v", hc)
	}

	db, _ := g.Get(NameDB)
	ds := db.Spec.(DBInstanceSpec)
	if ds.Engine != "postgres" || ds.SubnetGroup != NameDBSubnetGroup || ds.SecurityGroups[0] != "sg-data" {
		t.Errorf("db spec = %+v", ds)
	}
	group, _ := g.Get(NameDBSubnetGroup)
	if gs := group.Spec.(DBSubnetGroupSpec); len(gs.Subnets) != 2 || gs.Subnets[0] != NamePrivateA || gs.Subnets[1] != NamePrivateB {
		t.Errorf("db subnet group = %+v", gs)
	}
}

func TestBuild_SecurityChain(t *testing.T) {
	g, err := Build(testStack())
	if err != nil {
		t.Fatal(err)
	}

	internetFacing := 0
	for _, r := range g.Resources() {
		if r.Kind != domain.KindSecurityGroup {
			continue
		}
		for _, in := range r.Spec.(SecurityGroupSpec).Ingress {
			if in.CIDR == InternetCIDR {
				internetFacing++
				if r.Name != "sg-edge" {
					t.Errorf("%s has internet ingress", r.Name)
				}
			}
			if in.Port == 22 || in.Port == 3389 {
				t.Errorf("%s opens management port %d", r.Name, in.Port)
			}
		}
	}
	if internetFacing != 1 {
		t.Errorf("%d internet facing rules, want 1", internetFacing)
	}

	compute, _ := g.Get("sg-compute")
	if in := compute.Spec.(SecurityGroupSpec).Ingress; len(in) != 1 || in[0].Source != "sg-edge" || in[0].Port != 8000 {
		t.Errorf("compute ingress = %+v", in)
	}
	data, _ := g.Get("sg-data")
	if in := data.Spec.(SecurityGroupSpec).Ingress; len(in) != 1 || in[0].Source != "sg-compute" || in[0].Port != 5432 || in[0].CIDR != "" {
		t.Errorf("data ingress = %+v", in)
	}
}

func TestBuild_ConstructionOrder(t *testing.T) {
	g, err := Build(testStack())
	if err != nil {
		t.Fatal(err)
	}
	levels, err := g.Levels()
	if err != nil {
		t.Fatal(err)
	}
	at := make(map[string]int)
	for i, level := range levels {
		for _, r := range level {
			at[r.Name] = i
		}
	}

	before := [][2]string{
		{NameVPC, NameIGW},
		{NameVPC, NamePublicA},
		{NamePublicA, NamePublicRT},
		{NameNAT, NamePrivateRT},
		{NamePrivateRT, "sg-edge"},
		{"sg-edge", "sg-compute"},
		{"sg-compute", "sg-data"},
		{"sg-compute", NameInstance},
		{NameProfile, NameInstance},
		{NameInstance, NameAttachment},
		{NameLoadBalancer, NameListener},
		{"sg-data", NameDB},
		{NameDBSubnetGroup, NameDB},
	}
	for _, pair := range before {
		if at[pair[0]] >= at[pair[1]] {
			t.Errorf("%s (level %d) should come before %s (level %d)", pair[0], at[pair[0]], pair[1], at[pair[1]])
		}
	}
}

func TestBuildWithChain_ExtraTier(t *testing.T) {
	chain := DefaultChain(80, 8000, 5432)
	if err := chain.Insert(TierCompute, Tier{Name: "cache", Port: 6379, Description: "cache"}); err != nil {
		t.Fatal(err)
	}
	g, err := BuildWithChain(testStack(), chain)
	if err != nil {
		t.Fatalf("BuildWithChain() error: %v", err)
	}
	data, _ := g.Get("sg-data")
	if in := data.Spec.(SecurityGroupSpec).Ingress; in[0].Source != "sg-cache" {
		t.Errorf("data sourced from %s, want sg-cache", in[0].Source)
	}

	bare := NewChain(Tier{Name: "edge", Port: 80}, Tier{Name: "compute", Port: 8000})
	if _, err := BuildWithChain(testStack(), bare); err == nil {
		t.Error("expected error for chain without data tier")
	}
}

func TestResource_Describe(t *testing.T) {
	g, err := Build(testStack())
	if err != nil {
		t.Fatal(err)
	}
	data, _ := g.Get("sg-data")
	if got := data.Describe(); got != "security-group tcp/5432 from sg-compute" {
		t.Errorf("Describe() = %q", got)
	}
	subnet, _ := g.Get(NamePrivateB)
	if got := subnet.Describe(); got != "subnet 10.0.11.0/24 in us-east-1b" {
		t.Errorf("Describe() = %q", got)
	}
}
