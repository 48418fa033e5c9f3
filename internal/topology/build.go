package topology

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/eleven-am/perimeter/internal/config"
	"github.com/eleven-am/perimeter/internal/domain"
)

// Logical names of the stack's resources.
const (
	NameVPC             = "vpc"
	NameIGW             = "igw"
	NamePublicA         = "public-a"
	NamePublicB         = "public-b"
	NamePrivateA        = "private-a"
	NamePrivateB        = "private-b"
	NameNATEIP          = "nat-eip"
	NameNAT             = "nat"
	NamePublicRT        = "rt-public"
	NamePrivateRT       = "rt-private"
	NameRole            = "instance-role"
	NameProfile         = "instance-profile"
	NameInstance        = "app"
	NameTargetGroup     = "app-tg"
	NameLoadBalancer    = "alb"
	NameListener        = "http-listener"
	NameAttachment      = "app-attachment"
	NameDBSubnetGroup   = "db-subnets"
	NameDB              = "db"
	TierEdge            = "edge"
	TierCompute         = "compute"
	TierData            = "data"
	subnetPrefixLength  = 24
	defaultDBEngine     = "postgres"
	targetGroupProtocol = "HTTP"
)

// Subnet network numbers inside the VPC block.
var (
	publicNetNums  = [2]int{1, 2}
	privateNetNums = [2]int{10, 11}
)

// CheckInputs reports the first required input that is absent.
func CheckInputs(stack config.Stack) error {
	required := []struct {
		field, env, value string
	}{
		{"project", "PERIMETER_PROJECT", stack.Project},
		{"region", "AWS_REGION", stack.Region},
		{"vpc cidr", "VPC_CIDR", stack.VPCCIDR},
		{"database name", "DB_NAME", stack.DBName},
		{"database username", "DB_USERNAME", stack.DBUsername},
		{"database password", "DB_PASSWORD", stack.DBPassword},
	}
	for _, r := range required {
		if r.value == "" {
			return &domain.MissingInputError{Field: r.field, Env: r.env}
		}
	}
	return nil
}

// Build declares the whole stack. It touches nothing outside memory, so a
// missing input fails here before any cloud call.
func Build(stack config.Stack) (*Graph, error) {
	return BuildWithChain(stack, DefaultChain(stack.ListenerPort, stack.ServicePort, dbPort(stack)))
}

// BuildWithChain declares the stack with a custom security chain. The chain
// must keep the edge, compute and data tiers; extra tiers get their own
// groups.
func BuildWithChain(stack config.Stack, chain *Chain) (*Graph, error) {
	if err := CheckInputs(stack); err != nil {
		return nil, err
	}
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	for _, name := range []string{TierEdge, TierCompute, TierData} {
		if _, ok := chain.Tier(name); !ok {
			return nil, fmt.Errorf("security chain has no %s tier", name)
		}
	}

	prefix, err := netip.ParsePrefix(stack.VPCCIDR)
	if err != nil {
		return nil, fmt.Errorf("vpc cidr %q: %w", stack.VPCCIDR, err)
	}
	newBits := subnetPrefixLength - prefix.Bits()
	zones := stack.Zones()

	g := NewGraph(stack.Project)
	var errs []error
	add := func(r Resource) {
		if err := g.Add(r); err != nil {
			errs = append(errs, err)
		}
	}
	carve := func(netNum int) string {
		cidr, err := CarveSubnet(stack.VPCCIDR, newBits, netNum)
		if err != nil {
			errs = append(errs, err)
		}
		return cidr
	}

	add(Resource{Kind: domain.KindVPC, Name: NameVPC, Spec: VPCSpec{CIDR: stack.VPCCIDR, DNSSupport: true, DNSHostnames: true}})
	add(Resource{Kind: domain.KindInternetGateway, Name: NameIGW, DependsOn: []string{NameVPC}, Spec: InternetGatewaySpec{VPC: NameVPC}})

	publics := []string{NamePublicA, NamePublicB}
	privates := []string{NamePrivateA, NamePrivateB}
	for i := range 2 {
		add(Resource{Kind: domain.KindSubnet, Name: publics[i], DependsOn: []string{NameVPC},
			Spec: SubnetSpec{VPC: NameVPC, CIDR: carve(publicNetNums[i]), Zone: zones[i], Public: true}})
	}
	for i := range 2 {
		add(Resource{Kind: domain.KindSubnet, Name: privates[i], DependsOn: []string{NameVPC},
			Spec: SubnetSpec{VPC: NameVPC, CIDR: carve(privateNetNums[i]), Zone: zones[i]}})
	}

	add(Resource{Kind: domain.KindElasticIP, Name: NameNATEIP, DependsOn: []string{NameIGW}, Spec: ElasticIPSpec{}})
	add(Resource{Kind: domain.KindNATGateway, Name: NameNAT, DependsOn: []string{NamePublicA, NameNATEIP, NameIGW},
		Spec: NATGatewaySpec{Subnet: NamePublicA, ElasticIP: NameNATEIP}})

	add(Resource{Kind: domain.KindRouteTable, Name: NamePublicRT, DependsOn: []string{NameVPC, NameIGW, NamePublicA, NamePublicB},
		Spec: RouteTableSpec{VPC: NameVPC, Target: NameIGW, TargetKind: domain.KindInternetGateway, Subnets: publics}})
	add(Resource{Kind: domain.KindRouteTable, Name: NamePrivateRT, DependsOn: []string{NameVPC, NameNAT, NamePrivateA, NamePrivateB},
		Spec: RouteTableSpec{VPC: NameVPC, Target: NameNAT, TargetKind: domain.KindNATGateway, Subnets: privates}})

	// Security groups come after routing is in place.
	for _, t := range chain.Tiers() {
		deps := []string{NameVPC, NamePublicRT, NamePrivateRT}
		if !t.InternetFacing() {
			deps = append(deps, "sg-"+t.Source)
		}
		add(Resource{Kind: domain.KindSecurityGroup, Name: t.GroupName(), DependsOn: deps, Spec: chain.SecurityGroup(t, NameVPC)})
	}
	edgeSG, computeSG, dataSG := "sg-"+TierEdge, "sg-"+TierCompute, "sg-"+TierData

	add(Resource{Kind: domain.KindRole, Name: NameRole,
		Spec: RoleSpec{TrustedService: "ec2.amazonaws.com", Policies: []string{SSMManagedPolicyARN}}})
	add(Resource{Kind: domain.KindInstanceProfile, Name: NameProfile, DependsOn: []string{NameRole},
		Spec: InstanceProfileSpec{Role: NameRole}})

	add(Resource{Kind: domain.KindInstance, Name: NameInstance,
		DependsOn: []string{NamePrivateA, computeSG, NameProfile, NamePrivateRT},
		Spec: InstanceSpec{
			Subnet:         NamePrivateA,
			SecurityGroups: []string{computeSG},
			Profile:        NameProfile,
			InstanceType:   stack.InstanceType,
			ImageParameter: stack.ImageParameter,
			ImageID:        stack.ImageID,
		}})

	add(Resource{Kind: domain.KindTargetGroup, Name: NameTargetGroup, DependsOn: []string{NameVPC},
		Spec: TargetGroupSpec{
			VPC:      NameVPC,
			Protocol: targetGroupProtocol,
			Port:     stack.ServicePort,
			HealthCheck: domain.HealthCheckData{
				Path:               stack.HealthPath,
				Protocol:           targetGroupProtocol,
				Port:               "traffic-port",
				Matcher:            stack.HealthMatcher,
				IntervalSeconds:    stack.HealthInterval,
				TimeoutSeconds:     stack.HealthTimeout,
				HealthyThreshold:   stack.HealthyThreshold,
				UnhealthyThreshold: stack.UnhealthyThreshold,
			},
		}})
	add(Resource{Kind: domain.KindLoadBalancer, Name: NameLoadBalancer,
		DependsOn: []string{NamePublicA, NamePublicB, edgeSG, NamePublicRT},
		Spec:      LoadBalancerSpec{Subnets: publics, SecurityGroups: []string{edgeSG}}})
	add(Resource{Kind: domain.KindListener, Name: NameListener, DependsOn: []string{NameLoadBalancer, NameTargetGroup},
		Spec: ListenerSpec{LoadBalancer: NameLoadBalancer, TargetGroup: NameTargetGroup, Protocol: "HTTP", Port: stack.ListenerPort}})
	add(Resource{Kind: domain.KindTargetAttachment, Name: NameAttachment, DependsOn: []string{NameTargetGroup, NameInstance},
		Spec: AttachmentSpec{TargetGroup: NameTargetGroup, Instance: NameInstance, Port: stack.ServicePort}})

	add(Resource{Kind: domain.KindDBSubnetGroup, Name: NameDBSubnetGroup, DependsOn: privates,
		Spec: DBSubnetGroupSpec{Description: "private subnets for " + stack.Project, Subnets: privates}})
	add(Resource{Kind: domain.KindDBInstance, Name: NameDB, DependsOn: []string{NameDBSubnetGroup, dataSG},
		Spec: DBInstanceSpec{
			SubnetGroup:        NameDBSubnetGroup,
			SecurityGroups:     []string{dataSG},
			Engine:             defaultDBEngine,
			EngineVersion:      stack.DBEngineVersion,
			InstanceClass:      stack.DBInstanceClass,
			AllocatedStorage:   stack.DBAllocatedStorage,
			DBName:             stack.DBName,
			Username:           stack.DBUsername,
			Password:           stack.DBPassword,
			Port:               dbPort(stack),
			SkipFinalSnapshot:  stack.SkipFinalSnapshot,
			DeletionProtection: stack.DeletionProtection,
		}})

	if len(errs) > 0 {
		return nil, errs[0]
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func dbPort(stack config.Stack) int {
	if stack.DBPort == 0 {
		return 5432
	}
	return stack.DBPort
}

// Describe is a one-line summary used in logs and plans.
func (r *Resource) Describe() string {
	switch s := r.Spec.(type) {
	case SubnetSpec:
		return fmt.Sprintf("%s %s in %s", r.Kind, s.CIDR, s.Zone)
	case SecurityGroupSpec:
		var src string
		for _, in := range s.Ingress {
			from := in.CIDR
			if in.Source != "" {
				from = in.Source
			}
			src += " tcp/" + strconv.Itoa(in.Port) + " from " + from
		}
		return string(r.Kind) + src
	case RouteTableSpec:
		return fmt.Sprintf("%s 0.0.0.0/0 via %s", r.Kind, s.Target)
	}
	return string(r.Kind)
}
