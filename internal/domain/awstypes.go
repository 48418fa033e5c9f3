package domain

type Tags map[string]string

type SecurityGroupData struct {
	ID            string
	Name          string
	Description   string
	VPCID         string
	InboundRules  []SecurityGroupRule
	OutboundRules []SecurityGroupRule
	Tags          Tags
}

type SecurityGroupRule struct {
	Protocol                 string
	FromPort                 int
	ToPort                   int
	CIDRBlocks               []string
	IPv6CIDRBlocks           []string
	ReferencedSecurityGroups []string
	Description              string
}

type SubnetData struct {
	ID                  string
	VPCID               string
	CIDRBlock           string
	AvailabilityZone    string
	MapPublicIPOnLaunch bool
	NaclID              string
	RouteTableID        string
	Tags                Tags
}

type NACLData struct {
	ID            string
	VPCID         string
	InboundRules  []NACLRule
	OutboundRules []NACLRule
}

type NACLRule struct {
	RuleNumber int
	Protocol   string
	FromPort   int
	ToPort     int
	CIDRBlock  string
	Action     string
}

type RouteTableData struct {
	ID     string
	VPCID  string
	Main   bool
	Routes []Route
	// Associations holds the IDs of explicitly associated subnets.
	Associations []string
	Tags         Tags
}

type Route struct {
	DestinationCIDR string
	PrefixLength    int
	TargetType      string
	TargetID        string
}

// DefaultRoute returns the 0.0.0.0/0 route, if any.
func (rt *RouteTableData) DefaultRoute() *Route {
	for i := range rt.Routes {
		if rt.Routes[i].DestinationCIDR == "0.0.0.0/0" {
			return &rt.Routes[i]
		}
	}
	return nil
}

type VPCData struct {
	ID                 string
	CIDRBlock          string
	MainRouteTableID   string
	EnableDNSSupport   bool
	EnableDNSHostnames bool
	State              string
	Tags               Tags
}

type InternetGatewayData struct {
	ID    string
	VPCID string
	Tags  Tags
}

type ElasticIPData struct {
	AllocationID  string
	PublicIP      string
	AssociationID string
	Tags          Tags
}

type NATGatewayData struct {
	ID           string
	SubnetID     string
	PublicIP     string
	AllocationID string
	State        string
	Tags         Tags
}

type EC2InstanceData struct {
	ID                 string
	PrivateIP          string
	PublicIP           string
	SecurityGroups     []string
	SubnetID           string
	VPCID              string
	ImageID            string
	InstanceType       string
	InstanceProfileARN string
	State              string
	Tags               Tags
}

type RDSInstanceData struct {
	ID                 string
	ARN                string
	Endpoint           string
	PrivateIP          string
	Port               int
	SecurityGroups     []string
	SubnetIDs          []string
	SubnetGroup        string
	Engine             string
	EngineVersion      string
	InstanceClass      string
	AllocatedStorage   int
	PubliclyAccessible bool
	DeletionProtection bool
	Status             string
}

type ENIData struct {
	ID             string
	PrivateIP      string
	PrivateIPs     []string
	SubnetID       string
	SecurityGroups []string
}

type ALBData struct {
	ARN             string
	Name            string
	DNSName         string
	Scheme          string
	State           string
	VPCID           string
	SubnetIDs       []string
	SecurityGroups  []string
	TargetGroupARNs []string
}

type ListenerData struct {
	ARN             string
	LoadBalancerARN string
	Port            int
	Protocol        string
	TargetGroupARN  string
}

type HealthCheckData struct {
	Path               string
	Protocol           string
	Port               string
	Matcher            string
	IntervalSeconds    int
	TimeoutSeconds     int
	HealthyThreshold   int
	UnhealthyThreshold int
}

type TargetGroupData struct {
	ARN         string
	Name        string
	TargetType  string
	Protocol    string
	Port        int
	VPCID       string
	HealthCheck HealthCheckData
	Targets     []TargetData
}

type TargetData struct {
	ID           string
	Port         int
	HealthStatus string
}

type IPTargetData struct {
	IP   string
	Port int
}

type RoleData struct {
	Name             string
	ARN              string
	AssumeRolePolicy string
	AttachedPolicies []string
}

type InstanceProfileData struct {
	Name  string
	ARN   string
	Roles []string
}

type DBSubnetGroupData struct {
	Name              string
	ARN               string
	VPCID             string
	SubnetIDs         []string
	AvailabilityZones []string
}

// ManagedInstanceData is the management agent's view of an instance.
type ManagedInstanceData struct {
	InstanceID   string
	PingStatus   string
	AgentVersion string
	PlatformName string
}
