package domain

import "context"

const (
	TagName     = "Name"
	TagProject  = "perimeter:project"
	TagResource = "perimeter:resource"
)

type ResourceKind string

const (
	KindVPC              ResourceKind = "vpc"
	KindInternetGateway  ResourceKind = "internet-gateway"
	KindSubnet           ResourceKind = "subnet"
	KindElasticIP        ResourceKind = "elastic-ip"
	KindNATGateway       ResourceKind = "nat-gateway"
	KindRouteTable       ResourceKind = "route-table"
	KindSecurityGroup    ResourceKind = "security-group"
	KindRole             ResourceKind = "iam-role"
	KindInstanceProfile  ResourceKind = "instance-profile"
	KindInstance         ResourceKind = "instance"
	KindTargetGroup      ResourceKind = "target-group"
	KindLoadBalancer     ResourceKind = "load-balancer"
	KindListener         ResourceKind = "listener"
	KindTargetAttachment ResourceKind = "target-attachment"
	KindDBSubnetGroup    ResourceKind = "db-subnet-group"
	KindDBInstance       ResourceKind = "db-instance"
)

// Ident names one logical resource of a project. Physical resources carry it as tags,
// or as their name where the service has no tag-based lookup.
type Ident struct {
	Project string
	Name    string
}

func (i Ident) PhysicalName() string {
	return i.Project + "-" + i.Name
}

func (i Ident) Tags() Tags {
	return Tags{
		TagName:     i.PhysicalName(),
		TagProject:  i.Project,
		TagResource: i.Name,
	}
}

type SubnetInput struct {
	VPCID            string
	CIDRBlock        string
	AvailabilityZone string
	MapPublicIP      bool
}

type InstanceInput struct {
	ImageID          string
	InstanceType     string
	SubnetID         string
	SecurityGroupIDs []string
	InstanceProfile  string
	UserData         string
}

type TargetGroupInput struct {
	Protocol    string
	Port        int
	VPCID       string
	TargetType  string
	HealthCheck HealthCheckData
}

type LoadBalancerInput struct {
	Scheme           string
	SubnetIDs        []string
	SecurityGroupIDs []string
}

type DBInstanceInput struct {
	Identifier         string
	Engine             string
	EngineVersion      string
	InstanceClass      string
	AllocatedStorage   int
	DBName             string
	Username           string
	Password           string
	Port               int
	SubnetGroup        string
	SecurityGroupIDs   []string
	DeletionProtection bool
}

type DBModifyInput struct {
	InstanceClass      string
	AllocatedStorage   int
	SecurityGroupIDs   []string
	DeletionProtection bool
}

// Provisioner is the write side of the cloud. Find* methods return nil, nil when
// nothing matches; Create* methods block until the resource is usable.
type Provisioner interface {
	FindVPC(ctx context.Context, id Ident) (*VPCData, error)
	CreateVPC(ctx context.Context, id Ident, cidr string) (*VPCData, error)
	SetVPCDNS(ctx context.Context, vpcID string, support, hostnames bool) error

	FindInternetGateway(ctx context.Context, id Ident) (*InternetGatewayData, error)
	CreateInternetGateway(ctx context.Context, id Ident) (*InternetGatewayData, error)
	AttachInternetGateway(ctx context.Context, igwID, vpcID string) error

	FindSubnet(ctx context.Context, id Ident) (*SubnetData, error)
	CreateSubnet(ctx context.Context, id Ident, in SubnetInput) (*SubnetData, error)
	SetSubnetPublicIP(ctx context.Context, subnetID string, enabled bool) error

	FindElasticIP(ctx context.Context, id Ident) (*ElasticIPData, error)
	AllocateElasticIP(ctx context.Context, id Ident) (*ElasticIPData, error)

	FindNATGateway(ctx context.Context, id Ident) (*NATGatewayData, error)
	CreateNATGateway(ctx context.Context, id Ident, subnetID, allocationID string) (*NATGatewayData, error)

	FindRouteTable(ctx context.Context, id Ident) (*RouteTableData, error)
	CreateRouteTable(ctx context.Context, id Ident, vpcID string) (*RouteTableData, error)
	SetDefaultRoute(ctx context.Context, rtID, targetType, targetID string, replace bool) error
	AssociateRouteTable(ctx context.Context, rtID, subnetID string) error

	FindSecurityGroup(ctx context.Context, id Ident) (*SecurityGroupData, error)
	CreateSecurityGroup(ctx context.Context, id Ident, vpcID, description string) (*SecurityGroupData, error)
	AuthorizeIngress(ctx context.Context, sgID string, rules []SecurityGroupRule) error
	RevokeIngress(ctx context.Context, sgID string, rules []SecurityGroupRule) error

	FindRole(ctx context.Context, name string) (*RoleData, error)
	CreateRole(ctx context.Context, name, trustPolicy string, tags Tags) (*RoleData, error)
	AttachRolePolicy(ctx context.Context, roleName, policyARN string) error
	FindInstanceProfile(ctx context.Context, name string) (*InstanceProfileData, error)
	CreateInstanceProfile(ctx context.Context, name string, tags Tags) (*InstanceProfileData, error)
	AddRoleToInstanceProfile(ctx context.Context, profileName, roleName string) error

	ResolveImage(ctx context.Context, parameter string) (string, error)
	FindInstance(ctx context.Context, id Ident) (*EC2InstanceData, error)
	RunInstance(ctx context.Context, id Ident, in InstanceInput) (*EC2InstanceData, error)
	SetInstanceSecurityGroups(ctx context.Context, instanceID string, sgIDs []string) error

	FindTargetGroup(ctx context.Context, name string) (*TargetGroupData, error)
	CreateTargetGroup(ctx context.Context, name string, in TargetGroupInput, tags Tags) (*TargetGroupData, error)
	SetTargetGroupHealthCheck(ctx context.Context, tgARN string, hc HealthCheckData) error
	RegisterTarget(ctx context.Context, tgARN, targetID string, port int) error
	DeregisterTarget(ctx context.Context, tgARN, targetID string, port int) error

	FindLoadBalancer(ctx context.Context, name string) (*ALBData, error)
	CreateLoadBalancer(ctx context.Context, name string, in LoadBalancerInput, tags Tags) (*ALBData, error)
	SetLoadBalancerSecurityGroups(ctx context.Context, lbARN string, sgIDs []string) error
	SetLoadBalancerSubnets(ctx context.Context, lbARN string, subnetIDs []string) error

	FindListener(ctx context.Context, lbARN string, port int) (*ListenerData, error)
	CreateListener(ctx context.Context, lbARN string, port int, protocol, tgARN string) (*ListenerData, error)
	SetListenerTarget(ctx context.Context, listenerARN, tgARN string) error

	FindDBSubnetGroup(ctx context.Context, name string) (*DBSubnetGroupData, error)
	CreateDBSubnetGroup(ctx context.Context, name, description string, subnetIDs []string, tags Tags) (*DBSubnetGroupData, error)
	SetDBSubnetGroupSubnets(ctx context.Context, name string, subnetIDs []string) error

	FindDBInstance(ctx context.Context, identifier string) (*RDSInstanceData, error)
	CreateDBInstance(ctx context.Context, in DBInstanceInput, tags Tags) (*RDSInstanceData, error)
	ModifyDBInstance(ctx context.Context, identifier string, in DBModifyInput) (*RDSInstanceData, error)
	DeleteDBInstance(ctx context.Context, identifier string, skipFinalSnapshot bool, finalSnapshotID string) error

	// Delete removes any other kind by physical ID, detaching it first where needed.
	Delete(ctx context.Context, kind ResourceKind, id string) error
}

// Cloud is everything the reconciler and audit need from one account.
type Cloud interface {
	AWSClient
	Provisioner
	AccountID() string
}

// Outputs are the values published after a successful apply.
type Outputs struct {
	LoadBalancerDNS  string `json:"load_balancer_dns" yaml:"load_balancer_dns"`
	InstanceID       string `json:"instance_id" yaml:"instance_id"`
	DatabaseEndpoint string `json:"database_endpoint" yaml:"database_endpoint"`
}
