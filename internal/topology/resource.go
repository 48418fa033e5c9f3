// Package topology declares the resources of one stack as a dependency graph.
// Specs refer to each other by logical name; the reconciler turns names into
// physical IDs.
package topology

import (
	"github.com/eleven-am/perimeter/internal/domain"
)

// InternetCIDR is the source of the first tier of a security chain.
const InternetCIDR = "0.0.0.0/0"

// SSMManagedPolicyARN grants the management agent its channel.
const SSMManagedPolicyARN = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"

// Spec is the desired configuration of one resource.
type Spec interface {
	// Refs lists the logical names this spec points at.
	Refs() []string
}

type Resource struct {
	Kind      domain.ResourceKind
	Name      string
	DependsOn []string
	Spec      Spec
}

type VPCSpec struct {
	CIDR         string
	DNSSupport   bool
	DNSHostnames bool
}

func (VPCSpec) Refs() []string { return nil }

type InternetGatewaySpec struct {
	VPC string
}

func (s InternetGatewaySpec) Refs() []string { return []string{s.VPC} }

type SubnetSpec struct {
	VPC    string
	CIDR   string
	Zone   string
	Public bool
}

func (s SubnetSpec) Refs() []string { return []string{s.VPC} }

type ElasticIPSpec struct{}

func (ElasticIPSpec) Refs() []string { return nil }

type NATGatewaySpec struct {
	Subnet    string
	ElasticIP string
}

func (s NATGatewaySpec) Refs() []string { return []string{s.Subnet, s.ElasticIP} }

// RouteTableSpec has a single default route. TargetKind is the kind of the
// resource named by Target (internet gateway or NAT gateway).
type RouteTableSpec struct {
	VPC        string
	Target     string
	TargetKind domain.ResourceKind
	Subnets    []string
}

func (s RouteTableSpec) Refs() []string {
	return append([]string{s.VPC, s.Target}, s.Subnets...)
}

// IngressSpec allows one TCP port from either a CIDR or another group.
type IngressSpec struct {
	Port   int
	CIDR   string
	Source string
}

type SecurityGroupSpec struct {
	VPC         string
	Description string
	Ingress     []IngressSpec
}

func (s SecurityGroupSpec) Refs() []string {
	refs := []string{s.VPC}
	for _, in := range s.Ingress {
		if in.Source != "" {
			refs = append(refs, in.Source)
		}
	}
	return refs
}

type RoleSpec struct {
	TrustedService string
	Policies       []string
}

func (RoleSpec) Refs() []string { return nil }

type InstanceProfileSpec struct {
	Role string
}

func (s InstanceProfileSpec) Refs() []string { return []string{s.Role} }

// InstanceSpec resolves its image from ImageID when set, else ImageParameter.
type InstanceSpec struct {
	Subnet         string
	SecurityGroups []string
	Profile        string
	InstanceType   string
	ImageParameter string
	ImageID        string
}

func (s InstanceSpec) Refs() []string {
	return append(append([]string{s.Subnet}, s.SecurityGroups...), s.Profile)
}

type TargetGroupSpec struct {
	VPC         string
	Protocol    string
	Port        int
	HealthCheck domain.HealthCheckData
}

func (s TargetGroupSpec) Refs() []string { return []string{s.VPC} }

type LoadBalancerSpec struct {
	Subnets        []string
	SecurityGroups []string
}

func (s LoadBalancerSpec) Refs() []string {
	return append(append([]string{}, s.Subnets...), s.SecurityGroups...)
}

type ListenerSpec struct {
	LoadBalancer string
	TargetGroup  string
	Protocol     string
	Port         int
}

func (s ListenerSpec) Refs() []string { return []string{s.LoadBalancer, s.TargetGroup} }

// AttachmentSpec registers Instance with TargetGroup. It holds no physical
// resource of its own.
type AttachmentSpec struct {
	TargetGroup string
	Instance    string
	Port        int
}

func (s AttachmentSpec) Refs() []string { return []string{s.TargetGroup, s.Instance} }

type DBSubnetGroupSpec struct {
	Description string
	Subnets     []string
}

func (s DBSubnetGroupSpec) Refs() []string { return append([]string{}, s.Subnets...) }

type DBInstanceSpec struct {
	SubnetGroup        string
	SecurityGroups     []string
	Engine             string
	EngineVersion      string
	InstanceClass      string
	AllocatedStorage   int
	DBName             string
	Username           string
	Password           string
	Port               int
	SkipFinalSnapshot  bool
	DeletionProtection bool
}

func (s DBInstanceSpec) Refs() []string {
	return append([]string{s.SubnetGroup}, s.SecurityGroups...)
}
