package domain

import "context"

// AccountContext hands out the read client for an account.
type AccountContext interface {
	GetClient(accountID string) (AWSClient, error)
}

// AWSClient is the read side of the cloud: lookups by physical ID used by the
// reachability components and the audit.
type AWSClient interface {
	GetSecurityGroup(ctx context.Context, sgID string) (*SecurityGroupData, error)
	GetSubnet(ctx context.Context, subnetID string) (*SubnetData, error)
	GetNACL(ctx context.Context, naclID string) (*NACLData, error)
	GetRouteTable(ctx context.Context, rtID string) (*RouteTableData, error)
	GetVPC(ctx context.Context, vpcID string) (*VPCData, error)
	GetInternetGateway(ctx context.Context, igwID string) (*InternetGatewayData, error)
	GetNATGateway(ctx context.Context, natID string) (*NATGatewayData, error)

	GetEC2Instance(ctx context.Context, instanceID string) (*EC2InstanceData, error)
	GetRDSInstance(ctx context.Context, dbInstanceID string) (*RDSInstanceData, error)
	GetNetworkInterface(ctx context.Context, eniID string) (*ENIData, error)
	GetENIsBySecurityGroup(ctx context.Context, sgID string) ([]ENIData, error)
	GetEC2InstanceByPrivateIP(ctx context.Context, ip, vpcID string) (*EC2InstanceData, error)
	GetRDSInstanceByPrivateIP(ctx context.Context, ip, vpcID string) (*RDSInstanceData, error)

	GetALB(ctx context.Context, albARN string) (*ALBData, error)
	GetTargetGroup(ctx context.Context, tgARN string) (*TargetGroupData, error)

	GetInstanceProfile(ctx context.Context, name string) (*InstanceProfileData, error)
	GetRole(ctx context.Context, name string) (*RoleData, error)
	GetDBSubnetGroup(ctx context.Context, name string) (*DBSubnetGroupData, error)
	GetManagedInstance(ctx context.Context, instanceID string) (*ManagedInstanceData, error)
}

type AnalyzerContext interface {
	MarkVisited(component Component)
	IsVisited(component Component) bool
	GetAccountContext() AccountContext
	Context() context.Context
}
