package components

import (
	"context"
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type mockAWSClient struct {
	securityGroups map[string]*domain.SecurityGroupData
	subnets        map[string]*domain.SubnetData
	nacls          map[string]*domain.NACLData
	routeTables    map[string]*domain.RouteTableData
	vpcs           map[string]*domain.VPCData
	igws           map[string]*domain.InternetGatewayData
	natGateways    map[string]*domain.NATGatewayData
	ec2Instances   map[string]*domain.EC2InstanceData
	rdsInstances   map[string]*domain.RDSInstanceData
	enisBySG       map[string][]domain.ENIData
	albs           map[string]*domain.ALBData
	targetGroups   map[string]*domain.TargetGroupData
}

func newMockAWSClient() *mockAWSClient {
	return &mockAWSClient{
		securityGroups: make(map[string]*domain.SecurityGroupData),
		subnets:        make(map[string]*domain.SubnetData),
		nacls:          make(map[string]*domain.NACLData),
		routeTables:    make(map[string]*domain.RouteTableData),
		vpcs:           make(map[string]*domain.VPCData),
		igws:           make(map[string]*domain.InternetGatewayData),
		natGateways:    make(map[string]*domain.NATGatewayData),
		ec2Instances:   make(map[string]*domain.EC2InstanceData),
		rdsInstances:   make(map[string]*domain.RDSInstanceData),
		enisBySG:       make(map[string][]domain.ENIData),
		albs:           make(map[string]*domain.ALBData),
		targetGroups:   make(map[string]*domain.TargetGroupData),
	}
}

func (m *mockAWSClient) GetSecurityGroup(ctx context.Context, sgID string) (*domain.SecurityGroupData, error) {
	if sg, ok := m.securityGroups[sgID]; ok {
		return sg, nil
	}
	return nil, fmt.Errorf("security group %s not found", sgID)
}

func (m *mockAWSClient) GetSubnet(ctx context.Context, subnetID string) (*domain.SubnetData, error) {
	if subnet, ok := m.subnets[subnetID]; ok {
		return subnet, nil
	}
	return nil, fmt.Errorf("subnet %s not found", subnetID)
}

func (m *mockAWSClient) GetNACL(ctx context.Context, naclID string) (*domain.NACLData, error) {
	if nacl, ok := m.nacls[naclID]; ok {
		return nacl, nil
	}
	return nil, fmt.Errorf("NACL %s not found", naclID)
}

func (m *mockAWSClient) GetRouteTable(ctx context.Context, rtID string) (*domain.RouteTableData, error) {
	if rt, ok := m.routeTables[rtID]; ok {
		return rt, nil
	}
	return nil, fmt.Errorf("route table %s not found", rtID)
}

func (m *mockAWSClient) GetVPC(ctx context.Context, vpcID string) (*domain.VPCData, error) {
	if vpc, ok := m.vpcs[vpcID]; ok {
		return vpc, nil
	}
	return nil, fmt.Errorf("VPC %s not found", vpcID)
}

func (m *mockAWSClient) GetInternetGateway(ctx context.Context, igwID string) (*domain.InternetGatewayData, error) {
	if igw, ok := m.igws[igwID]; ok {
		return igw, nil
	}
	return nil, fmt.Errorf("internet gateway %s not found", igwID)
}

func (m *mockAWSClient) GetNATGateway(ctx context.Context, natID string) (*domain.NATGatewayData, error) {
	if nat, ok := m.natGateways[natID]; ok {
		return nat, nil
	}
	return nil, fmt.Errorf("NAT gateway %s not found", natID)
}

func (m *mockAWSClient) GetEC2Instance(ctx context.Context, instanceID string) (*domain.EC2InstanceData, error) {
	if inst, ok := m.ec2Instances[instanceID]; ok {
		return inst, nil
	}
	return nil, fmt.Errorf("instance %s not found", instanceID)
}

func (m *mockAWSClient) GetRDSInstance(ctx context.Context, dbInstanceID string) (*domain.RDSInstanceData, error) {
	if db, ok := m.rdsInstances[dbInstanceID]; ok {
		return db, nil
	}
	return nil, fmt.Errorf("RDS instance %s not found", dbInstanceID)
}

func (m *mockAWSClient) GetNetworkInterface(ctx context.Context, eniID string) (*domain.ENIData, error) {
	for _, enis := range m.enisBySG {
		for i := range enis {
			if enis[i].ID == eniID {
				return &enis[i], nil
			}
		}
	}
	return nil, fmt.Errorf("network interface %s not found", eniID)
}

func (m *mockAWSClient) GetENIsBySecurityGroup(ctx context.Context, sgID string) ([]domain.ENIData, error) {
	return m.enisBySG[sgID], nil
}

func (m *mockAWSClient) GetEC2InstanceByPrivateIP(ctx context.Context, ip, vpcID string) (*domain.EC2InstanceData, error) {
	for _, inst := range m.ec2Instances {
		if inst.PrivateIP == ip && (vpcID == "" || inst.VPCID == vpcID) {
			return inst, nil
		}
	}
	return nil, nil
}

func (m *mockAWSClient) GetRDSInstanceByPrivateIP(ctx context.Context, ip, vpcID string) (*domain.RDSInstanceData, error) {
	for _, db := range m.rdsInstances {
		if db.PrivateIP == ip {
			return db, nil
		}
	}
	return nil, nil
}

func (m *mockAWSClient) GetALB(ctx context.Context, albARN string) (*domain.ALBData, error) {
	if alb, ok := m.albs[albARN]; ok {
		return alb, nil
	}
	return nil, fmt.Errorf("ALB %s not found", albARN)
}

func (m *mockAWSClient) GetTargetGroup(ctx context.Context, tgARN string) (*domain.TargetGroupData, error) {
	if tg, ok := m.targetGroups[tgARN]; ok {
		return tg, nil
	}
	return nil, fmt.Errorf("target group %s not found", tgARN)
}

func (m *mockAWSClient) GetInstanceProfile(ctx context.Context, name string) (*domain.InstanceProfileData, error) {
	return nil, fmt.Errorf("instance profile %s not found", name)
}

func (m *mockAWSClient) GetRole(ctx context.Context, name string) (*domain.RoleData, error) {
	return nil, fmt.Errorf("role %s not found", name)
}

func (m *mockAWSClient) GetDBSubnetGroup(ctx context.Context, name string) (*domain.DBSubnetGroupData, error) {
	return nil, fmt.Errorf("db subnet group %s not found", name)
}

func (m *mockAWSClient) GetManagedInstance(ctx context.Context, instanceID string) (*domain.ManagedInstanceData, error) {
	return nil, fmt.Errorf("managed instance %s not found", instanceID)
}

type mockAccountContext struct {
	clients  map[string]*mockAWSClient
	resolver domain.DestinationResolver
}

func newMockAccountContext() *mockAccountContext {
	return &mockAccountContext{
		clients: make(map[string]*mockAWSClient),
	}
}

func (m *mockAccountContext) GetClient(accountID string) (domain.AWSClient, error) {
	if client, ok := m.clients[accountID]; ok {
		return client, nil
	}
	return nil, fmt.Errorf("no client for account %s", accountID)
}

func (m *mockAccountContext) GetResolver() domain.DestinationResolver {
	return m.resolver
}

func (m *mockAccountContext) addClient(accountID string, client *mockAWSClient) {
	m.clients[accountID] = client
}

type mockAnalyzerContext struct {
	ctx        context.Context
	accountCtx *mockAccountContext
	visited    map[string]bool
}

func newMockAnalyzerContext(accountCtx *mockAccountContext) *mockAnalyzerContext {
	return &mockAnalyzerContext{
		ctx:        context.Background(),
		accountCtx: accountCtx,
		visited:    make(map[string]bool),
	}
}

func (m *mockAnalyzerContext) MarkVisited(c domain.Component) {
	m.visited[c.GetID()] = true
}

func (m *mockAnalyzerContext) IsVisited(c domain.Component) bool {
	return m.visited[c.GetID()]
}

func (m *mockAnalyzerContext) GetAccountContext() domain.AccountContext {
	return m.accountCtx
}

func (m *mockAnalyzerContext) Context() context.Context {
	return m.ctx
}

type stubResolver struct {
	components map[string]domain.Component
}

func (s *stubResolver) ResolveByIP(ctx context.Context, accountID, vpcID, ip string) (domain.Component, error) {
	if c, ok := s.components[ip]; ok {
		return c, nil
	}
	return nil, nil
}

const testAccount = "111111111111"

func newTestContext() (*mockAWSClient, *mockAccountContext, *mockAnalyzerContext) {
	client := newMockAWSClient()
	accountCtx := newMockAccountContext()
	accountCtx.addClient(testAccount, client)
	return client, accountCtx, newMockAnalyzerContext(accountCtx)
}
