package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/eleven-am/perimeter/internal/domain"
)

func (c *Client) GetSubnet(ctx context.Context, subnetID string) (*domain.SubnetData, error) {
	key := c.cacheKey("subnet", subnetID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.SubnetData), nil
	}
	subnetOut, err := c.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		SubnetIds: []string{subnetID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe subnet %s: %w", subnetID, err)
	}
	if len(subnetOut.Subnets) == 0 {
		return nil, fmt.Errorf("subnet %s: %w", subnetID, domain.ErrNotFound)
	}
	data, err := c.subnetData(ctx, &subnetOut.Subnets[0])
	if err != nil {
		return nil, err
	}
	c.cache.set(key, data)
	return data, nil
}

func (c *Client) subnetData(ctx context.Context, subnet *ec2types.Subnet) (*domain.SubnetData, error) {
	subnetID := derefString(subnet.SubnetId)
	naclID, err := c.findNACLForSubnet(ctx, subnetID)
	if err != nil {
		return nil, err
	}
	rtID, err := c.findRouteTableForSubnet(ctx, subnetID, derefString(subnet.VpcId))
	if err != nil {
		return nil, err
	}
	return toSubnetData(subnet, naclID, rtID), nil
}

func (c *Client) findNACLForSubnet(ctx context.Context, subnetID string) (string, error) {
	out, err := c.ec2Client.DescribeNetworkAcls(ctx, &ec2.DescribeNetworkAclsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("association.subnet-id"), Values: []string{subnetID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe network acls for subnet %s: %w", subnetID, err)
	}
	if len(out.NetworkAcls) == 0 {
		return "", nil
	}
	return derefString(out.NetworkAcls[0].NetworkAclId), nil
}

func (c *Client) findRouteTableForSubnet(ctx context.Context, subnetID, vpcID string) (string, error) {
	out, err := c.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("association.subnet-id"), Values: []string{subnetID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe route tables for subnet %s: %w", subnetID, err)
	}
	if len(out.RouteTables) > 0 {
		return derefString(out.RouteTables[0].RouteTableId), nil
	}
	return c.findMainRouteTable(ctx, vpcID)
}

func (c *Client) findMainRouteTable(ctx context.Context, vpcID string) (string, error) {
	out, err := c.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("association.main"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe main route table for vpc %s: %w", vpcID, err)
	}
	if len(out.RouteTables) > 0 {
		return derefString(out.RouteTables[0].RouteTableId), nil
	}
	return "", nil
}

func (c *Client) GetNACL(ctx context.Context, naclID string) (*domain.NACLData, error) {
	key := c.cacheKey("nacl", naclID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.NACLData), nil
	}
	out, err := c.ec2Client.DescribeNetworkAcls(ctx, &ec2.DescribeNetworkAclsInput{
		NetworkAclIds: []string{naclID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe network acl %s: %w", naclID, err)
	}
	if len(out.NetworkAcls) == 0 {
		return nil, fmt.Errorf("network acl %s: %w", naclID, domain.ErrNotFound)
	}
	data := toNACLData(&out.NetworkAcls[0])
	c.cache.set(key, data)
	return data, nil
}

func (c *Client) GetRouteTable(ctx context.Context, rtID string) (*domain.RouteTableData, error) {
	key := c.cacheKey("rt", rtID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.RouteTableData), nil
	}
	out, err := c.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		RouteTableIds: []string{rtID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe route table %s: %w", rtID, err)
	}
	if len(out.RouteTables) == 0 {
		return nil, fmt.Errorf("route table %s: %w", rtID, domain.ErrNotFound)
	}
	data := toRouteTableData(&out.RouteTables[0])
	c.cache.set(key, data)
	return data, nil
}

func (c *Client) GetVPC(ctx context.Context, vpcID string) (*domain.VPCData, error) {
	key := c.cacheKey("vpc", vpcID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.VPCData), nil
	}
	out, err := c.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		VpcIds: []string{vpcID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe vpc %s: %w", vpcID, err)
	}
	if len(out.Vpcs) == 0 {
		return nil, fmt.Errorf("vpc %s: %w", vpcID, domain.ErrNotFound)
	}
	data, err := c.vpcData(ctx, &out.Vpcs[0])
	if err != nil {
		return nil, err
	}
	c.cache.set(key, data)
	return data, nil
}

func (c *Client) vpcData(ctx context.Context, vpc *ec2types.Vpc) (*domain.VPCData, error) {
	vpcID := derefString(vpc.VpcId)
	mainRtID, err := c.findMainRouteTable(ctx, vpcID)
	if err != nil {
		return nil, err
	}
	data := toVPCData(vpc, mainRtID)

	support, err := c.ec2Client.DescribeVpcAttribute(ctx, &ec2.DescribeVpcAttributeInput{
		VpcId:     aws.String(vpcID),
		Attribute: ec2types.VpcAttributeNameEnableDnsSupport,
	})
	if err != nil {
		return nil, fmt.Errorf("describe vpc %s dns support: %w", vpcID, err)
	}
	if support.EnableDnsSupport != nil {
		data.EnableDNSSupport = derefBool(support.EnableDnsSupport.Value)
	}

	hostnames, err := c.ec2Client.DescribeVpcAttribute(ctx, &ec2.DescribeVpcAttributeInput{
		VpcId:     aws.String(vpcID),
		Attribute: ec2types.VpcAttributeNameEnableDnsHostnames,
	})
	if err != nil {
		return nil, fmt.Errorf("describe vpc %s dns hostnames: %w", vpcID, err)
	}
	if hostnames.EnableDnsHostnames != nil {
		data.EnableDNSHostnames = derefBool(hostnames.EnableDnsHostnames.Value)
	}
	return data, nil
}

func (c *Client) FindVPC(ctx context.Context, id domain.Ident) (*domain.VPCData, error) {
	out, err := c.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: identFilters(id),
	})
	if err != nil {
		return nil, fmt.Errorf("find vpc %s: %w", id.PhysicalName(), err)
	}
	vpc := firstOf(out.Vpcs)
	if vpc == nil {
		return nil, nil
	}
	return c.vpcData(ctx, vpc)
}

func (c *Client) CreateVPC(ctx context.Context, id domain.Ident, cidr string) (*domain.VPCData, error) {
	out, err := c.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(cidr),
		TagSpecifications: ec2TagSpec(ec2types.ResourceTypeVpc, id.Tags()),
	})
	if err != nil {
		return nil, fmt.Errorf("create vpc %s: %w", id.PhysicalName(), err)
	}
	vpcID := derefString(out.Vpc.VpcId)
	if err := ec2.NewVpcAvailableWaiter(c.ec2Client).Wait(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}}, c.waitTimeout); err != nil {
		return nil, fmt.Errorf("wait for vpc %s: %w", vpcID, err)
	}
	return c.vpcData(ctx, out.Vpc)
}

func (c *Client) SetVPCDNS(ctx context.Context, vpcID string, support, hostnames bool) error {
	// EC2 accepts one attribute per call.
	if _, err := c.ec2Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:            aws.String(vpcID),
		EnableDnsSupport: &ec2types.AttributeBooleanValue{Value: aws.Bool(support)},
	}); err != nil {
		return fmt.Errorf("set vpc %s dns support: %w", vpcID, err)
	}
	if _, err := c.ec2Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:              aws.String(vpcID),
		EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: aws.Bool(hostnames)},
	}); err != nil {
		return fmt.Errorf("set vpc %s dns hostnames: %w", vpcID, err)
	}
	c.cache.invalidate(c.cacheKey("vpc", vpcID))
	return nil
}

func (c *Client) GetInternetGateway(ctx context.Context, igwID string) (*domain.InternetGatewayData, error) {
	key := c.cacheKey("igw", igwID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.InternetGatewayData), nil
	}
	out, err := c.ec2Client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		InternetGatewayIds: []string{igwID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe internet gateway %s: %w", igwID, err)
	}
	if len(out.InternetGateways) == 0 {
		return nil, fmt.Errorf("internet gateway %s: %w", igwID, domain.ErrNotFound)
	}
	data := toInternetGatewayData(&out.InternetGateways[0])
	c.cache.set(key, data)
	return data, nil
}

func (c *Client) FindInternetGateway(ctx context.Context, id domain.Ident) (*domain.InternetGatewayData, error) {
	out, err := c.ec2Client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: identFilters(id),
	})
	if err != nil {
		return nil, fmt.Errorf("find internet gateway %s: %w", id.PhysicalName(), err)
	}
	igw := firstOf(out.InternetGateways)
	if igw == nil {
		return nil, nil
	}
	return toInternetGatewayData(igw), nil
}

func (c *Client) CreateInternetGateway(ctx context.Context, id domain.Ident) (*domain.InternetGatewayData, error) {
	out, err := c.ec2Client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: ec2TagSpec(ec2types.ResourceTypeInternetGateway, id.Tags()),
	})
	if err != nil {
		return nil, fmt.Errorf("create internet gateway %s: %w", id.PhysicalName(), err)
	}
	return toInternetGatewayData(out.InternetGateway), nil
}

func (c *Client) AttachInternetGateway(ctx context.Context, igwID, vpcID string) error {
	_, err := c.ec2Client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
		VpcId:             aws.String(vpcID),
	})
	if err != nil {
		return fmt.Errorf("attach internet gateway %s to %s: %w", igwID, vpcID, err)
	}
	c.cache.invalidate(c.cacheKey("igw", igwID))
	return nil
}

func (c *Client) FindSubnet(ctx context.Context, id domain.Ident) (*domain.SubnetData, error) {
	out, err := c.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: identFilters(id),
	})
	if err != nil {
		return nil, fmt.Errorf("find subnet %s: %w", id.PhysicalName(), err)
	}
	subnet := firstOf(out.Subnets)
	if subnet == nil {
		return nil, nil
	}
	return c.subnetData(ctx, subnet)
}

func (c *Client) CreateSubnet(ctx context.Context, id domain.Ident, in domain.SubnetInput) (*domain.SubnetData, error) {
	out, err := c.ec2Client.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:             aws.String(in.VPCID),
		CidrBlock:         aws.String(in.CIDRBlock),
		AvailabilityZone:  aws.String(in.AvailabilityZone),
		TagSpecifications: ec2TagSpec(ec2types.ResourceTypeSubnet, id.Tags()),
	})
	if err != nil {
		return nil, fmt.Errorf("create subnet %s: %w", id.PhysicalName(), err)
	}
	subnetID := derefString(out.Subnet.SubnetId)
	if in.MapPublicIP {
		if err := c.SetSubnetPublicIP(ctx, subnetID, true); err != nil {
			return nil, err
		}
		out.Subnet.MapPublicIpOnLaunch = aws.Bool(true)
	}
	return c.subnetData(ctx, out.Subnet)
}

func (c *Client) SetSubnetPublicIP(ctx context.Context, subnetID string, enabled bool) error {
	_, err := c.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            aws.String(subnetID),
		MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: aws.Bool(enabled)},
	})
	if err != nil {
		return fmt.Errorf("set subnet %s public ip mapping: %w", subnetID, err)
	}
	c.cache.invalidate(c.cacheKey("subnet", subnetID))
	return nil
}

func (c *Client) FindElasticIP(ctx context.Context, id domain.Ident) (*domain.ElasticIPData, error) {
	out, err := c.ec2Client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		Filters: identFilters(id),
	})
	if err != nil {
		return nil, fmt.Errorf("find elastic ip %s: %w", id.PhysicalName(), err)
	}
	addr := firstOf(out.Addresses)
	if addr == nil {
		return nil, nil
	}
	return toElasticIPData(addr), nil
}

func (c *Client) AllocateElasticIP(ctx context.Context, id domain.Ident) (*domain.ElasticIPData, error) {
	out, err := c.ec2Client.AllocateAddress(ctx, &ec2.AllocateAddressInput{
		Domain:            ec2types.DomainTypeVpc,
		TagSpecifications: ec2TagSpec(ec2types.ResourceTypeElasticIp, id.Tags()),
	})
	if err != nil {
		return nil, fmt.Errorf("allocate elastic ip %s: %w", id.PhysicalName(), err)
	}
	return &domain.ElasticIPData{
		AllocationID: derefString(out.AllocationId),
		PublicIP:     derefString(out.PublicIp),
		Tags:         id.Tags(),
	}, nil
}

func (c *Client) GetNATGateway(ctx context.Context, natID string) (*domain.NATGatewayData, error) {
	key := c.cacheKey("nat", natID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.NATGatewayData), nil
	}
	out, err := c.ec2Client.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{
		NatGatewayIds: []string{natID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe nat gateway %s: %w", natID, err)
	}
	if len(out.NatGateways) == 0 {
		return nil, fmt.Errorf("nat gateway %s: %w", natID, domain.ErrNotFound)
	}
	data := toNATGatewayData(&out.NatGateways[0])
	c.cache.set(key, data)
	return data, nil
}

func (c *Client) FindNATGateway(ctx context.Context, id domain.Ident) (*domain.NATGatewayData, error) {
	filters := append(identFilters(id), ec2types.Filter{
		Name:   aws.String("state"),
		Values: []string{"pending", "available"},
	})
	out, err := c.ec2Client.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{
		Filter: filters,
	})
	if err != nil {
		return nil, fmt.Errorf("find nat gateway %s: %w", id.PhysicalName(), err)
	}
	nat := firstOf(out.NatGateways)
	if nat == nil {
		return nil, nil
	}
	return toNATGatewayData(nat), nil
}

func (c *Client) CreateNATGateway(ctx context.Context, id domain.Ident, subnetID, allocationID string) (*domain.NATGatewayData, error) {
	out, err := c.ec2Client.CreateNatGateway(ctx, &ec2.CreateNatGatewayInput{
		SubnetId:          aws.String(subnetID),
		AllocationId:      aws.String(allocationID),
		TagSpecifications: ec2TagSpec(ec2types.ResourceTypeNatgateway, id.Tags()),
	})
	if err != nil {
		return nil, fmt.Errorf("create nat gateway %s: %w", id.PhysicalName(), err)
	}
	natID := derefString(out.NatGateway.NatGatewayId)
	waiter := ec2.NewNatGatewayAvailableWaiter(c.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeNatGatewaysInput{NatGatewayIds: []string{natID}}, c.waitTimeout); err != nil {
		return nil, fmt.Errorf("wait for nat gateway %s: %w", natID, err)
	}
	return c.GetNATGateway(ctx, natID)
}

func (c *Client) FindRouteTable(ctx context.Context, id domain.Ident) (*domain.RouteTableData, error) {
	out, err := c.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: identFilters(id),
	})
	if err != nil {
		return nil, fmt.Errorf("find route table %s: %w", id.PhysicalName(), err)
	}
	rt := firstOf(out.RouteTables)
	if rt == nil {
		return nil, nil
	}
	return toRouteTableData(rt), nil
}

func (c *Client) CreateRouteTable(ctx context.Context, id domain.Ident, vpcID string) (*domain.RouteTableData, error) {
	out, err := c.ec2Client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             aws.String(vpcID),
		TagSpecifications: ec2TagSpec(ec2types.ResourceTypeRouteTable, id.Tags()),
	})
	if err != nil {
		return nil, fmt.Errorf("create route table %s: %w", id.PhysicalName(), err)
	}
	return toRouteTableData(out.RouteTable), nil
}

func (c *Client) SetDefaultRoute(ctx context.Context, rtID, targetType, targetID string, replace bool) error {
	var gatewayID, natID *string
	switch targetType {
	case "internet-gateway":
		gatewayID = aws.String(targetID)
	case "nat-gateway":
		natID = aws.String(targetID)
	default:
		return fmt.Errorf("route table %s: unsupported default route target %q", rtID, targetType)
	}

	var err error
	if replace {
		_, err = c.ec2Client.ReplaceRoute(ctx, &ec2.ReplaceRouteInput{
			RouteTableId:         aws.String(rtID),
			DestinationCidrBlock: aws.String("0.0.0.0/0"),
			GatewayId:            gatewayID,
			NatGatewayId:         natID,
		})
	} else {
		_, err = c.ec2Client.CreateRoute(ctx, &ec2.CreateRouteInput{
			RouteTableId:         aws.String(rtID),
			DestinationCidrBlock: aws.String("0.0.0.0/0"),
			GatewayId:            gatewayID,
			NatGatewayId:         natID,
		})
	}
	if err != nil {
		return fmt.Errorf("set default route on %s via %s: %w", rtID, targetID, err)
	}
	c.cache.invalidate(c.cacheKey("rt", rtID))
	return nil
}

func (c *Client) AssociateRouteTable(ctx context.Context, rtID, subnetID string) error {
	current, err := c.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("association.subnet-id"), Values: []string{subnetID}},
		},
	})
	if err != nil {
		return fmt.Errorf("describe route tables for subnet %s: %w", subnetID, err)
	}

	// A subnet holds one explicit association; move it rather than stacking a second.
	var existing *string
	for _, rt := range current.RouteTables {
		for _, assoc := range rt.Associations {
			if derefString(assoc.SubnetId) == subnetID {
				existing = assoc.RouteTableAssociationId
			}
		}
	}

	if existing != nil {
		_, err = c.ec2Client.ReplaceRouteTableAssociation(ctx, &ec2.ReplaceRouteTableAssociationInput{
			AssociationId: existing,
			RouteTableId:  aws.String(rtID),
		})
	} else {
		_, err = c.ec2Client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: aws.String(rtID),
			SubnetId:     aws.String(subnetID),
		})
	}
	if err != nil {
		return fmt.Errorf("associate route table %s with %s: %w", rtID, subnetID, err)
	}
	c.cache.invalidate(c.cacheKey("rt", rtID), c.cacheKey("subnet", subnetID))
	return nil
}
