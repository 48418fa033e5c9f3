package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/eleven-am/perimeter/internal/domain"
)

func (c *Client) Delete(ctx context.Context, kind domain.ResourceKind, id string) error {
	if id == "" {
		return nil
	}
	var err error
	switch kind {
	case domain.KindVPC:
		_, err = c.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(id)})
	case domain.KindInternetGateway:
		err = c.deleteInternetGateway(ctx, id)
	case domain.KindSubnet:
		_, err = c.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)})
	case domain.KindElasticIP:
		_, err = c.ec2Client.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{AllocationId: aws.String(id)})
	case domain.KindNATGateway:
		err = c.deleteNATGateway(ctx, id)
	case domain.KindRouteTable:
		err = c.deleteRouteTable(ctx, id)
	case domain.KindSecurityGroup:
		_, err = c.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)})
	case domain.KindRole:
		err = c.deleteRole(ctx, id)
	case domain.KindInstanceProfile:
		err = c.deleteInstanceProfile(ctx, id)
	case domain.KindInstance:
		err = c.terminateInstance(ctx, id)
	case domain.KindTargetGroup:
		_, err = c.elbv2Client.DeleteTargetGroup(ctx, &elbv2.DeleteTargetGroupInput{TargetGroupArn: aws.String(id)})
	case domain.KindLoadBalancer:
		err = c.deleteLoadBalancer(ctx, id)
	case domain.KindListener:
		_, err = c.elbv2Client.DeleteListener(ctx, &elbv2.DeleteListenerInput{ListenerArn: aws.String(id)})
	case domain.KindDBSubnetGroup:
		_, err = c.rdsClient.DeleteDBSubnetGroup(ctx, &rds.DeleteDBSubnetGroupInput{DBSubnetGroupName: aws.String(id)})
	default:
		return fmt.Errorf("delete %s %s: unsupported kind", kind, id)
	}
	if err != nil && !isNotFoundCode(err) {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	c.cache.invalidatePrefix("eni:")
	return nil
}

func isNotFoundCode(err error) bool {
	return isErrorCode(err,
		"InvalidVpcID.NotFound",
		"InvalidSubnetID.NotFound",
		"InvalidInternetGatewayID.NotFound",
		"InvalidAllocationID.NotFound",
		"InvalidRouteTableID.NotFound",
		"InvalidGroup.NotFound",
		"NatGatewayNotFound",
		"TargetGroupNotFound",
		"ListenerNotFound",
		"LoadBalancerNotFound",
		"DBSubnetGroupNotFoundFault",
		"NoSuchEntity",
	)
}

func (c *Client) deleteInternetGateway(ctx context.Context, igwID string) error {
	igw, err := c.GetInternetGateway(ctx, igwID)
	if err != nil {
		return err
	}
	if igw.VPCID != "" {
		if _, err := c.ec2Client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
			InternetGatewayId: aws.String(igwID),
			VpcId:             aws.String(igw.VPCID),
		}); err != nil {
			return err
		}
	}
	_, err = c.ec2Client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
	})
	c.cache.invalidate(c.cacheKey("igw", igwID))
	return err
}

func (c *Client) deleteNATGateway(ctx context.Context, natID string) error {
	if _, err := c.ec2Client.DeleteNatGateway(ctx, &ec2.DeleteNatGatewayInput{NatGatewayId: aws.String(natID)}); err != nil {
		return err
	}
	// The elastic IP stays associated until the gateway is fully gone.
	waiter := ec2.NewNatGatewayDeletedWaiter(c.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeNatGatewaysInput{NatGatewayIds: []string{natID}}, c.waitTimeout); err != nil {
		return fmt.Errorf("wait for nat gateway %s deletion: %w", natID, err)
	}
	c.cache.invalidate(c.cacheKey("nat", natID))
	return nil
}

func (c *Client) deleteRouteTable(ctx context.Context, rtID string) error {
	out, err := c.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{rtID}})
	if err != nil {
		return err
	}
	for _, rt := range out.RouteTables {
		for _, assoc := range rt.Associations {
			if derefBool(assoc.Main) || assoc.RouteTableAssociationId == nil {
				continue
			}
			if _, err := c.ec2Client.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
				AssociationId: assoc.RouteTableAssociationId,
			}); err != nil {
				return err
			}
		}
	}
	_, err = c.ec2Client.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: aws.String(rtID)})
	c.cache.invalidate(c.cacheKey("rt", rtID))
	return err
}

func (c *Client) deleteLoadBalancer(ctx context.Context, lbARN string) error {
	if _, err := c.elbv2Client.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{LoadBalancerArn: aws.String(lbARN)}); err != nil {
		return err
	}
	waiter := elbv2.NewLoadBalancersDeletedWaiter(c.elbv2Client)
	if err := waiter.Wait(ctx, &elbv2.DescribeLoadBalancersInput{LoadBalancerArns: []string{lbARN}}, c.waitTimeout); err != nil {
		return fmt.Errorf("wait for load balancer %s deletion: %w", lbARN, err)
	}
	return nil
}
