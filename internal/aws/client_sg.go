package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/eleven-am/perimeter/internal/domain"
)

func (c *Client) GetSecurityGroup(ctx context.Context, sgID string) (*domain.SecurityGroupData, error) {
	key := c.cacheKey("sg", sgID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.SecurityGroupData), nil
	}
	out, err := c.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{sgID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe security group %s: %w", sgID, err)
	}
	if len(out.SecurityGroups) == 0 {
		return nil, fmt.Errorf("security group %s: %w", sgID, domain.ErrNotFound)
	}
	data := toSecurityGroupData(&out.SecurityGroups[0])
	c.cache.set(key, data)
	return data, nil
}

func (c *Client) FindSecurityGroup(ctx context.Context, id domain.Ident) (*domain.SecurityGroupData, error) {
	out, err := c.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: identFilters(id),
	})
	if err != nil {
		return nil, fmt.Errorf("find security group %s: %w", id.PhysicalName(), err)
	}
	sg := firstOf(out.SecurityGroups)
	if sg == nil {
		return nil, nil
	}
	return toSecurityGroupData(sg), nil
}

func (c *Client) CreateSecurityGroup(ctx context.Context, id domain.Ident, vpcID, description string) (*domain.SecurityGroupData, error) {
	out, err := c.ec2Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(id.PhysicalName()),
		Description:       aws.String(description),
		VpcId:             aws.String(vpcID),
		TagSpecifications: ec2TagSpec(ec2types.ResourceTypeSecurityGroup, id.Tags()),
	})
	if err != nil {
		return nil, fmt.Errorf("create security group %s: %w", id.PhysicalName(), err)
	}
	return c.GetSecurityGroup(ctx, derefString(out.GroupId))
}

func (c *Client) AuthorizeIngress(ctx context.Context, sgID string, rules []domain.SecurityGroupRule) error {
	if len(rules) == 0 {
		return nil
	}
	_, err := c.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(sgID),
		IpPermissions: toIPPermissions(rules),
	})
	if err != nil && !isErrorCode(err, "InvalidPermission.Duplicate") {
		return fmt.Errorf("authorize ingress on %s: %w", sgID, err)
	}
	c.cache.invalidate(c.cacheKey("sg", sgID))
	return nil
}

func (c *Client) RevokeIngress(ctx context.Context, sgID string, rules []domain.SecurityGroupRule) error {
	if len(rules) == 0 {
		return nil
	}
	_, err := c.ec2Client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
		GroupId:       aws.String(sgID),
		IpPermissions: toIPPermissions(rules),
	})
	if err != nil && !isErrorCode(err, "InvalidPermission.NotFound") {
		return fmt.Errorf("revoke ingress on %s: %w", sgID, err)
	}
	c.cache.invalidate(c.cacheKey("sg", sgID))
	return nil
}
