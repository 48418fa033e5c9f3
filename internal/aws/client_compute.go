package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/eleven-am/perimeter/internal/domain"
)

// Instance profiles take a few seconds to become visible to EC2 after creation.
const profilePropagationAttempts = 6

var liveInstanceStates = []string{"pending", "running", "stopping", "stopped"}

func (c *Client) GetEC2Instance(ctx context.Context, instanceID string) (*domain.EC2InstanceData, error) {
	key := c.cacheKey("instance", instanceID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.EC2InstanceData), nil
	}
	out, err := c.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe instance %s: %w", instanceID, err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil, fmt.Errorf("instance %s: %w", instanceID, domain.ErrNotFound)
	}
	data := toEC2InstanceData(&out.Reservations[0].Instances[0])
	c.cache.set(key, data)
	return data, nil
}

func (c *Client) FindInstance(ctx context.Context, id domain.Ident) (*domain.EC2InstanceData, error) {
	filters := append(identFilters(id), ec2types.Filter{
		Name:   aws.String("instance-state-name"),
		Values: liveInstanceStates,
	})
	paginator := ec2.NewDescribeInstancesPaginator(c.ec2Client, &ec2.DescribeInstancesInput{Filters: filters})
	reservations, err := CollectPages(
		ctx,
		paginator.HasMorePages,
		func(ctx context.Context) (*ec2.DescribeInstancesOutput, error) {
			return paginator.NextPage(ctx)
		},
		func(out *ec2.DescribeInstancesOutput) []ec2types.Reservation {
			return out.Reservations
		},
	)
	if err != nil {
		return nil, fmt.Errorf("find instance %s: %w", id.PhysicalName(), err)
	}

	// Prefer the newest live instance if a replacement left an older one behind.
	var newest *ec2types.Instance
	for _, res := range reservations {
		for i := range res.Instances {
			inst := &res.Instances[i]
			if newest == nil || (inst.LaunchTime != nil && newest.LaunchTime != nil && inst.LaunchTime.After(*newest.LaunchTime)) {
				newest = inst
			}
		}
	}
	if newest == nil {
		return nil, nil
	}
	return toEC2InstanceData(newest), nil
}

func (c *Client) ResolveImage(ctx context.Context, parameter string) (string, error) {
	out, err := c.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(parameter),
	})
	if err != nil {
		return "", fmt.Errorf("resolve image parameter %s: %w", parameter, err)
	}
	if out.Parameter == nil || derefString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("image parameter %s: %w", parameter, domain.ErrNotFound)
	}
	return derefString(out.Parameter.Value), nil
}

func (c *Client) RunInstance(ctx context.Context, id domain.Ident, in domain.InstanceInput) (*domain.EC2InstanceData, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(in.ImageID),
		InstanceType: ec2types.InstanceType(in.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		NetworkInterfaces: []ec2types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(in.SubnetID),
			Groups:                   in.SecurityGroupIDs,
			AssociatePublicIpAddress: aws.Bool(false),
		}},
		MetadataOptions: &ec2types.InstanceMetadataOptionsRequest{
			HttpTokens: ec2types.HttpTokensStateRequired,
		},
		TagSpecifications: ec2TagSpec(ec2types.ResourceTypeInstance, id.Tags()),
	}
	if in.InstanceProfile != "" {
		input.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{Name: aws.String(in.InstanceProfile)}
	}
	if in.UserData != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(in.UserData)))
	}

	var out *ec2.RunInstancesOutput
	var err error
	for attempt := 1; attempt <= profilePropagationAttempts; attempt++ {
		out, err = c.ec2Client.RunInstances(ctx, input)
		if err == nil || !isErrorCode(err, "InvalidParameterValue") || in.InstanceProfile == "" {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 5 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("run instance %s: %w", id.PhysicalName(), err)
	}
	if len(out.Instances) == 0 {
		return nil, fmt.Errorf("run instance %s: no instance returned", id.PhysicalName())
	}

	instanceID := derefString(out.Instances[0].InstanceId)
	waiter := ec2.NewInstanceRunningWaiter(c.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}, c.waitTimeout); err != nil {
		return nil, fmt.Errorf("wait for instance %s: %w", instanceID, err)
	}
	c.cache.invalidatePrefix("eni:")
	return c.GetEC2Instance(ctx, instanceID)
}

func (c *Client) SetInstanceSecurityGroups(ctx context.Context, instanceID string, sgIDs []string) error {
	_, err := c.ec2Client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId: aws.String(instanceID),
		Groups:     sgIDs,
	})
	if err != nil {
		return fmt.Errorf("set security groups on instance %s: %w", instanceID, err)
	}
	c.cache.invalidate(c.cacheKey("instance", instanceID))
	c.cache.invalidatePrefix("eni:")
	return nil
}

func (c *Client) terminateInstance(ctx context.Context, instanceID string) error {
	_, err := c.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		if isErrorCode(err, "InvalidInstanceID.NotFound") {
			return nil
		}
		return fmt.Errorf("terminate instance %s: %w", instanceID, err)
	}
	waiter := ec2.NewInstanceTerminatedWaiter(c.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}, c.waitTimeout); err != nil {
		return fmt.Errorf("wait for instance %s termination: %w", instanceID, err)
	}
	c.cache.invalidate(c.cacheKey("instance", instanceID))
	c.cache.invalidatePrefix("eni:")
	return nil
}

func (c *Client) GetNetworkInterface(ctx context.Context, eniID string) (*domain.ENIData, error) {
	out, err := c.ec2Client.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
		NetworkInterfaceIds: []string{eniID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe network interface %s: %w", eniID, err)
	}
	if len(out.NetworkInterfaces) == 0 {
		return nil, fmt.Errorf("network interface %s: %w", eniID, domain.ErrNotFound)
	}
	return toENIData(&out.NetworkInterfaces[0]), nil
}

func (c *Client) GetENIsBySecurityGroup(ctx context.Context, sgID string) ([]domain.ENIData, error) {
	key := c.cacheKey("eni", "sg", sgID)
	if v, ok := c.cache.get(key); ok {
		return v.([]domain.ENIData), nil
	}
	input := &ec2.DescribeNetworkInterfacesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-id"), Values: []string{sgID}},
		},
	}
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(c.ec2Client, input)
	networkInterfaces, err := CollectPages(
		ctx,
		paginator.HasMorePages,
		func(ctx context.Context) (*ec2.DescribeNetworkInterfacesOutput, error) {
			return paginator.NextPage(ctx)
		},
		func(out *ec2.DescribeNetworkInterfacesOutput) []ec2types.NetworkInterface {
			return out.NetworkInterfaces
		},
	)
	if err != nil {
		return nil, fmt.Errorf("describe network interfaces for sg %s: %w", sgID, err)
	}

	var enis []domain.ENIData
	for _, eni := range networkInterfaces {
		enis = append(enis, *toENIData(&eni))
	}
	c.cache.set(key, enis)
	return enis, nil
}

func (c *Client) GetEC2InstanceByPrivateIP(ctx context.Context, ip, vpcID string) (*domain.EC2InstanceData, error) {
	out, err := c.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("private-ip-address"), Values: []string{ip}},
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe instances for ip %s: %w", ip, err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			return toEC2InstanceData(&inst), nil
		}
	}
	return nil, nil
}
