package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/eleven-am/perimeter/internal/domain"
)

// GetManagedInstance reports the management agent's registration for an instance.
func (c *Client) GetManagedInstance(ctx context.Context, instanceID string) (*domain.ManagedInstanceData, error) {
	out, err := c.ssmClient.DescribeInstanceInformation(ctx, &ssm.DescribeInstanceInformationInput{
		Filters: []ssmtypes.InstanceInformationStringFilter{
			{Key: aws.String("InstanceIds"), Values: []string{instanceID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe managed instance %s: %w", instanceID, err)
	}
	info := firstOf(out.InstanceInformationList)
	if info == nil {
		return nil, fmt.Errorf("managed instance %s: %w", instanceID, domain.ErrNotFound)
	}
	return &domain.ManagedInstanceData{
		InstanceID:   derefString(info.InstanceId),
		PingStatus:   string(info.PingStatus),
		AgentVersion: derefString(info.AgentVersion),
		PlatformName: derefString(info.PlatformName),
	}, nil
}
