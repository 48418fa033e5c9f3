package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type EC2Instance struct {
	data      *domain.EC2InstanceData
	accountID string
}

func NewEC2Instance(data *domain.EC2InstanceData, accountID string) *EC2Instance {
	return &EC2Instance{
		data:      data,
		accountID: accountID,
	}
}

func (e *EC2Instance) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	if e.data.State != "" && e.data.State != "running" {
		return nil, &domain.BlockingError{
			ComponentID: e.GetID(),
			Reason:      fmt.Sprintf("instance is %s", e.data.State),
		}
	}

	client, err := analyzerCtx.GetAccountContext().GetClient(e.accountID)
	if err != nil {
		return nil, err
	}

	ctx := analyzerCtx.Context()

	subnetData, err := client.GetSubnet(ctx, e.data.SubnetID)
	if err != nil {
		return nil, err
	}

	groups := make([]*domain.SecurityGroupData, 0, len(e.data.SecurityGroups))
	for _, sgID := range e.data.SecurityGroups {
		sgData, err := client.GetSecurityGroup(ctx, sgID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, sgData)
	}

	return []domain.Component{NewSecurityGroupSet(groups, e.accountID, NewSubnet(subnetData, e.accountID))}, nil
}

func (e *EC2Instance) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{
		IP:       e.data.PrivateIP,
		Protocol: "tcp",
	}
}

func (e *EC2Instance) GetID() string {
	return fmt.Sprintf("%s:%s", e.accountID, e.data.ID)
}

func (e *EC2Instance) GetAccountID() string {
	return e.accountID
}

func (e *EC2Instance) GetComponentType() string {
	return "EC2Instance"
}
