package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type RDSInstance struct {
	data      *domain.RDSInstanceData
	accountID string
}

func NewRDSInstance(data *domain.RDSInstanceData, accountID string) *RDSInstance {
	return &RDSInstance{
		data:      data,
		accountID: accountID,
	}
}

func (r *RDSInstance) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	if len(r.data.SubnetIDs) == 0 {
		return nil, &domain.BlockingError{
			ComponentID: r.GetID(),
			Reason:      "database has no subnets",
		}
	}

	client, err := analyzerCtx.GetAccountContext().GetClient(r.accountID)
	if err != nil {
		return nil, err
	}

	ctx := analyzerCtx.Context()

	subnet, err := r.homeSubnet(analyzerCtx, client)
	if err != nil {
		return nil, err
	}

	groups := make([]*domain.SecurityGroupData, 0, len(r.data.SecurityGroups))
	for _, sgID := range r.data.SecurityGroups {
		sgData, err := client.GetSecurityGroup(ctx, sgID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, sgData)
	}

	return []domain.Component{NewSecurityGroupSet(groups, r.accountID, NewSubnet(subnet, r.accountID))}, nil
}

// homeSubnet picks the subnet holding the instance's address, falling back to
// the first subnet of the group while the address is still unknown.
func (r *RDSInstance) homeSubnet(analyzerCtx domain.AnalyzerContext, client domain.AWSClient) (*domain.SubnetData, error) {
	var first *domain.SubnetData
	for _, id := range r.data.SubnetIDs {
		subnet, err := client.GetSubnet(analyzerCtx.Context(), id)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = subnet
		}
		if r.data.PrivateIP != "" && IPMatchesCIDR(r.data.PrivateIP, subnet.CIDRBlock) {
			return subnet, nil
		}
	}
	return first, nil
}

func (r *RDSInstance) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{
		IP:       r.data.PrivateIP,
		Port:     r.data.Port,
		Protocol: "tcp",
	}
}

func (r *RDSInstance) GetID() string {
	return fmt.Sprintf("%s:%s", r.accountID, r.data.ID)
}

func (r *RDSInstance) GetAccountID() string {
	return r.accountID
}

func (r *RDSInstance) GetComponentType() string {
	return "RDSInstance"
}
