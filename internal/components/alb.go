package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type ALB struct {
	data      *domain.ALBData
	accountID string
}

func NewALB(data *domain.ALBData, accountID string) *ALB {
	return &ALB{
		data:      data,
		accountID: accountID,
	}
}

// GetNextHops checks that the balancer's groups let it reach dest, then fans
// out to every target group forwarded to by a listener.
func (alb *ALB) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	client, err := analyzerCtx.GetAccountContext().GetClient(alb.accountID)
	if err != nil {
		return nil, err
	}

	ctx := analyzerCtx.Context()

	groups := make([]*domain.SecurityGroupData, 0, len(alb.data.SecurityGroups))
	for _, sgID := range alb.data.SecurityGroups {
		sgData, err := client.GetSecurityGroup(ctx, sgID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, sgData)
	}
	if err := NewSecurityGroupSet(groups, alb.accountID, nil).EvaluateOutbound(dest.Outbound(), analyzerCtx); err != nil {
		return nil, &domain.BlockingError{
			ComponentID: alb.GetID(),
			Reason:      fmt.Sprintf("load balancer security groups blocked: %v", err),
		}
	}

	var components []domain.Component
	for _, tgARN := range alb.data.TargetGroupARNs {
		tgData, err := client.GetTargetGroup(ctx, tgARN)
		if err != nil {
			return nil, err
		}
		components = append(components, NewTargetGroup(tgData, alb.accountID))
	}

	if len(components) == 0 {
		return nil, &domain.BlockingError{
			ComponentID: alb.GetID(),
			Reason:      "no target groups configured for load balancer",
		}
	}

	return components, nil
}

func (alb *ALB) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{}
}

func (alb *ALB) GetID() string {
	return fmt.Sprintf("%s:%s", alb.accountID, alb.data.ARN)
}

func (alb *ALB) GetAccountID() string {
	return alb.accountID
}

func (alb *ALB) GetComponentType() string {
	return "ALB"
}
