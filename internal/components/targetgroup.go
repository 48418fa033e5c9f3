package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type TargetGroup struct {
	data      *domain.TargetGroupData
	accountID string
}

func NewTargetGroup(data *domain.TargetGroupData, accountID string) *TargetGroup {
	return &TargetGroup{
		data:      data,
		accountID: accountID,
	}
}

func (tg *TargetGroup) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	var reachable []domain.TargetData
	for _, t := range tg.data.Targets {
		if t.HealthStatus == "healthy" {
			reachable = append(reachable, t)
		}
	}

	if len(reachable) == 0 {
		return nil, &domain.BlockingError{
			ComponentID: tg.GetID(),
			Reason:      "no healthy targets in target group",
		}
	}

	switch tg.data.TargetType {
	case "instance":
		client, err := analyzerCtx.GetAccountContext().GetClient(tg.accountID)
		if err != nil {
			return nil, err
		}
		components := make([]domain.Component, 0, len(reachable))
		for _, t := range reachable {
			instance, err := client.GetEC2Instance(analyzerCtx.Context(), t.ID)
			if err != nil {
				return nil, err
			}
			components = append(components, NewEC2Instance(instance, tg.accountID))
		}
		return components, nil

	case "ip":
		components := make([]domain.Component, 0, len(reachable))
		for _, t := range reachable {
			components = append(components, NewIPTarget(&domain.IPTargetData{IP: t.ID, Port: t.Port}, tg.accountID))
		}
		return components, nil

	default:
		return nil, &domain.BlockingError{
			ComponentID: tg.GetID(),
			Reason:      fmt.Sprintf("unsupported target type: %s", tg.data.TargetType),
		}
	}
}

func (tg *TargetGroup) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{}
}

func (tg *TargetGroup) GetID() string {
	return fmt.Sprintf("%s:%s", tg.accountID, tg.data.ARN)
}

func (tg *TargetGroup) GetAccountID() string {
	return tg.accountID
}

func (tg *TargetGroup) GetComponentType() string {
	return "TargetGroup"
}
