package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type RouteTable struct {
	data      *domain.RouteTableData
	accountID string
}

func NewRouteTable(data *domain.RouteTableData, accountID string) *RouteTable {
	return &RouteTable{
		data:      data,
		accountID: accountID,
	}
}

func (rt *RouteTable) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	route := rt.longestMatch(dest.IP)
	if route == nil {
		return nil, &domain.BlockingError{
			ComponentID: rt.GetID(),
			Reason:      fmt.Sprintf("no route to %s", dest.IP),
		}
	}

	ctx := analyzerCtx.Context()
	accountCtx := analyzerCtx.GetAccountContext()
	client, err := accountCtx.GetClient(rt.accountID)
	if err != nil {
		return nil, err
	}

	switch route.TargetType {
	case "local":
		vpc, err := client.GetVPC(ctx, rt.data.VPCID)
		if err != nil {
			return nil, err
		}
		if vpc.CIDRBlock != "" && !IPMatchesCIDR(dest.IP, vpc.CIDRBlock) {
			return nil, &domain.BlockingError{
				ComponentID: rt.GetID(),
				Reason:      fmt.Sprintf("local route but destination %s not in VPC %s CIDR", dest.IP, vpc.CIDRBlock),
			}
		}
		if rp, ok := accountCtx.(domain.ResolverProvider); ok {
			if resolver := rp.GetResolver(); resolver != nil {
				if comp, err := resolver.ResolveByIP(ctx, rt.accountID, rt.data.VPCID, dest.IP); err == nil && comp != nil {
					return []domain.Component{comp}, nil
				}
			}
		}
		return []domain.Component{NewIPTarget(&domain.IPTargetData{IP: dest.IP, Port: dest.Port}, rt.accountID)}, nil

	case "internet-gateway":
		igwData, err := client.GetInternetGateway(ctx, route.TargetID)
		if err != nil {
			return nil, err
		}
		return []domain.Component{NewInternetGateway(igwData, rt.accountID)}, nil

	case "nat-gateway":
		natData, err := client.GetNATGateway(ctx, route.TargetID)
		if err != nil {
			return nil, err
		}
		return []domain.Component{NewNATGateway(natData, rt.accountID)}, nil

	default:
		return nil, &domain.BlockingError{
			ComponentID: rt.GetID(),
			Reason:      fmt.Sprintf("unsupported route target type: %s", route.TargetType),
		}
	}
}

func (rt *RouteTable) longestMatch(ip string) *domain.Route {
	var matched *domain.Route
	longest := -1
	for i, route := range rt.data.Routes {
		if route.DestinationCIDR == "" || !IPMatchesCIDR(ip, route.DestinationCIDR) {
			continue
		}
		if route.PrefixLength > longest {
			matched = &rt.data.Routes[i]
			longest = route.PrefixLength
		}
	}
	return matched
}

func (rt *RouteTable) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{}
}

func (rt *RouteTable) GetID() string {
	return fmt.Sprintf("%s:%s", rt.accountID, rt.data.ID)
}

func (rt *RouteTable) GetAccountID() string {
	return rt.accountID
}

func (rt *RouteTable) GetComponentType() string {
	return "RouteTable"
}
