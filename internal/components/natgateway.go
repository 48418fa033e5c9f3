package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type NATGateway struct {
	data      *domain.NATGatewayData
	accountID string
}

func NewNATGateway(data *domain.NATGatewayData, accountID string) *NATGateway {
	return &NATGateway{
		data:      data,
		accountID: accountID,
	}
}

func (nat *NATGateway) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	if dest.Direction == domain.DirectionInbound {
		return nil, &domain.BlockingError{
			ComponentID: nat.GetID(),
			Reason:      "NAT gateway does not accept unsolicited inbound traffic",
		}
	}
	if nat.data.State != "" && nat.data.State != "available" {
		return nil, &domain.BlockingError{
			ComponentID: nat.GetID(),
			Reason:      fmt.Sprintf("NAT gateway is %s", nat.data.State),
		}
	}
	if !IsPublicIP(dest.IP) {
		return nil, &domain.BlockingError{
			ComponentID: nat.GetID(),
			Reason:      "NAT gateway can only route to external (public) IP addresses",
		}
	}
	if !dest.SourceIsPrivate {
		return nil, &domain.BlockingError{
			ComponentID: nat.GetID(),
			Reason:      "NAT gateway expects private source IP for outbound traffic",
		}
	}
	return []domain.Component{NewIPTarget(&domain.IPTargetData{IP: dest.IP, Port: dest.Port}, nat.accountID)}, nil
}

func (nat *NATGateway) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{}
}

func (nat *NATGateway) GetID() string {
	return fmt.Sprintf("%s:%s", nat.accountID, nat.data.ID)
}

func (nat *NATGateway) GetAccountID() string {
	return nat.accountID
}

func (nat *NATGateway) IsTerminal() bool {
	return true
}

func (nat *NATGateway) GetComponentType() string {
	return "NATGateway"
}
