package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type InternetGateway struct {
	data      *domain.InternetGatewayData
	accountID string
}

func NewInternetGateway(data *domain.InternetGatewayData, accountID string) *InternetGateway {
	return &InternetGateway{
		data:      data,
		accountID: accountID,
	}
}

// GetNextHops only forwards to public addresses. A private source that
// reaches the gateway directly has no public IP to be translated to.
func (igw *InternetGateway) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	if !IsPublicIP(dest.IP) {
		return nil, &domain.BlockingError{
			ComponentID: igw.GetID(),
			Reason:      "internet gateway can only route to external (public) IP addresses",
		}
	}
	if igw.data.VPCID == "" {
		return nil, &domain.BlockingError{
			ComponentID: igw.GetID(),
			Reason:      "internet gateway is not attached to a VPC",
		}
	}
	return []domain.Component{NewIPTarget(&domain.IPTargetData{IP: dest.IP, Port: dest.Port}, igw.accountID)}, nil
}

func (igw *InternetGateway) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{}
}

func (igw *InternetGateway) GetID() string {
	return fmt.Sprintf("%s:%s", igw.accountID, igw.data.ID)
}

func (igw *InternetGateway) GetAccountID() string {
	return igw.accountID
}

func (igw *InternetGateway) GetComponentType() string {
	return "InternetGateway"
}

func (igw *InternetGateway) IsTerminal() bool {
	return true
}
