package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

// IPTarget is an address at the edge of the model: a client on the internet,
// a registered IP target, or a local address no recorded resource owns.
// Paths end here.
type IPTarget struct {
	data      *domain.IPTargetData
	accountID string
}

func NewIPTarget(data *domain.IPTargetData, accountID string) *IPTarget {
	return &IPTarget{data: data, accountID: accountID}
}

func (ip *IPTarget) GetNextHops(domain.RoutingTarget, domain.AnalyzerContext) ([]domain.Component, error) {
	return nil, nil
}

// GetRoutingTarget reports tcp whenever a port is known; the stack carries
// no other protocol.
func (ip *IPTarget) GetRoutingTarget() domain.RoutingTarget {
	target := domain.RoutingTarget{IP: ip.data.IP, Port: ip.data.Port}
	if ip.data.Port != 0 {
		target.Protocol = "tcp"
	}
	return target
}

func (ip *IPTarget) GetID() string {
	if ip.accountID == "" {
		return fmt.Sprintf("ip:%s:%d", ip.data.IP, ip.data.Port)
	}
	return fmt.Sprintf("%s:ip:%s:%d", ip.accountID, ip.data.IP, ip.data.Port)
}

func (ip *IPTarget) GetAccountID() string { return ip.accountID }

func (ip *IPTarget) IsTerminal() bool { return true }

func (ip *IPTarget) GetComponentType() string {
	if IsPublicIP(ip.data.IP) {
		return "InternetAddress"
	}
	return "IPTarget"
}
