package components

import (
	"fmt"

	"github.com/eleven-am/perimeter/internal/domain"
)

type NACL struct {
	data      *domain.NACLData
	accountID string
	next      domain.Component
}

func NewNACL(data *domain.NACLData, accountID string) *NACL {
	return &NACL{
		data:      data,
		accountID: accountID,
	}
}

func NewNACLWithNext(data *domain.NACLData, accountID string, next domain.Component) *NACL {
	return &NACL{
		data:      data,
		accountID: accountID,
		next:      next,
	}
}

func (n *NACL) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	var err error
	if dest.Direction == domain.DirectionInbound {
		err = n.EvaluateInbound(dest, analyzerCtx)
	} else {
		err = n.EvaluateOutbound(dest, analyzerCtx)
	}
	if err != nil {
		return nil, err
	}
	if n.next != nil {
		return []domain.Component{n.next}, nil
	}
	return []domain.Component{}, nil
}

func (n *NACL) IsFilter() bool {
	return true
}

func (n *NACL) EvaluateOutbound(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) error {
	return n.evaluate(n.data.OutboundRules, "outbound", dest)
}

func (n *NACL) EvaluateInbound(source domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) error {
	return n.evaluate(n.data.InboundRules, "inbound", source)
}

// evaluate applies rules lowest number first; the first match decides.
func (n *NACL) evaluate(rules []domain.NACLRule, direction string, target domain.RoutingTarget) error {
	for _, rule := range SortNACLRulesByNumber(rules) {
		if !n.ruleMatches(rule, target) {
			continue
		}
		if rule.Action == "allow" {
			return nil
		}
		return &domain.BlockingError{
			ComponentID: n.GetID(),
			Reason:      fmt.Sprintf("NACL %s rule %d denies %s:%d/%s", direction, rule.RuleNumber, target.IP, target.Port, target.Protocol),
		}
	}
	return &domain.BlockingError{
		ComponentID: n.GetID(),
		Reason:      fmt.Sprintf("no %s NACL rule matches, implicit deny", direction),
	}
}

func (n *NACL) ruleMatches(rule domain.NACLRule, target domain.RoutingTarget) bool {
	if !protocolMatches(rule.Protocol, target.Protocol) {
		return false
	}
	if !portInRange(target.Port, rule.FromPort, rule.ToPort) {
		return false
	}
	return rule.CIDRBlock != "" && IPMatchesCIDR(target.IP, rule.CIDRBlock)
}

func (n *NACL) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{}
}

func (n *NACL) GetID() string {
	return fmt.Sprintf("%s:%s", n.accountID, n.data.ID)
}

func (n *NACL) GetAccountID() string {
	return n.accountID
}

func (n *NACL) GetComponentType() string {
	return "NACL"
}
