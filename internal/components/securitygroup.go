package components

import (
	"fmt"
	"strings"

	"github.com/eleven-am/perimeter/internal/domain"
)

type SecurityGroup struct {
	data      *domain.SecurityGroupData
	accountID string
	next      domain.Component
}

func NewSecurityGroup(data *domain.SecurityGroupData, accountID string) *SecurityGroup {
	return &SecurityGroup{
		data:      data,
		accountID: accountID,
	}
}

func NewSecurityGroupWithNext(data *domain.SecurityGroupData, accountID string, next domain.Component) *SecurityGroup {
	return &SecurityGroup{
		data:      data,
		accountID: accountID,
		next:      next,
	}
}

func (sg *SecurityGroup) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	var err error
	if dest.Direction == domain.DirectionInbound {
		err = sg.EvaluateInbound(dest, analyzerCtx)
	} else {
		err = sg.EvaluateOutbound(dest, analyzerCtx)
	}
	if err != nil {
		return nil, err
	}
	if sg.next != nil {
		return []domain.Component{sg.next}, nil
	}
	return []domain.Component{}, nil
}

func (sg *SecurityGroup) IsFilter() bool {
	return true
}

func (sg *SecurityGroup) EvaluateOutbound(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) error {
	if sg.allows(sg.data.OutboundRules, dest, analyzerCtx) {
		return nil
	}
	return &domain.BlockingError{
		ComponentID: sg.GetID(),
		Reason:      fmt.Sprintf("no outbound rule allows %s:%d/%s", dest.IP, dest.Port, dest.Protocol),
	}
}

// EvaluateInbound checks the peer address in source against the ingress rules.
// source.Port is the port being connected to on this side.
func (sg *SecurityGroup) EvaluateInbound(source domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) error {
	if sg.allows(sg.data.InboundRules, source, analyzerCtx) {
		return nil
	}
	return &domain.BlockingError{
		ComponentID: sg.GetID(),
		Reason:      fmt.Sprintf("no inbound rule allows %s to port %d/%s", source.IP, source.Port, source.Protocol),
	}
}

func (sg *SecurityGroup) allows(rules []domain.SecurityGroupRule, target domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) bool {
	for _, rule := range rules {
		if sg.ruleAllows(rule, target, analyzerCtx) {
			return true
		}
	}
	return false
}

func (sg *SecurityGroup) ruleAllows(rule domain.SecurityGroupRule, target domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) bool {
	if !protocolMatches(rule.Protocol, target.Protocol) {
		return false
	}
	if !portInRange(target.Port, rule.FromPort, rule.ToPort) {
		return false
	}
	for _, cidr := range rule.CIDRBlocks {
		if IPMatchesCIDR(target.IP, cidr) {
			return true
		}
	}
	for _, cidr := range rule.IPv6CIDRBlocks {
		if IPMatchesCIDR(target.IP, cidr) {
			return true
		}
	}
	for _, refSGID := range rule.ReferencedSecurityGroups {
		if sg.ipBelongsToSecurityGroup(target.IP, refSGID, analyzerCtx) {
			return true
		}
	}
	return false
}

func (sg *SecurityGroup) ipBelongsToSecurityGroup(ip, sgID string, analyzerCtx domain.AnalyzerContext) bool {
	if analyzerCtx == nil || ip == "" {
		return false
	}
	client, err := analyzerCtx.GetAccountContext().GetClient(sg.accountID)
	if err != nil {
		return false
	}
	enis, err := client.GetENIsBySecurityGroup(analyzerCtx.Context(), sgID)
	if err != nil {
		return false
	}
	for _, eni := range enis {
		if eni.PrivateIP == ip {
			return true
		}
		for _, privateIP := range eni.PrivateIPs {
			if privateIP == ip {
				return true
			}
		}
	}
	return false
}

func (sg *SecurityGroup) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{}
}

func (sg *SecurityGroup) GetID() string {
	return fmt.Sprintf("%s:%s", sg.accountID, sg.data.ID)
}

func (sg *SecurityGroup) GetAccountID() string {
	return sg.accountID
}

func (sg *SecurityGroup) GetComponentType() string {
	return "SecurityGroup"
}

// SecurityGroupSet is the combined filter of every group attached to one
// interface. Traffic passes when any member allows it.
type SecurityGroupSet struct {
	groups    []*SecurityGroup
	accountID string
	next      domain.Component
}

func NewSecurityGroupSet(data []*domain.SecurityGroupData, accountID string, next domain.Component) *SecurityGroupSet {
	set := &SecurityGroupSet{accountID: accountID, next: next}
	for _, d := range data {
		set.groups = append(set.groups, NewSecurityGroup(d, accountID))
	}
	return set
}

func (s *SecurityGroupSet) GetNextHops(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) ([]domain.Component, error) {
	var err error
	if dest.Direction == domain.DirectionInbound {
		err = s.EvaluateInbound(dest, analyzerCtx)
	} else {
		err = s.EvaluateOutbound(dest, analyzerCtx)
	}
	if err != nil {
		return nil, err
	}
	if s.next != nil {
		return []domain.Component{s.next}, nil
	}
	return []domain.Component{}, nil
}

func (s *SecurityGroupSet) IsFilter() bool {
	return true
}

func (s *SecurityGroupSet) EvaluateOutbound(dest domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) error {
	for _, g := range s.groups {
		if g.EvaluateOutbound(dest, analyzerCtx) == nil {
			return nil
		}
	}
	return &domain.BlockingError{
		ComponentID: s.GetID(),
		Reason:      fmt.Sprintf("no attached security group allows outbound %s:%d/%s", dest.IP, dest.Port, dest.Protocol),
	}
}

func (s *SecurityGroupSet) EvaluateInbound(source domain.RoutingTarget, analyzerCtx domain.AnalyzerContext) error {
	for _, g := range s.groups {
		if g.EvaluateInbound(source, analyzerCtx) == nil {
			return nil
		}
	}
	return &domain.BlockingError{
		ComponentID: s.GetID(),
		Reason:      fmt.Sprintf("no attached security group allows %s to port %d/%s", source.IP, source.Port, source.Protocol),
	}
}

func (s *SecurityGroupSet) GetRoutingTarget() domain.RoutingTarget {
	return domain.RoutingTarget{}
}

func (s *SecurityGroupSet) GetID() string {
	ids := make([]string, 0, len(s.groups))
	for _, g := range s.groups {
		ids = append(ids, g.data.ID)
	}
	return fmt.Sprintf("%s:sgset:%s", s.accountID, strings.Join(ids, "+"))
}

func (s *SecurityGroupSet) GetAccountID() string {
	return s.accountID
}

func (s *SecurityGroupSet) GetComponentType() string {
	return "SecurityGroupSet"
}
