package domain

import "context"

// Component is one hop a packet can pass through: an instance, a filter such
// as a security group or network ACL, a route table, a gateway or a load
// balancer. IDs are unique across accounts.
type Component interface {
	// GetNextHops returns where traffic bound for destination goes next, or
	// a *BlockingError when this hop drops it.
	GetNextHops(destination RoutingTarget, analyzerCtx AnalyzerContext) ([]Component, error)
	GetRoutingTarget() RoutingTarget
	GetID() string
	GetAccountID() string
	GetComponentType() string
}

// TerminalComponent ends a path: traffic leaves the modelled network here.
type TerminalComponent interface {
	Component
	IsTerminal() bool
}

// FilterComponent admits or drops traffic without routing it.
type FilterComponent interface {
	Component
	IsFilter() bool
	EvaluateOutbound(dest RoutingTarget, analyzerCtx AnalyzerContext) error
	EvaluateInbound(source RoutingTarget, analyzerCtx AnalyzerContext) error
}

// DestinationResolver finds the instance or database behind a private
// address met on a local route.
type DestinationResolver interface {
	ResolveByIP(ctx context.Context, accountID, vpcID, ip string) (Component, error)
}

// ResolverProvider is implemented by account contexts that carry a resolver.
type ResolverProvider interface {
	GetResolver() DestinationResolver
}
