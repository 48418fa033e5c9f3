package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/eleven-am/perimeter/internal/components"
	"github.com/eleven-am/perimeter/internal/domain"
	resolverpkg "github.com/eleven-am/perimeter/internal/resolver"
)

func TestReachability(ctx context.Context, source, destination domain.Component, accountCtx domain.AccountContext) domain.ReachabilityResult {
	return TestReachabilityWithResolver(ctx, source, destination, accountCtx, nil)
}

// TestReachabilityWithResolver walks source to destination, then destination
// back to source. The return leg evaluates the destination's ingress rules
// against the source address on the destination's service port.
func TestReachabilityWithResolver(ctx context.Context, source, destination domain.Component, accountCtx domain.AccountContext, resolver domain.DestinationResolver) domain.ReachabilityResult {
	if resolver == nil && accountCtx != nil {
		resolver = resolverpkg.NewSimpleResolver(accountCtx)
	}

	srcTarget := source.GetRoutingTarget()
	destTarget := destination.GetRoutingTarget().Outbound()
	destTarget.SourceIsPrivate = components.IsPrivateIP(srcTarget.IP)

	returnTarget := srcTarget.Inbound()
	returnTarget.SourceIsPrivate = components.IsPrivateIP(destTarget.IP)
	if destTarget.Port != 0 {
		returnTarget.Port = destTarget.Port
	}
	if returnTarget.Protocol == "" {
		returnTarget.Protocol = destTarget.Protocol
	}

	withResolver := &accountContextWithResolver{
		AccountContext: accountCtx,
		resolver:       resolver,
	}

	forward := TraversePath(source, destTarget, destination.GetID(), NewAnalyzerContext(ctx, withResolver))
	back := TraversePath(destination, returnTarget, source.GetID(), NewAnalyzerContext(ctx, withResolver))

	return domain.CombineResults(forward, back)
}

// TestEgress walks one leg from source towards an address outside the VPC.
func TestEgress(ctx context.Context, source domain.Component, target domain.RoutingTarget, accountCtx domain.AccountContext) domain.PathResult {
	target = target.Outbound()
	target.SourceIsPrivate = components.IsPrivateIP(source.GetRoutingTarget().IP)
	withResolver := &accountContextWithResolver{
		AccountContext: accountCtx,
		resolver:       resolverpkg.NewSimpleResolver(accountCtx),
	}
	return TraversePath(source, target, "", NewAnalyzerContext(ctx, withResolver))
}

// TestForward walks one leg from source to a known destination component.
func TestForward(ctx context.Context, source, destination domain.Component, port int, accountCtx domain.AccountContext) domain.PathResult {
	target := destination.GetRoutingTarget().Outbound()
	if port != 0 {
		target.Port = port
	}
	target.SourceIsPrivate = components.IsPrivateIP(source.GetRoutingTarget().IP)
	withResolver := &accountContextWithResolver{
		AccountContext: accountCtx,
		resolver:       resolverpkg.NewSimpleResolver(accountCtx),
	}
	return TraversePath(source, target, destination.GetID(), NewAnalyzerContext(ctx, withResolver))
}

// TraversePath expands current depth first until a hop matches destination.
// A successful result lists the component IDs walked, source first, when
// analyzerCtx was built by NewAnalyzerContext.
func TraversePath(current domain.Component, destination domain.RoutingTarget, destinationID string, analyzerCtx domain.AnalyzerContext) domain.PathResult {
	if err := analyzerCtx.Context().Err(); err != nil {
		return domain.BlockedResult{BlockingComponent: current, Reason: err}
	}

	rec, _ := analyzerCtx.(pathRecorder)
	if rec != nil {
		if !rec.enter(current) {
			return domain.BlockedResult{BlockingComponent: current, Reason: fmt.Errorf("path longer than %d hops", maxHops)}
		}
	}
	blocked := func(r domain.PathResult) domain.PathResult {
		if rec != nil {
			rec.leave()
		}
		return r
	}
	succeeded := func(last domain.Component) domain.PathResult {
		if rec == nil {
			return domain.SuccessResult{}
		}
		return domain.SuccessResult{Hops: rec.hops(last)}
	}

	analyzerCtx.MarkVisited(current)

	nextHops, err := current.GetNextHops(destination, analyzerCtx)
	if err != nil {
		return blocked(domain.BlockedResult{BlockingComponent: current, Reason: err})
	}

	filteredHops := filterVisited(nextHops, analyzerCtx)

	if hop := destinationHop(filteredHops, destination, destinationID); hop != nil {
		return succeeded(hop)
	}

	if len(filteredHops) == 0 {
		if isTerminalComponent(current) && isExternalDestination(destination.IP) {
			return succeeded(nil)
		}
		if isFilterComponent(current) {
			return succeeded(nil)
		}
		return blocked(domain.BlockedResult{
			BlockingComponent: current,
			Reason:            errors.New("no route to destination"),
		})
	}

	var lastBlocked domain.PathResult
	for _, hop := range filteredHops {
		result := TraversePath(hop, destination, destinationID, analyzerCtx)
		if !result.IsBlocked() {
			return result
		}
		lastBlocked = result
	}
	return blocked(lastBlocked)
}

func isTerminalComponent(c domain.Component) bool {
	if tc, ok := c.(domain.TerminalComponent); ok {
		return tc.IsTerminal()
	}
	return false
}

func isFilterComponent(c domain.Component) bool {
	if fc, ok := c.(domain.FilterComponent); ok {
		return fc.IsFilter()
	}
	return false
}

func isExternalDestination(ip string) bool {
	return components.IsPublicIP(ip)
}

func filterVisited(hops []domain.Component, analyzerCtx domain.AnalyzerContext) []domain.Component {
	var filtered []domain.Component
	for _, hop := range hops {
		if !analyzerCtx.IsVisited(hop) {
			filtered = append(filtered, hop)
		}
	}
	return filtered
}

func IsDestinationReached(hops []domain.Component, destination domain.RoutingTarget, destinationID string) bool {
	return destinationHop(hops, destination, destinationID) != nil
}

func destinationHop(hops []domain.Component, destination domain.RoutingTarget, destinationID string) domain.Component {
	for _, hop := range hops {
		if destinationID != "" && hop.GetID() == destinationID {
			return hop
		}
		if targetMatches(hop.GetRoutingTarget(), destination) {
			return hop
		}
	}
	return nil
}

// targetMatches compares the fields destination sets. A hop that does not
// declare a protocol matches any.
func targetMatches(hopTarget, destination domain.RoutingTarget) bool {
	if destination.IP == "" && destination.Port == 0 && destination.Protocol == "" {
		return false
	}
	if destination.IP != "" && hopTarget.IP != destination.IP {
		return false
	}
	if destination.Port != 0 && hopTarget.Port != destination.Port {
		return false
	}
	if destination.Protocol != "" && hopTarget.Protocol != "" && hopTarget.Protocol != destination.Protocol {
		return false
	}
	return true
}

type accountContextWithResolver struct {
	domain.AccountContext
	resolver domain.DestinationResolver
}

func (a *accountContextWithResolver) GetResolver() domain.DestinationResolver {
	return a.resolver
}
