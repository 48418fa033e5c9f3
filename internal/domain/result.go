package domain

import "fmt"

type PathResult interface {
	IsBlocked() bool
	GetBlockingReason() string
}

// SuccessResult holds the component IDs a successful leg walked, source
// first. Hops is empty when the walk did not record a path.
type SuccessResult struct {
	Hops []string
}

func (s SuccessResult) IsBlocked() bool           { return false }
func (s SuccessResult) GetBlockingReason() string { return "" }

type BlockedResult struct {
	BlockingComponent Component
	Reason            error
}

func (b BlockedResult) IsBlocked() bool { return true }
func (b BlockedResult) GetBlockingReason() string {
	return fmt.Sprintf("blocked at %s: %s", b.BlockingComponent.GetID(), b.Reason.Error())
}

type ReachabilityResult struct {
	SourceToDestination PathResult
	DestinationToSource PathResult
	OverallSuccess      bool
}

func CombineResults(srcToDest, destToSrc PathResult) ReachabilityResult {
	return ReachabilityResult{
		SourceToDestination: srcToDest,
		DestinationToSource: destToSrc,
		OverallSuccess:      !srcToDest.IsBlocked() && !destToSrc.IsBlocked(),
	}
}

// Path returns the hops of the forward leg, or nil when it was blocked.
func (r ReachabilityResult) Path() []string {
	if s, ok := r.SourceToDestination.(SuccessResult); ok {
		return s.Hops
	}
	return nil
}

// Reason returns the first blocking reason, forward leg first.
func (r ReachabilityResult) Reason() string {
	if r.SourceToDestination != nil && r.SourceToDestination.IsBlocked() {
		return r.SourceToDestination.GetBlockingReason()
	}
	if r.DestinationToSource != nil && r.DestinationToSource.IsBlocked() {
		return r.DestinationToSource.GetBlockingReason()
	}
	return ""
}
