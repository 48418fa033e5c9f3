package domain

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// RoutingTarget is the far end of one traversal leg.
type RoutingTarget struct {
	IP       string
	Port     int
	Protocol string
	// Direction is DirectionInbound or DirectionOutbound, seen from the filter.
	Direction string
	// SourceIsPrivate reports whether the leg originates from a private address.
	SourceIsPrivate bool
}

// Inbound returns a copy of t evaluated on the receiving side.
func (t RoutingTarget) Inbound() RoutingTarget {
	t.Direction = DirectionInbound
	return t
}

// Outbound returns a copy of t evaluated on the sending side.
func (t RoutingTarget) Outbound() RoutingTarget {
	t.Direction = DirectionOutbound
	return t
}
