package simulate

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/eleven-am/perimeter/internal/domain"
)

func localRoute(cidr string) domain.Route {
	bits := 0
	if p, err := netip.ParsePrefix(cidr); err == nil {
		bits = p.Bits()
	}
	return domain.Route{DestinationCIDR: cidr, PrefixLength: bits, TargetType: "local", TargetID: "local"}
}

func (c *Cloud) GetVPC(ctx context.Context, vpcID string) (*domain.VPCData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vpc, ok := c.vpcs[vpcID]
	if !ok {
		return nil, notFound("vpc", vpcID)
	}
	out := *vpc
	out.Tags = copyTags(vpc.Tags)
	return &out, nil
}

func (c *Cloud) FindVPC(ctx context.Context, id domain.Ident) (*domain.VPCData, error) {
	c.mu.Lock()
	var found string
	for _, k := range sortedKeys(c.vpcs) {
		if matchesIdent(c.vpcs[k].Tags, id) {
			found = k
			break
		}
	}
	c.mu.Unlock()
	if found == "" {
		return nil, nil
	}
	return c.GetVPC(ctx, found)
}

func (c *Cloud) CreateVPC(ctx context.Context, id domain.Ident, cidr string) (*domain.VPCData, error) {
	c.mu.Lock()
	if err := c.mutate("CreateVPC"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil || prefix.Bits() < 16 || prefix.Bits() > 28 {
		c.mu.Unlock()
		return nil, fmt.Errorf("create vpc %s: InvalidVpc.Range: %s", id.PhysicalName(), cidr)
	}

	vpcID := c.nextID("vpc")
	naclID := c.nextID("acl")
	rtID := c.nextID("rtb")

	c.nacls[naclID] = &domain.NACLData{
		ID:    naclID,
		VPCID: vpcID,
		InboundRules: []domain.NACLRule{
			{RuleNumber: 100, Protocol: "-1", CIDRBlock: "0.0.0.0/0", Action: "allow"},
			{RuleNumber: 32767, Protocol: "-1", CIDRBlock: "0.0.0.0/0", Action: "deny"},
		},
		OutboundRules: []domain.NACLRule{
			{RuleNumber: 100, Protocol: "-1", CIDRBlock: "0.0.0.0/0", Action: "allow"},
			{RuleNumber: 32767, Protocol: "-1", CIDRBlock: "0.0.0.0/0", Action: "deny"},
		},
	}
	c.routeTables[rtID] = &domain.RouteTableData{
		ID:     rtID,
		VPCID:  vpcID,
		Main:   true,
		Routes: []domain.Route{localRoute(cidr)},
	}
	c.vpcs[vpcID] = &domain.VPCData{
		ID:               vpcID,
		CIDRBlock:        prefix.Masked().String(),
		MainRouteTableID: rtID,
		EnableDNSSupport: true,
		State:            "available",
		Tags:             id.Tags(),
	}
	c.mu.Unlock()
	return c.GetVPC(ctx, vpcID)
}

func (c *Cloud) SetVPCDNS(ctx context.Context, vpcID string, support, hostnames bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetVPCDNS"); err != nil {
		return err
	}
	vpc, ok := c.vpcs[vpcID]
	if !ok {
		return notFound("vpc", vpcID)
	}
	if hostnames && !support {
		return fmt.Errorf("modify vpc %s: DNS hostnames require DNS support", vpcID)
	}
	vpc.EnableDNSSupport = support
	vpc.EnableDNSHostnames = hostnames
	return nil
}

func (c *Cloud) defaultNACL(vpcID string) string {
	for _, k := range sortedKeys(c.nacls) {
		if c.nacls[k].VPCID == vpcID {
			return k
		}
	}
	return ""
}

func (c *Cloud) GetNACL(ctx context.Context, naclID string) (*domain.NACLData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nacl, ok := c.nacls[naclID]
	if !ok {
		return nil, notFound("network acl", naclID)
	}
	out := *nacl
	return &out, nil
}

func (c *Cloud) GetInternetGateway(ctx context.Context, igwID string) (*domain.InternetGatewayData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	igw, ok := c.igws[igwID]
	if !ok {
		return nil, notFound("internet gateway", igwID)
	}
	out := *igw
	out.Tags = copyTags(igw.Tags)
	return &out, nil
}

func (c *Cloud) FindInternetGateway(ctx context.Context, id domain.Ident) (*domain.InternetGatewayData, error) {
	c.mu.Lock()
	var found string
	for _, k := range sortedKeys(c.igws) {
		if matchesIdent(c.igws[k].Tags, id) {
			found = k
			break
		}
	}
	c.mu.Unlock()
	if found == "" {
		return nil, nil
	}
	return c.GetInternetGateway(ctx, found)
}

func (c *Cloud) CreateInternetGateway(ctx context.Context, id domain.Ident) (*domain.InternetGatewayData, error) {
	c.mu.Lock()
	if err := c.mutate("CreateInternetGateway"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	igwID := c.nextID("igw")
	c.igws[igwID] = &domain.InternetGatewayData{ID: igwID, Tags: id.Tags()}
	c.mu.Unlock()
	return c.GetInternetGateway(ctx, igwID)
}

func (c *Cloud) AttachInternetGateway(ctx context.Context, igwID, vpcID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("AttachInternetGateway"); err != nil {
		return err
	}
	igw, ok := c.igws[igwID]
	if !ok {
		return notFound("internet gateway", igwID)
	}
	if _, ok := c.vpcs[vpcID]; !ok {
		return notFound("vpc", vpcID)
	}
	if igw.VPCID != "" && igw.VPCID != vpcID {
		return fmt.Errorf("attach internet gateway %s: Resource.AlreadyAssociated: attached to %s", igwID, igw.VPCID)
	}
	for _, other := range c.igws {
		if other.ID != igwID && other.VPCID == vpcID {
			return fmt.Errorf("attach internet gateway %s: vpc %s already has gateway %s", igwID, vpcID, other.ID)
		}
	}
	igw.VPCID = vpcID
	return nil
}

// routeTableFor returns the explicitly associated table, else the VPC's main table.
func (c *Cloud) routeTableFor(subnet *domain.SubnetData) string {
	for _, k := range sortedKeys(c.routeTables) {
		if slices.Contains(c.routeTables[k].Associations, subnet.ID) {
			return k
		}
	}
	if vpc, ok := c.vpcs[subnet.VPCID]; ok {
		return vpc.MainRouteTableID
	}
	return ""
}

func (c *Cloud) GetSubnet(ctx context.Context, subnetID string) (*domain.SubnetData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subnet, ok := c.subnets[subnetID]
	if !ok {
		return nil, notFound("subnet", subnetID)
	}
	out := *subnet
	out.Tags = copyTags(subnet.Tags)
	out.RouteTableID = c.routeTableFor(subnet)
	return &out, nil
}

func (c *Cloud) FindSubnet(ctx context.Context, id domain.Ident) (*domain.SubnetData, error) {
	c.mu.Lock()
	var found string
	for _, k := range sortedKeys(c.subnets) {
		if matchesIdent(c.subnets[k].Tags, id) {
			found = k
			break
		}
	}
	c.mu.Unlock()
	if found == "" {
		return nil, nil
	}
	return c.GetSubnet(ctx, found)
}

func (c *Cloud) CreateSubnet(ctx context.Context, id domain.Ident, in domain.SubnetInput) (*domain.SubnetData, error) {
	c.mu.Lock()
	if err := c.mutate("CreateSubnet"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	vpc, ok := c.vpcs[in.VPCID]
	if !ok {
		c.mu.Unlock()
		return nil, notFound("vpc", in.VPCID)
	}
	prefix, err := netip.ParsePrefix(in.CIDRBlock)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("create subnet %s: InvalidSubnet.Range: %s", id.PhysicalName(), in.CIDRBlock)
	}
	vpcPrefix := netip.MustParsePrefix(vpc.CIDRBlock)
	if !vpcPrefix.Contains(prefix.Addr()) || prefix.Bits() < vpcPrefix.Bits() {
		c.mu.Unlock()
		return nil, fmt.Errorf("create subnet %s: InvalidSubnet.Range: %s outside %s", id.PhysicalName(), in.CIDRBlock, vpc.CIDRBlock)
	}
	for _, other := range c.subnets {
		if other.VPCID == in.VPCID && netip.MustParsePrefix(other.CIDRBlock).Overlaps(prefix) {
			c.mu.Unlock()
			return nil, fmt.Errorf("create subnet %s: InvalidSubnet.Conflict: %s overlaps %s", id.PhysicalName(), in.CIDRBlock, other.CIDRBlock)
		}
	}
	if !strings.HasPrefix(in.AvailabilityZone, c.region) {
		c.mu.Unlock()
		return nil, fmt.Errorf("create subnet %s: InvalidParameterValue: zone %s is not in %s", id.PhysicalName(), in.AvailabilityZone, c.region)
	}

	subnetID := c.nextID("subnet")
	c.subnets[subnetID] = &domain.SubnetData{
		ID:                  subnetID,
		VPCID:               in.VPCID,
		CIDRBlock:           prefix.Masked().String(),
		AvailabilityZone:    in.AvailabilityZone,
		MapPublicIPOnLaunch: in.MapPublicIP,
		NaclID:              c.defaultNACL(in.VPCID),
		Tags:                id.Tags(),
	}
	c.mu.Unlock()
	return c.GetSubnet(ctx, subnetID)
}

func (c *Cloud) SetSubnetPublicIP(ctx context.Context, subnetID string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetSubnetPublicIP"); err != nil {
		return err
	}
	subnet, ok := c.subnets[subnetID]
	if !ok {
		return notFound("subnet", subnetID)
	}
	subnet.MapPublicIPOnLaunch = enabled
	return nil
}

func (c *Cloud) FindElasticIP(ctx context.Context, id domain.Ident) (*domain.ElasticIPData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range sortedKeys(c.eips) {
		if matchesIdent(c.eips[k].Tags, id) {
			out := *c.eips[k]
			out.Tags = copyTags(c.eips[k].Tags)
			return &out, nil
		}
	}
	return nil, nil
}

func (c *Cloud) AllocateElasticIP(ctx context.Context, id domain.Ident) (*domain.ElasticIPData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("AllocateElasticIP"); err != nil {
		return nil, err
	}
	allocID := c.nextID("eipalloc")
	n := c.seq["eipalloc"]
	eip := &domain.ElasticIPData{
		AllocationID: allocID,
		PublicIP:     fmt.Sprintf("54.%d.%d.%d", 200+n/65536%50, n/256%256, n%256),
		Tags:         id.Tags(),
	}
	c.eips[allocID] = eip
	out := *eip
	out.Tags = copyTags(eip.Tags)
	return &out, nil
}

func (c *Cloud) GetNATGateway(ctx context.Context, natID string) (*domain.NATGatewayData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nat, ok := c.nats[natID]
	if !ok {
		return nil, notFound("nat gateway", natID)
	}
	out := *nat
	out.Tags = copyTags(nat.Tags)
	return &out, nil
}

func (c *Cloud) FindNATGateway(ctx context.Context, id domain.Ident) (*domain.NATGatewayData, error) {
	c.mu.Lock()
	var found string
	for _, k := range sortedKeys(c.nats) {
		nat := c.nats[k]
		if matchesIdent(nat.Tags, id) && (nat.State == "available" || nat.State == "pending") {
			found = k
			break
		}
	}
	c.mu.Unlock()
	if found == "" {
		return nil, nil
	}
	return c.GetNATGateway(ctx, found)
}

func (c *Cloud) CreateNATGateway(ctx context.Context, id domain.Ident, subnetID, allocationID string) (*domain.NATGatewayData, error) {
	c.mu.Lock()
	if err := c.mutate("CreateNATGateway"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if _, ok := c.subnets[subnetID]; !ok {
		c.mu.Unlock()
		return nil, notFound("subnet", subnetID)
	}
	eip, ok := c.eips[allocationID]
	if !ok {
		c.mu.Unlock()
		return nil, notFound("elastic ip", allocationID)
	}
	if eip.AssociationID != "" {
		c.mu.Unlock()
		return nil, fmt.Errorf("create nat gateway %s: Resource.AlreadyAssociated: %s", id.PhysicalName(), allocationID)
	}
	natID := c.nextID("nat")
	eip.AssociationID = c.nextID("eipassoc")
	c.nats[natID] = &domain.NATGatewayData{
		ID:           natID,
		SubnetID:     subnetID,
		PublicIP:     eip.PublicIP,
		AllocationID: allocationID,
		State:        "available",
		Tags:         id.Tags(),
	}
	c.mu.Unlock()
	return c.GetNATGateway(ctx, natID)
}

func (c *Cloud) GetRouteTable(ctx context.Context, rtID string) (*domain.RouteTableData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.routeTables[rtID]
	if !ok {
		return nil, notFound("route table", rtID)
	}
	out := *rt
	out.Tags = copyTags(rt.Tags)
	return &out, nil
}

func (c *Cloud) FindRouteTable(ctx context.Context, id domain.Ident) (*domain.RouteTableData, error) {
	c.mu.Lock()
	var found string
	for _, k := range sortedKeys(c.routeTables) {
		if matchesIdent(c.routeTables[k].Tags, id) {
			found = k
			break
		}
	}
	c.mu.Unlock()
	if found == "" {
		return nil, nil
	}
	return c.GetRouteTable(ctx, found)
}

func (c *Cloud) CreateRouteTable(ctx context.Context, id domain.Ident, vpcID string) (*domain.RouteTableData, error) {
	c.mu.Lock()
	if err := c.mutate("CreateRouteTable"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	vpc, ok := c.vpcs[vpcID]
	if !ok {
		c.mu.Unlock()
		return nil, notFound("vpc", vpcID)
	}
	rtID := c.nextID("rtb")
	c.routeTables[rtID] = &domain.RouteTableData{
		ID:     rtID,
		VPCID:  vpcID,
		Routes: []domain.Route{localRoute(vpc.CIDRBlock)},
		Tags:   id.Tags(),
	}
	c.mu.Unlock()
	return c.GetRouteTable(ctx, rtID)
}

func (c *Cloud) SetDefaultRoute(ctx context.Context, rtID, targetType, targetID string, replace bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetDefaultRoute"); err != nil {
		return err
	}
	rt, ok := c.routeTables[rtID]
	if !ok {
		return notFound("route table", rtID)
	}
	switch targetType {
	case "internet-gateway":
		igw, ok := c.igws[targetID]
		if !ok {
			return notFound("internet gateway", targetID)
		}
		if igw.VPCID != rt.VPCID {
			return fmt.Errorf("create route in %s: InvalidParameterValue: gateway %s not attached to %s", rtID, targetID, rt.VPCID)
		}
	case "nat-gateway":
		if _, ok := c.nats[targetID]; !ok {
			return notFound("nat gateway", targetID)
		}
	default:
		return fmt.Errorf("create route in %s: unsupported target type %s", rtID, targetType)
	}

	routes := slices.Clone(rt.Routes)
	idx := slices.IndexFunc(routes, func(r domain.Route) bool { return r.DestinationCIDR == "0.0.0.0/0" })
	switch {
	case idx >= 0 && !replace:
		return fmt.Errorf("create route in %s: RouteAlreadyExists", rtID)
	case idx < 0 && replace:
		return fmt.Errorf("replace route in %s: InvalidRoute.NotFound", rtID)
	}
	route := domain.Route{DestinationCIDR: "0.0.0.0/0", PrefixLength: 0, TargetType: targetType, TargetID: targetID}
	if idx >= 0 {
		routes[idx] = route
	} else {
		routes = append(routes, route)
	}
	rt.Routes = routes
	return nil
}

func (c *Cloud) AssociateRouteTable(ctx context.Context, rtID, subnetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("AssociateRouteTable"); err != nil {
		return err
	}
	rt, ok := c.routeTables[rtID]
	if !ok {
		return notFound("route table", rtID)
	}
	subnet, ok := c.subnets[subnetID]
	if !ok {
		return notFound("subnet", subnetID)
	}
	if subnet.VPCID != rt.VPCID {
		return fmt.Errorf("associate route table %s: subnet %s is in another vpc", rtID, subnetID)
	}
	for _, other := range c.routeTables {
		if other.ID != rtID && slices.Contains(other.Associations, subnetID) {
			other.Associations = slices.DeleteFunc(slices.Clone(other.Associations), func(s string) bool { return s == subnetID })
		}
	}
	if !slices.Contains(rt.Associations, subnetID) {
		rt.Associations = append(slices.Clone(rt.Associations), subnetID)
	}
	return nil
}
