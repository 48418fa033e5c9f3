package simulate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/eleven-am/perimeter/internal/domain"
)

// Delete mirrors the AWS client: missing resources are not an error, while a
// resource something else still uses fails with DependencyViolation.
func (c *Cloud) Delete(ctx context.Context, kind domain.ResourceKind, id string) error {
	if id == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("Delete"); err != nil {
		return err
	}
	switch kind {
	case domain.KindVPC:
		return c.deleteVPC(id)
	case domain.KindInternetGateway:
		delete(c.igws, id)
	case domain.KindSubnet:
		return c.deleteSubnet(id)
	case domain.KindElasticIP:
		if eip, ok := c.eips[id]; ok && eip.AssociationID != "" {
			return dependencyViolation(string(kind), id, "address is associated")
		}
		delete(c.eips, id)
	case domain.KindNATGateway:
		if nat, ok := c.nats[id]; ok {
			if eip, ok := c.eips[nat.AllocationID]; ok {
				eip.AssociationID = ""
			}
			delete(c.nats, id)
		}
	case domain.KindRouteTable:
		rt, ok := c.routeTables[id]
		if !ok {
			return nil
		}
		if rt.Main {
			return dependencyViolation(string(kind), id, "main route table")
		}
		delete(c.routeTables, id)
	case domain.KindSecurityGroup:
		return c.deleteSecurityGroup(id)
	case domain.KindRole:
		for _, name := range sortedKeys(c.profiles) {
			if slices.Contains(c.profiles[name].Roles, id) {
				return fmt.Errorf("delete %s %s: DeleteConflict: still in instance profile %s", kind, id, name)
			}
		}
		delete(c.roles, id)
	case domain.KindInstanceProfile:
		delete(c.profiles, id)
	case domain.KindInstance:
		if inst, ok := c.instances[id]; ok {
			inst.State = "terminated"
			c.deregisterEverywhere(id)
		}
	case domain.KindTargetGroup:
		for _, l := range c.listeners {
			if l.TargetGroupARN == id {
				return fmt.Errorf("delete %s %s: ResourceInUse: listener %s forwards to it", kind, id, l.ARN)
			}
		}
		delete(c.tgs, id)
		for key := range c.trackers {
			if strings.HasPrefix(key, id+"|") {
				delete(c.trackers, key)
			}
		}
	case domain.KindLoadBalancer:
		for arn, l := range c.listeners {
			if l.LoadBalancerARN == id {
				delete(c.listeners, arn)
			}
		}
		delete(c.lbs, id)
		delete(c.lbENIs, id)
	case domain.KindListener:
		delete(c.listeners, id)
	case domain.KindDBSubnetGroup:
		for _, db := range c.dbs {
			if db.SubnetGroup == id {
				return fmt.Errorf("delete %s %s: InvalidDBSubnetGroupStateFault: in use by %s", kind, id, db.ID)
			}
		}
		delete(c.dbGroups, id)
	default:
		return fmt.Errorf("delete %s %s: unsupported kind", kind, id)
	}
	return nil
}

func (c *Cloud) deleteVPC(id string) error {
	vpc, ok := c.vpcs[id]
	if !ok {
		return nil
	}
	for _, s := range sortedKeys(c.subnets) {
		if c.subnets[s].VPCID == id {
			return dependencyViolation("vpc", id, "subnet "+s)
		}
	}
	for _, g := range sortedKeys(c.sgs) {
		if c.sgs[g].VPCID == id {
			return dependencyViolation("vpc", id, "security group "+g)
		}
	}
	for _, g := range sortedKeys(c.igws) {
		if c.igws[g].VPCID == id {
			return dependencyViolation("vpc", id, "internet gateway "+g)
		}
	}
	for _, r := range sortedKeys(c.routeTables) {
		if rt := c.routeTables[r]; rt.VPCID == id && !rt.Main {
			return dependencyViolation("vpc", id, "route table "+r)
		}
	}
	delete(c.routeTables, vpc.MainRouteTableID)
	for n, nacl := range c.nacls {
		if nacl.VPCID == id {
			delete(c.nacls, n)
		}
	}
	delete(c.vpcs, id)
	return nil
}

func (c *Cloud) deleteSubnet(id string) error {
	if _, ok := c.subnets[id]; !ok {
		return nil
	}
	for _, i := range sortedKeys(c.instances) {
		if inst := c.instances[i]; inst.SubnetID == id && inst.State != "terminated" {
			return dependencyViolation("subnet", id, "instance "+i)
		}
	}
	for _, n := range sortedKeys(c.nats) {
		if c.nats[n].SubnetID == id {
			return dependencyViolation("subnet", id, "nat gateway "+n)
		}
	}
	for _, arn := range sortedKeys(c.lbs) {
		if slices.Contains(c.lbs[arn].SubnetIDs, id) {
			return dependencyViolation("subnet", id, "load balancer "+c.lbs[arn].Name)
		}
	}
	for _, name := range sortedKeys(c.dbGroups) {
		if slices.Contains(c.dbGroups[name].SubnetIDs, id) {
			return dependencyViolation("subnet", id, "db subnet group "+name)
		}
	}
	for _, rt := range c.routeTables {
		if slices.Contains(rt.Associations, id) {
			rt.Associations = slices.DeleteFunc(slices.Clone(rt.Associations), func(s string) bool { return s == id })
		}
	}
	delete(c.subnets, id)
	delete(c.hostSeq, id)
	return nil
}

func (c *Cloud) deleteSecurityGroup(id string) error {
	if _, ok := c.sgs[id]; !ok {
		return nil
	}
	for _, eni := range c.enis() {
		if slices.Contains(eni.SecurityGroups, id) {
			return dependencyViolation("security group", id, "attached to "+eni.ID)
		}
	}
	for _, other := range sortedKeys(c.sgs) {
		if other == id {
			continue
		}
		for _, rule := range c.sgs[other].InboundRules {
			if slices.Contains(rule.ReferencedSecurityGroups, id) {
				return dependencyViolation("security group", id, "referenced by "+other)
			}
		}
	}
	delete(c.sgs, id)
	return nil
}
