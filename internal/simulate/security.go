package simulate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/eleven-am/perimeter/internal/domain"
)

func (c *Cloud) GetSecurityGroup(ctx context.Context, sgID string) (*domain.SecurityGroupData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sg, ok := c.sgs[sgID]
	if !ok {
		return nil, notFound("security group", sgID)
	}
	out := *sg
	out.Tags = copyTags(sg.Tags)
	return &out, nil
}

func (c *Cloud) FindSecurityGroup(ctx context.Context, id domain.Ident) (*domain.SecurityGroupData, error) {
	c.mu.Lock()
	var found string
	for _, k := range sortedKeys(c.sgs) {
		if matchesIdent(c.sgs[k].Tags, id) {
			found = k
			break
		}
	}
	c.mu.Unlock()
	if found == "" {
		return nil, nil
	}
	return c.GetSecurityGroup(ctx, found)
}

func (c *Cloud) CreateSecurityGroup(ctx context.Context, id domain.Ident, vpcID, description string) (*domain.SecurityGroupData, error) {
	c.mu.Lock()
	if err := c.mutate("CreateSecurityGroup"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if _, ok := c.vpcs[vpcID]; !ok {
		c.mu.Unlock()
		return nil, notFound("vpc", vpcID)
	}
	for _, sg := range c.sgs {
		if sg.VPCID == vpcID && sg.Name == id.PhysicalName() {
			c.mu.Unlock()
			return nil, fmt.Errorf("create security group %s: InvalidGroup.Duplicate", id.PhysicalName())
		}
	}
	sgID := c.nextID("sg")
	c.sgs[sgID] = &domain.SecurityGroupData{
		ID:          sgID,
		Name:        id.PhysicalName(),
		Description: description,
		VPCID:       vpcID,
		OutboundRules: []domain.SecurityGroupRule{
			{Protocol: "-1", CIDRBlocks: []string{"0.0.0.0/0"}},
		},
		Tags: id.Tags(),
	}
	c.mu.Unlock()
	return c.GetSecurityGroup(ctx, sgID)
}

// AuthorizeIngress stores rules as single-source atoms; re-authorizing an
// existing atom is a no-op, as with the real client.
func (c *Cloud) AuthorizeIngress(ctx context.Context, sgID string, rules []domain.SecurityGroupRule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("AuthorizeIngress"); err != nil {
		return err
	}
	sg, ok := c.sgs[sgID]
	if !ok {
		return notFound("security group", sgID)
	}
	current := slices.Clone(sg.InboundRules)
	have := make(map[string]bool)
	for _, r := range domain.AtomizeRules(current) {
		have[r.Key()] = true
	}
	for _, atom := range domain.AtomizeRules(rules) {
		for _, ref := range atom.ReferencedSecurityGroups {
			if _, ok := c.sgs[ref]; !ok {
				return fmt.Errorf("authorize ingress on %s: InvalidGroup.NotFound: %s", sgID, ref)
			}
		}
		if have[atom.Key()] {
			continue
		}
		have[atom.Key()] = true
		current = append(current, atom)
	}
	sg.InboundRules = current
	return nil
}

func (c *Cloud) RevokeIngress(ctx context.Context, sgID string, rules []domain.SecurityGroupRule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("RevokeIngress"); err != nil {
		return err
	}
	sg, ok := c.sgs[sgID]
	if !ok {
		return notFound("security group", sgID)
	}
	drop := make(map[string]bool)
	for _, atom := range domain.AtomizeRules(rules) {
		drop[atom.Key()] = true
	}
	var kept []domain.SecurityGroupRule
	for _, atom := range domain.AtomizeRules(sg.InboundRules) {
		if !drop[atom.Key()] {
			kept = append(kept, atom)
		}
	}
	sg.InboundRules = kept
	return nil
}

// enis lists every simulated interface. Must be called with c.mu held.
func (c *Cloud) enis() []domain.ENIData {
	var out []domain.ENIData
	for _, id := range sortedKeys(c.instances) {
		inst := c.instances[id]
		if inst.State != "running" {
			continue
		}
		out = append(out, domain.ENIData{
			ID:             "eni-" + strings.TrimPrefix(inst.ID, "i-"),
			PrivateIP:      inst.PrivateIP,
			PrivateIPs:     []string{inst.PrivateIP},
			SubnetID:       inst.SubnetID,
			SecurityGroups: slices.Clone(inst.SecurityGroups),
		})
	}
	for _, id := range sortedKeys(c.dbs) {
		db := c.dbs[id]
		if db.PrivateIP == "" {
			continue
		}
		subnet := ""
		for _, s := range db.SubnetIDs {
			if c.subnets[s] != nil && ipIn(db.PrivateIP, c.subnets[s].CIDRBlock) {
				subnet = s
			}
		}
		out = append(out, domain.ENIData{
			ID:             "eni-rds-" + db.ID,
			PrivateIP:      db.PrivateIP,
			PrivateIPs:     []string{db.PrivateIP},
			SubnetID:       subnet,
			SecurityGroups: slices.Clone(db.SecurityGroups),
		})
	}
	for _, arn := range sortedKeys(c.lbENIs) {
		out = append(out, c.lbENIs[arn]...)
	}
	return out
}

func (c *Cloud) GetNetworkInterface(ctx context.Context, eniID string) (*domain.ENIData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, eni := range c.enis() {
		if eni.ID == eniID {
			out := eni
			return &out, nil
		}
	}
	return nil, notFound("network interface", eniID)
}

func (c *Cloud) GetENIsBySecurityGroup(ctx context.Context, sgID string) ([]domain.ENIData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.ENIData
	for _, eni := range c.enis() {
		if slices.Contains(eni.SecurityGroups, sgID) {
			out = append(out, eni)
		}
	}
	return out, nil
}
