package simulate

import (
	"context"
	"fmt"
	"slices"

	"github.com/eleven-am/perimeter/internal/domain"
)

func cloneDB(db *domain.RDSInstanceData) *domain.RDSInstanceData {
	out := *db
	out.SecurityGroups = slices.Clone(db.SecurityGroups)
	out.SubnetIDs = slices.Clone(db.SubnetIDs)
	return &out
}

func (c *Cloud) GetRDSInstance(ctx context.Context, dbInstanceID string) (*domain.RDSInstanceData, error) {
	db, err := c.FindDBInstance(ctx, dbInstanceID)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, notFound("rds instance", dbInstanceID)
	}
	return db, nil
}

func (c *Cloud) FindDBInstance(ctx context.Context, identifier string) (*domain.RDSInstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.dbs[identifier]
	if !ok {
		return nil, nil
	}
	return cloneDB(db), nil
}

func (c *Cloud) GetRDSInstanceByPrivateIP(ctx context.Context, ip, vpcID string) (*domain.RDSInstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range sortedKeys(c.dbs) {
		db := c.dbs[id]
		if db.PrivateIP != ip {
			continue
		}
		if group, ok := c.dbGroups[db.SubnetGroup]; ok && vpcID != "" && group.VPCID != vpcID {
			continue
		}
		return cloneDB(db), nil
	}
	return nil, nil
}

func cloneGroup(g *domain.DBSubnetGroupData) *domain.DBSubnetGroupData {
	out := *g
	out.SubnetIDs = slices.Clone(g.SubnetIDs)
	out.AvailabilityZones = slices.Clone(g.AvailabilityZones)
	return &out
}

func (c *Cloud) GetDBSubnetGroup(ctx context.Context, name string) (*domain.DBSubnetGroupData, error) {
	group, err := c.FindDBSubnetGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, notFound("db subnet group", name)
	}
	return group, nil
}

func (c *Cloud) FindDBSubnetGroup(ctx context.Context, name string) (*domain.DBSubnetGroupData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	group, ok := c.dbGroups[name]
	if !ok {
		return nil, nil
	}
	return cloneGroup(group), nil
}

// groupPlacement validates DB subnet group membership: one VPC, at least two
// zones. Must be called with c.mu held.
func (c *Cloud) groupPlacement(name string, subnetIDs []string) (string, []string, error) {
	var vpcID string
	var zones []string
	for _, id := range subnetIDs {
		subnet, ok := c.subnets[id]
		if !ok {
			return "", nil, notFound("subnet", id)
		}
		if vpcID != "" && subnet.VPCID != vpcID {
			return "", nil, fmt.Errorf("db subnet group %s: InvalidSubnet: subnets span vpcs", name)
		}
		vpcID = subnet.VPCID
		if !slices.Contains(zones, subnet.AvailabilityZone) {
			zones = append(zones, subnet.AvailabilityZone)
		}
	}
	if len(zones) < 2 {
		return "", nil, fmt.Errorf("db subnet group %s: DBSubnetGroupDoesNotCoverEnoughAZs", name)
	}
	slices.Sort(zones)
	return vpcID, zones, nil
}

func (c *Cloud) CreateDBSubnetGroup(ctx context.Context, name, description string, subnetIDs []string, tags domain.Tags) (*domain.DBSubnetGroupData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("CreateDBSubnetGroup"); err != nil {
		return nil, err
	}
	if _, exists := c.dbGroups[name]; exists {
		return nil, fmt.Errorf("create db subnet group %s: DBSubnetGroupAlreadyExists", name)
	}
	vpcID, zones, err := c.groupPlacement(name, subnetIDs)
	if err != nil {
		return nil, err
	}
	group := &domain.DBSubnetGroupData{
		Name:              name,
		ARN:               fmt.Sprintf("arn:aws:rds:%s:%s:subgrp:%s", c.region, c.accountID, name),
		VPCID:             vpcID,
		SubnetIDs:         slices.Clone(subnetIDs),
		AvailabilityZones: zones,
	}
	c.dbGroups[name] = group
	return cloneGroup(group), nil
}

func (c *Cloud) SetDBSubnetGroupSubnets(ctx context.Context, name string, subnetIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetDBSubnetGroupSubnets"); err != nil {
		return err
	}
	group, ok := c.dbGroups[name]
	if !ok {
		return notFound("db subnet group", name)
	}
	vpcID, zones, err := c.groupPlacement(name, subnetIDs)
	if err != nil {
		return err
	}
	group.VPCID = vpcID
	group.SubnetIDs = slices.Clone(subnetIDs)
	group.AvailabilityZones = zones
	return nil
}

func (c *Cloud) CreateDBInstance(ctx context.Context, in domain.DBInstanceInput, tags domain.Tags) (*domain.RDSInstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("CreateDBInstance"); err != nil {
		return nil, err
	}
	if _, exists := c.dbs[in.Identifier]; exists {
		return nil, fmt.Errorf("create rds instance %s: DBInstanceAlreadyExists", in.Identifier)
	}
	if in.Password == "" || in.Username == "" {
		return nil, fmt.Errorf("create rds instance %s: InvalidParameterValue: master credentials are required", in.Identifier)
	}
	group, ok := c.dbGroups[in.SubnetGroup]
	if !ok {
		return nil, fmt.Errorf("create rds instance %s: DBSubnetGroupNotFoundFault: %s", in.Identifier, in.SubnetGroup)
	}
	for _, sgID := range in.SecurityGroupIDs {
		sg, ok := c.sgs[sgID]
		if !ok {
			return nil, notFound("security group", sgID)
		}
		if sg.VPCID != group.VPCID {
			return nil, fmt.Errorf("create rds instance %s: security group %s is in another vpc", in.Identifier, sgID)
		}
	}
	port := in.Port
	if port == 0 {
		port = 5432
	}
	home := slices.Clone(group.SubnetIDs)
	slices.SortFunc(home, func(a, b string) int {
		if za, zb := c.subnets[a].AvailabilityZone, c.subnets[b].AvailabilityZone; za != zb {
			if za < zb {
				return -1
			}
			return 1
		}
		if a < b {
			return -1
		}
		return 1
	})
	db := &domain.RDSInstanceData{
		ID:                 in.Identifier,
		ARN:                fmt.Sprintf("arn:aws:rds:%s:%s:db:%s", c.region, c.accountID, in.Identifier),
		Endpoint:           fmt.Sprintf("%s.%s.%s.rds.amazonaws.com", in.Identifier, c.nextHex("rds")[4:], c.region),
		PrivateIP:          c.nextHost(home[0]),
		Port:               port,
		SecurityGroups:     slices.Clone(in.SecurityGroupIDs),
		SubnetIDs:          slices.Clone(group.SubnetIDs),
		SubnetGroup:        in.SubnetGroup,
		Engine:             in.Engine,
		EngineVersion:      in.EngineVersion,
		InstanceClass:      in.InstanceClass,
		AllocatedStorage:   in.AllocatedStorage,
		PubliclyAccessible: false,
		DeletionProtection: in.DeletionProtection,
		Status:             "available",
	}
	c.dbs[in.Identifier] = db
	return cloneDB(db), nil
}

func (c *Cloud) ModifyDBInstance(ctx context.Context, identifier string, in domain.DBModifyInput) (*domain.RDSInstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("ModifyDBInstance"); err != nil {
		return nil, err
	}
	db, ok := c.dbs[identifier]
	if !ok {
		return nil, notFound("rds instance", identifier)
	}
	if in.InstanceClass != "" {
		db.InstanceClass = in.InstanceClass
	}
	if in.AllocatedStorage != 0 {
		if in.AllocatedStorage < db.AllocatedStorage {
			return nil, fmt.Errorf("modify rds instance %s: InvalidParameterCombination: storage cannot shrink", identifier)
		}
		db.AllocatedStorage = in.AllocatedStorage
	}
	if len(in.SecurityGroupIDs) > 0 {
		db.SecurityGroups = slices.Clone(in.SecurityGroupIDs)
	}
	db.DeletionProtection = in.DeletionProtection
	return cloneDB(db), nil
}

func (c *Cloud) DeleteDBInstance(ctx context.Context, identifier string, skipFinalSnapshot bool, finalSnapshotID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("DeleteDBInstance"); err != nil {
		return err
	}
	db, ok := c.dbs[identifier]
	if !ok {
		return nil
	}
	if db.DeletionProtection {
		return fmt.Errorf("delete rds instance %s: %w", identifier, domain.ErrDeletionProtected)
	}
	if !skipFinalSnapshot {
		if finalSnapshotID == "" {
			return fmt.Errorf("delete rds instance %s: InvalidParameterCombination: final snapshot identifier is required", identifier)
		}
		c.snapshots = append(c.snapshots, finalSnapshotID)
	}
	delete(c.dbs, identifier)
	return nil
}
