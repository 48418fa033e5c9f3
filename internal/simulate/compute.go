package simulate

import (
	"context"
	"fmt"
	"slices"

	"github.com/eleven-am/perimeter/internal/domain"
)

// SetImage pins the AMI an image parameter resolves to.
func (c *Cloud) SetImage(parameter, imageID string) {
	c.mu.Lock()
	c.images[parameter] = imageID
	c.mu.Unlock()
}

func (c *Cloud) ResolveImage(ctx context.Context, parameter string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if parameter == "" {
		return "", notFound("image parameter", parameter)
	}
	if ami, ok := c.images[parameter]; ok {
		return ami, nil
	}
	return defaultImageID, nil
}

func (c *Cloud) GetEC2Instance(ctx context.Context, instanceID string) (*domain.EC2InstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[instanceID]
	if !ok {
		return nil, notFound("instance", instanceID)
	}
	return cloneInstance(inst), nil
}

func cloneInstance(inst *domain.EC2InstanceData) *domain.EC2InstanceData {
	out := *inst
	out.SecurityGroups = slices.Clone(inst.SecurityGroups)
	out.Tags = copyTags(inst.Tags)
	return &out
}

// FindInstance returns the newest instance that is not terminated.
func (c *Cloud) FindInstance(ctx context.Context, id domain.Ident) (*domain.EC2InstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.launchOrder) - 1; i >= 0; i-- {
		inst := c.instances[c.launchOrder[i]]
		if inst.State == "terminated" || inst.State == "shutting-down" {
			continue
		}
		if matchesIdent(inst.Tags, id) {
			return cloneInstance(inst), nil
		}
	}
	return nil, nil
}

func (c *Cloud) RunInstance(ctx context.Context, id domain.Ident, in domain.InstanceInput) (*domain.EC2InstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("RunInstance"); err != nil {
		return nil, err
	}
	if in.ImageID == "" || in.InstanceType == "" {
		return nil, fmt.Errorf("run instance %s: MissingParameter: image and type are required", id.PhysicalName())
	}
	subnet, ok := c.subnets[in.SubnetID]
	if !ok {
		return nil, notFound("subnet", in.SubnetID)
	}
	for _, sgID := range in.SecurityGroupIDs {
		sg, ok := c.sgs[sgID]
		if !ok {
			return nil, notFound("security group", sgID)
		}
		if sg.VPCID != subnet.VPCID {
			return nil, fmt.Errorf("run instance %s: security group %s is in another vpc", id.PhysicalName(), sgID)
		}
	}
	var profileARN string
	if in.InstanceProfile != "" {
		profile, ok := c.profiles[in.InstanceProfile]
		if !ok {
			return nil, fmt.Errorf("run instance %s: InvalidParameterValue: unknown instance profile %s", id.PhysicalName(), in.InstanceProfile)
		}
		profileARN = profile.ARN
	}

	instanceID := c.nextID("i")
	inst := &domain.EC2InstanceData{
		ID:                 instanceID,
		PrivateIP:          c.nextHost(in.SubnetID),
		SecurityGroups:     slices.Clone(in.SecurityGroupIDs),
		SubnetID:           in.SubnetID,
		VPCID:              subnet.VPCID,
		ImageID:            in.ImageID,
		InstanceType:       in.InstanceType,
		InstanceProfileARN: profileARN,
		State:              "running",
		Tags:               id.Tags(),
	}
	c.instances[instanceID] = inst
	c.launchOrder = append(c.launchOrder, instanceID)
	return cloneInstance(inst), nil
}

func (c *Cloud) SetInstanceSecurityGroups(ctx context.Context, instanceID string, sgIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("SetInstanceSecurityGroups"); err != nil {
		return err
	}
	inst, ok := c.instances[instanceID]
	if !ok {
		return notFound("instance", instanceID)
	}
	for _, sgID := range sgIDs {
		if _, ok := c.sgs[sgID]; !ok {
			return notFound("security group", sgID)
		}
	}
	inst.SecurityGroups = slices.Clone(sgIDs)
	return nil
}

// Terminate ends an instance out of band, as an operator or a spot
// reclaim would.
func (c *Cloud) Terminate(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok := c.instances[instanceID]; ok {
		inst.State = "terminated"
		c.deregisterEverywhere(instanceID)
	}
}

func (c *Cloud) GetEC2InstanceByPrivateIP(ctx context.Context, ip, vpcID string) (*domain.EC2InstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range sortedKeys(c.instances) {
		inst := c.instances[k]
		if inst.State == "running" && inst.PrivateIP == ip && (vpcID == "" || inst.VPCID == vpcID) {
			return cloneInstance(inst), nil
		}
	}
	return nil, nil
}
