package simulate

import (
	"context"
	"fmt"
	"slices"

	"github.com/eleven-am/perimeter/internal/domain"
)

func (c *Cloud) GetRole(ctx context.Context, name string) (*domain.RoleData, error) {
	role, err := c.FindRole(ctx, name)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, notFound("role", name)
	}
	return role, nil
}

func (c *Cloud) FindRole(ctx context.Context, name string) (*domain.RoleData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	role, ok := c.roles[name]
	if !ok {
		return nil, nil
	}
	out := *role
	return &out, nil
}

func (c *Cloud) CreateRole(ctx context.Context, name, trustPolicy string, tags domain.Tags) (*domain.RoleData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("CreateRole"); err != nil {
		return nil, err
	}
	if _, exists := c.roles[name]; exists {
		return nil, fmt.Errorf("create role %s: EntityAlreadyExists", name)
	}
	role := &domain.RoleData{
		Name:             name,
		ARN:              fmt.Sprintf("arn:aws:iam::%s:role/%s", c.accountID, name),
		AssumeRolePolicy: trustPolicy,
	}
	c.roles[name] = role
	out := *role
	return &out, nil
}

func (c *Cloud) AttachRolePolicy(ctx context.Context, roleName, policyARN string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("AttachRolePolicy"); err != nil {
		return err
	}
	role, ok := c.roles[roleName]
	if !ok {
		return notFound("role", roleName)
	}
	if !slices.Contains(role.AttachedPolicies, policyARN) {
		role.AttachedPolicies = append(slices.Clone(role.AttachedPolicies), policyARN)
	}
	return nil
}

func (c *Cloud) GetInstanceProfile(ctx context.Context, name string) (*domain.InstanceProfileData, error) {
	profile, err := c.FindInstanceProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, notFound("instance profile", name)
	}
	return profile, nil
}

func (c *Cloud) FindInstanceProfile(ctx context.Context, name string) (*domain.InstanceProfileData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	profile, ok := c.profiles[name]
	if !ok {
		return nil, nil
	}
	out := *profile
	return &out, nil
}

func (c *Cloud) CreateInstanceProfile(ctx context.Context, name string, tags domain.Tags) (*domain.InstanceProfileData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("CreateInstanceProfile"); err != nil {
		return nil, err
	}
	if _, exists := c.profiles[name]; exists {
		return nil, fmt.Errorf("create instance profile %s: EntityAlreadyExists", name)
	}
	profile := &domain.InstanceProfileData{
		Name: name,
		ARN:  fmt.Sprintf("arn:aws:iam::%s:instance-profile/%s", c.accountID, name),
	}
	c.profiles[name] = profile
	out := *profile
	return &out, nil
}

// AddRoleToInstanceProfile allows one role per profile, like IAM.
func (c *Cloud) AddRoleToInstanceProfile(ctx context.Context, profileName, roleName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutate("AddRoleToInstanceProfile"); err != nil {
		return err
	}
	profile, ok := c.profiles[profileName]
	if !ok {
		return notFound("instance profile", profileName)
	}
	if _, ok := c.roles[roleName]; !ok {
		return notFound("role", roleName)
	}
	switch {
	case slices.Contains(profile.Roles, roleName):
		return nil
	case len(profile.Roles) > 0:
		return fmt.Errorf("add role %s to %s: LimitExceeded: profile already holds %s", roleName, profileName, profile.Roles[0])
	}
	profile.Roles = []string{roleName}
	return nil
}

// managementPolicy is the managed policy the SSM agent needs to register.
const managementPolicy = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"

// GetManagedInstance reports an instance as online when it runs with a
// profile whose role carries the SSM core policy.
func (c *Cloud) GetManagedInstance(ctx context.Context, instanceID string) (*domain.ManagedInstanceData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[instanceID]
	if !ok || inst.State != "running" {
		return nil, notFound("managed instance", instanceID)
	}
	for _, profile := range c.profiles {
		if profile.ARN != inst.InstanceProfileARN {
			continue
		}
		for _, roleName := range profile.Roles {
			if role := c.roles[roleName]; role != nil && slices.Contains(role.AttachedPolicies, managementPolicy) {
				return &domain.ManagedInstanceData{
					InstanceID:   instanceID,
					PingStatus:   "Online",
					AgentVersion: "3.3.0.0",
					PlatformName: "Amazon Linux",
				}, nil
			}
		}
	}
	return nil, notFound("managed instance", instanceID)
}
