package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/eleven-am/perimeter/internal/domain"
)

func iamTags(tags domain.Tags) []iamtypes.Tag {
	var out []iamtypes.Tag
	for _, k := range sortedTagKeys(tags) {
		out = append(out, iamtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func (c *Client) GetRole(ctx context.Context, name string) (*domain.RoleData, error) {
	role, err := c.FindRole(ctx, name)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("role %s: %w", name, domain.ErrNotFound)
	}
	return role, nil
}

func (c *Client) FindRole(ctx context.Context, name string) (*domain.RoleData, error) {
	out, err := c.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		if isErrorCode(err, "NoSuchEntity") {
			return nil, nil
		}
		return nil, fmt.Errorf("get role %s: %w", name, err)
	}
	attached, err := c.attachedPolicies(ctx, name)
	if err != nil {
		return nil, err
	}
	return toRoleData(out.Role, attached), nil
}

func (c *Client) attachedPolicies(ctx context.Context, roleName string) ([]iamtypes.AttachedPolicy, error) {
	paginator := iam.NewListAttachedRolePoliciesPaginator(c.iamClient, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	policies, err := CollectPages(
		ctx,
		paginator.HasMorePages,
		func(ctx context.Context) (*iam.ListAttachedRolePoliciesOutput, error) {
			return paginator.NextPage(ctx)
		},
		func(out *iam.ListAttachedRolePoliciesOutput) []iamtypes.AttachedPolicy {
			return out.AttachedPolicies
		},
	)
	if err != nil {
		return nil, fmt.Errorf("list attached policies for role %s: %w", roleName, err)
	}
	return policies, nil
}

func (c *Client) CreateRole(ctx context.Context, name, trustPolicy string, tags domain.Tags) (*domain.RoleData, error) {
	out, err := c.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(trustPolicy),
		Description:              aws.String("instance role managed by perimeter"),
		Tags:                     iamTags(tags),
	})
	if err != nil {
		return nil, fmt.Errorf("create role %s: %w", name, err)
	}
	if err := iam.NewRoleExistsWaiter(c.iamClient).Wait(ctx, &iam.GetRoleInput{RoleName: aws.String(name)}, 2*time.Minute); err != nil {
		return nil, fmt.Errorf("wait for role %s: %w", name, err)
	}
	return toRoleData(out.Role, nil), nil
}

func (c *Client) AttachRolePolicy(ctx context.Context, roleName, policyARN string) error {
	_, err := c.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(policyARN),
	})
	if err != nil {
		return fmt.Errorf("attach policy %s to role %s: %w", policyARN, roleName, err)
	}
	return nil
}

func (c *Client) GetInstanceProfile(ctx context.Context, name string) (*domain.InstanceProfileData, error) {
	profile, err := c.FindInstanceProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("instance profile %s: %w", name, domain.ErrNotFound)
	}
	return profile, nil
}

func (c *Client) FindInstanceProfile(ctx context.Context, name string) (*domain.InstanceProfileData, error) {
	out, err := c.iamClient.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{
		InstanceProfileName: aws.String(name),
	})
	if err != nil {
		if isErrorCode(err, "NoSuchEntity") {
			return nil, nil
		}
		return nil, fmt.Errorf("get instance profile %s: %w", name, err)
	}
	return toInstanceProfileData(out.InstanceProfile), nil
}

func (c *Client) CreateInstanceProfile(ctx context.Context, name string, tags domain.Tags) (*domain.InstanceProfileData, error) {
	out, err := c.iamClient.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: aws.String(name),
		Tags:                iamTags(tags),
	})
	if err != nil {
		return nil, fmt.Errorf("create instance profile %s: %w", name, err)
	}
	waiter := iam.NewInstanceProfileExistsWaiter(c.iamClient)
	if err := waiter.Wait(ctx, &iam.GetInstanceProfileInput{InstanceProfileName: aws.String(name)}, 2*time.Minute); err != nil {
		return nil, fmt.Errorf("wait for instance profile %s: %w", name, err)
	}
	return toInstanceProfileData(out.InstanceProfile), nil
}

func (c *Client) AddRoleToInstanceProfile(ctx context.Context, profileName, roleName string) error {
	_, err := c.iamClient.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
		RoleName:            aws.String(roleName),
	})
	if err != nil && !isErrorCode(err, "LimitExceeded", "EntityAlreadyExists") {
		return fmt.Errorf("add role %s to instance profile %s: %w", roleName, profileName, err)
	}
	return nil
}

func (c *Client) deleteRole(ctx context.Context, name string) error {
	attached, err := c.attachedPolicies(ctx, name)
	if err != nil {
		if isErrorCode(err, "NoSuchEntity") {
			return nil
		}
		return err
	}
	for _, p := range attached {
		if _, err := c.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: p.PolicyArn,
		}); err != nil {
			return fmt.Errorf("detach policy %s from role %s: %w", derefString(p.PolicyArn), name, err)
		}
	}
	if _, err := c.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)}); err != nil && !isErrorCode(err, "NoSuchEntity") {
		return fmt.Errorf("delete role %s: %w", name, err)
	}
	return nil
}

func (c *Client) deleteInstanceProfile(ctx context.Context, name string) error {
	profile, err := c.FindInstanceProfile(ctx, name)
	if err != nil || profile == nil {
		return err
	}
	for _, role := range profile.Roles {
		if _, err := c.iamClient.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
			InstanceProfileName: aws.String(name),
			RoleName:            aws.String(role),
		}); err != nil {
			return fmt.Errorf("remove role %s from instance profile %s: %w", role, name, err)
		}
	}
	if _, err := c.iamClient.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{
		InstanceProfileName: aws.String(name),
	}); err != nil && !isErrorCode(err, "NoSuchEntity") {
		return fmt.Errorf("delete instance profile %s: %w", name, err)
	}
	return nil
}
