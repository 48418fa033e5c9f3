package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/eleven-am/perimeter/internal/domain"
)

func rdsTags(tags domain.Tags) []rdstypes.Tag {
	var out []rdstypes.Tag
	for _, k := range sortedTagKeys(tags) {
		out = append(out, rdstypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func (c *Client) GetRDSInstance(ctx context.Context, dbInstanceID string) (*domain.RDSInstanceData, error) {
	data, err := c.FindDBInstance(ctx, dbInstanceID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("rds instance %s: %w", dbInstanceID, domain.ErrNotFound)
	}
	return data, nil
}

func (c *Client) FindDBInstance(ctx context.Context, identifier string) (*domain.RDSInstanceData, error) {
	out, err := c.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(identifier),
	})
	if err != nil {
		if isErrorCode(err, "DBInstanceNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("describe rds instance %s: %w", identifier, err)
	}
	db := firstOf(out.DBInstances)
	if db == nil {
		return nil, nil
	}
	return toRDSInstanceData(db, c.rdsPrivateIP(ctx, identifier)), nil
}

// rdsPrivateIP finds the address of the ENI RDS placed in the subnet group.
func (c *Client) rdsPrivateIP(ctx context.Context, identifier string) string {
	eniOut, err := c.ec2Client.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("requester-id"), Values: []string{"amazon-rds"}},
			{Name: aws.String("description"), Values: []string{fmt.Sprintf("*%s*", identifier)}},
		},
	})
	if err != nil || len(eniOut.NetworkInterfaces) == 0 {
		return ""
	}
	return derefString(eniOut.NetworkInterfaces[0].PrivateIpAddress)
}

func (c *Client) GetRDSInstanceByPrivateIP(ctx context.Context, ip, vpcID string) (*domain.RDSInstanceData, error) {
	paginator := rds.NewDescribeDBInstancesPaginator(c.rdsClient, &rds.DescribeDBInstancesInput{})
	dbInstances, err := CollectPages(
		ctx,
		paginator.HasMorePages,
		func(ctx context.Context) (*rds.DescribeDBInstancesOutput, error) {
			return paginator.NextPage(ctx)
		},
		func(out *rds.DescribeDBInstancesOutput) []rdstypes.DBInstance {
			return out.DBInstances
		},
	)
	if err != nil {
		return nil, fmt.Errorf("describe rds instances: %w", err)
	}
	for _, db := range dbInstances {
		if db.DBSubnetGroup == nil || derefString(db.DBSubnetGroup.VpcId) != vpcID {
			continue
		}
		identifier := derefString(db.DBInstanceIdentifier)
		if privateIP := c.rdsPrivateIP(ctx, identifier); privateIP == ip {
			return toRDSInstanceData(&db, privateIP), nil
		}
	}
	return nil, nil
}

func (c *Client) CreateDBInstance(ctx context.Context, in domain.DBInstanceInput, tags domain.Tags) (*domain.RDSInstanceData, error) {
	input := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier: aws.String(in.Identifier),
		Engine:               aws.String(in.Engine),
		DBInstanceClass:      aws.String(in.InstanceClass),
		AllocatedStorage:     int32Ptr(in.AllocatedStorage),
		DBName:               aws.String(in.DBName),
		MasterUsername:       aws.String(in.Username),
		MasterUserPassword:   aws.String(in.Password),
		DBSubnetGroupName:    aws.String(in.SubnetGroup),
		VpcSecurityGroupIds:  in.SecurityGroupIDs,
		PubliclyAccessible:   aws.Bool(false),
		StorageEncrypted:     aws.Bool(true),
		DeletionProtection:   aws.Bool(in.DeletionProtection),
		Tags:                 rdsTags(tags),
	}
	if in.EngineVersion != "" {
		input.EngineVersion = aws.String(in.EngineVersion)
	}
	if in.Port != 0 {
		input.Port = int32Ptr(in.Port)
	}
	if _, err := c.rdsClient.CreateDBInstance(ctx, input); err != nil {
		return nil, fmt.Errorf("create rds instance %s: %w", in.Identifier, err)
	}
	return c.waitForDB(ctx, in.Identifier)
}

func (c *Client) waitForDB(ctx context.Context, identifier string) (*domain.RDSInstanceData, error) {
	waiter := rds.NewDBInstanceAvailableWaiter(c.rdsClient)
	if err := waiter.Wait(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: aws.String(identifier)}, c.waitTimeout); err != nil {
		return nil, fmt.Errorf("wait for rds instance %s: %w", identifier, err)
	}
	return c.GetRDSInstance(ctx, identifier)
}

func (c *Client) ModifyDBInstance(ctx context.Context, identifier string, in domain.DBModifyInput) (*domain.RDSInstanceData, error) {
	input := &rds.ModifyDBInstanceInput{
		DBInstanceIdentifier: aws.String(identifier),
		DeletionProtection:   aws.Bool(in.DeletionProtection),
		ApplyImmediately:     aws.Bool(true),
	}
	if in.InstanceClass != "" {
		input.DBInstanceClass = aws.String(in.InstanceClass)
	}
	if in.AllocatedStorage != 0 {
		input.AllocatedStorage = int32Ptr(in.AllocatedStorage)
	}
	if len(in.SecurityGroupIDs) > 0 {
		input.VpcSecurityGroupIds = in.SecurityGroupIDs
	}
	if _, err := c.rdsClient.ModifyDBInstance(ctx, input); err != nil {
		return nil, fmt.Errorf("modify rds instance %s: %w", identifier, err)
	}
	return c.waitForDB(ctx, identifier)
}

func (c *Client) DeleteDBInstance(ctx context.Context, identifier string, skipFinalSnapshot bool, finalSnapshotID string) error {
	input := &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier: aws.String(identifier),
		SkipFinalSnapshot:    aws.Bool(skipFinalSnapshot),
	}
	if !skipFinalSnapshot {
		input.FinalDBSnapshotIdentifier = aws.String(finalSnapshotID)
	}
	if _, err := c.rdsClient.DeleteDBInstance(ctx, input); err != nil {
		if isErrorCode(err, "DBInstanceNotFound") {
			return nil
		}
		if isErrorCode(err, "InvalidParameterCombination") {
			return fmt.Errorf("delete rds instance %s: %w: %v", identifier, domain.ErrDeletionProtected, err)
		}
		return fmt.Errorf("delete rds instance %s: %w", identifier, err)
	}
	waiter := rds.NewDBInstanceDeletedWaiter(c.rdsClient)
	if err := waiter.Wait(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: aws.String(identifier)}, c.waitTimeout); err != nil {
		return fmt.Errorf("wait for rds instance %s deletion: %w", identifier, err)
	}
	return nil
}

func (c *Client) GetDBSubnetGroup(ctx context.Context, name string) (*domain.DBSubnetGroupData, error) {
	group, err := c.FindDBSubnetGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("db subnet group %s: %w", name, domain.ErrNotFound)
	}
	return group, nil
}

func (c *Client) FindDBSubnetGroup(ctx context.Context, name string) (*domain.DBSubnetGroupData, error) {
	out, err := c.rdsClient.DescribeDBSubnetGroups(ctx, &rds.DescribeDBSubnetGroupsInput{
		DBSubnetGroupName: aws.String(name),
	})
	if err != nil {
		if isErrorCode(err, "DBSubnetGroupNotFoundFault") {
			return nil, nil
		}
		return nil, fmt.Errorf("describe db subnet group %s: %w", name, err)
	}
	group := firstOf(out.DBSubnetGroups)
	if group == nil {
		return nil, nil
	}
	return toDBSubnetGroupData(group), nil
}

func (c *Client) CreateDBSubnetGroup(ctx context.Context, name, description string, subnetIDs []string, tags domain.Tags) (*domain.DBSubnetGroupData, error) {
	out, err := c.rdsClient.CreateDBSubnetGroup(ctx, &rds.CreateDBSubnetGroupInput{
		DBSubnetGroupName:        aws.String(name),
		DBSubnetGroupDescription: aws.String(description),
		SubnetIds:                subnetIDs,
		Tags:                     rdsTags(tags),
	})
	if err != nil {
		return nil, fmt.Errorf("create db subnet group %s: %w", name, err)
	}
	return toDBSubnetGroupData(out.DBSubnetGroup), nil
}

func (c *Client) SetDBSubnetGroupSubnets(ctx context.Context, name string, subnetIDs []string) error {
	_, err := c.rdsClient.ModifyDBSubnetGroup(ctx, &rds.ModifyDBSubnetGroupInput{
		DBSubnetGroupName: aws.String(name),
		SubnetIds:         subnetIDs,
	})
	if err != nil {
		return fmt.Errorf("modify db subnet group %s: %w", name, err)
	}
	return nil
}
