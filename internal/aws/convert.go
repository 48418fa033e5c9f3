package aws

import (
	"net/url"
	"strconv"
	"strings"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/eleven-am/perimeter/internal/domain"
)

func toSecurityGroupData(sg *ec2types.SecurityGroup) *domain.SecurityGroupData {
	return &domain.SecurityGroupData{
		ID:            derefString(sg.GroupId),
		Name:          derefString(sg.GroupName),
		Description:   derefString(sg.Description),
		VPCID:         derefString(sg.VpcId),
		InboundRules:  toSecurityGroupRules(sg.IpPermissions),
		OutboundRules: toSecurityGroupRules(sg.IpPermissionsEgress),
		Tags:          fromEC2Tags(sg.Tags),
	}
}

func toSecurityGroupRules(perms []ec2types.IpPermission) []domain.SecurityGroupRule {
	var rules []domain.SecurityGroupRule
	for _, perm := range perms {
		var ipv4Cidrs []string
		for _, r := range perm.IpRanges {
			if r.CidrIp != nil {
				ipv4Cidrs = append(ipv4Cidrs, *r.CidrIp)
			}
		}

		var ipv6Cidrs []string
		for _, r := range perm.Ipv6Ranges {
			if r.CidrIpv6 != nil {
				ipv6Cidrs = append(ipv6Cidrs, *r.CidrIpv6)
			}
		}

		var referencedSGs []string
		for _, pair := range perm.UserIdGroupPairs {
			if pair.GroupId != nil {
				referencedSGs = append(referencedSGs, *pair.GroupId)
			}
		}

		rules = append(rules, domain.SecurityGroupRule{
			Protocol:                 protocolNumberToString(derefString(perm.IpProtocol)),
			FromPort:                 int(derefInt32(perm.FromPort)),
			ToPort:                   int(derefInt32(perm.ToPort)),
			CIDRBlocks:               ipv4Cidrs,
			IPv6CIDRBlocks:           ipv6Cidrs,
			ReferencedSecurityGroups: referencedSGs,
		})
	}
	return rules
}

func toIPPermissions(rules []domain.SecurityGroupRule) []ec2types.IpPermission {
	perms := make([]ec2types.IpPermission, 0, len(rules))
	for _, rule := range rules {
		perm := ec2types.IpPermission{
			IpProtocol: stringPtr(rule.Protocol),
			FromPort:   int32Ptr(rule.FromPort),
			ToPort:     int32Ptr(rule.ToPort),
		}
		for _, cidr := range rule.CIDRBlocks {
			perm.IpRanges = append(perm.IpRanges, ec2types.IpRange{
				CidrIp:      stringPtr(cidr),
				Description: optionalString(rule.Description),
			})
		}
		for _, cidr := range rule.IPv6CIDRBlocks {
			perm.Ipv6Ranges = append(perm.Ipv6Ranges, ec2types.Ipv6Range{
				CidrIpv6:    stringPtr(cidr),
				Description: optionalString(rule.Description),
			})
		}
		for _, sgID := range rule.ReferencedSecurityGroups {
			perm.UserIdGroupPairs = append(perm.UserIdGroupPairs, ec2types.UserIdGroupPair{
				GroupId:     stringPtr(sgID),
				Description: optionalString(rule.Description),
			})
		}
		perms = append(perms, perm)
	}
	return perms
}

func toSubnetData(subnet *ec2types.Subnet, naclID, rtID string) *domain.SubnetData {
	return &domain.SubnetData{
		ID:                  derefString(subnet.SubnetId),
		VPCID:               derefString(subnet.VpcId),
		CIDRBlock:           derefString(subnet.CidrBlock),
		AvailabilityZone:    derefString(subnet.AvailabilityZone),
		MapPublicIPOnLaunch: derefBool(subnet.MapPublicIpOnLaunch),
		NaclID:              naclID,
		RouteTableID:        rtID,
		Tags:                fromEC2Tags(subnet.Tags),
	}
}

func toNACLData(nacl *ec2types.NetworkAcl) *domain.NACLData {
	var inbound, outbound []domain.NACLRule
	for _, entry := range nacl.Entries {
		if entry.CidrBlock == nil {
			continue
		}
		rule := domain.NACLRule{
			RuleNumber: int(derefInt32(entry.RuleNumber)),
			Protocol:   protocolNumberToString(derefString(entry.Protocol)),
			CIDRBlock:  derefString(entry.CidrBlock),
			Action:     string(entry.RuleAction),
		}
		if entry.PortRange != nil {
			rule.FromPort = int(derefInt32(entry.PortRange.From))
			rule.ToPort = int(derefInt32(entry.PortRange.To))
		}
		if derefBool(entry.Egress) {
			outbound = append(outbound, rule)
		} else {
			inbound = append(inbound, rule)
		}
	}
	return &domain.NACLData{
		ID:            derefString(nacl.NetworkAclId),
		VPCID:         derefString(nacl.VpcId),
		InboundRules:  inbound,
		OutboundRules: outbound,
	}
}

func toRouteTableData(rt *ec2types.RouteTable) *domain.RouteTableData {
	data := &domain.RouteTableData{
		ID:    derefString(rt.RouteTableId),
		VPCID: derefString(rt.VpcId),
		Tags:  fromEC2Tags(rt.Tags),
	}
	for _, r := range rt.Routes {
		if r.DestinationCidrBlock == nil {
			continue
		}
		route := domain.Route{
			DestinationCIDR: derefString(r.DestinationCidrBlock),
			PrefixLength:    prefixLength(derefString(r.DestinationCidrBlock)),
		}
		route.TargetType, route.TargetID = determineRouteTarget(r)
		data.Routes = append(data.Routes, route)
	}
	for _, assoc := range rt.Associations {
		if derefBool(assoc.Main) {
			data.Main = true
			continue
		}
		if assoc.SubnetId != nil {
			data.Associations = append(data.Associations, *assoc.SubnetId)
		}
	}
	return data
}

func determineRouteTarget(r ec2types.Route) (targetType, targetID string) {
	switch {
	case r.GatewayId != nil && strings.HasPrefix(*r.GatewayId, "igw-"):
		return "internet-gateway", *r.GatewayId
	case r.GatewayId != nil && *r.GatewayId == "local":
		return "local", "local"
	case r.NatGatewayId != nil:
		return "nat-gateway", *r.NatGatewayId
	case r.TransitGatewayId != nil:
		return "transit-gateway", *r.TransitGatewayId
	case r.VpcPeeringConnectionId != nil:
		return "vpc-peering", *r.VpcPeeringConnectionId
	case r.NetworkInterfaceId != nil:
		return "network-interface", *r.NetworkInterfaceId
	default:
		return "unknown", ""
	}
}

func toVPCData(vpc *ec2types.Vpc, mainRtID string) *domain.VPCData {
	return &domain.VPCData{
		ID:               derefString(vpc.VpcId),
		CIDRBlock:        derefString(vpc.CidrBlock),
		MainRouteTableID: mainRtID,
		State:            string(vpc.State),
		Tags:             fromEC2Tags(vpc.Tags),
	}
}

func toEC2InstanceData(inst *ec2types.Instance) *domain.EC2InstanceData {
	var sgs []string
	for _, sg := range inst.SecurityGroups {
		if sg.GroupId != nil {
			sgs = append(sgs, *sg.GroupId)
		}
	}
	data := &domain.EC2InstanceData{
		ID:             derefString(inst.InstanceId),
		PrivateIP:      derefString(inst.PrivateIpAddress),
		PublicIP:       derefString(inst.PublicIpAddress),
		SecurityGroups: sgs,
		SubnetID:       derefString(inst.SubnetId),
		VPCID:          derefString(inst.VpcId),
		ImageID:        derefString(inst.ImageId),
		InstanceType:   string(inst.InstanceType),
		Tags:           fromEC2Tags(inst.Tags),
	}
	if inst.IamInstanceProfile != nil {
		data.InstanceProfileARN = derefString(inst.IamInstanceProfile.Arn)
	}
	if inst.State != nil {
		data.State = string(inst.State.Name)
	}
	return data
}

func toRDSInstanceData(db *rdstypes.DBInstance, privateIP string) *domain.RDSInstanceData {
	var sgs []string
	for _, sg := range db.VpcSecurityGroups {
		if sg.VpcSecurityGroupId != nil {
			sgs = append(sgs, *sg.VpcSecurityGroupId)
		}
	}
	var subnets []string
	var subnetGroup string
	if db.DBSubnetGroup != nil {
		subnetGroup = derefString(db.DBSubnetGroup.DBSubnetGroupName)
		for _, subnet := range db.DBSubnetGroup.Subnets {
			if subnet.SubnetIdentifier != nil {
				subnets = append(subnets, *subnet.SubnetIdentifier)
			}
		}
	}

	endpoint := ""
	port := 0
	if db.Endpoint != nil {
		endpoint = derefString(db.Endpoint.Address)
		port = int(derefInt32(db.Endpoint.Port))
	}

	return &domain.RDSInstanceData{
		ID:                 derefString(db.DBInstanceIdentifier),
		ARN:                derefString(db.DBInstanceArn),
		Endpoint:           endpoint,
		PrivateIP:          privateIP,
		Port:               port,
		SecurityGroups:     sgs,
		SubnetIDs:          subnets,
		SubnetGroup:        subnetGroup,
		Engine:             derefString(db.Engine),
		EngineVersion:      derefString(db.EngineVersion),
		InstanceClass:      derefString(db.DBInstanceClass),
		AllocatedStorage:   int(derefInt32(db.AllocatedStorage)),
		PubliclyAccessible: derefBool(db.PubliclyAccessible),
		DeletionProtection: derefBool(db.DeletionProtection),
		Status:             derefString(db.DBInstanceStatus),
	}
}

func toDBSubnetGroupData(group *rdstypes.DBSubnetGroup) *domain.DBSubnetGroupData {
	data := &domain.DBSubnetGroupData{
		Name:  derefString(group.DBSubnetGroupName),
		ARN:   derefString(group.DBSubnetGroupArn),
		VPCID: derefString(group.VpcId),
	}
	seen := make(map[string]bool)
	for _, subnet := range group.Subnets {
		data.SubnetIDs = append(data.SubnetIDs, derefString(subnet.SubnetIdentifier))
		if subnet.SubnetAvailabilityZone != nil {
			az := derefString(subnet.SubnetAvailabilityZone.Name)
			if az != "" && !seen[az] {
				seen[az] = true
				data.AvailabilityZones = append(data.AvailabilityZones, az)
			}
		}
	}
	return data
}

func toInternetGatewayData(igw *ec2types.InternetGateway) *domain.InternetGatewayData {
	var vpcID string
	for _, att := range igw.Attachments {
		if att.VpcId != nil {
			vpcID = *att.VpcId
			break
		}
	}
	return &domain.InternetGatewayData{
		ID:    derefString(igw.InternetGatewayId),
		VPCID: vpcID,
		Tags:  fromEC2Tags(igw.Tags),
	}
}

func toElasticIPData(addr *ec2types.Address) *domain.ElasticIPData {
	return &domain.ElasticIPData{
		AllocationID:  derefString(addr.AllocationId),
		PublicIP:      derefString(addr.PublicIp),
		AssociationID: derefString(addr.AssociationId),
		Tags:          fromEC2Tags(addr.Tags),
	}
}

func toNATGatewayData(nat *ec2types.NatGateway) *domain.NATGatewayData {
	data := &domain.NATGatewayData{
		ID:       derefString(nat.NatGatewayId),
		SubnetID: derefString(nat.SubnetId),
		State:    string(nat.State),
		Tags:     fromEC2Tags(nat.Tags),
	}
	for _, addr := range nat.NatGatewayAddresses {
		if addr.PublicIp != nil {
			data.PublicIP = *addr.PublicIp
			data.AllocationID = derefString(addr.AllocationId)
			break
		}
	}
	return data
}

func toALBData(lb *elbv2types.LoadBalancer, tgARNs []string) *domain.ALBData {
	var subnets []string
	for _, az := range lb.AvailabilityZones {
		if az.SubnetId != nil {
			subnets = append(subnets, *az.SubnetId)
		}
	}
	data := &domain.ALBData{
		ARN:             derefString(lb.LoadBalancerArn),
		Name:            derefString(lb.LoadBalancerName),
		DNSName:         derefString(lb.DNSName),
		Scheme:          string(lb.Scheme),
		VPCID:           derefString(lb.VpcId),
		SubnetIDs:       subnets,
		SecurityGroups:  append([]string(nil), lb.SecurityGroups...),
		TargetGroupARNs: tgARNs,
	}
	if lb.State != nil {
		data.State = string(lb.State.Code)
	}
	return data
}

func toListenerData(l *elbv2types.Listener) *domain.ListenerData {
	data := &domain.ListenerData{
		ARN:             derefString(l.ListenerArn),
		LoadBalancerARN: derefString(l.LoadBalancerArn),
		Port:            int(derefInt32(l.Port)),
		Protocol:        string(l.Protocol),
	}
	for _, action := range l.DefaultActions {
		if action.Type != elbv2types.ActionTypeEnumForward {
			continue
		}
		if action.TargetGroupArn != nil {
			data.TargetGroupARN = *action.TargetGroupArn
			break
		}
		if action.ForwardConfig != nil && len(action.ForwardConfig.TargetGroups) > 0 {
			data.TargetGroupARN = derefString(action.ForwardConfig.TargetGroups[0].TargetGroupArn)
			break
		}
	}
	return data
}

func toTargetGroupData(tg *elbv2types.TargetGroup, healthDescs []elbv2types.TargetHealthDescription) *domain.TargetGroupData {
	var targets []domain.TargetData
	for _, h := range healthDescs {
		if h.Target == nil {
			continue
		}
		status := "unknown"
		if h.TargetHealth != nil {
			status = string(h.TargetHealth.State)
		}
		targets = append(targets, domain.TargetData{
			ID:           derefString(h.Target.Id),
			Port:         int(derefInt32(h.Target.Port)),
			HealthStatus: status,
		})
	}
	data := &domain.TargetGroupData{
		ARN:        derefString(tg.TargetGroupArn),
		Name:       derefString(tg.TargetGroupName),
		TargetType: string(tg.TargetType),
		Protocol:   string(tg.Protocol),
		Port:       int(derefInt32(tg.Port)),
		VPCID:      derefString(tg.VpcId),
		HealthCheck: domain.HealthCheckData{
			Path:               derefString(tg.HealthCheckPath),
			Protocol:           string(tg.HealthCheckProtocol),
			Port:               derefString(tg.HealthCheckPort),
			IntervalSeconds:    int(derefInt32(tg.HealthCheckIntervalSeconds)),
			TimeoutSeconds:     int(derefInt32(tg.HealthCheckTimeoutSeconds)),
			HealthyThreshold:   int(derefInt32(tg.HealthyThresholdCount)),
			UnhealthyThreshold: int(derefInt32(tg.UnhealthyThresholdCount)),
		},
		Targets: targets,
	}
	if tg.Matcher != nil {
		data.HealthCheck.Matcher = derefString(tg.Matcher.HttpCode)
	}
	return data
}

func toENIData(eni *ec2types.NetworkInterface) *domain.ENIData {
	var privateIPs []string
	for _, addr := range eni.PrivateIpAddresses {
		privateIPs = append(privateIPs, derefString(addr.PrivateIpAddress))
	}

	var sgs []string
	for _, sg := range eni.Groups {
		sgs = append(sgs, derefString(sg.GroupId))
	}

	return &domain.ENIData{
		ID:             derefString(eni.NetworkInterfaceId),
		PrivateIP:      derefString(eni.PrivateIpAddress),
		PrivateIPs:     privateIPs,
		SubnetID:       derefString(eni.SubnetId),
		SecurityGroups: sgs,
	}
}

func toRoleData(role *iamtypes.Role, attached []iamtypes.AttachedPolicy) *domain.RoleData {
	data := &domain.RoleData{
		Name:             derefString(role.RoleName),
		ARN:              derefString(role.Arn),
		AssumeRolePolicy: decodePolicyDocument(derefString(role.AssumeRolePolicyDocument)),
	}
	for _, p := range attached {
		data.AttachedPolicies = append(data.AttachedPolicies, derefString(p.PolicyArn))
	}
	return data
}

func toInstanceProfileData(profile *iamtypes.InstanceProfile) *domain.InstanceProfileData {
	data := &domain.InstanceProfileData{
		Name: derefString(profile.InstanceProfileName),
		ARN:  derefString(profile.Arn),
	}
	for _, r := range profile.Roles {
		data.Roles = append(data.Roles, derefString(r.RoleName))
	}
	return data
}

// decodePolicyDocument undoes the URL encoding IAM applies to policy documents.
func decodePolicyDocument(doc string) string {
	decoded, err := url.QueryUnescape(doc)
	if err != nil {
		return doc
	}
	return decoded
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt32(i *int32) int32 {
	if i == nil {
		return 0
	}
	return *i
}

func derefBool(b *bool) bool {
	return b != nil && *b
}

func stringPtr(s string) *string {
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func int32Ptr(i int) *int32 {
	v := int32(i)
	return &v
}

func prefixLength(cidr string) int {
	parts := strings.Split(cidr, "/")
	if len(parts) != 2 {
		return 0
	}
	length, _ := strconv.Atoi(parts[1])
	return length
}

func protocolNumberToString(proto string) string {
	switch proto {
	case "6":
		return "tcp"
	case "17":
		return "udp"
	case "1":
		return "icmp"
	default:
		return proto
	}
}
