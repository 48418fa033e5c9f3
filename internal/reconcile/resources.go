package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/state"
	"github.com/eleven-am/perimeter/internal/topology"
)

// outcome accumulates what happened to one resource.
type outcome struct {
	action  Action
	id      string
	attrs   map[string]string
	details []string
}

func existing(id string) *outcome {
	return &outcome{action: ActionNoop, id: id, attrs: make(map[string]string)}
}

func creating(format string, args ...any) *outcome {
	return &outcome{action: ActionCreate, id: Unknown, attrs: make(map[string]string), details: []string{fmt.Sprintf(format, args...)}}
}

// note records an in-place change.
func (o *outcome) note(format string, args ...any) {
	o.details = append(o.details, fmt.Sprintf(format, args...))
	if o.action == ActionNoop {
		o.action = ActionUpdate
	}
}

func (r *run) reconcile(ctx context.Context, res *topology.Resource) error {
	var (
		out *outcome
		err error
	)
	switch spec := res.Spec.(type) {
	case topology.VPCSpec:
		out, err = r.vpc(ctx, res, spec)
	case topology.InternetGatewaySpec:
		out, err = r.internetGateway(ctx, res, spec)
	case topology.SubnetSpec:
		out, err = r.subnet(ctx, res, spec)
	case topology.ElasticIPSpec:
		out, err = r.elasticIP(ctx, res)
	case topology.NATGatewaySpec:
		out, err = r.natGateway(ctx, res, spec)
	case topology.RouteTableSpec:
		out, err = r.routeTable(ctx, res, spec)
	case topology.SecurityGroupSpec:
		out, err = r.securityGroup(ctx, res, spec)
	case topology.RoleSpec:
		out, err = r.role(ctx, res, spec)
	case topology.InstanceProfileSpec:
		out, err = r.instanceProfile(ctx, res, spec)
	case topology.InstanceSpec:
		out, err = r.instance(ctx, res, spec)
	case topology.TargetGroupSpec:
		out, err = r.targetGroup(ctx, res, spec)
	case topology.LoadBalancerSpec:
		out, err = r.loadBalancer(ctx, res, spec)
	case topology.ListenerSpec:
		out, err = r.listener(ctx, res, spec)
	case topology.AttachmentSpec:
		out, err = r.attachment(ctx, res, spec)
	case topology.DBSubnetGroupSpec:
		out, err = r.dbSubnetGroup(ctx, res, spec)
	case topology.DBInstanceSpec:
		out, err = r.dbInstance(ctx, res, spec)
	default:
		return fmt.Errorf("no reconciler for %T", res.Spec)
	}
	if err != nil {
		return err
	}
	r.commit(res, out)
	return nil
}

func (r *run) commit(res *topology.Resource, out *outcome) {
	r.record(res,
		state.Record{PhysicalID: out.id, Attributes: out.attrs},
		Change{Action: out.action, PhysicalID: out.id, Details: out.details})
}

func (r *run) vpc(ctx context.Context, res *topology.Resource, spec topology.VPCSpec) (*outcome, error) {
	id := r.ident(res.Name)
	obs, err := r.cloud.FindVPC(ctx, id)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("cidr %s", spec.CIDR)
		out.attrs["cidr"] = spec.CIDR
		return out, r.write(func() error {
			vpc, err := r.cloud.CreateVPC(ctx, id, spec.CIDR)
			if err != nil {
				return err
			}
			out.id = vpc.ID
			return r.cloud.SetVPCDNS(ctx, vpc.ID, spec.DNSSupport, spec.DNSHostnames)
		})
	}

	out := existing(obs.ID)
	out.attrs["cidr"] = obs.CIDRBlock
	if obs.CIDRBlock != spec.CIDR {
		return nil, &domain.DriftError{Resource: res.Name, Field: "cidr", Want: spec.CIDR, Got: obs.CIDRBlock}
	}
	if obs.EnableDNSSupport != spec.DNSSupport || obs.EnableDNSHostnames != spec.DNSHostnames {
		out.note("dns support %t, hostnames %t", spec.DNSSupport, spec.DNSHostnames)
		if err := r.write(func() error {
			return r.cloud.SetVPCDNS(ctx, obs.ID, spec.DNSSupport, spec.DNSHostnames)
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) internetGateway(ctx context.Context, res *topology.Resource, spec topology.InternetGatewaySpec) (*outcome, error) {
	vpcID, err := r.ref(res.Name, spec.VPC)
	if err != nil {
		return nil, err
	}
	id := r.ident(res.Name)
	obs, err := r.cloud.FindInternetGateway(ctx, id)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("attached to %s", vpcID)
		return out, r.write(func() error {
			igw, err := r.cloud.CreateInternetGateway(ctx, id)
			if err != nil {
				return err
			}
			out.id = igw.ID
			return r.cloud.AttachInternetGateway(ctx, igw.ID, vpcID)
		})
	}

	out := existing(obs.ID)
	switch obs.VPCID {
	case vpcID:
	case "":
		out.note("attach to %s", vpcID)
		if err := r.write(func() error { return r.cloud.AttachInternetGateway(ctx, obs.ID, vpcID) }); err != nil {
			return nil, err
		}
	default:
		return nil, &domain.DriftError{Resource: res.Name, Field: "vpc", Want: vpcID, Got: obs.VPCID}
	}
	return out, nil
}

func (r *run) subnet(ctx context.Context, res *topology.Resource, spec topology.SubnetSpec) (*outcome, error) {
	vpcID, err := r.ref(res.Name, spec.VPC)
	if err != nil {
		return nil, err
	}
	id := r.ident(res.Name)
	obs, err := r.cloud.FindSubnet(ctx, id)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("%s in %s, public ip %t", spec.CIDR, spec.Zone, spec.Public)
		out.attrs["cidr"] = spec.CIDR
		out.attrs["zone"] = spec.Zone
		return out, r.write(func() error {
			subnet, err := r.cloud.CreateSubnet(ctx, id, domain.SubnetInput{
				VPCID:            vpcID,
				CIDRBlock:        spec.CIDR,
				AvailabilityZone: spec.Zone,
				MapPublicIP:      spec.Public,
			})
			if err != nil {
				return err
			}
			out.id = subnet.ID
			return nil
		})
	}

	for _, d := range []struct{ field, want, got string }{
		{"cidr", spec.CIDR, obs.CIDRBlock},
		{"availability zone", spec.Zone, obs.AvailabilityZone},
		{"vpc", vpcID, obs.VPCID},
	} {
		if d.want != d.got && d.want != Unknown {
			return nil, &domain.DriftError{Resource: res.Name, Field: d.field, Want: d.want, Got: d.got}
		}
	}
	out := existing(obs.ID)
	out.attrs["cidr"] = obs.CIDRBlock
	out.attrs["zone"] = obs.AvailabilityZone
	if obs.MapPublicIPOnLaunch != spec.Public {
		out.note("map public ip %t", spec.Public)
		if err := r.write(func() error { return r.cloud.SetSubnetPublicIP(ctx, obs.ID, spec.Public) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) elasticIP(ctx context.Context, res *topology.Resource) (*outcome, error) {
	id := r.ident(res.Name)
	obs, err := r.cloud.FindElasticIP(ctx, id)
	if err != nil {
		return nil, err
	}
	if obs != nil {
		out := existing(obs.AllocationID)
		out.attrs["public-ip"] = obs.PublicIP
		return out, nil
	}
	out := creating("allocate address")
	return out, r.write(func() error {
		eip, err := r.cloud.AllocateElasticIP(ctx, id)
		if err != nil {
			return err
		}
		out.id = eip.AllocationID
		out.attrs["public-ip"] = eip.PublicIP
		return nil
	})
}

func (r *run) natGateway(ctx context.Context, res *topology.Resource, spec topology.NATGatewaySpec) (*outcome, error) {
	subnetID, err := r.ref(res.Name, spec.Subnet)
	if err != nil {
		return nil, err
	}
	allocID, err := r.ref(res.Name, spec.ElasticIP)
	if err != nil {
		return nil, err
	}
	id := r.ident(res.Name)
	obs, err := r.cloud.FindNATGateway(ctx, id)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("in %s with %s", spec.Subnet, spec.ElasticIP)
		return out, r.write(func() error {
			nat, err := r.cloud.CreateNATGateway(ctx, id, subnetID, allocID)
			if err != nil {
				return err
			}
			out.id = nat.ID
			return nil
		})
	}
	if obs.SubnetID != subnetID && subnetID != Unknown {
		return nil, &domain.DriftError{Resource: res.Name, Field: "subnet", Want: subnetID, Got: obs.SubnetID}
	}
	return existing(obs.ID), nil
}

func (r *run) routeTable(ctx context.Context, res *topology.Resource, spec topology.RouteTableSpec) (*outcome, error) {
	vpcID, err := r.ref(res.Name, spec.VPC)
	if err != nil {
		return nil, err
	}
	targetID, err := r.ref(res.Name, spec.Target)
	if err != nil {
		return nil, err
	}
	subnetIDs, err := r.refs(res.Name, spec.Subnets)
	if err != nil {
		return nil, err
	}

	id := r.ident(res.Name)
	obs, err := r.cloud.FindRouteTable(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *outcome
	var route *domain.Route
	var associated []string
	if obs == nil {
		out = creating("0.0.0.0/0 via %s, associated with %s", spec.Target, strings.Join(spec.Subnets, ", "))
		if err := r.write(func() error {
			rt, err := r.cloud.CreateRouteTable(ctx, id, vpcID)
			if err != nil {
				return err
			}
			out.id = rt.ID
			return nil
		}); err != nil {
			return nil, err
		}
		if r.dryRun {
			return out, nil
		}
	} else {
		out = existing(obs.ID)
		route = obs.DefaultRoute()
		associated = obs.Associations
	}

	targetType := string(spec.TargetKind)
	switch {
	case route == nil:
		if out.action != ActionCreate {
			out.note("add 0.0.0.0/0 via %s", targetID)
		}
		if err := r.write(func() error { return r.cloud.SetDefaultRoute(ctx, out.id, targetType, targetID, false) }); err != nil {
			return nil, err
		}
	case route.TargetID != targetID:
		out.note("replace 0.0.0.0/0 via %s with %s", route.TargetID, targetID)
		if err := r.write(func() error { return r.cloud.SetDefaultRoute(ctx, out.id, targetType, targetID, true) }); err != nil {
			return nil, err
		}
	}
	for _, subnetID := range subnetIDs {
		if slices.Contains(associated, subnetID) {
			continue
		}
		if out.action != ActionCreate {
			out.note("associate %s", subnetID)
		}
		if err := r.write(func() error { return r.cloud.AssociateRouteTable(ctx, out.id, subnetID) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ingressRules turns the spec into single-port TCP rules.
func (r *run) ingressRules(from string, spec topology.SecurityGroupSpec) ([]domain.SecurityGroupRule, error) {
	var rules []domain.SecurityGroupRule
	for _, in := range spec.Ingress {
		rule := domain.SecurityGroupRule{Protocol: "tcp", FromPort: in.Port, ToPort: in.Port}
		if in.Source != "" {
			sgID, err := r.ref(from, in.Source)
			if err != nil {
				return nil, err
			}
			rule.ReferencedSecurityGroups = []string{sgID}
		} else {
			rule.CIDRBlocks = []string{in.CIDR}
		}
		rules = append(rules, rule)
	}
	return domain.AtomizeRules(rules), nil
}

func describeRule(rule domain.SecurityGroupRule) string {
	var sources []string
	sources = append(sources, rule.CIDRBlocks...)
	sources = append(sources, rule.IPv6CIDRBlocks...)
	sources = append(sources, rule.ReferencedSecurityGroups...)
	port := strconv.Itoa(rule.FromPort)
	if rule.ToPort != rule.FromPort {
		port += "-" + strconv.Itoa(rule.ToPort)
	}
	return fmt.Sprintf("%s/%s from %s", rule.Protocol, port, strings.Join(sources, ","))
}

func (r *run) securityGroup(ctx context.Context, res *topology.Resource, spec topology.SecurityGroupSpec) (*outcome, error) {
	vpcID, err := r.ref(res.Name, spec.VPC)
	if err != nil {
		return nil, err
	}
	want, err := r.ingressRules(res.Name, spec)
	if err != nil {
		return nil, err
	}

	id := r.ident(res.Name)
	obs, err := r.cloud.FindSecurityGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *outcome
	var have []domain.SecurityGroupRule
	if obs == nil {
		var rules []string
		for _, rule := range want {
			rules = append(rules, describeRule(rule))
		}
		out = creating("ingress %s", strings.Join(rules, "; "))
		if err := r.write(func() error {
			sg, err := r.cloud.CreateSecurityGroup(ctx, id, vpcID, spec.Description)
			if err != nil {
				return err
			}
			out.id = sg.ID
			return nil
		}); err != nil {
			return nil, err
		}
	} else {
		if obs.VPCID != vpcID && vpcID != Unknown {
			return nil, &domain.DriftError{Resource: res.Name, Field: "vpc", Want: vpcID, Got: obs.VPCID}
		}
		out = existing(obs.ID)
		have = domain.AtomizeRules(obs.InboundRules)
	}

	haveKeys := make(map[string]bool, len(have))
	for _, rule := range have {
		haveKeys[rule.Key()] = true
	}
	wantKeys := make(map[string]bool, len(want))
	var missing, extra []domain.SecurityGroupRule
	for _, rule := range want {
		wantKeys[rule.Key()] = true
		if !haveKeys[rule.Key()] {
			missing = append(missing, rule)
		}
	}
	for _, rule := range have {
		if !wantKeys[rule.Key()] {
			extra = append(extra, rule)
		}
	}

	if len(extra) > 0 {
		for _, rule := range extra {
			out.note("revoke %s", describeRule(rule))
		}
		if err := r.write(func() error { return r.cloud.RevokeIngress(ctx, out.id, extra) }); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 {
		if out.action != ActionCreate {
			for _, rule := range missing {
				out.note("authorize %s", describeRule(rule))
			}
		}
		if err := r.write(func() error { return r.cloud.AuthorizeIngress(ctx, out.id, missing) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) role(ctx context.Context, res *topology.Resource, spec topology.RoleSpec) (*outcome, error) {
	name := r.ident(res.Name).PhysicalName()
	obs, err := r.cloud.FindRole(ctx, name)
	if err != nil {
		return nil, err
	}
	var out *outcome
	var attached []string
	if obs == nil {
		out = creating("trusting %s", spec.TrustedService)
		if err := r.write(func() error {
			role, err := r.cloud.CreateRole(ctx, name, trustPolicy(spec.TrustedService), r.ident(res.Name).Tags())
			if err != nil {
				return err
			}
			out.id = role.Name
			out.attrs["arn"] = role.ARN
			return nil
		}); err != nil {
			return nil, err
		}
	} else {
		out = existing(obs.Name)
		out.attrs["arn"] = obs.ARN
		attached = obs.AttachedPolicies
	}

	for _, policy := range spec.Policies {
		if slices.Contains(attached, policy) {
			continue
		}
		if out.action == ActionCreate {
			out.details = append(out.details, "attach "+policy)
		} else {
			out.note("attach %s", policy)
		}
		if err := r.write(func() error { return r.cloud.AttachRolePolicy(ctx, name, policy) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) instanceProfile(ctx context.Context, res *topology.Resource, spec topology.InstanceProfileSpec) (*outcome, error) {
	roleName, err := r.ref(res.Name, spec.Role)
	if err != nil {
		return nil, err
	}
	name := r.ident(res.Name).PhysicalName()
	obs, err := r.cloud.FindInstanceProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("containing %s", spec.Role)
		return out, r.write(func() error {
			profile, err := r.cloud.CreateInstanceProfile(ctx, name, r.ident(res.Name).Tags())
			if err != nil {
				return err
			}
			out.id = profile.Name
			out.attrs["arn"] = profile.ARN
			return r.cloud.AddRoleToInstanceProfile(ctx, name, roleName)
		})
	}

	out := existing(obs.Name)
	out.attrs["arn"] = obs.ARN
	if !slices.Contains(obs.Roles, roleName) {
		out.note("add role %s", roleName)
		if err := r.write(func() error { return r.cloud.AddRoleToInstanceProfile(ctx, name, roleName) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) instance(ctx context.Context, res *topology.Resource, spec topology.InstanceSpec) (*outcome, error) {
	subnetID, err := r.ref(res.Name, spec.Subnet)
	if err != nil {
		return nil, err
	}
	sgIDs, err := r.refs(res.Name, spec.SecurityGroups)
	if err != nil {
		return nil, err
	}
	profileName, err := r.ref(res.Name, spec.Profile)
	if err != nil {
		return nil, err
	}
	profileARN, err := r.attr(res.Name, spec.Profile, "arn")
	if err != nil {
		return nil, err
	}
	id := r.ident(res.Name)
	launch := func(out *outcome, image string) error {
		out.attrs["image"] = image
		if spec.ImageID == "" {
			out.attrs["image-parameter"] = spec.ImageParameter
		}
		return r.write(func() error {
			inst, err := r.cloud.RunInstance(ctx, id, domain.InstanceInput{
				ImageID:          image,
				InstanceType:     spec.InstanceType,
				SubnetID:         subnetID,
				SecurityGroupIDs: sgIDs,
				InstanceProfile:  profileName,
			})
			if err != nil {
				return err
			}
			out.id = inst.ID
			out.attrs["private-ip"] = inst.PrivateIP
			return nil
		})
	}

	obs, err := r.cloud.FindInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	prev, hasPrev := r.prev[res.Name]
	if obs == nil {
		image, err := r.image(ctx, res.Name, spec, "")
		if err != nil {
			return nil, err
		}
		out := creating("%s from %s in %s", spec.InstanceType, image, spec.Subnet)
		if hasPrev && prev.PhysicalID != "" {
			out.action = ActionReplace
			out.details = append(out.details, "previous instance "+prev.PhysicalID+" is gone")
		}
		return out, launch(out, image)
	}

	retired := ""
	if old := prev.Attr("retiring"); old != "" && old != obs.ID {
		if err := r.write(func() error { return r.cloud.Delete(ctx, domain.KindInstance, old) }); err != nil {
			return nil, fmt.Errorf("terminate replaced instance %s: %w", old, err)
		}
		retired = old
	}

	image, err := r.image(ctx, res.Name, spec, obs.ImageID)
	if err != nil {
		return nil, err
	}
	var reasons []string
	if obs.ImageID != image {
		reasons = append(reasons, fmt.Sprintf("image %s -> %s", obs.ImageID, image))
	}
	if obs.InstanceType != spec.InstanceType {
		reasons = append(reasons, fmt.Sprintf("type %s -> %s", obs.InstanceType, spec.InstanceType))
	}
	if obs.SubnetID != subnetID && subnetID != Unknown {
		reasons = append(reasons, fmt.Sprintf("subnet %s -> %s", obs.SubnetID, subnetID))
	}
	if obs.InstanceProfileARN != profileARN && profileARN != Unknown {
		reasons = append(reasons, fmt.Sprintf("profile %s -> %s", obs.InstanceProfileARN, profileARN))
	}
	if len(reasons) > 0 {
		if image == obs.ImageID {
			if image, err = r.image(ctx, res.Name, spec, ""); err != nil {
				return nil, err
			}
		}
		out := &outcome{action: ActionReplace, id: Unknown, attrs: make(map[string]string), details: reasons}
		if retired != "" {
			out.note("terminate replaced instance %s", retired)
		}
		if err := launch(out, image); err != nil {
			return nil, err
		}
		return r.retire(ctx, res, out, obs.ID)
	}

	out := existing(obs.ID)
	out.attrs["private-ip"] = obs.PrivateIP
	out.attrs["image"] = obs.ImageID
	if spec.ImageID == "" {
		out.attrs["image-parameter"] = spec.ImageParameter
	}
	if !sameSet(obs.SecurityGroups, sgIDs) {
		out.note("security groups %s", strings.Join(sgIDs, ","))
		if err := r.write(func() error { return r.cloud.SetInstanceSecurityGroups(ctx, obs.ID, sgIDs) }); err != nil {
			return nil, err
		}
	}
	if retired != "" {
		out.note("terminate replaced instance %s", retired)
	}
	return out, nil
}

// image returns the AMI the instance should run. A pinned image always wins.
// Otherwise the parameter is resolved only for a launch or when the parameter
// itself changed since the last run, so a newly published AMI never replaces
// a running host.
func (r *run) image(ctx context.Context, name string, spec topology.InstanceSpec, running string) (string, error) {
	if spec.ImageID != "" {
		return spec.ImageID, nil
	}
	if running != "" {
		prev, ok := r.prev[name]
		if !ok || prev.Attr("image") == "" || prev.Attr("image-parameter") == spec.ImageParameter {
			return running, nil
		}
	}
	image, err := r.cloud.ResolveImage(ctx, spec.ImageParameter)
	if err != nil {
		return "", fmt.Errorf("resolve image %s: %w", spec.ImageParameter, err)
	}
	return image, nil
}

// retire terminates the instance a replacement superseded. When that fails
// the replacement is recorded anyway, remembering the old instance so a later
// run finishes the job instead of launching yet another host.
func (r *run) retire(ctx context.Context, res *topology.Resource, out *outcome, old string) (*outcome, error) {
	err := r.write(func() error { return r.cloud.Delete(ctx, domain.KindInstance, old) })
	if err == nil {
		return out, nil
	}
	if out.id != Unknown {
		out.attrs["retiring"] = old
		r.commit(res, out)
	}
	return nil, fmt.Errorf("terminate replaced instance %s: %w", old, err)
}

func (r *run) targetGroup(ctx context.Context, res *topology.Resource, spec topology.TargetGroupSpec) (*outcome, error) {
	vpcID, err := r.ref(res.Name, spec.VPC)
	if err != nil {
		return nil, err
	}
	name := r.ident(res.Name).PhysicalName()
	obs, err := r.cloud.FindTargetGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("%s:%d, health %s %s", spec.Protocol, spec.Port, spec.HealthCheck.Path, spec.HealthCheck.Matcher)
		return out, r.write(func() error {
			tg, err := r.cloud.CreateTargetGroup(ctx, name, domain.TargetGroupInput{
				Protocol:    spec.Protocol,
				Port:        spec.Port,
				VPCID:       vpcID,
				TargetType:  "instance",
				HealthCheck: spec.HealthCheck,
			}, r.ident(res.Name).Tags())
			if err != nil {
				return err
			}
			out.id = tg.ARN
			return nil
		})
	}

	if obs.Port != spec.Port {
		return nil, &domain.DriftError{Resource: res.Name, Field: "port", Want: strconv.Itoa(spec.Port), Got: strconv.Itoa(obs.Port)}
	}
	if obs.VPCID != vpcID && vpcID != Unknown {
		return nil, &domain.DriftError{Resource: res.Name, Field: "vpc", Want: vpcID, Got: obs.VPCID}
	}
	out := existing(obs.ARN)
	if obs.HealthCheck != spec.HealthCheck {
		out.note("health check %s %s every %ds, %d/%d", spec.HealthCheck.Path, spec.HealthCheck.Matcher,
			spec.HealthCheck.IntervalSeconds, spec.HealthCheck.HealthyThreshold, spec.HealthCheck.UnhealthyThreshold)
		if err := r.write(func() error { return r.cloud.SetTargetGroupHealthCheck(ctx, obs.ARN, spec.HealthCheck) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) loadBalancer(ctx context.Context, res *topology.Resource, spec topology.LoadBalancerSpec) (*outcome, error) {
	subnetIDs, err := r.refs(res.Name, spec.Subnets)
	if err != nil {
		return nil, err
	}
	sgIDs, err := r.refs(res.Name, spec.SecurityGroups)
	if err != nil {
		return nil, err
	}
	name := r.ident(res.Name).PhysicalName()
	obs, err := r.cloud.FindLoadBalancer(ctx, name)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("internet-facing in %s", strings.Join(spec.Subnets, ", "))
		out.attrs["dns"] = Unknown
		return out, r.write(func() error {
			lb, err := r.cloud.CreateLoadBalancer(ctx, name, domain.LoadBalancerInput{
				Scheme:           "internet-facing",
				SubnetIDs:        subnetIDs,
				SecurityGroupIDs: sgIDs,
			}, r.ident(res.Name).Tags())
			if err != nil {
				return err
			}
			out.id = lb.ARN
			out.attrs["dns"] = lb.DNSName
			return nil
		})
	}

	if obs.Scheme != "internet-facing" {
		return nil, &domain.DriftError{Resource: res.Name, Field: "scheme", Want: "internet-facing", Got: obs.Scheme}
	}
	out := existing(obs.ARN)
	out.attrs["dns"] = obs.DNSName
	if !sameSet(obs.SecurityGroups, sgIDs) {
		out.note("security groups %s", strings.Join(sgIDs, ","))
		if err := r.write(func() error { return r.cloud.SetLoadBalancerSecurityGroups(ctx, obs.ARN, sgIDs) }); err != nil {
			return nil, err
		}
	}
	if !sameSet(obs.SubnetIDs, subnetIDs) {
		out.note("subnets %s", strings.Join(subnetIDs, ","))
		if err := r.write(func() error { return r.cloud.SetLoadBalancerSubnets(ctx, obs.ARN, subnetIDs) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) listener(ctx context.Context, res *topology.Resource, spec topology.ListenerSpec) (*outcome, error) {
	lbARN, err := r.ref(res.Name, spec.LoadBalancer)
	if err != nil {
		return nil, err
	}
	tgARN, err := r.ref(res.Name, spec.TargetGroup)
	if err != nil {
		return nil, err
	}
	var obs *domain.ListenerData
	if lbARN != Unknown {
		if obs, err = r.cloud.FindListener(ctx, lbARN, spec.Port); err != nil {
			return nil, err
		}
	}
	if obs == nil {
		out := creating("%s:%d forwarding to %s", spec.Protocol, spec.Port, spec.TargetGroup)
		return out, r.write(func() error {
			l, err := r.cloud.CreateListener(ctx, lbARN, spec.Port, spec.Protocol, tgARN)
			if err != nil {
				return err
			}
			out.id = l.ARN
			return nil
		})
	}

	out := existing(obs.ARN)
	if obs.TargetGroupARN != tgARN {
		out.note("forward to %s", tgARN)
		if err := r.write(func() error { return r.cloud.SetListenerTarget(ctx, obs.ARN, tgARN) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// attachment keeps exactly the current instance registered. The target group
// and load balancer stay put when the instance is replaced.
func (r *run) attachment(ctx context.Context, res *topology.Resource, spec topology.AttachmentSpec) (*outcome, error) {
	tgARN, err := r.ref(res.Name, spec.TargetGroup)
	if err != nil {
		return nil, err
	}
	instanceID, err := r.ref(res.Name, spec.Instance)
	if err != nil {
		return nil, err
	}
	if tgARN == Unknown || instanceID == Unknown {
		out := creating("register %s:%d", spec.Instance, spec.Port)
		out.attrs["target-group"] = tgARN
		return out, nil
	}

	tg, err := r.cloud.GetTargetGroup(ctx, tgARN)
	if err != nil {
		return nil, err
	}
	out := existing(instanceID)
	out.attrs["target-group"] = tgARN
	registered := false
	var stale []domain.TargetData
	for _, t := range tg.Targets {
		if t.ID == instanceID && t.Port == spec.Port {
			registered = true
			continue
		}
		stale = append(stale, t)
	}
	if !registered {
		if len(tg.Targets) == 0 {
			out.action = ActionCreate
			out.details = append(out.details, fmt.Sprintf("register %s:%d", instanceID, spec.Port))
		} else {
			out.note("register %s:%d", instanceID, spec.Port)
		}
		if err := r.write(func() error { return r.cloud.RegisterTarget(ctx, tgARN, instanceID, spec.Port) }); err != nil {
			return nil, err
		}
	}
	for _, t := range stale {
		out.note("deregister %s:%d", t.ID, t.Port)
		if err := r.write(func() error { return r.cloud.DeregisterTarget(ctx, tgARN, t.ID, t.Port) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) dbSubnetGroup(ctx context.Context, res *topology.Resource, spec topology.DBSubnetGroupSpec) (*outcome, error) {
	subnetIDs, err := r.refs(res.Name, spec.Subnets)
	if err != nil {
		return nil, err
	}
	name := r.ident(res.Name).PhysicalName()
	obs, err := r.cloud.FindDBSubnetGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("spanning %s", strings.Join(spec.Subnets, ", "))
		return out, r.write(func() error {
			group, err := r.cloud.CreateDBSubnetGroup(ctx, name, spec.Description, subnetIDs, r.ident(res.Name).Tags())
			if err != nil {
				return err
			}
			out.id = group.Name
			return nil
		})
	}

	out := existing(obs.Name)
	if !sameSet(obs.SubnetIDs, subnetIDs) {
		out.note("subnets %s", strings.Join(subnetIDs, ","))
		if err := r.write(func() error { return r.cloud.SetDBSubnetGroupSubnets(ctx, name, subnetIDs) }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *run) dbInstance(ctx context.Context, res *topology.Resource, spec topology.DBInstanceSpec) (*outcome, error) {
	groupName, err := r.ref(res.Name, spec.SubnetGroup)
	if err != nil {
		return nil, err
	}
	sgIDs, err := r.refs(res.Name, spec.SecurityGroups)
	if err != nil {
		return nil, err
	}
	identifier := r.ident(res.Name).PhysicalName()
	obs, err := r.cloud.FindDBInstance(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		out := creating("%s %s on %s, %d GiB, deletion protection %t", spec.Engine, spec.EngineVersion, spec.InstanceClass, spec.AllocatedStorage, spec.DeletionProtection)
		out.attrs["endpoint"] = Unknown
		return out, r.write(func() error {
			db, err := r.cloud.CreateDBInstance(ctx, domain.DBInstanceInput{
				Identifier:         identifier,
				Engine:             spec.Engine,
				EngineVersion:      spec.EngineVersion,
				InstanceClass:      spec.InstanceClass,
				AllocatedStorage:   spec.AllocatedStorage,
				DBName:             spec.DBName,
				Username:           spec.Username,
				Password:           spec.Password,
				Port:               spec.Port,
				SubnetGroup:        groupName,
				SecurityGroupIDs:   sgIDs,
				DeletionProtection: spec.DeletionProtection,
			}, r.ident(res.Name).Tags())
			if err != nil {
				return err
			}
			out.id = db.ID
			out.attrs["endpoint"] = db.Endpoint
			out.attrs["port"] = strconv.Itoa(db.Port)
			return nil
		})
	}

	if obs.Engine != "" && obs.Engine != spec.Engine {
		return nil, &domain.DriftError{Resource: res.Name, Field: "engine", Want: spec.Engine, Got: obs.Engine}
	}
	if obs.SubnetGroup != groupName && groupName != Unknown {
		return nil, &domain.DriftError{Resource: res.Name, Field: "subnet group", Want: groupName, Got: obs.SubnetGroup}
	}
	if spec.AllocatedStorage < obs.AllocatedStorage {
		return nil, &domain.DriftError{Resource: res.Name, Field: "allocated storage",
			Want: strconv.Itoa(spec.AllocatedStorage), Got: strconv.Itoa(obs.AllocatedStorage)}
	}

	out := existing(obs.ID)
	out.attrs["endpoint"] = obs.Endpoint
	out.attrs["port"] = strconv.Itoa(obs.Port)
	if obs.InstanceClass != spec.InstanceClass {
		out.note("class %s -> %s", obs.InstanceClass, spec.InstanceClass)
	}
	if obs.AllocatedStorage != spec.AllocatedStorage {
		out.note("storage %d -> %d GiB", obs.AllocatedStorage, spec.AllocatedStorage)
	}
	if !sameSet(obs.SecurityGroups, sgIDs) {
		out.note("security groups %s", strings.Join(sgIDs, ","))
	}
	if obs.DeletionProtection != spec.DeletionProtection {
		out.note("deletion protection %t", spec.DeletionProtection)
	}
	if out.action == ActionUpdate {
		if err := r.write(func() error {
			_, err := r.cloud.ModifyDBInstance(ctx, identifier, domain.DBModifyInput{
				InstanceClass:      spec.InstanceClass,
				AllocatedStorage:   spec.AllocatedStorage,
				SecurityGroupIDs:   sgIDs,
				DeletionProtection: spec.DeletionProtection,
			})
			return err
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
