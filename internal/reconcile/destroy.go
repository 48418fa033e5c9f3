package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/state"
	"github.com/eleven-am/perimeter/internal/topology"
)

// Destroy removes every resource of the graph, dependents first. A database
// with deletion protection stops the run before anything is removed.
func (rc *Reconciler) Destroy(ctx context.Context, g *topology.Graph) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	levels, err := g.Reverse()
	if err != nil {
		return nil, err
	}
	if rc.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.opts.Timeout)
		defer cancel()
	}

	r, err := rc.begin(ctx, g, false)
	if err != nil {
		return nil, err
	}
	defer r.end(ctx)

	if err := r.checkProtection(ctx); err != nil {
		return nil, err
	}

	for i, level := range levels {
		levelErr := r.level(ctx, level, r.teardown)
		if err := r.save(ctx, state.StatusPartial, nil); err != nil {
			return r.result(), errors.Join(levelErr, err)
		}
		if levelErr != nil {
			r.log.Error("teardown level failed", zap.Int("level", i), zap.Error(levelErr))
			if err := r.save(ctx, state.StatusFailed, levelErr); err != nil {
				r.log.Warn("saving failed snapshot", zap.Error(err))
			}
			return r.result(), levelErr
		}
	}

	r.snap.Outputs = domain.Outputs{}
	if err := r.save(ctx, state.StatusDestroyed, nil); err != nil {
		return r.result(), err
	}
	res := r.result()
	r.log.Info("destroy finished", zap.Int("deleted", res.Changed()))
	return res, nil
}

func (r *run) checkProtection(ctx context.Context) error {
	for _, res := range r.graph.Resources() {
		if res.Kind != domain.KindDBInstance {
			continue
		}
		identifier := r.ident(res.Name).PhysicalName()
		db, err := r.cloud.FindDBInstance(ctx, identifier)
		if err != nil {
			return err
		}
		if db != nil && db.DeletionProtection {
			return fmt.Errorf("destroy %s: %w", identifier, domain.ErrDeletionProtected)
		}
	}
	return nil
}

// locate finds the physical ID of a resource, or "" when it does not exist.
func (r *run) locate(ctx context.Context, res *topology.Resource) (string, error) {
	id := r.ident(res.Name)
	name := id.PhysicalName()
	switch spec := res.Spec.(type) {
	case topology.VPCSpec:
		obs, err := r.cloud.FindVPC(ctx, id)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ID, nil
	case topology.InternetGatewaySpec:
		obs, err := r.cloud.FindInternetGateway(ctx, id)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ID, nil
	case topology.SubnetSpec:
		obs, err := r.cloud.FindSubnet(ctx, id)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ID, nil
	case topology.ElasticIPSpec:
		obs, err := r.cloud.FindElasticIP(ctx, id)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.AllocationID, nil
	case topology.NATGatewaySpec:
		obs, err := r.cloud.FindNATGateway(ctx, id)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ID, nil
	case topology.RouteTableSpec:
		obs, err := r.cloud.FindRouteTable(ctx, id)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ID, nil
	case topology.SecurityGroupSpec:
		obs, err := r.cloud.FindSecurityGroup(ctx, id)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ID, nil
	case topology.RoleSpec:
		obs, err := r.cloud.FindRole(ctx, name)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.Name, nil
	case topology.InstanceProfileSpec:
		obs, err := r.cloud.FindInstanceProfile(ctx, name)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.Name, nil
	case topology.InstanceSpec:
		obs, err := r.cloud.FindInstance(ctx, id)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ID, nil
	case topology.TargetGroupSpec:
		obs, err := r.cloud.FindTargetGroup(ctx, name)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ARN, nil
	case topology.LoadBalancerSpec:
		obs, err := r.cloud.FindLoadBalancer(ctx, name)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ARN, nil
	case topology.ListenerSpec:
		lbARN, err := r.locateName(ctx, spec.LoadBalancer)
		if err != nil || lbARN == "" {
			return "", err
		}
		obs, err := r.cloud.FindListener(ctx, lbARN, spec.Port)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ARN, nil
	case topology.AttachmentSpec:
		return r.locateName(ctx, spec.Instance)
	case topology.DBSubnetGroupSpec:
		obs, err := r.cloud.FindDBSubnetGroup(ctx, name)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.Name, nil
	case topology.DBInstanceSpec:
		obs, err := r.cloud.FindDBInstance(ctx, name)
		if err != nil || obs == nil {
			return "", err
		}
		return obs.ID, nil
	}
	return "", fmt.Errorf("cannot locate %T", res.Spec)
}

func (r *run) locateName(ctx context.Context, name string) (string, error) {
	res, ok := r.graph.Get(name)
	if !ok {
		return "", &domain.DependencyError{Resource: name, Missing: name}
	}
	return r.locate(ctx, res)
}

func (r *run) teardown(ctx context.Context, res *topology.Resource) error {
	physical, err := r.locate(ctx, res)
	if err != nil {
		return err
	}
	if physical == "" {
		r.record(res, state.Record{}, Change{Action: ActionNoop, Details: []string{"already absent"}})
		return nil
	}

	ch := Change{Action: ActionDelete, PhysicalID: physical}
	switch spec := res.Spec.(type) {
	case topology.AttachmentSpec:
		tgARN, err := r.locateName(ctx, spec.TargetGroup)
		if err != nil {
			return err
		}
		if tgARN != "" {
			if err := r.cloud.DeregisterTarget(ctx, tgARN, physical, spec.Port); err != nil {
				return err
			}
		}
		ch.Details = []string{"deregister " + physical}
	case topology.DBInstanceSpec:
		final := ""
		if !spec.SkipFinalSnapshot {
			final = fmt.Sprintf("%s-final-%d", physical, r.opts.Now().Unix())
			ch.Details = []string{"final snapshot " + final}
		}
		if err := r.cloud.DeleteDBInstance(ctx, physical, spec.SkipFinalSnapshot, final); err != nil {
			return err
		}
	case topology.InstanceSpec:
		ids := []string{physical}
		if old := r.prev[res.Name].Attr("retiring"); old != "" && old != physical {
			ids = append(ids, old)
			ch.Details = []string{"terminate replaced instance " + old}
		}
		for _, id := range ids {
			if err := r.cloud.Delete(ctx, res.Kind, id); err != nil {
				return err
			}
		}
	default:
		if err := r.cloud.Delete(ctx, res.Kind, physical); err != nil {
			return err
		}
	}
	r.record(res, state.Record{}, ch)
	return nil
}
