package resolver

import (
	"context"
	"sync"

	"github.com/eleven-am/perimeter/internal/components"
	"github.com/eleven-am/perimeter/internal/domain"
)

// SimpleResolver maps private addresses to the instance or database that owns
// them. Hits are memoized for the life of one analysis.
type SimpleResolver struct {
	accountCtx domain.AccountContext
	mu         sync.Mutex
	cacheIP    map[string]domain.Component
}

func NewSimpleResolver(accountCtx domain.AccountContext) *SimpleResolver {
	return &SimpleResolver{
		accountCtx: accountCtx,
		cacheIP:    make(map[string]domain.Component),
	}
}

func (r *SimpleResolver) ResolveByIP(ctx context.Context, accountID, vpcID, ip string) (domain.Component, error) {
	if ip == "" {
		return nil, nil
	}
	r.mu.Lock()
	comp, ok := r.cacheIP[ip]
	r.mu.Unlock()
	if ok {
		return comp, nil
	}

	client, err := r.accountCtx.GetClient(accountID)
	if err != nil {
		return nil, err
	}

	if inst, err := client.GetEC2InstanceByPrivateIP(ctx, ip, vpcID); err == nil && inst != nil {
		return r.remember(ip, components.NewEC2Instance(inst, accountID)), nil
	}

	if db, err := client.GetRDSInstanceByPrivateIP(ctx, ip, vpcID); err == nil && db != nil {
		return r.remember(ip, components.NewRDSInstance(db, accountID)), nil
	}

	return nil, nil
}

func (r *SimpleResolver) remember(ip string, comp domain.Component) domain.Component {
	r.mu.Lock()
	r.cacheIP[ip] = comp
	r.mu.Unlock()
	return comp
}
