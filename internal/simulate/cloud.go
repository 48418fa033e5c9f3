// Package simulate is an in-memory cloud. It implements the same read and
// write interfaces as the AWS client so the reconciler, the audit and the CLI
// can run without an account.
package simulate

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"github.com/eleven-am/perimeter/internal/domain"
	"github.com/eleven-am/perimeter/internal/health"
)

const (
	DefaultAccountID = "123456789012"
	DefaultRegion    = "us-east-1"
	defaultImageID   = "ami-0a1b2c3d4e5f60718"
)

// Cloud holds every simulated resource behind one mutex. Values handed out
// are copies; callers never alias internal state.
type Cloud struct {
	mu sync.Mutex

	accountID string
	region    string
	seq       map[string]int
	mutations int
	failures  map[string]error

	vpcs        map[string]*domain.VPCData
	nacls       map[string]*domain.NACLData
	igws        map[string]*domain.InternetGatewayData
	subnets     map[string]*domain.SubnetData
	hostSeq     map[string]int
	eips        map[string]*domain.ElasticIPData
	nats        map[string]*domain.NATGatewayData
	routeTables map[string]*domain.RouteTableData
	sgs         map[string]*domain.SecurityGroupData
	roles       map[string]*domain.RoleData
	profiles    map[string]*domain.InstanceProfileData
	instances   map[string]*domain.EC2InstanceData
	launchOrder []string
	images      map[string]string
	tgs         map[string]*domain.TargetGroupData
	trackers    map[string]*health.Tracker
	lbs         map[string]*domain.ALBData
	lbENIs      map[string][]domain.ENIData
	listeners   map[string]*domain.ListenerData
	dbGroups    map[string]*domain.DBSubnetGroupData
	dbs         map[string]*domain.RDSInstanceData
	snapshots   []string
}

type Option func(*Cloud)

func WithAccount(accountID string) Option {
	return func(c *Cloud) { c.accountID = accountID }
}

func WithRegion(region string) Option {
	return func(c *Cloud) { c.region = region }
}

func New(opts ...Option) *Cloud {
	c := &Cloud{
		accountID:   DefaultAccountID,
		region:      DefaultRegion,
		seq:         make(map[string]int),
		failures:    make(map[string]error),
		vpcs:        make(map[string]*domain.VPCData),
		nacls:       make(map[string]*domain.NACLData),
		igws:        make(map[string]*domain.InternetGatewayData),
		subnets:     make(map[string]*domain.SubnetData),
		hostSeq:     make(map[string]int),
		eips:        make(map[string]*domain.ElasticIPData),
		nats:        make(map[string]*domain.NATGatewayData),
		routeTables: make(map[string]*domain.RouteTableData),
		sgs:         make(map[string]*domain.SecurityGroupData),
		roles:       make(map[string]*domain.RoleData),
		profiles:    make(map[string]*domain.InstanceProfileData),
		instances:   make(map[string]*domain.EC2InstanceData),
		images:      make(map[string]string),
		tgs:         make(map[string]*domain.TargetGroupData),
		trackers:    make(map[string]*health.Tracker),
		lbs:         make(map[string]*domain.ALBData),
		lbENIs:      make(map[string][]domain.ENIData),
		listeners:   make(map[string]*domain.ListenerData),
		dbGroups:    make(map[string]*domain.DBSubnetGroupData),
		dbs:         make(map[string]*domain.RDSInstanceData),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cloud) AccountID() string {
	return c.accountID
}

func (c *Cloud) Region() string {
	return c.region
}

// GetClient makes the simulator its own single-account context.
func (c *Cloud) GetClient(accountID string) (domain.AWSClient, error) {
	if accountID != c.accountID {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return c, nil
}

// Mutations counts successful and failed write calls since creation.
func (c *Cloud) Mutations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutations
}

// FailOn makes every later call of the named write operation return err.
// A nil err clears the failure.
func (c *Cloud) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// FinalSnapshots lists snapshot identifiers taken when databases were deleted.
func (c *Cloud) FinalSnapshots() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.snapshots...)
}

// mutate must be called with c.mu held.
func (c *Cloud) mutate(op string) error {
	c.mutations++
	if err, ok := c.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// nextID returns prefix-<17 hex digits>, unique per prefix.
func (c *Cloud) nextID(prefix string) string {
	c.seq[prefix]++
	return fmt.Sprintf("%s-%017x", prefix, c.seq[prefix])
}

func (c *Cloud) nextHex(prefix string) string {
	c.seq[prefix]++
	return fmt.Sprintf("%016x", c.seq[prefix])
}

// nextHost hands out addresses from a subnet starting at .10.
func (c *Cloud) nextHost(subnetID string) string {
	subnet, ok := c.subnets[subnetID]
	if !ok {
		return ""
	}
	prefix, err := netip.ParsePrefix(subnet.CIDRBlock)
	if err != nil {
		return ""
	}
	c.hostSeq[subnetID]++
	addr := prefix.Masked().Addr()
	for i := 0; i < 9+c.hostSeq[subnetID]; i++ {
		addr = addr.Next()
	}
	return addr.String()
}

func matchesIdent(tags domain.Tags, id domain.Ident) bool {
	return tags[domain.TagProject] == id.Project && tags[domain.TagResource] == id.Name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyTags(t domain.Tags) domain.Tags {
	if t == nil {
		return nil
	}
	out := make(domain.Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func dependencyViolation(kind, id, reason string) error {
	return fmt.Errorf("delete %s %s: DependencyViolation: %s", kind, id, reason)
}

func ipIn(ip, cidr string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return false
	}
	return prefix.Contains(addr)
}
