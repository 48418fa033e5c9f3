package topology

import "fmt"

// Tier is one link of the security chain. Its only ingress source is the
// previous tier, or the internet for the first one.
type Tier struct {
	Name        string
	Port        int
	Description string
	Source      string
}

func (t Tier) InternetFacing() bool {
	return t.Source == InternetCIDR
}

// GroupName is the logical name of the tier's security group.
func (t Tier) GroupName() string {
	return "sg-" + t.Name
}

type Chain struct {
	tiers []Tier
}

// NewChain links tiers in order: the first is sourced from the internet and
// each later one from its predecessor.
func NewChain(tiers ...Tier) *Chain {
	c := &Chain{}
	for i, t := range tiers {
		if i == 0 {
			t.Source = InternetCIDR
		} else {
			t.Source = tiers[i-1].Name
		}
		c.tiers = append(c.tiers, t)
	}
	return c
}

// DefaultChain is edge, compute and data.
func DefaultChain(listenerPort, servicePort, dbPort int) *Chain {
	return NewChain(
		Tier{Name: "edge", Port: listenerPort, Description: "public load balancer"},
		Tier{Name: "compute", Port: servicePort, Description: "application instances"},
		Tier{Name: "data", Port: dbPort, Description: "database"},
	)
}

func (c *Chain) Tiers() []Tier {
	return append([]Tier(nil), c.tiers...)
}

func (c *Chain) Tier(name string) (Tier, bool) {
	for _, t := range c.tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// Insert places t between the named tier and its successor and re-points
// the successor at t. A tier cannot be appended after the last one, since a
// group that nothing is admitted from would sit outside the chain.
func (c *Chain) Insert(after string, t Tier) error {
	if t.Name == "" {
		return fmt.Errorf("insert tier: empty name")
	}
	if _, dup := c.Tier(t.Name); dup {
		return fmt.Errorf("insert tier %q: already in chain", t.Name)
	}
	idx := -1
	for i, existing := range c.tiers {
		if existing.Name == after {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("insert tier %q: unknown tier %q", t.Name, after)
	}
	if idx == len(c.tiers)-1 {
		return fmt.Errorf("insert tier %q: %q is the last tier, a new tier must go between two existing ones", t.Name, after)
	}

	t.Source = after
	successor := c.tiers[idx+1]
	successor.Source = t.Name
	tiers := make([]Tier, 0, len(c.tiers)+1)
	tiers = append(tiers, c.tiers[:idx+1]...)
	tiers = append(tiers, t, successor)
	tiers = append(tiers, c.tiers[idx+2:]...)
	c.tiers = tiers
	return nil
}

func (c *Chain) Validate() error {
	if len(c.tiers) == 0 {
		return fmt.Errorf("security chain is empty")
	}
	seen := make(map[string]bool)
	facing := 0
	for i, t := range c.tiers {
		if t.Name == "" {
			return fmt.Errorf("tier %d has no name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tier %q appears twice", t.Name)
		}
		seen[t.Name] = true
		if t.Port < 1 || t.Port > 65535 {
			return fmt.Errorf("tier %q: port %d out of range", t.Name, t.Port)
		}
		if t.InternetFacing() {
			facing++
		}
		if i == 0 {
			if !t.InternetFacing() {
				return fmt.Errorf("first tier %q must be internet facing", t.Name)
			}
			continue
		}
		if t.Source != c.tiers[i-1].Name {
			return fmt.Errorf("tier %q is sourced from %q, want %q", t.Name, t.Source, c.tiers[i-1].Name)
		}
	}
	if facing != 1 {
		return fmt.Errorf("chain has %d internet facing tiers, want 1", facing)
	}
	return nil
}

// SecurityGroup turns a tier into its group spec.
func (c *Chain) SecurityGroup(t Tier, vpc string) SecurityGroupSpec {
	in := IngressSpec{Port: t.Port}
	if t.InternetFacing() {
		in.CIDR = InternetCIDR
	} else {
		in.Source = "sg-" + t.Source
	}
	return SecurityGroupSpec{
		VPC:         vpc,
		Description: t.Description,
		Ingress:     []IngressSpec{in},
	}
}
