package topology

import (
	"strings"
	"testing"
)

func TestDefaultChain(t *testing.T) {
	c := DefaultChain(80, 8000, 5432)
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	tiers := c.Tiers()
	want := []struct{ name, source string }{
		{"edge", InternetCIDR},
		{"compute", "edge"},
		{"data", "compute"},
	}
	if len(tiers) != len(want) {
		t.Fatalf("got %d tiers, want %d", len(tiers), len(want))
	}
	for i, w := range want {
		if tiers[i].Name != w.name || tiers[i].Source != w.source {
			t.Errorf("tier %d = %s<-%s, want %s<-%s", i, tiers[i].Name, tiers[i].Source, w.name, w.source)
		}
	}
}

func TestChain_Insert(t *testing.T) {
	tests := []struct {
		name      string
		after     string
		tier      Tier
		wantOrder []string
		wantErr   string
	}{
		{
			name:      "cache between compute and data",
			after:     "compute",
			tier:      Tier{Name: "cache", Port: 6379},
			wantOrder: []string{"edge", "compute", "cache", "data"},
		},
		{name: "after last tier", after: "data", tier: Tier{Name: "archive", Port: 9000}, wantErr: "last tier"},
		{name: "unknown anchor", after: "queue", tier: Tier{Name: "cache", Port: 6379}, wantErr: "unknown tier"},
		{name: "duplicate", after: "edge", tier: Tier{Name: "compute", Port: 1}, wantErr: "already in chain"},
		{name: "unnamed", after: "edge", tier: Tier{Port: 1}, wantErr: "empty name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultChain(80, 8000, 5432)
			err := c.Insert(tt.after, tt.tier)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Insert() error = %v, want %q", err, tt.wantErr)
				}
				if got := len(c.Tiers()); got != 3 {
					t.Errorf("rejected insert left %d tiers, want 3", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tiers := c.Tiers()
			for i, name := range tt.wantOrder {
				if tiers[i].Name != name {
					t.Fatalf("tier %d = %s, want %s", i, tiers[i].Name, name)
				}
			}
			if err := c.Validate(); err != nil {
				t.Errorf("chain invalid after insert: %v", err)
			}
		})
	}
}

func TestChain_InsertRepointsSuccessor(t *testing.T) {
	c := DefaultChain(80, 8000, 5432)
	if err := c.Insert("compute", Tier{Name: "cache", Port: 6379}); err != nil {
		t.Fatal(err)
	}
	data, _ := c.Tier("data")
	if data.Source != "cache" {
		t.Errorf("data sourced from %q, want cache", data.Source)
	}
	cache, _ := c.Tier("cache")
	if cache.Source != "compute" {
		t.Errorf("cache sourced from %q, want compute", cache.Source)
	}
}

func TestChain_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []Tier
		wantErr string
	}{
		{name: "empty", wantErr: "empty"},
		{
			name:    "first not internet facing",
			tiers:   []Tier{{Name: "edge", Port: 80, Source: "x"}},
			wantErr: "must be internet facing",
		},
		{
			name: "two internet facing",
			tiers: []Tier{
				{Name: "edge", Port: 80, Source: InternetCIDR},
				{Name: "compute", Port: 8000, Source: InternetCIDR},
			},
			wantErr: "sourced from",
		},
		{
			name: "skipping a tier",
			tiers: []Tier{
				{Name: "edge", Port: 80, Source: InternetCIDR},
				{Name: "compute", Port: 8000, Source: "edge"},
				{Name: "data", Port: 5432, Source: "edge"},
			},
			wantErr: `want "compute"`,
		},
		{
			name: "duplicate",
			tiers: []Tier{
				{Name: "edge", Port: 80, Source: InternetCIDR},
				{Name: "edge", Port: 8000, Source: "edge"},
			},
			wantErr: "twice",
		},
		{
			name:    "bad port",
			tiers:   []Tier{{Name: "edge", Port: 0, Source: InternetCIDR}},
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Chain{tiers: tt.tiers}
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestChain_SecurityGroup(t *testing.T) {
	c := DefaultChain(80, 8000, 5432)
	edge, _ := c.Tier("edge")
	data, _ := c.Tier("data")

	sg := c.SecurityGroup(edge, "vpc")
	if len(sg.Ingress) != 1 || sg.Ingress[0].CIDR != InternetCIDR || sg.Ingress[0].Port != 80 {
		t.Errorf("edge ingress = %+v", sg.Ingress)
	}

	sg = c.SecurityGroup(data, "vpc")
	if len(sg.Ingress) != 1 || sg.Ingress[0].Source != "sg-compute" || sg.Ingress[0].CIDR != "" {
		t.Errorf("data ingress = %+v", sg.Ingress)
	}
}
