package domain

import (
	"fmt"
	"sort"
)

// Atoms splits a rule into one rule per source, the unit EC2 authorizes and
// revokes. Descriptions are dropped.
func (r SecurityGroupRule) Atoms() []SecurityGroupRule {
	base := SecurityGroupRule{Protocol: r.Protocol, FromPort: r.FromPort, ToPort: r.ToPort}
	var out []SecurityGroupRule
	for _, cidr := range r.CIDRBlocks {
		a := base
		a.CIDRBlocks = []string{cidr}
		out = append(out, a)
	}
	for _, cidr := range r.IPv6CIDRBlocks {
		a := base
		a.IPv6CIDRBlocks = []string{cidr}
		out = append(out, a)
	}
	for _, sg := range r.ReferencedSecurityGroups {
		a := base
		a.ReferencedSecurityGroups = []string{sg}
		out = append(out, a)
	}
	return out
}

// Key identifies a single-source rule.
func (r SecurityGroupRule) Key() string {
	sources := make([]string, 0, len(r.CIDRBlocks)+len(r.IPv6CIDRBlocks)+len(r.ReferencedSecurityGroups))
	sources = append(sources, r.CIDRBlocks...)
	sources = append(sources, r.IPv6CIDRBlocks...)
	sources = append(sources, r.ReferencedSecurityGroups...)
	sort.Strings(sources)
	return fmt.Sprintf("%s/%d-%d/%v", r.Protocol, r.FromPort, r.ToPort, sources)
}

// AtomizeRules flattens rules into sorted single-source atoms without duplicates.
func AtomizeRules(rules []SecurityGroupRule) []SecurityGroupRule {
	seen := make(map[string]bool)
	var out []SecurityGroupRule
	for _, r := range rules {
		for _, a := range r.Atoms() {
			if k := a.Key(); !seen[k] {
				seen[k] = true
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
