package components

import (
	"net/netip"
	"sort"
	"strings"

	"github.com/eleven-am/perimeter/internal/domain"
)

func IPMatchesCIDR(ip, cidr string) bool {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return prefix.Contains(addr)
}

func SortNACLRulesByNumber(rules []domain.NACLRule) []domain.NACLRule {
	sorted := make([]domain.NACLRule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RuleNumber < sorted[j].RuleNumber
	})
	return sorted
}

func protocolMatches(ruleProtocol, destProtocol string) bool {
	rule := normalizeProtocol(ruleProtocol)
	if rule == "all" {
		return true
	}
	return rule == normalizeProtocol(destProtocol)
}

// portInRange treats 0-0 and -1/-1 as "all ports", which is how EC2 reports
// rules for protocol -1.
func portInRange(port, fromPort, toPort int) bool {
	if fromPort == 0 && toPort == 0 {
		return true
	}
	if fromPort == -1 && toPort == -1 {
		return true
	}
	return port >= fromPort && port <= toPort
}

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("::1/128"),
}

// IsPrivateIP reports whether ip falls in RFC1918, CGNAT, loopback or link-local space.
func IsPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsPublicIP reports whether ip parses and lies outside private space.
func IsPublicIP(ip string) bool {
	if _, err := netip.ParseAddr(ip); err != nil {
		return false
	}
	return !IsPrivateIP(ip)
}

func normalizeProtocol(p string) string {
	switch p {
	case "", "-1", "all":
		return "all"
	case "6":
		return "tcp"
	case "17":
		return "udp"
	default:
		return strings.ToLower(p)
	}
}
