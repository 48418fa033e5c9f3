package health

import (
	"fmt"
	"strconv"
	"strings"
)

type codeRange struct {
	low, high int
}

// Matcher is the set of HTTP status codes that count as healthy, in the
// target group syntax: "200", "200,302" or "200-399".
type Matcher struct {
	raw    string
	ranges []codeRange
}

func ParseMatcher(s string) (Matcher, error) {
	m := Matcher{raw: strings.TrimSpace(s)}
	if m.raw == "" {
		return Matcher{}, fmt.Errorf("empty status matcher")
	}
	for _, part := range strings.Split(m.raw, ",") {
		part = strings.TrimSpace(part)
		low, high, isRange := strings.Cut(part, "-")
		lo, err := parseCode(low)
		if err != nil {
			return Matcher{}, fmt.Errorf("parse matcher %q: %w", s, err)
		}
		hi := lo
		if isRange {
			if hi, err = parseCode(high); err != nil {
				return Matcher{}, fmt.Errorf("parse matcher %q: %w", s, err)
			}
			if hi < lo {
				return Matcher{}, fmt.Errorf("parse matcher %q: range %d-%d is inverted", s, lo, hi)
			}
		}
		m.ranges = append(m.ranges, codeRange{low: lo, high: hi})
	}
	return m, nil
}

// MustParseMatcher is ParseMatcher for compile-time constants.
func MustParseMatcher(s string) Matcher {
	m, err := ParseMatcher(s)
	if err != nil {
		panic(err)
	}
	return m
}

func parseCode(s string) (int, error) {
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("status code %q is not a number", s)
	}
	if code < 100 || code > 599 {
		return 0, fmt.Errorf("status code %d out of range", code)
	}
	return code, nil
}

func (m Matcher) Matches(code int) bool {
	for _, r := range m.ranges {
		if code >= r.low && code <= r.high {
			return true
		}
	}
	return false
}

func (m Matcher) String() string {
	return m.raw
}
