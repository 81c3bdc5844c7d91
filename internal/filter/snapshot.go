package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// snapshot is an immutable view of the filter configuration. Mutators
// never modify a published snapshot; they build a copy and swap it in.
type snapshot struct {
	// rules holds the rule table in registration order.
	rules []Rule

	// ruleIndex maps pattern strings to their position in rules.
	ruleIndex map[string]int

	// defaultURI is the general fallback destination. The filter is
	// configured once this is non-empty.
	defaultURI string

	// roleDefaults holds per-role fallback overrides.
	roleDefaults map[string]string

	// digest is a content hash of the configuration, set on publish. It
	// keys cached decisions, so two snapshots share cache entries only
	// when their rules and defaults are identical.
	digest string
}

// emptySnapshot returns the pre-configuration state.
func emptySnapshot() *snapshot {
	return &snapshot{
		ruleIndex:    make(map[string]int),
		roleDefaults: make(map[string]string),
	}
}

// clone returns a mutable copy.
func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		rules:        make([]Rule, len(s.rules)),
		ruleIndex:    make(map[string]int, len(s.ruleIndex)),
		defaultURI:   s.defaultURI,
		roleDefaults: make(map[string]string, len(s.roleDefaults)),
	}
	copy(next.rules, s.rules)
	for pattern, i := range s.ruleIndex {
		next.ruleIndex[pattern] = i
	}
	for role, uri := range s.roleDefaults {
		next.roleDefaults[role] = uri
	}
	return next
}

// setRule registers or overwrites a rule for a pattern, enforcing that a
// pattern never carries both dispositions. Returns false when the pattern
// already has a rule of the other disposition.
func (s *snapshot) setRule(pattern string, disposition Disposition, roles []string) bool {
	if i, ok := s.ruleIndex[pattern]; ok {
		if s.rules[i].Disposition() != disposition {
			return false
		}
		if disposition == DispositionAllow {
			s.rules[i].Allow = roles
		} else {
			s.rules[i].Deny = roles
		}
		return true
	}

	rule := Rule{Pattern: pattern}
	if disposition == DispositionAllow {
		rule.Allow = roles
	} else {
		rule.Deny = roles
	}
	s.rules = append(s.rules, rule)
	s.ruleIndex[pattern] = len(s.rules) - 1
	return true
}

// defaultFor returns the per-role override when present, else the general
// default.
func (s *snapshot) defaultFor(role string) string {
	if role != "" {
		if uri, ok := s.roleDefaults[role]; ok {
			return uri
		}
	}
	return s.defaultURI
}

// configured reports whether the general default route has been set.
func (s *snapshot) configured() bool {
	return s.defaultURI != ""
}

// fingerprint hashes the full configuration content: the default route,
// the per-role overrides in sorted order, and the rule table in
// registration order. Cached decisions keyed on it survive a snapshot
// swap only when the configuration is byte-for-byte the same, including
// across filter instances sharing one backing cache.
func (s *snapshot) fingerprint() string {
	h := sha256.New()
	h.Write([]byte(s.defaultURI))

	roles := make([]string, 0, len(s.roleDefaults))
	for role := range s.roleDefaults {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		h.Write([]byte{0})
		h.Write([]byte(role))
		h.Write([]byte{'='})
		h.Write([]byte(s.roleDefaults[role]))
	}

	for _, rule := range s.rules {
		h.Write([]byte{0})
		h.Write([]byte(rule.Pattern))
		h.Write([]byte{0})
		h.Write([]byte(rule.Disposition()))
		for _, role := range rule.Allow {
			h.Write([]byte{0})
			h.Write([]byte(role))
		}
		for _, role := range rule.Deny {
			h.Write([]byte{0})
			h.Write([]byte(role))
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// counts returns the number of allow and deny rules.
func (s *snapshot) counts() (allow, deny int) {
	for _, rule := range s.rules {
		if rule.Disposition() == DispositionAllow {
			allow++
		} else {
			deny++
		}
	}
	return allow, deny
}
