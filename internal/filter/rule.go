package filter

// Disposition indicates whether a rule's role list allows or denies.
type Disposition string

// Rule dispositions.
const (
	DispositionAllow Disposition = "allow"
	DispositionDeny  Disposition = "deny"
)

// Rule associates a URI pattern with a role list. Exactly one of Allow
// and Deny is populated.
type Rule struct {
	// Pattern is the regular expression matched unanchored against the
	// request path.
	Pattern string

	// Allow lists the only roles permitted on matching paths.
	Allow []string

	// Deny lists the roles forbidden on matching paths.
	Deny []string
}

// Disposition returns the rule's disposition.
func (r Rule) Disposition() Disposition {
	if r.Allow != nil {
		return DispositionAllow
	}
	return DispositionDeny
}

// permits reports whether the rule lets the role through. A role passes
// when it is on the allow-list (or the rule has none) and not on the
// deny-list.
func (r Rule) permits(role string) bool {
	allowed := r.Allow == nil || containsRole(r.Allow, role)
	denied := r.Deny != nil && containsRole(r.Deny, role)
	return allowed && !denied
}

// containsRole checks role membership in a list.
func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// normalizeRoles deduplicates a role list preserving first-seen order.
// A single role argument arrives here as a one-element slice.
func normalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
