package auth

import (
	"sort"
	"strings"
)

// Scope names understood by the API
const (
	ScopeAdmin        = "admin"
	ScopeUser         = "user"
	ScopeReadUser     = "read:user"
	ScopeUserEmail    = "user:email"
	ScopeReadEvents   = "read:events"
	ScopeManageEvents = "manage:events"
	ScopeReadGroups   = "read:groups"
	ScopeManageGroups = "manage:groups"
	ScopeReadBadges   = "read:badges"
	ScopeManageBadges = "manage:badges"
)

// scopeImplies is the static implication table. "admin" is special-cased in
// Expand and implies every known scope. The relation must stay acyclic.
var scopeImplies = map[string][]string{
	ScopeUser:         {ScopeReadUser, ScopeUserEmail},
	ScopeManageEvents: {ScopeReadEvents},
	ScopeManageGroups: {ScopeReadGroups},
	ScopeManageBadges: {ScopeReadBadges},
}

// scopeAliases maps legacy/OIDC-style tokens onto canonical scopes. Aliases
// are rewritten before implication expansion.
var scopeAliases = map[string]string{
	"profile":      ScopeUser,
	"email":        ScopeUserEmail,
	"events:read":  ScopeReadEvents,
	"groups:read":  ScopeReadGroups,
	"badges:read":  ScopeReadBadges,
	"events:write": ScopeManageEvents,
	"groups:write": ScopeManageGroups,
}

// knownScopes is the full scope universe, built once at init
var knownScopes = buildKnownScopes()

func buildKnownScopes() map[string]bool {
	known := map[string]bool{
		ScopeAdmin:        true,
		ScopeUser:         true,
		ScopeReadUser:     true,
		ScopeUserEmail:    true,
		ScopeReadEvents:   true,
		ScopeManageEvents: true,
		ScopeReadGroups:   true,
		ScopeManageGroups: true,
		ScopeReadBadges:   true,
		ScopeManageBadges: true,
	}
	return known
}

// KnownScopes returns the sorted universe of native scopes
func KnownScopes() []string {
	scopes := make([]string, 0, len(knownScopes))
	for s := range knownScopes {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes
}

// Canonical rewrites an alias token to its canonical scope. Unknown tokens
// pass through untouched.
func Canonical(scope string) string {
	if canonical, ok := scopeAliases[scope]; ok {
		return canonical
	}
	return scope
}

// IsKnownScope reports whether the token names a native scope, directly or
// through an alias.
func IsKnownScope(scope string) bool {
	return knownScopes[Canonical(scope)]
}

// Expand returns the transitive closure of the given scopes under the
// implication relation, including the (canonicalized) input itself.
// Unknown tokens are kept as opaque members but expand to nothing.
// Expand is idempotent: Expand(Expand(s)) == Expand(s).
func Expand(scopes []string) []string {
	seen := make(map[string]bool, len(scopes))
	queue := make([]string, 0, len(scopes))
	for _, s := range scopes {
		queue = append(queue, Canonical(s))
	}

	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true

		if s == ScopeAdmin {
			for k := range knownScopes {
				if !seen[k] {
					queue = append(queue, k)
				}
			}
			continue
		}
		for _, implied := range scopeImplies[s] {
			if !seen[implied] {
				queue = append(queue, implied)
			}
		}
	}

	expanded := make([]string, 0, len(seen))
	for s := range seen {
		expanded = append(expanded, s)
	}
	sort.Strings(expanded)
	return expanded
}

// Has reports whether the required scope is within the transitive closure of
// the granted scopes.
func Has(scopes []string, required string) bool {
	required = Canonical(required)
	for _, s := range Expand(scopes) {
		if s == required {
			return true
		}
	}
	return false
}

// SplitScopes splits a space-separated scope string, dropping empty tokens
func SplitScopes(scope string) []string {
	var scopes []string
	for _, s := range strings.Fields(scope) {
		scopes = append(scopes, s)
	}
	return scopes
}

// JoinScopes joins scopes back into the space-separated wire form
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ContainsScopeWord reports whether the space-delimited scope string contains
// the exact token, matching on word boundaries only. "openid_connect" does not
// match "openid".
func ContainsScopeWord(scope, token string) bool {
	for _, s := range strings.Fields(scope) {
		if s == token {
			return true
		}
	}
	return false
}
