package authz

import (
	"strings"

	"golang.org/x/text/cases"
)

// roleSynonyms is the single mapping from directory labels to canonical
// roles. Keys are case-folded with internal whitespace, dashes and
// underscores collapsed to a single space.
var roleSynonyms = map[string]Role{
	"owner":       RoleOwner,
	"admin":       RoleAdmin,
	"superadmin":  RoleAdmin,
	"super admin": RoleAdmin,
	"manager":     RoleManager,
	"accountant":  RoleManager,
	"user":        RoleUser,
	"salesman":    RoleUser,
	"salesperson": RoleUser,
}

// Normalize maps a raw directory role label onto the role catalog. Unknown
// and empty labels degrade to RoleUser, never to a more privileged role.
func Normalize(raw string) Role {
	key := canonicalLabel(raw)
	if role, ok := roleSynonyms[key]; ok {
		return role
	}
	return RoleUser
}

func canonicalLabel(raw string) string {
	// Casers carry state and must not be shared across goroutines.
	folded := cases.Fold().String(strings.TrimSpace(raw))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '-' || r == '_'
	})
	return strings.Join(fields, " ")
}
