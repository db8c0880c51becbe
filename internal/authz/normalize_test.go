package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSynonyms(t *testing.T) {
	cases := map[string]Role{
		"owner":        RoleOwner,
		"OWNER":        RoleOwner,
		"Admin":        RoleAdmin,
		"superadmin":   RoleAdmin,
		"Super Admin":  RoleAdmin,
		"super_admin":  RoleAdmin,
		"manager":      RoleManager,
		"Accountant":   RoleManager,
		"user":         RoleUser,
		"Salesman":     RoleUser,
		"SALESMAN":     RoleUser,
		"salesperson":  RoleUser,
		"  manager  ":  RoleManager,
		"":             RoleUser,
		"cashier":      RoleUser,
		"root":         RoleUser,
		"owner-admin":  RoleUser,
		"inventory":    RoleUser,
		"\tAdmin\n":    RoleAdmin,
		"SuperAdmin":   RoleAdmin,
		"ACCOUNTANT  ": RoleManager,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Normalize(raw), "normalize(%q)", raw)
	}
}

func TestNormalizeStability(t *testing.T) {
	assert.Equal(t, Normalize("Salesman"), Normalize("SALESMAN"))
	assert.Equal(t, Normalize("SALESMAN"), Normalize("salesperson"))
	assert.Equal(t, RoleUser, Normalize("salesperson"))
}

func TestNormalizeNeverEscalatesUnknownLabels(t *testing.T) {
	for _, raw := range []string{"owners", "admin1", "ädmin", "manager!", "ownr"} {
		role := Normalize(raw)
		assert.Equal(t, RoleUser, role, "normalize(%q)", raw)
		assert.False(t, role.Bypass())
	}
}
