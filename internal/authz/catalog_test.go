package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogShape(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, CatalogVersion, c.Version())
	assert.Len(t, c.Modules(), 12)
	assert.Equal(t, 57, c.Cells())
	assert.Equal(t, []Action{ActionViewCustomer, ActionViewSupplier, ActionViewFullAccounting}, c.Actions(ModuleLedger))
	assert.Nil(t, c.Actions("crm"))

	described := c.Describe()
	require.Len(t, described, 12)
	assert.Equal(t, ModuleSales, described[0].ID)
	assert.Equal(t, "Sales", described[0].Label)
}

func TestCatalogReturnsCopies(t *testing.T) {
	c := DefaultCatalog()
	actions := c.Actions(ModuleSales)
	actions[0] = "tampered"
	assert.Equal(t, ActionViewOwn, c.Actions(ModuleSales)[0])

	modules := c.Modules()
	modules[0] = "tampered"
	assert.Equal(t, ModuleSales, c.Modules()[0])
}

func TestCatalogDeclares(t *testing.T) {
	c := DefaultCatalog()
	assert.True(t, c.Declares(ModuleRentals, ActionModify))
	assert.False(t, c.Declares(ModuleLedger, ActionDelete))
	assert.False(t, c.Declares("crm", ActionEdit))
	assert.False(t, c.Declares(ModuleReports, ActionCreate))
}

func TestValidateGrant(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		name string
		key  GrantKey
		ok   bool
	}{
		{"valid", GrantKey{RoleManager, ModuleSales, ActionEdit}, true},
		{"bypass role storable", GrantKey{RoleOwner, ModuleSettings, ActionModify}, true},
		{"synonym role", GrantKey{"salesman", ModuleSales, ActionEdit}, false},
		{"unknown module", GrantKey{RoleUser, "crm", ActionEdit}, false},
		{"undeclared action", GrantKey{RoleUser, ModuleLedger, ActionDelete}, false},
		{"empty", GrantKey{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := c.ValidateGrant(tc.key)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidGrantTuple)
		})
	}
}

func TestParseHelpers(t *testing.T) {
	c := DefaultCatalog()

	role, err := ParseRole(" Manager ")
	require.NoError(t, err)
	assert.Equal(t, RoleManager, role)
	_, err = ParseRole("accountant")
	assert.ErrorIs(t, err, ErrInvalidGrantTuple)

	m, err := c.ParseModule("POS")
	require.NoError(t, err)
	assert.Equal(t, ModulePOS, m)
	_, err = c.ParseModule("crm")
	assert.ErrorIs(t, err, ErrUnknownModuleAction)

	a, err := c.ParseAction(ModulePOS, "view_branch")
	require.NoError(t, err)
	assert.Equal(t, ActionViewBranch, a)
	_, err = c.ParseAction(ModulePOS, "delete")
	assert.ErrorIs(t, err, ErrUnknownModuleAction)
}

func TestRoleCatalog(t *testing.T) {
	roles := Roles()
	require.Len(t, roles, 4)
	for i := 1; i < len(roles); i++ {
		assert.Greater(t, roles[i-1].Level, roles[i].Level)
	}
	assert.True(t, RoleOwner.Bypass())
	assert.True(t, RoleAdmin.Bypass())
	assert.False(t, RoleManager.Bypass())
	assert.False(t, RoleUser.Bypass())
	assert.Zero(t, Role("guest").Level())
}

func TestDefaultGrantsAreCatalogComplete(t *testing.T) {
	c := DefaultCatalog()
	for _, info := range Roles() {
		grants := DefaultGrants(c, info.ID)
		require.Len(t, grants, c.Cells())
		seen := make(map[GrantKey]struct{}, len(grants))
		for _, g := range grants {
			require.NoError(t, c.ValidateGrant(g.Key()))
			seen[g.Key()] = struct{}{}
			if info.ID.Bypass() {
				assert.True(t, g.Allowed)
			}
		}
		assert.Len(t, seen, c.Cells())
	}

	allowed := map[GrantKey]bool{}
	for _, g := range DefaultGrants(c, RoleUser) {
		allowed[g.Key()] = g.Allowed
	}
	assert.True(t, allowed[GrantKey{RoleUser, ModulePayments, ActionReceive}])
	assert.False(t, allowed[GrantKey{RoleUser, ModuleUsers, ActionEdit}])
	assert.False(t, allowed[GrantKey{RoleUser, ModuleSales, ActionViewCompany}])
}
