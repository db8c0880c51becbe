package authz

// defaultAllowed lists the cells allowed by the built-in profiles. Every
// other catalog cell of a seeded role is stored as denied.
var defaultAllowed = map[Role]map[Module][]Action{
	RoleManager: {
		ModuleSales:     {ActionViewOwn, ActionViewBranch, ActionViewCompany, ActionCreate, ActionEdit},
		ModulePOS:       {ActionViewOwn, ActionViewBranch, ActionCreate, ActionEdit},
		ModulePurchase:  {ActionViewBranch, ActionCreate, ActionEdit, ActionReceive},
		ModuleStudio:    {ActionViewOwn, ActionViewBranch, ActionCreate, ActionEdit, ActionModify},
		ModuleRentals:   {ActionViewOwn, ActionViewBranch, ActionCreate, ActionEdit, ActionReceive, ActionModify},
		ModulePayments:  {ActionViewBranch, ActionReceive, ActionEdit},
		ModuleLedger:    {ActionViewCustomer, ActionViewSupplier},
		ModuleInventory: {ActionViewBranch, ActionViewCompany, ActionEdit},
		ModuleContacts:  {ActionViewOwn, ActionViewBranch, ActionViewCompany, ActionCreate, ActionEdit},
		ModuleReports:   {ActionViewBranch},
	},
	RoleUser: {
		ModuleSales:    {ActionViewOwn, ActionCreate},
		ModulePOS:      {ActionViewOwn, ActionCreate},
		ModuleRentals:  {ActionViewOwn, ActionCreate},
		ModulePayments: {ActionReceive},
		ModuleContacts: {ActionViewOwn, ActionCreate},
	},
}

// DefaultGrants returns a catalog-complete seed matrix for role. Bypass
// roles are seeded all-allowed so matrix views read sensibly; the evaluator
// ignores their rows either way.
func DefaultGrants(catalog *Catalog, role Role) []Grant {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	profile := defaultAllowed[role]
	grants := make([]Grant, 0, catalog.Cells())
	for _, module := range catalog.Modules() {
		allowed := make(map[Action]bool, len(profile[module]))
		for _, a := range profile[module] {
			allowed[a] = true
		}
		for _, action := range catalog.Actions(module) {
			grants = append(grants, Grant{
				Role:    role,
				Module:  module,
				Action:  action,
				Allowed: role.Bypass() || allowed[action],
			})
		}
	}
	return grants
}
