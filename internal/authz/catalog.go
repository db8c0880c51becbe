package authz

import (
	"slices"
	"strings"
)

// CatalogVersion identifies the shipped module/action table. Bump it
// whenever a module or action is added or retired.
const CatalogVersion = "2026.10"

// RoleInfo describes a catalog role.
type RoleInfo struct {
	ID          Role   `json:"id"`
	Label       string `json:"label"`
	Level       int    `json:"level"`
	Description string `json:"description"`
}

var roleCatalog = []RoleInfo{
	{ID: RoleOwner, Label: "Owner", Level: 4, Description: "Full company access, all branches, all modules"},
	{ID: RoleAdmin, Label: "Admin", Level: 3, Description: "Full company access, can manage users and configure the system"},
	{ID: RoleManager, Label: "Manager", Level: 2, Description: "Assigned branches, configurable module access"},
	{ID: RoleUser, Label: "User (Salesman)", Level: 1, Description: "Assigned branches, configurable sales view, can receive payments"},
}

// Roles returns the role catalog ordered from highest to lowest privilege.
func Roles() []RoleInfo {
	return slices.Clone(roleCatalog)
}

// Info returns catalog metadata for the role.
func (r Role) Info() (RoleInfo, bool) {
	for _, info := range roleCatalog {
		if info.ID == r {
			return info, true
		}
	}
	return RoleInfo{}, false
}

// Level returns the privilege level, zero for roles outside the catalog.
func (r Role) Level() int {
	info, _ := r.Info()
	return info.Level
}

// Valid reports whether r is a canonical role.
func (r Role) Valid() bool {
	_, ok := r.Info()
	return ok
}

// Bypass reports whether the role structurally skips the grant matrix.
func (r Role) Bypass() bool {
	return r == RoleOwner || r == RoleAdmin
}

// ParseRole accepts only canonical role ids (case-insensitive). Use
// Normalize for directory labels.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", invalidGrant("role %q", raw)
	}
	return r, nil
}

type moduleSpec struct {
	module  Module
	label   string
	actions []Action
}

var moduleCatalog = []moduleSpec{
	{ModuleSales, "Sales", []Action{ActionViewOwn, ActionViewBranch, ActionViewCompany, ActionCreate, ActionEdit, ActionDelete}},
	{ModulePOS, "POS", []Action{ActionViewOwn, ActionViewBranch, ActionViewCompany, ActionCreate, ActionEdit}},
	{ModulePurchase, "Purchase", []Action{ActionViewBranch, ActionViewCompany, ActionCreate, ActionEdit, ActionDelete, ActionReceive}},
	{ModuleStudio, "Studio", []Action{ActionViewOwn, ActionViewBranch, ActionViewCompany, ActionCreate, ActionEdit, ActionModify}},
	{ModuleRentals, "Rentals", []Action{ActionViewOwn, ActionViewBranch, ActionViewCompany, ActionCreate, ActionEdit, ActionDelete, ActionReceive, ActionModify}},
	{ModulePayments, "Payments", []Action{ActionViewBranch, ActionViewCompany, ActionReceive, ActionEdit, ActionDelete}},
	{ModuleLedger, "Ledger", []Action{ActionViewCustomer, ActionViewSupplier, ActionViewFullAccounting}},
	{ModuleInventory, "Inventory", []Action{ActionViewBranch, ActionViewCompany, ActionEdit, ActionModify}},
	{ModuleContacts, "Contacts", []Action{ActionViewOwn, ActionViewBranch, ActionViewCompany, ActionCreate, ActionEdit, ActionDelete}},
	{ModuleReports, "Reports", []Action{ActionViewBranch, ActionViewCompany}},
	{ModuleUsers, "Users", []Action{ActionViewCompany, ActionCreate, ActionEdit, ActionDelete}},
	{ModuleSettings, "Settings", []Action{ActionViewCompany, ActionModify}},
}

// ModuleInfo is the public view of a catalog module.
type ModuleInfo struct {
	ID      Module   `json:"id"`
	Label   string   `json:"label"`
	Actions []Action `json:"actions"`
}

// Catalog is the immutable module/action table. The zero value is not
// usable; use DefaultCatalog.
type Catalog struct {
	version string
	order   []Module
	labels  map[Module]string
	actions map[Module][]Action
	index   map[Module]map[Action]struct{}
}

var defaultCatalog = buildCatalog(CatalogVersion, moduleCatalog)

// DefaultCatalog returns the shipped catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

func buildCatalog(version string, specs []moduleSpec) *Catalog {
	c := &Catalog{
		version: version,
		labels:  make(map[Module]string, len(specs)),
		actions: make(map[Module][]Action, len(specs)),
		index:   make(map[Module]map[Action]struct{}, len(specs)),
	}
	for _, spec := range specs {
		c.order = append(c.order, spec.module)
		c.labels[spec.module] = spec.label
		c.actions[spec.module] = slices.Clone(spec.actions)
		set := make(map[Action]struct{}, len(spec.actions))
		for _, a := range spec.actions {
			set[a] = struct{}{}
		}
		c.index[spec.module] = set
	}
	return c
}

// Version returns the catalog version string.
func (c *Catalog) Version() string {
	return c.version
}

// Modules lists catalog modules in display order.
func (c *Catalog) Modules() []Module {
	return slices.Clone(c.order)
}

// Describe returns every module with its label and actions.
func (c *Catalog) Describe() []ModuleInfo {
	out := make([]ModuleInfo, 0, len(c.order))
	for _, m := range c.order {
		out = append(out, ModuleInfo{ID: m, Label: c.labels[m], Actions: slices.Clone(c.actions[m])})
	}
	return out
}

// HasModule reports whether the module is declared.
func (c *Catalog) HasModule(m Module) bool {
	_, ok := c.index[m]
	return ok
}

// Actions returns the declared actions of a module in catalog order, nil
// for unknown modules.
func (c *Catalog) Actions(m Module) []Action {
	return slices.Clone(c.actions[m])
}

// Declares reports whether (module, action) is part of the catalog.
func (c *Catalog) Declares(m Module, a Action) bool {
	set, ok := c.index[m]
	if !ok {
		return false
	}
	_, ok = set[a]
	return ok
}

// Cells returns the number of (module, action) pairs in the catalog.
func (c *Catalog) Cells() int {
	n := 0
	for _, actions := range c.actions {
		n += len(actions)
	}
	return n
}

// ValidateGrant checks that a grant tuple addresses a real matrix cell.
func (c *Catalog) ValidateGrant(key GrantKey) error {
	if !key.Role.Valid() {
		return invalidGrant("role %q", key.Role)
	}
	if !c.HasModule(key.Module) {
		return invalidGrant("module %q", key.Module)
	}
	if !c.Declares(key.Module, key.Action) {
		return invalidGrant("action %q on module %q", key.Action, key.Module)
	}
	return nil
}

// ParseModule resolves a module id (case-insensitive).
func (c *Catalog) ParseModule(raw string) (Module, error) {
	m := Module(strings.ToLower(strings.TrimSpace(raw)))
	if !c.HasModule(m) {
		return "", unknownModuleAction("module %q", raw)
	}
	return m, nil
}

// ParseAction resolves an action id declared for module.
func (c *Catalog) ParseAction(m Module, raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Declares(m, a) {
		return "", unknownModuleAction("action %q on module %q", raw, m)
	}
	return a, nil
}
