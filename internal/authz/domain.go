// Package authz decides whether an actor may perform an action on an ERP
// module. It owns the role and module/action catalogs, the grant store
// port, the branch resolver, the evaluator and the policy simulator.
package authz

import "time"

// Role is a canonical engine role.
type Role string

// Canonical roles, highest privilege first.
const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// Module identifies a business module from the closed catalog.
type Module string

// Catalog modules.
const (
	ModuleSales     Module = "sales"
	ModulePOS       Module = "pos"
	ModulePurchase  Module = "purchase"
	ModuleStudio    Module = "studio"
	ModuleRentals   Module = "rentals"
	ModulePayments  Module = "payments"
	ModuleLedger    Module = "ledger"
	ModuleInventory Module = "inventory"
	ModuleContacts  Module = "contacts"
	ModuleReports   Module = "reports"
	ModuleUsers     Module = "users"
	ModuleSettings  Module = "settings"
)

// Action identifies an operation from the shared action vocabulary.
// Visibility scopes (own/branch/company) are encoded as distinct actions.
type Action string

// Shared action vocabulary.
const (
	ActionViewOwn            Action = "view_own"
	ActionViewBranch         Action = "view_branch"
	ActionViewCompany        Action = "view_company"
	ActionCreate             Action = "create"
	ActionEdit               Action = "edit"
	ActionDelete             Action = "delete"
	ActionReceive            Action = "receive"
	ActionModify             Action = "modify"
	ActionViewCustomer       Action = "view_customer"
	ActionViewSupplier       Action = "view_supplier"
	ActionViewFullAccounting Action = "view_full_accounting"
)

// Grant is a stored (role, module, action) decision.
type Grant struct {
	Role    Role   `json:"role"`
	Module  Module `json:"module"`
	Action  Action `json:"action"`
	Allowed bool   `json:"allowed"`
}

// Key returns the uniqueness key of the grant.
func (g Grant) Key() GrantKey {
	return GrantKey{Role: g.Role, Module: g.Module, Action: g.Action}
}

// GrantKey addresses one cell of the permission matrix.
type GrantKey struct {
	Role   Role   `json:"role"`
	Module Module `json:"module"`
	Action Action `json:"action"`
}

// String renders the key as role:module:action.
func (k GrantKey) String() string {
	return string(k.Role) + ":" + string(k.Module) + ":" + string(k.Action)
}

// GrantState is the lifecycle state of a matrix cell.
type GrantState int

// Grant states. A cell never returns to GrantUnset once set.
const (
	GrantUnset GrantState = iota
	GrantAllowed
	GrantDenied
)

// String implements fmt.Stringer.
func (s GrantState) String() string {
	switch s {
	case GrantAllowed:
		return "allowed"
	case GrantDenied:
		return "denied"
	default:
		return "unset"
	}
}

// StateOf maps an allowed flag to its stored state.
func StateOf(allowed bool) GrantState {
	if allowed {
		return GrantAllowed
	}
	return GrantDenied
}

// Actor is the directory view of a user consumed by the engine.
type Actor struct {
	ID      string `json:"id"`
	RawRole string `json:"raw_role"`
	Active  bool   `json:"active"`
}

// Branch is a location an actor may be assigned to.
type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Reason explains a Decision.
type Reason string

// Decision reasons.
const (
	ReasonExplicitGrant       Reason = "explicit_grant"
	ReasonExplicitDeny        Reason = "explicit_deny"
	ReasonDefaultDeny         Reason = "default_deny"
	ReasonRoleBypass          Reason = "role_bypass"
	ReasonBranchDenied        Reason = "branch_denied"
	ReasonInactiveActor       Reason = "inactive_actor"
	ReasonUnknownModuleAction Reason = "unknown_module_action"
)

// Decision is the always-produced result of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
	ActorID string `json:"actor_id"`
	Role    Role   `json:"role,omitempty"`
	Module  Module `json:"module"`
	Action  Action `json:"action"`
	Branch  string `json:"branch,omitempty"`
}

// DashboardSummary aggregates matrix and directory counts for admin views.
type DashboardSummary struct {
	TotalRoles     int          `json:"total_roles"`
	ActiveActors   int          `json:"active_actors"`
	Branches       int          `json:"branches"`
	AllowedGrants  int          `json:"allowed_grants"`
	TotalGrants    int          `json:"total_grants"`
	ActorsByRole   map[Role]int `json:"actors_by_role"`
	CatalogVersion string       `json:"catalog_version"`
	GeneratedAt    time.Time    `json:"generated_at"`
}
