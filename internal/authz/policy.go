package authz

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// AccessLevel is the row visibility a simulation implies for a module.
type AccessLevel string

// Access levels, widest first.
const (
	AccessCompanyWide AccessLevel = "company_wide"
	AccessBranchLevel AccessLevel = "branch_level"
	AccessOwnRecords  AccessLevel = "own_records"
	AccessDenied      AccessLevel = "denied"
)

// PolicyPreview is a row-level-security statement authored from a
// simulation. The engine never applies it; storage-level enforcement is
// owned elsewhere.
type PolicyPreview struct {
	Simulation  Simulation  `json:"simulation"`
	AccessLevel AccessLevel `json:"access_level"`
	PolicyName  string      `json:"policy_name"`
	Statement   string      `json:"statement"`
	CanCreate   bool        `json:"can_create"`
	CanEdit     bool        `json:"can_edit"`
	CanDelete   bool        `json:"can_delete"`
}

// ClassifyAccess derives the access level from a simulation. Bypass roles
// are always company wide.
func ClassifyAccess(sim Simulation) AccessLevel {
	switch {
	case sim.Role.Bypass() && len(sim.Allowed) > 0:
		return AccessCompanyWide
	case sim.Allows(ActionViewCompany):
		return AccessCompanyWide
	case sim.Allows(ActionViewBranch):
		return AccessBranchLevel
	case sim.Allows(ActionViewOwn):
		return AccessOwnRecords
	default:
		return AccessDenied
	}
}

var policyTemplates = template.Must(template.New("policy").Parse(`
{{- define "company_wide" -}}
-- Row level security for {{.RoleUpper}} on {{.Table}}: company wide
CREATE POLICY "{{.Name}}"
ON {{.Table}}
FOR SELECT
USING (
  company_id = current_company_id()
);
{{- end -}}
{{- define "branch_level" -}}
-- Row level security for {{.RoleUpper}} on {{.Table}}: assigned branches
CREATE POLICY "{{.Name}}"
ON {{.Table}}
FOR SELECT
USING (
  branch_id IN (
    SELECT branch_id
    FROM user_branches
    WHERE user_id = auth.uid()
  )
);
{{- if .Branches}}
-- Assigned branches: {{.Branches}}{{end}}
{{- end -}}
{{- define "own_records" -}}
-- Row level security for {{.RoleUpper}} on {{.Table}}: own records
CREATE POLICY "{{.Name}}"
ON {{.Table}}
FOR SELECT
USING (
  created_by = auth.uid()
);
{{- end -}}
{{- define "denied" -}}
-- Row level security for {{.RoleUpper}} on {{.Table}}: no access
CREATE POLICY "{{.Name}}"
ON {{.Table}}
FOR SELECT
USING (false);
{{- end -}}
`))

type policyData struct {
	RoleUpper string
	Table     string
	Name      string
	Branches  string
}

// policySuffix names the generated policy per level.
var policySuffix = map[AccessLevel]string{
	AccessCompanyWide: "company_policy",
	AccessBranchLevel: "branch_policy",
	AccessOwnRecords:  "own_policy",
	AccessDenied:      "deny_policy",
}

// AuthorPolicy renders the policy statement for a simulation. branches is
// the actor's explicit assignment, used only as a trailing comment.
func AuthorPolicy(sim Simulation, branches BranchSet) (PolicyPreview, error) {
	level := ClassifyAccess(sim)
	name := fmt.Sprintf("%s_%s_%s", sim.Module, sim.Role, policySuffix[level])
	data := policyData{
		RoleUpper: strings.ToUpper(string(sim.Role)),
		Table:     string(sim.Module),
		Name:      name,
	}
	if level == AccessBranchLevel && !branches.All() {
		data.Branches = strings.Join(branches.IDs(), ", ")
	}
	var buf bytes.Buffer
	if err := policyTemplates.ExecuteTemplate(&buf, string(level), data); err != nil {
		return PolicyPreview{}, fmt.Errorf("authz: render policy: %w", err)
	}
	return PolicyPreview{
		Simulation:  sim,
		AccessLevel: level,
		PolicyName:  name,
		Statement:   buf.String(),
		CanCreate:   sim.Allows(ActionCreate),
		CanEdit:     sim.Allows(ActionEdit),
		CanDelete:   sim.Allows(ActionDelete),
	}, nil
}
