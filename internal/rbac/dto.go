package rbac

import "github.com/odyssey-erp/odyssey-authz/internal/authz"

type evaluateRequest struct {
	ActorID string `json:"actor_id" validate:"required,max=128"`
	Module  string `json:"module" validate:"required,max=64"`
	Action  string `json:"action" validate:"required,max=64"`
	Branch  string `json:"branch" validate:"omitempty,max=128"`
}

type setGrantRequest struct {
	Allowed *bool `json:"allowed" validate:"required"`
}

type batchUpdate struct {
	Module  string `json:"module" validate:"required,max=64"`
	Action  string `json:"action" validate:"required,max=64"`
	Allowed *bool  `json:"allowed" validate:"required"`
}

type batchRequest struct {
	Updates []batchUpdate `json:"updates" validate:"required,min=1,max=500,dive"`
}

func (b batchRequest) toUpdates() []authz.GrantUpdate {
	out := make([]authz.GrantUpdate, 0, len(b.Updates))
	for _, u := range b.Updates {
		out = append(out, authz.GrantUpdate{
			Module:  authz.Module(u.Module),
			Action:  authz.Action(u.Action),
			Allowed: *u.Allowed,
		})
	}
	return out
}

type catalogResponse struct {
	Version string             `json:"version"`
	Modules []authz.ModuleInfo `json:"modules"`
}

type seedQueuedResponse struct {
	Role   authz.Role `json:"role"`
	TaskID string     `json:"task_id"`
	Status string     `json:"status"`
}
