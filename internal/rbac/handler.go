// Package rbac exposes the authorization engine over HTTP and provides
// middleware that guards routes with engine decisions.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
)

// SeedQueue defers default seeding to a background worker.
type SeedQueue interface {
	EnqueueSeedDefaults(ctx context.Context, role authz.Role) (string, error)
}

// Handler serves the authorization API.
type Handler struct {
	logger    *slog.Logger
	service   *authz.Service
	queue     SeedQueue
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler. queue may be nil, in which case seeding runs
// inline.
func NewHandler(logger *slog.Logger, service *authz.Service, queue SeedQueue, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		queue:     queue,
		rbac:      rbac,
		validator: validator.New(),
	}
}

// MountRoutes registers the API on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/catalog", h.catalog)
	r.Get("/roles", h.roles)
	r.Post("/evaluate", h.evaluate)
	r.Get("/simulate", h.simulate)
	r.Get("/policy", h.policy)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(authz.ModuleSettings, authz.ActionViewCompany))
		r.Get("/matrix/{role}", h.getMatrix)
		r.Get("/dashboard", h.dashboard)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(authz.ModuleSettings, authz.ActionModify))
		r.Put("/matrix/{role}/{module}/{action}", h.setGrant)
		r.Post("/matrix/{role}/batch", h.applyBatch)
		r.Post("/matrix/{role}/seed", h.seedDefaults)
	})
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	c := h.service.Catalog()
	httpx.JSON(w, http.StatusOK, catalogResponse{Version: c.Version(), Modules: c.Describe()})
}

func (h *Handler) roles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, authz.Roles())
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.Evaluate(r.Context(), req.ActorID, authz.Module(req.Module), authz.Action(req.Action), req.Branch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	actorID, module, ok := h.actorModuleQuery(w, r)
	if !ok {
		return
	}
	sim, err := h.service.Simulate(r.Context(), actorID, module)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sim)
}

func (h *Handler) policy(w http.ResponseWriter, r *http.Request) {
	actorID, module, ok := h.actorModuleQuery(w, r)
	if !ok {
		return
	}
	preview, err := h.service.PolicyPreview(r.Context(), actorID, module)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) getMatrix(w http.ResponseWriter, r *http.Request) {
	role, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	cells, err := h.service.Matrix(r.Context(), role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cells)
}

func (h *Handler) setGrant(w http.ResponseWriter, r *http.Request) {
	role, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	var req setGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	module := authz.Module(chi.URLParam(r, "module"))
	action := authz.Action(chi.URLParam(r, "action"))
	if err := h.service.SetGrant(r.Context(), role, module, action, *req.Allowed); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, authz.Grant{Role: role, Module: module, Action: action, Allowed: *req.Allowed})
}

func (h *Handler) applyBatch(w http.ResponseWriter, r *http.Request) {
	role, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.ApplyBatch(r.Context(), role, req.toUpdates()))
}

func (h *Handler) seedDefaults(w http.ResponseWriter, r *http.Request) {
	role, ok := h.roleParam(w, r)
	if !ok {
		return
	}
	requester := ""
	if d, ok := DecisionFromContext(r.Context()); ok {
		requester = d.ActorID
	}
	if h.queue != nil {
		taskID, err := h.queue.EnqueueSeedDefaults(r.Context(), role)
		if err != nil {
			h.logger.Error("enqueue seed defaults", slog.String("role", string(role)), slog.Any("error", err))
			httpx.RespondError(w, fmt.Errorf("%w: %w", authz.ErrStoreUnavailable, err))
			return
		}
		h.logger.Info("seed defaults queued", slog.String("role", string(role)), slog.String("task_id", taskID), slog.String("requested_by", requester))
		httpx.JSON(w, http.StatusAccepted, seedQueuedResponse{Role: role, TaskID: taskID, Status: "queued"})
		return
	}
	res, err := h.service.SeedDefaults(r.Context(), role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("seed defaults applied", slog.String("role", string(role)), slog.Int("applied", res.Applied), slog.Int("failed", res.Failed), slog.String("requested_by", requester))
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Dashboard(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) roleParam(w http.ResponseWriter, r *http.Request) (authz.Role, bool) {
	role, err := authz.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return "", false
	}
	return role, true
}

func (h *Handler) actorModuleQuery(w http.ResponseWriter, r *http.Request) (string, authz.Module, bool) {
	q := r.URL.Query()
	actorID := strings.TrimSpace(q.Get("actor_id"))
	module := strings.TrimSpace(q.Get("module"))
	if actorID == "" || module == "" {
		httpx.RespondError(w, fmt.Errorf("%w: actor_id and module are required", httpx.ErrValidation))
		return "", "", false
	}
	return actorID, authz.Module(module), true
}

// decode reads and validates a JSON body, writing the problem response on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
			}
			err = fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(msgs, "; "))
		} else {
			err = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
		}
		httpx.RespondError(w, err)
		return false
	}
	return true
}
