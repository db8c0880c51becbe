package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
)

// Request headers carrying the already-authenticated caller.
const (
	ActorHeader  = "X-Actor-ID"
	BranchHeader = "X-Branch-ID"
)

// Decider answers point authorization requests.
type Decider interface {
	Evaluate(ctx context.Context, actorID string, module authz.Module, action authz.Action, branch string) (authz.Decision, error)
}

type decisionKey struct{}

// ContextWithDecision stores the decision that admitted the request.
func ContextWithDecision(ctx context.Context, d authz.Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext returns the admitting decision, if any.
func DecisionFromContext(ctx context.Context) (authz.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(authz.Decision)
	return d, ok
}

// Middleware wires authorization checks for HTTP handlers.
type Middleware struct {
	Service Decider
	Logger  *slog.Logger
}

// RequirePermission admits the request only when the caller in ActorHeader
// is allowed (module, action), optionally at the branch in BranchHeader.
// A nil Service disables the check.
func (m Middleware) RequirePermission(module authz.Module, action authz.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Service == nil {
				next.ServeHTTP(w, r)
				return
			}
			actorID := strings.TrimSpace(r.Header.Get(ActorHeader))
			if actorID == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing "+ActorHeader)
				return
			}
			branch := strings.TrimSpace(r.Header.Get(BranchHeader))
			d, err := m.Service.Evaluate(r.Context(), actorID, module, action, branch)
			if err != nil {
				if errors.Is(err, authz.ErrActorNotFound) {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", string(authz.ReasonDefaultDeny))
					return
				}
				m.logError("rbac require permission", err)
				httpx.RespondError(w, err)
				return
			}
			if !d.Allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", string(d.Reason))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), d)))
		})
	}
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
