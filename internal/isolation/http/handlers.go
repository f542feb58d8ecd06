package isolationhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/proteamcare/access-engine/internal/audit"
	"github.com/proteamcare/access-engine/internal/authz"
	authzhttp "github.com/proteamcare/access-engine/internal/authz/http"
	"github.com/proteamcare/access-engine/internal/isolation"
	"github.com/proteamcare/access-engine/internal/platform/httpx"
	"github.com/proteamcare/access-engine/internal/shared"
)

// Resolver is the slice of the authz resolver the isolation surface needs.
type Resolver interface {
	Resolve(ctx context.Context, userID int64, scope authz.Context) (authz.PermissionSet, authz.UserInfo, error)
	ActiveAssignments(ctx context.Context, userID int64) ([]authz.RoleAssignment, error)
}

// Handler exposes the isolation-predicate endpoint.
type Handler struct {
	logger   *slog.Logger
	resolver Resolver
	recorder *audit.Recorder
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, resolver Resolver, recorder *audit.Recorder) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
		recorder: recorder,
		validate: validator.New(),
	}
}

// MountRoutes registers the isolation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/isolation/{userID}", h.buildPredicate)
}

type predicateResponse struct {
	User      authz.UserInfo      `json:"user"`
	Scope     authz.Context       `json:"context"`
	Resource  string              `json:"resource"`
	Predicate isolation.Predicate `json:"predicate"`
}

func (h *Handler) buildPredicate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	targetID, err := authzhttp.TargetFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	scope, err := authzhttp.ScopeFromRequest(r, h.validate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resource, err := isolation.ParseResourceKind(r.URL.Query().Get("resource"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	_, user, err := h.resolver.Resolve(r.Context(), targetID, scope)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	assignments, err := h.resolver.ActiveAssignments(r.Context(), targetID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	predicate, err := isolation.Build(user, assignments, scope, resource)
	if err != nil {
		if errors.Is(err, shared.ErrIsolationViolation) {
			// Fail closed: record with high severity and return a generic
			// server error. The violation itself never reaches the caller.
			h.logger.Error("isolation violation",
				slog.Int64("actor", actorID),
				slog.Int64("target", targetID),
				slog.String("scope", scope.String()),
				slog.String("resource", string(resource)))
			if recErr := h.recorder.Record(r.Context(), audit.Record{
				ActorID:  actorID,
				TargetID: targetID,
				Scope:    scope,
				Action:   audit.ActionIsolationBuild,
				Decision: audit.DecisionViolation,
			}); recErr != nil {
				h.logger.Error("audit record", slog.Any("error", recErr))
			}
		}
		httpx.RespondError(w, err)
		return
	}

	rec := audit.Record{
		ActorID:  actorID,
		TargetID: targetID,
		Scope:    scope,
		Action:   audit.ActionIsolationBuild,
		Decision: audit.DecisionAllow,
	}
	if predicate.IsUnrestricted() {
		rec.Decision = audit.DecisionUnrestricted
	}
	if actorID != targetID || predicate.IsUnrestricted() {
		// Unrestricted predicates and cross-user builds are durable before
		// the response completes.
		if err := h.recorder.Record(r.Context(), rec); err != nil {
			h.logger.Error("audit record", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	} else {
		h.recorder.RecordAsync(r.Context(), rec)
	}

	httpx.JSON(w, http.StatusOK, predicateResponse{
		User:      user,
		Scope:     scope,
		Resource:  string(resource),
		Predicate: predicate,
	})
}
