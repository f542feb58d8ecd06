package authzhttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/proteamcare/access-engine/internal/audit"
	"github.com/proteamcare/access-engine/internal/authz"
	"github.com/proteamcare/access-engine/internal/platform/httpx"
	"github.com/proteamcare/access-engine/internal/shared"
)

// Handler exposes permission resolution and cache invalidation endpoints.
type Handler struct {
	logger   *slog.Logger
	resolver *authz.Resolver
	cache    *authz.Cache
	recorder *audit.Recorder
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, resolver *authz.Resolver, cache *authz.Cache, recorder *audit.Recorder) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
		cache:    cache,
		recorder: recorder,
		validate: validator.New(),
	}
}

// MountRoutes registers the authz routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions/{userID}", h.resolvePermissions)
	r.Post("/internal/invalidate", h.invalidate)
}

type contextQuery struct {
	ContextType string `validate:"required,oneof=system company establishment"`
	ContextID   int64  `validate:"gte=0"`
}

// ScopeFromRequest parses and validates the context tuple carried in query
// parameters. Shared by the menu and isolation handlers.
func ScopeFromRequest(r *http.Request, validate *validator.Validate) (authz.Context, error) {
	q := contextQuery{ContextType: r.URL.Query().Get("context_type")}
	if raw := r.URL.Query().Get("context_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return authz.Context{}, shared.ErrInvalidContext
		}
		q.ContextID = id
	}
	if err := validate.Struct(q); err != nil {
		return authz.Context{}, shared.ErrInvalidContext
	}
	return authz.ParseContext(q.ContextType, q.ContextID)
}

// TargetFromRequest parses the {userID} path parameter.
func TargetFromRequest(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrUserNotFound
	}
	return id, nil
}

type resolveResponse struct {
	User        authz.UserInfo      `json:"user"`
	Scope       authz.Context       `json:"context"`
	Permissions authz.PermissionSet `json:"permissions"`
}

func (h *Handler) resolvePermissions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	targetID, err := TargetFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	scope, err := ScopeFromRequest(r, h.validate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	granted, user, err := h.resolver.Resolve(r.Context(), targetID, scope)
	if err != nil {
		h.logger.Warn("resolve permissions", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	rec := audit.Record{
		ActorID:  actorID,
		TargetID: targetID,
		Scope:    scope,
		Action:   audit.ActionResolvePermissions,
		Decision: audit.DecisionAllow,
	}
	if actorID != targetID {
		// One user inspecting another's resolved permissions: the record
		// must be durable before the response.
		if err := h.recorder.Record(r.Context(), rec); err != nil {
			h.logger.Error("audit record", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	} else {
		h.recorder.RecordAsync(r.Context(), rec)
	}

	httpx.JSON(w, http.StatusOK, resolveResponse{User: user, Scope: scope, Permissions: granted})
}

type invalidateRequest struct {
	UserID int64  `json:"user_id" validate:"omitempty,gt=0"`
	Scope  string `json:"scope" validate:"omitempty,oneof=catalog"`
}

// invalidate accepts mutation signals from the permission store owner: a
// role-assignment change names the affected user, a role or permission
// definition change invalidates the whole catalog.
func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	var req invalidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil || (req.UserID == 0 && req.Scope == "") {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "user_id or scope=catalog required")
		return
	}

	var err error
	if req.UserID > 0 {
		err = h.cache.InvalidateUser(r.Context(), req.UserID)
	} else {
		err = h.cache.InvalidateCatalog(r.Context())
	}
	if err != nil {
		h.logger.Error("cache invalidate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.recorder.RecordAsync(r.Context(), audit.Record{
		ActorID:  actorID,
		TargetID: req.UserID,
		Scope:    authz.SystemContext(),
		Action:   audit.ActionCacheInvalidate,
		Decision: audit.DecisionAllow,
	})
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "invalidated"})
}
