package menu

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	authzhttp "github.com/proteamcare/access-engine/internal/authz/http"
	"github.com/proteamcare/access-engine/internal/platform/httpx"
	"github.com/proteamcare/access-engine/internal/shared"
)

// Handler exposes the menu tree endpoint.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the menu routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/menus/{userID}", h.getMenuTree)
}

type treeResponse struct {
	Menu []*TreeNode `json:"menu"`
}

func (h *Handler) getMenuTree(w http.ResponseWriter, r *http.Request) {
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
	includeDev, _ := strconv.ParseBool(r.URL.Query().Get("include_dev"))

	tree, err := h.service.GetMenuTree(r.Context(), actorID, targetID, scope, includeDev)
	if err != nil {
		h.logger.Warn("menu tree", slog.Int64("target", targetID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if tree == nil {
		tree = []*TreeNode{}
	}
	httpx.JSON(w, http.StatusOK, treeResponse{Menu: tree})
}
