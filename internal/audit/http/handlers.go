package audithttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proteamcare/access-engine/internal/audit"
	"github.com/proteamcare/access-engine/internal/platform/httpx"
	"github.com/proteamcare/access-engine/internal/shared"
)

// Handler exposes the audit query surface.
type Handler struct {
	logger *slog.Logger
	reader *audit.Reader
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, reader *audit.Reader) *Handler {
	return &Handler{logger: logger, reader: reader}
}

// MountRoutes registers the audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.query)
}

type queryResponse struct {
	Records []audit.Record   `json:"records"`
	Paging  audit.PagingInfo `json:"paging"`
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.ActorFromContext(r.Context()); !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	filter := audit.Filter{
		ActorID:  parseInt(r.URL.Query().Get("actor_id")),
		TargetID: parseInt(r.URL.Query().Get("target_id")),
		Page:     int(parseInt(r.URL.Query().Get("page"))),
		PageSize: int(parseInt(r.URL.Query().Get("page_size"))),
	}
	if from := parseTime(r.URL.Query().Get("from")); !from.IsZero() {
		filter.From = from
	}
	if to := parseTime(r.URL.Query().Get("to")); !to.IsZero() {
		filter.To = to
	}

	records, paging, err := h.reader.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	httpx.JSON(w, http.StatusOK, queryResponse{Records: records, Paging: paging})
}

func parseInt(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
