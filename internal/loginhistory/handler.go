package loginhistory

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

type Lister interface {
	List(ctx context.Context, userID *uuid.UUID, limit int) ([]Entry, error)
}

type Handler struct {
	entries Lister
	logger  *observability.Logger
}

func NewHandler(entries Lister, logger *observability.Logger) *Handler {
	return &Handler{entries: entries, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteMessage(w, http.StatusBadRequest, "invalid_user_id")
			return
		}
		userID = &parsed
	}

	entries, err := h.entries.List(r.Context(), userID, httpx.QueryLimit(r, 500, 5000))
	if err != nil {
		observability.CaptureError(h.logger, "list_login_history_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_list_login_history")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, entries)
}
