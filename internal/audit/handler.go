package audit

import (
	"context"
	"net/http"

	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

type Lister interface {
	List(ctx context.Context, limit int) ([]Entry, error)
}

type Handler struct {
	entries Lister
	logger  *observability.Logger
}

func NewHandler(entries Lister, logger *observability.Logger) *Handler {
	return &Handler{entries: entries, logger: logger}
}

// List serves the action log newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.List(r.Context(), httpx.QueryLimit(r, 500, 5000))
	if err != nil {
		observability.CaptureError(h.logger, "list_action_logs_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_list_logs")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, entries)
}
