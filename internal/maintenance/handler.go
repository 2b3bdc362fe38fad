package maintenance

import (
	"net/http"

	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

// CleanupHandler triggers a cleanup run. It is mounted behind the internal
// shared-secret gate.
type CleanupHandler struct {
	cleaner *Cleaner
	logger  *observability.Logger
}

func NewCleanupHandler(cleaner *Cleaner, logger *observability.Logger) *CleanupHandler {
	return &CleanupHandler{cleaner: cleaner, logger: logger}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	result, err := h.cleaner.Run(r.Context())
	if err != nil {
		observability.CaptureError(h.logger, "maintenance_cleanup_failed", err, map[string]any{
			"deleted_login_history": result.DeletedLoginHistory,
			"deleted_action_logs":   result.DeletedActionLogs,
		})
		httpx.WriteMessage(w, http.StatusInternalServerError, "cleanup_failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}
