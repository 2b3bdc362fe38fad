package stats

import (
	"context"
	"net/http"
	"time"

	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

const registrationWindow = 30 * 24 * time.Hour

type Store interface {
	RegistrationsSince(ctx context.Context, since time.Time) ([]DailyCount, error)
}

type Handler struct {
	store  Store
	logger *observability.Logger
	now    func() time.Time
}

func NewHandler(store Store, logger *observability.Logger) *Handler {
	return &Handler{store: store, logger: logger, now: time.Now}
}

// Registrations reports daily sign-ups over the last 30 days.
func (h *Handler) Registrations(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.RegistrationsSince(r.Context(), h.now().Add(-registrationWindow))
	if err != nil {
		observability.CaptureError(h.logger, "registration_stats_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_load_stats")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, counts)
}
