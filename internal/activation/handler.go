package activation

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"coraza-store/internal/auth"
	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

const maxDurationDays = 3650

type Store interface {
	Create(ctx context.Context, req IssueRequest, generatedBy *uuid.UUID) (Key, error)
	List(ctx context.Context) ([]Key, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Replace(ctx context.Context, id uuid.UUID, generatedBy *uuid.UUID) (Key, error)
}

type Auditor interface {
	Record(ctx context.Context, actor *uuid.UUID, action string, fields map[string]any)
}

// Handler serves the admin activation key endpoints.
type Handler struct {
	store   Store
	auditor Auditor
	logger  *observability.Logger
}

func NewHandler(store Store, auditor Auditor, logger *observability.Logger) *Handler {
	return &Handler{store: store, auditor: auditor, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}
	if req.ProductID == uuid.Nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "product_id_required")
		return
	}
	if req.DurationDays != nil && (*req.DurationDays <= 0 || *req.DurationDays > maxDurationDays) {
		httpx.WriteMessage(w, http.StatusBadRequest, "duration_days_invalid")
		return
	}

	actor := auth.ActorID(r.Context())
	key, err := h.store.Create(r.Context(), req, actor)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "product_not_found")
			return
		}
		observability.CaptureError(h.logger, "create_activation_key_failed", err, map[string]any{"product_id": req.ProductID.String()})
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_create_activation_key")
		return
	}

	h.auditor.Record(r.Context(), actor, "create_key", map[string]any{"key_id": key.ID.String()})

	httpx.WriteJSON(w, http.StatusOK, key)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.List(r.Context())
	if err != nil {
		observability.CaptureError(h.logger, "list_activation_keys_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_list_activation_keys")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, keys)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_key_id")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "activation_key_not_found")
			return
		}
		observability.CaptureError(h.logger, "delete_activation_key_failed", err, map[string]any{"key_id": id.String()})
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_delete_activation_key")
		return
	}

	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), "delete_key", map[string]any{"id": id.String()})

	w.WriteHeader(http.StatusNoContent)
}

// Replace issues a successor key and retires the old one.
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_key_id")
		return
	}

	actor := auth.ActorID(r.Context())
	key, err := h.store.Replace(r.Context(), id, actor)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.WriteMessage(w, http.StatusNotFound, "activation_key_not_found")
		case errors.Is(err, ErrAlreadyReplaced):
			httpx.WriteMessage(w, http.StatusConflict, "activation_key_already_replaced")
		default:
			observability.CaptureError(h.logger, "replace_activation_key_failed", err, map[string]any{"key_id": id.String()})
			httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_replace_activation_key")
		}
		return
	}

	h.auditor.Record(r.Context(), actor, "replace_key", map[string]any{
		"old": id.String(),
		"new": key.ID.String(),
	})

	httpx.WriteJSON(w, http.StatusOK, key)
}
