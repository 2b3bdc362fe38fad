package user

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"coraza-store/internal/auth"
	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, u User) (User, error)
	Update(ctx context.Context, id uuid.UUID, update Update) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Auditor interface {
	Record(ctx context.Context, actor *uuid.UUID, action string, fields map[string]any)
}

type Handler struct {
	store   Store
	auditor Auditor
	logger  *observability.Logger
}

func NewHandler(store Store, auditor Auditor, logger *observability.Logger) *Handler {
	return &Handler{store: store, auditor: auditor, logger: logger}
}

type createRequest struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     *auth.Role `json:"role"`
}

type updateRequest struct {
	Username  *string    `json:"username"`
	Email     *string    `json:"email"`
	Role      *auth.Role `json:"role"`
	IsActive  *bool      `json:"is_active"`
	Banned    *bool      `json:"banned"`
	BanReason *string    `json:"ban_reason"`
	Password  *string    `json:"password"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	u, err := h.store.GetByID(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		observability.CaptureError(h.logger, "get_current_user_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_load_user")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.List(r.Context())
	if err != nil {
		observability.CaptureError(h.logger, "list_users_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_list_users")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	body.Email = strings.TrimSpace(body.Email)
	if body.Username == "" || body.Email == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "username_and_email_required")
		return
	}
	if !auth.PasswordLengthOK(body.Password) {
		httpx.WriteMessage(w, http.StatusBadRequest, "password_verification")
		return
	}

	role := auth.RoleUser
	if body.Role != nil {
		role = *body.Role
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "password_verification")
		return
	}

	created, err := h.store.Create(r.Context(), User{
		Username:     body.Username,
		Email:        body.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			httpx.WriteMessage(w, http.StatusConflict, "already_registered")
			return
		}
		observability.CaptureError(h.logger, "create_user_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_create_user")
		return
	}

	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), "create_user", map[string]any{
		"user_id":  created.ID.String(),
		"username": created.Username,
		"role":     string(created.Role),
	})

	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_user_id")
		return
	}

	var body updateRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	update := Update{
		Username:  trimmed(body.Username),
		Email:     trimmed(body.Email),
		Role:      body.Role,
		IsActive:  body.IsActive,
		Banned:    body.Banned,
		BanReason: body.BanReason,
	}
	if (update.Username != nil && *update.Username == "") || (update.Email != nil && *update.Email == "") {
		httpx.WriteMessage(w, http.StatusBadRequest, "username_and_email_required")
		return
	}
	if body.Password != nil {
		if !auth.PasswordLengthOK(*body.Password) {
			httpx.WriteMessage(w, http.StatusBadRequest, "password_verification")
			return
		}
		hash, err := auth.HashPassword(*body.Password)
		if err != nil {
			httpx.WriteMessage(w, http.StatusBadRequest, "password_verification")
			return
		}
		update.PasswordHash = &hash
	}

	updated, err := h.store.Update(r.Context(), id, update)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.WriteMessage(w, http.StatusNotFound, "user_not_found")
		case errors.Is(err, ErrDuplicate):
			httpx.WriteMessage(w, http.StatusConflict, "already_registered")
		default:
			observability.CaptureError(h.logger, "update_user_failed", err, map[string]any{"user_id": id.String()})
			httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_update_user")
		}
		return
	}

	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), "update_user", map[string]any{
		"user_id": id.String(),
		"fields":  changedFields(body),
	})

	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_user_id")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "user_not_found")
			return
		}
		observability.CaptureError(h.logger, "delete_user_failed", err, map[string]any{"user_id": id.String()})
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_delete_user")
		return
	}

	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), "delete_user", map[string]any{"user_id": id.String()})

	w.WriteHeader(http.StatusNoContent)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	out := strings.TrimSpace(*value)
	return &out
}

// changedFields lists the keys an update touched. The password itself is
// never written to the action log.
func changedFields(body updateRequest) []string {
	fields := make([]string, 0, 7)
	if body.Username != nil {
		fields = append(fields, "username")
	}
	if body.Email != nil {
		fields = append(fields, "email")
	}
	if body.Role != nil {
		fields = append(fields, "role")
	}
	if body.IsActive != nil {
		fields = append(fields, "is_active")
	}
	if body.Banned != nil {
		fields = append(fields, "banned")
	}
	if body.BanReason != nil {
		fields = append(fields, "ban_reason")
	}
	if body.Password != nil {
		fields = append(fields, "password")
	}
	return fields
}
