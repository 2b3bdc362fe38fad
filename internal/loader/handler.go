// Package loader serves the endpoints used by the desktop loader. They sit
// behind the internal shared-secret gate and carry no user identity.
package loader

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"coraza-store/internal/account"
	"coraza-store/internal/activation"
	"coraza-store/internal/auth"
	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
	"coraza-store/internal/product"
	"coraza-store/internal/user"
)

type Accounts interface {
	Login(ctx context.Context, req account.LoginRequest) (account.Session, error)
	Register(ctx context.Context, reg account.Registration) (user.User, error)
}

type Users interface {
	GetByUsername(ctx context.Context, username string) (user.User, error)
	Ban(ctx context.Context, id uuid.UUID, reason string) error
}

type Keys interface {
	Redeem(ctx context.Context, code string, userID uuid.UUID) (activation.Key, error)
}

type Products interface {
	List(ctx context.Context, includeFrozen bool) ([]product.Product, error)
}

type Auditor interface {
	Record(ctx context.Context, actor *uuid.UUID, action string, fields map[string]any)
}

type Handler struct {
	accounts Accounts
	users    Users
	keys     Keys
	products Products
	tokens   auth.TokenVerifier
	auditor  Auditor
	logger   *observability.Logger
	now      func() time.Time
}

func NewHandler(
	accounts Accounts,
	users Users,
	keys Keys,
	products Products,
	tokens auth.TokenVerifier,
	auditor Auditor,
	logger *observability.Logger,
) *Handler {
	return &Handler{
		accounts: accounts,
		users:    users,
		keys:     keys,
		products: products,
		tokens:   tokens,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
	}
}

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	IPAddress string `json:"ip_address"`
}

type loginResponse struct {
	Message  string            `json:"message"`
	Token    string            `json:"token"`
	Products []product.Product `json:"products"`
}

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	IPAddress string `json:"ip_address"`
}

type activateRequest struct {
	Username string `json:"username"`
	Key      string `json:"key"`
}

type activateResponse struct {
	Message string     `json:"message"`
	Expiry  *time.Time `json:"expiry"`
}

type banRequest struct {
	Token     *string `json:"token"`
	Username  *string `json:"username"`
	IPAddress string  `json:"ip_address"`
	Reason    string  `json:"reason"`
}

type banResponse struct {
	Message      string     `json:"message"`
	BannedUserID *uuid.UUID `json:"banned_user_id"`
}

// requestIP prefers the address reported by the loader over the proxy hop.
func requestIP(r *http.Request, reported string) string {
	if ip := strings.TrimSpace(reported); ip != "" {
		return ip
	}
	return observability.ClientIP(r)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	ip := requestIP(r, body.IPAddress)
	audit := func(result string) {
		h.auditor.Record(r.Context(), nil, "internal_login", map[string]any{
			"username": body.Username,
			"ip":       ip,
			"result":   result,
		})
	}

	session, err := h.accounts.Login(r.Context(), account.LoginRequest{
		Username:     body.Username,
		Password:     body.Password,
		IP:           &ip,
		Channel:      "loader",
		RejectBanned: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, account.ErrUnknownUser):
			audit("not_found")
			httpx.WriteMessage(w, http.StatusUnauthorized, "not_found")
		case errors.Is(err, account.ErrWrongPassword):
			audit("wrong_password")
			httpx.WriteMessage(w, http.StatusUnauthorized, "wrong_password")
		case errors.Is(err, account.ErrBanned):
			audit("banned")
			httpx.WriteMessage(w, http.StatusForbidden, "banned")
		default:
			audit("internal_error")
			observability.CaptureError(h.logger, "loader_login_failed", err, map[string]any{"username": body.Username})
			httpx.WriteMessage(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	products, err := h.products.List(r.Context(), true)
	if err != nil {
		audit("internal_error")
		observability.CaptureError(h.logger, "loader_list_products_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "internal_error")
		return
	}

	audit("success")
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Message:  "success",
		Token:    session.Token,
		Products: products,
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	ip := requestIP(r, body.IPAddress)
	audit := func(result string) {
		h.auditor.Record(r.Context(), nil, "internal_register", map[string]any{
			"username": body.Username,
			"ip":       ip,
			"result":   result,
		})
	}

	_, err := h.accounts.Register(r.Context(), account.Registration{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		IP:       &ip,
	})
	if err != nil {
		var status int
		var message string
		switch {
		case errors.Is(err, user.ErrDuplicate):
			status, message = http.StatusBadRequest, "already_registered"
		case errors.Is(err, account.ErrWeakPassword):
			status, message = http.StatusBadRequest, "password_verification"
		case errors.Is(err, account.ErrInvalidUsername):
			status, message = http.StatusBadRequest, "invalid_username"
		case errors.Is(err, account.ErrInvalidEmail):
			status, message = http.StatusBadRequest, "invalid_email"
		default:
			status, message = http.StatusInternalServerError, "internal_error"
			observability.CaptureError(h.logger, "loader_register_failed", err, map[string]any{"username": body.Username})
		}
		audit(message)
		httpx.WriteMessage(w, status, message)
		return
	}

	audit("success")
	httpx.WriteMessage(w, http.StatusOK, "success")
}

// ActivateKey redeems a key for a user. Concurrent redemptions of one key
// resolve in the store: exactly one caller sees success.
func (h *Handler) ActivateKey(w http.ResponseWriter, r *http.Request) {
	var body activateRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	u, err := h.users.GetByUsername(r.Context(), strings.TrimSpace(body.Username))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.auditor.Record(r.Context(), nil, "activate_key", map[string]any{"username": body.Username, "result": "user_not_found"})
			httpx.WriteJSON(w, http.StatusNotFound, activateResponse{Message: "user_not_found"})
			return
		}
		h.auditor.Record(r.Context(), nil, "activate_key", map[string]any{"username": body.Username, "result": "database_error"})
		observability.CaptureError(h.logger, "activate_key_user_lookup_failed", err, map[string]any{"username": body.Username})
		httpx.WriteJSON(w, http.StatusInternalServerError, activateResponse{Message: "internal_error"})
		return
	}

	key, err := h.keys.Redeem(r.Context(), strings.TrimSpace(body.Key), u.ID)
	if err != nil {
		if errors.Is(err, activation.ErrInvalidKey) {
			h.auditor.Record(r.Context(), nil, "activate_key", map[string]any{"user_id": u.ID.String(), "key": body.Key, "result": "key_not_found_or_redeemed"})
			httpx.WriteJSON(w, http.StatusBadRequest, activateResponse{Message: "invalid_key"})
			return
		}
		h.auditor.Record(r.Context(), nil, "activate_key", map[string]any{"user_id": u.ID.String(), "key": body.Key, "result": "database_error"})
		observability.CaptureError(h.logger, "activate_key_failed", err, map[string]any{"user_id": u.ID.String()})
		httpx.WriteJSON(w, http.StatusInternalServerError, activateResponse{Message: "internal_error"})
		return
	}

	expiry := key.ExpiresAt(h.now())
	h.auditor.Record(r.Context(), nil, "activate_key", map[string]any{"user_id": u.ID.String(), "key": body.Key, "result": "success"})
	httpx.WriteJSON(w, http.StatusOK, activateResponse{Message: "success", Expiry: &expiry})
}

// BanUser resolves the target from a verified token, falling back to a
// username, and bans it once.
func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request) {
	var body banRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	ip := requestIP(r, body.IPAddress)
	audit := func(fields map[string]any) {
		fields["ip"] = ip
		h.auditor.Record(r.Context(), nil, "ban_user", fields)
	}
	reject := func(status int, message string) {
		httpx.WriteJSON(w, status, banResponse{Message: message})
	}

	var target uuid.UUID
	switch {
	case body.Token != nil:
		claims, err := h.tokens.Verify(strings.TrimSpace(*body.Token))
		if err != nil {
			audit(map[string]any{"result": "invalid_token"})
			reject(http.StatusBadRequest, "invalid_token")
			return
		}
		target = claims.Subject
	case body.Username != nil:
		u, err := h.users.GetByUsername(r.Context(), strings.TrimSpace(*body.Username))
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				audit(map[string]any{"username": *body.Username, "result": "user_not_found"})
				reject(http.StatusNotFound, "user_not_found")
				return
			}
			audit(map[string]any{"username": *body.Username, "result": "database_error"})
			observability.CaptureError(h.logger, "ban_user_lookup_failed", err, map[string]any{"username": *body.Username})
			reject(http.StatusInternalServerError, "database_error")
			return
		}
		target = u.ID
	default:
		audit(map[string]any{"result": "missing_auth"})
		reject(http.StatusBadRequest, "missing_token_or_username")
		return
	}

	err := h.users.Ban(r.Context(), target, body.Reason)
	switch {
	case err == nil:
		audit(map[string]any{"user_id": target.String(), "reason": body.Reason, "result": "success"})
		httpx.WriteJSON(w, http.StatusOK, banResponse{Message: "user_banned_successfully", BannedUserID: &target})
	case errors.Is(err, user.ErrNotFound):
		audit(map[string]any{"user_id": target.String(), "result": "user_not_found_by_id"})
		reject(http.StatusNotFound, "user_not_found")
	case errors.Is(err, user.ErrAlreadyBanned):
		audit(map[string]any{"user_id": target.String(), "result": "already_banned"})
		httpx.WriteJSON(w, http.StatusConflict, banResponse{Message: "user_already_banned", BannedUserID: &target})
	default:
		audit(map[string]any{"user_id": target.String(), "result": "failed_to_update"})
		observability.CaptureError(h.logger, "ban_user_failed", err, map[string]any{"user_id": target.String()})
		reject(http.StatusInternalServerError, "failed_to_ban_user")
	}
}
