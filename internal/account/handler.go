package account

import (
	"errors"
	"net/http"

	"coraza-store/internal/auth"
	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
	"coraza-store/internal/user"
)

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	ip := observability.ClientIP(r)
	session, err := h.service.Login(r.Context(), LoginRequest{
		Username: body.Username,
		Password: body.Password,
		IP:       &ip,
		Channel:  "api",
	})
	if err != nil {
		if errors.Is(err, ErrUnknownUser) || errors.Is(err, ErrWrongPassword) {
			httpx.WriteMessage(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		observability.CaptureError(h.logger, "login_failed", err, map[string]any{"username": body.Username})
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_login")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: session.Token})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	ip := observability.ClientIP(r)
	created, err := h.service.Register(r.Context(), Registration{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		IP:       &ip,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidUsername):
			httpx.WriteMessage(w, http.StatusBadRequest, "invalid_username")
		case errors.Is(err, ErrInvalidEmail):
			httpx.WriteMessage(w, http.StatusBadRequest, "invalid_email")
		case errors.Is(err, ErrWeakPassword):
			httpx.WriteMessage(w, http.StatusBadRequest, "password_verification")
		case errors.Is(err, user.ErrDuplicate):
			httpx.WriteMessage(w, http.StatusConflict, "already_registered")
		default:
			observability.CaptureError(h.logger, "register_failed", err, map[string]any{"username": body.Username})
			httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_register")
		}
		return
	}

	token, err := h.service.IssueToken(created)
	if err != nil {
		observability.CaptureError(h.logger, "register_token_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_register")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var body validateRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	u, err := h.service.Validate(r.Context(), body.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			httpx.WriteMessage(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		observability.CaptureError(h.logger, "validate_token_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_validate")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, u)
}
