package product

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"coraza-store/internal/auth"
	"coraza-store/internal/httpx"
	"coraza-store/internal/observability"
)

var allowedURLChars = regexp.MustCompile(`^[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+$`)
var allowedHost = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

type Store interface {
	List(ctx context.Context, includeFrozen bool) ([]Product, error)
	Get(ctx context.Context, id uuid.UUID) (Product, error)
	Create(ctx context.Context, input Input) (Product, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) (Product, error)
	SetFrozen(ctx context.Context, id uuid.UUID, frozen bool) (Product, error)
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

func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, includeFrozen bool) {
	products, err := h.store.List(r.Context(), includeFrozen)
	if err != nil {
		observability.CaptureError(h.logger, "list_products_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_list_products")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, products)
}

// GetPublic hides frozen products behind a 404.
func (h *Handler) GetPublic(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_product_id")
		return
	}

	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "product_not_found")
			return
		}
		observability.CaptureError(h.logger, "get_product_failed", err, map[string]any{"product_id": id.String()})
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_get_product")
		return
	}
	if p.Frozen {
		httpx.WriteMessage(w, http.StatusNotFound, "product_not_found")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}
	if message, ok := normalizeInput(&input); !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, message)
		return
	}

	p, err := h.store.Create(r.Context(), input)
	if err != nil {
		observability.CaptureError(h.logger, "create_product_failed", err, nil)
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_create_product")
		return
	}

	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), "create_product", map[string]any{
		"product_id": p.ID.String(),
		"name":       p.Name,
	})

	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_product_id")
		return
	}

	var patch Patch
	if err := httpx.DecodeJSON(w, r, &patch); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_json_body")
		return
	}
	if message, ok := normalizePatch(&patch); !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, message)
		return
	}

	p, err := h.store.Update(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "product_not_found")
			return
		}
		observability.CaptureError(h.logger, "update_product_failed", err, map[string]any{"product_id": id.String()})
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_update_product")
		return
	}

	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), "update_product", map[string]any{"product_id": id.String()})

	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_product_id")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "product_not_found")
			return
		}
		observability.CaptureError(h.logger, "delete_product_failed", err, map[string]any{"product_id": id.String()})
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_delete_product")
		return
	}

	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), "delete_product", map[string]any{"product_id": id.String()})

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, true)
}

func (h *Handler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, false)
}

func (h *Handler) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid_product_id")
		return
	}

	p, err := h.store.SetFrozen(r.Context(), id, frozen)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "product_not_found")
			return
		}
		observability.CaptureError(h.logger, "freeze_product_failed", err, map[string]any{"product_id": id.String(), "frozen": frozen})
		httpx.WriteMessage(w, http.StatusInternalServerError, "failed_to_update_product")
		return
	}

	action := "unfreeze_product"
	if frozen {
		action = "freeze_product"
	}
	h.auditor.Record(r.Context(), auth.ActorID(r.Context()), action, map[string]any{"product_id": id.String()})

	httpx.WriteJSON(w, http.StatusOK, p)
}

func normalizeInput(input *Input) (string, bool) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Size = strings.TrimSpace(input.Size)
	input.Color = strings.TrimSpace(input.Color)

	if input.Name == "" {
		return "name_required", false
	}
	return normalizePatch(&Patch{
		Name:            &input.Name,
		Description:     &input.Description,
		Price:           &input.Price,
		Size:            &input.Size,
		Color:           &input.Color,
		ImageURL:        input.ImageURL,
		Category:        input.Category,
		DiscountedPrice: input.DiscountedPrice,
	})
}

func normalizePatch(patch *Patch) (string, bool) {
	if patch.Name != nil {
		*patch.Name = strings.TrimSpace(*patch.Name)
		if *patch.Name == "" || !utf8.ValidString(*patch.Name) || len(*patch.Name) > 150 {
			return "name_invalid", false
		}
	}
	if patch.Description != nil && (!utf8.ValidString(*patch.Description) || len(*patch.Description) > 1000) {
		return "description_invalid", false
	}
	if patch.Size != nil && len(*patch.Size) > 32 {
		return "size_invalid", false
	}
	if patch.Color != nil && len(*patch.Color) > 64 {
		return "color_invalid", false
	}
	if patch.Category != nil && len(*patch.Category) > 100 {
		return "category_invalid", false
	}
	if patch.Price != nil && !validPrice(*patch.Price) {
		return "price_invalid", false
	}
	if patch.DiscountedPrice != nil && !validPrice(*patch.DiscountedPrice) {
		return "discounted_price_invalid", false
	}
	if patch.ImageURL != nil {
		*patch.ImageURL = strings.TrimSpace(*patch.ImageURL)
		if !validImageURL(*patch.ImageURL) {
			return "image_url_invalid", false
		}
	}
	return "", true
}

func validPrice(price float64) bool {
	return price >= 0 && !math.IsInf(price, 0) && !math.IsNaN(price)
}

// validImageURL accepts absolute http(s) links and paths served from the
// local upload directory.
func validImageURL(raw string) bool {
	if raw == "" || len(raw) > 500 || !isASCII(raw) || !allowedURLChars.MatchString(raw) {
		return false
	}
	if strings.HasPrefix(raw, "/uploads/") {
		return !strings.Contains(raw, "..")
	}

	parsedURL, err := url.ParseRequestURI(raw)
	if err != nil || parsedURL.Host == "" {
		return false
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}
	return parsedURL.User == nil && allowedHost.MatchString(parsedURL.Hostname())
}

func isASCII(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] < 32 || value[i] > 126 {
			return false
		}
	}
	return true
}
