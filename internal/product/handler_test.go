package product

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coraza-store/internal/audit/audittest"
	"coraza-store/internal/observability"
)

type memoryStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]Product
}

func newMemoryStore() *memoryStore {
	return &memoryStore{products: make(map[uuid.UUID]Product)}
}

func (s *memoryStore) List(_ context.Context, includeFrozen bool) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if includeFrozen || !p.Frozen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryStore) Get(_ context.Context, id uuid.UUID) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (s *memoryStore) Create(_ context.Context, input Input) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Product{
		ID:         uuid.New(),
		Identifier: "PROD-" + uuid.NewString(),
		Name:       input.Name,
		Price:      input.Price,
		ImageURL:   input.ImageURL,
		InStock:    input.InStock,
	}
	s.products[p.ID] = p
	return p, nil
}

func (s *memoryStore) Update(_ context.Context, id uuid.UUID, patch Patch) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	s.products[id] = p
	return p, nil
}

func (s *memoryStore) SetFrozen(_ context.Context, id uuid.UUID, frozen bool) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	p.Frozen = frozen
	s.products[id] = p
	return p, nil
}

func (s *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func newRouter(store Store, auditor Auditor) http.Handler {
	h := NewHandler(store, auditor, observability.NewNopLogger())
	r := chi.NewRouter()
	r.Get("/products/public", h.ListPublic)
	r.Get("/products/public/{id}", h.GetPublic)
	r.Get("/admin/products", h.ListAll)
	r.Post("/admin/products", h.Create)
	r.Put("/admin/products/{id}", h.Update)
	r.Delete("/admin/products/{id}", h.Delete)
	r.Post("/admin/products/{id}/freeze", h.Freeze)
	r.Post("/admin/products/{id}/unfreeze", h.Unfreeze)
	return r
}

func send(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewReader(payload)))
	return rec
}

func TestProductLifecycle(t *testing.T) {
	store := newMemoryStore()
	auditor := &audittest.Recorder{}
	router := newRouter(store, auditor)

	rec := send(t, router, http.MethodPost, "/admin/products", map[string]any{
		"name": "  Linen Shirt ", "description": "Summer", "price": 49.5, "image_url": "/uploads/shirt.png", "in_stock": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Linen Shirt", created.Name)
	assert.Contains(t, created.Identifier, "PROD-")

	rec = send(t, router, http.MethodPut, "/admin/products/"+created.ID.String(), map[string]any{"price": 39.0})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, router, http.MethodPost, "/admin/products/"+created.ID.String()+"/freeze", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, router, http.MethodGet, "/products/public/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(t, router, http.MethodGet, "/products/public", nil)
	var public []Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &public))
	assert.Empty(t, public)

	rec = send(t, router, http.MethodGet, "/admin/products", nil)
	var all []Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)

	rec = send(t, router, http.MethodPost, "/admin/products/"+created.ID.String()+"/unfreeze", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, router, http.MethodGet, "/products/public/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, router, http.MethodDelete, "/admin/products/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = send(t, router, http.MethodDelete, "/admin/products/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"create_product", "update_product", "freeze_product", "unfreeze_product", "delete_product"}, auditor.Actions())
}

func TestProductValidation(t *testing.T) {
	router := newRouter(newMemoryStore(), &audittest.Recorder{})

	cases := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing name", map[string]any{"name": " ", "price": 1}, "name_required"},
		{"negative price", map[string]any{"name": "Hat", "price": -1}, "price_invalid"},
		{"javascript url", map[string]any{"name": "Hat", "price": 1, "image_url": "javascript:alert(1)"}, "image_url_invalid"},
		{"credentials in url", map[string]any{"name": "Hat", "price": 1, "image_url": "https://user:pw@cdn.example.com/a.png"}, "image_url_invalid"},
		{"upload traversal", map[string]any{"name": "Hat", "price": 1, "image_url": "/uploads/../etc/passwd"}, "image_url_invalid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := send(t, router, http.MethodPost, "/admin/products", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"message":"`+tc.want+`"}`, rec.Body.String())
		})
	}

	rec := send(t, router, http.MethodPost, "/admin/products", map[string]any{"name": "Hat", "price": 1, "image_url": "https://res.cloudinary.com/demo/image/upload/hat.png"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestProductBadID(t *testing.T) {
	router := newRouter(newMemoryStore(), &audittest.Recorder{})
	rec := send(t, router, http.MethodGet, "/products/public/xyz", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
