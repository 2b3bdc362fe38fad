package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coraza-store/internal/account"
	"coraza-store/internal/activation"
	"coraza-store/internal/activation/activationtest"
	"coraza-store/internal/audit"
	"coraza-store/internal/audit/audittest"
	"coraza-store/internal/auth"
	"coraza-store/internal/loader"
	"coraza-store/internal/loginhistory"
	"coraza-store/internal/maintenance"
	"coraza-store/internal/media"
	"coraza-store/internal/observability"
	"coraza-store/internal/product"
	"coraza-store/internal/stats"
	"coraza-store/internal/user"
	"coraza-store/internal/user/usertest"
)

const testInternalSecret = "internal-test-secret"

type emptyProducts struct{}

func (emptyProducts) List(context.Context, bool) ([]product.Product, error) {
	return []product.Product{}, nil
}
func (emptyProducts) Get(context.Context, uuid.UUID) (product.Product, error) {
	return product.Product{}, product.ErrNotFound
}
func (emptyProducts) Create(_ context.Context, input product.Input) (product.Product, error) {
	return product.Product{ID: uuid.New(), Name: input.Name}, nil
}
func (emptyProducts) Update(context.Context, uuid.UUID, product.Patch) (product.Product, error) {
	return product.Product{}, product.ErrNotFound
}
func (emptyProducts) SetFrozen(context.Context, uuid.UUID, bool) (product.Product, error) {
	return product.Product{}, product.ErrNotFound
}
func (emptyProducts) Delete(context.Context, uuid.UUID) error {
	return product.ErrNotFound
}

type emptyLogs struct{}

func (emptyLogs) List(context.Context, int) ([]audit.Entry, error) {
	return []audit.Entry{}, nil
}

type emptyHistory struct{}

func (emptyHistory) List(context.Context, *uuid.UUID, int) ([]loginhistory.Entry, error) {
	return []loginhistory.Entry{}, nil
}

type emptyStats struct{}

func (emptyStats) RegistrationsSince(context.Context, time.Time) ([]stats.DailyCount, error) {
	return []stats.DailyCount{}, nil
}

type noopPurger struct{}

func (noopPurger) DeleteOlderThan(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

type noopUploader struct{}

func (noopUploader) UploadImage(context.Context, media.Image) (string, error) {
	return "https://cdn.example.com/a.png", nil
}

type routerFixture struct {
	handler http.Handler
	tokens  *auth.TokenService
	admin   user.User
	member  user.User
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := observability.NewNopLogger()
	tokens, err := auth.NewTokenService("router-test-secret")
	require.NoError(t, err)
	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	users := usertest.NewStore()
	f := &routerFixture{
		tokens: tokens,
		admin:  users.Seed("root", "rootpass", auth.RoleAdmin),
		member: users.Seed("alice", "alicepass", auth.RoleUser),
	}

	auditor := &audittest.Recorder{}
	accounts := account.NewService(users, &usertest.History{}, tokens)
	keys := activationtest.NewStore()
	cleaner := maintenance.NewCleaner(noopPurger{}, noopPurger{}, maintenance.Retention{}, logger)

	f.handler = newRouter(handlers{
		logger:         logger,
		metrics:        metrics,
		cors:           observability.CORSConfig{AllowedOrigins: defaultAllowedOrigins, MaxAge: 3600},
		authenticator:  auth.NewAuthenticator(tokens, users, logger),
		internalSecret: func() string { return testInternalSecret },
		loginLimiter:   auth.NewMemoryLimiter(2, time.Minute),
		health:         func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
		accounts:       account.NewHandler(accounts, logger),
		users:          user.NewHandler(users, auditor, logger),
		products:       product.NewHandler(emptyProducts{}, auditor, logger),
		images:         media.NewUploadHandler(noopUploader{}, auditor, logger),
		keys:           activation.NewHandler(keys, auditor, logger),
		loader:         loader.NewHandler(accounts, users, keys, emptyProducts{}, tokens, auditor, logger),
		actionLogs:     audit.NewHandler(emptyLogs{}, logger),
		loginHistory:   loginhistory.NewHandler(emptyHistory{}, logger),
		stats:          stats.NewHandler(emptyStats{}, logger),
		cleanup:        maintenance.NewCleanupHandler(cleaner, logger),
	})
	return f
}

func (f *routerFixture) token(t *testing.T, u user.User) string {
	t.Helper()
	token, err := f.tokens.Issue(u.ID)
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestUsersRoutesRequireIdentityAndAdmin(t *testing.T) {
	f := newRouterFixture(t)
	member := f.token(t, f.member)
	admin := f.token(t, f.admin)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/users/me", "", nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/users/me", member, nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/users/", member, nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/users/", admin, nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/users", admin, nil, nil).Code)
}

func TestAdminAndStatsRoutesAreAdminOnly(t *testing.T) {
	f := newRouterFixture(t)
	member := f.token(t, f.member)
	admin := f.token(t, f.admin)

	paths := []string{
		"/admin/logs",
		"/admin/login_history",
		"/admin/users",
		"/admin/products",
		"/admin/activation_keys",
		"/stats/registrations",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, path, "", nil, nil).Code)
			assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, path, member, nil, nil).Code)
			assert.Equal(t, http.StatusOK, f.do(http.MethodGet, path, admin, nil, nil).Code)
		})
	}
}

func TestInternalRoutesRequireSharedSecret(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/internal/ban_user", "", map[string]any{"reason": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/internal/ban_user", "", map[string]any{"reason": "x"},
		map[string]string{auth.InternalSecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A user token is no substitute for the shared secret.
	rec = f.do(http.MethodPost, "/internal/ban_user", f.token(t, f.admin), map[string]any{"reason": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/internal/ban_user", "", map[string]any{"reason": "x"},
		map[string]string{auth.InternalSecretHeader: " " + testInternalSecret + " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"missing_token_or_username","banned_user_id":null}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/internal/maintenance/cleanup", "", nil,
		map[string]string{auth.InternalSecretHeader: testInternalSecret})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthFlowThroughRouter(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "bobpass",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "bobpass"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	rec = f.do(http.MethodPost, "/auth/validate", "", map[string]string{"token": body.Token}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"bob"`)

	// register and the first login used up both attempts for this IP.
	rec = f.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "bobpass"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestPublicRoutesAndPlumbing(t *testing.T) {
	f := newRouterFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/products/public", "", nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil, nil).Code)

	rec := f.do(http.MethodOptions, "/auth/login", "", nil, map[string]string{
		"Origin":                        "https://panel.coraza.clothing",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://panel.coraza.clothing", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coraza_store_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/products/public"`)
}
