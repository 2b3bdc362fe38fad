package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coraza-store/internal/auth"
	"coraza-store/internal/observability"
	"coraza-store/internal/user"
	"coraza-store/internal/user/usertest"
)

func newTestService(t *testing.T) (*Service, *usertest.Store, *usertest.History) {
	t.Helper()
	tokens, err := auth.NewTokenService("account-test-secret")
	require.NoError(t, err)
	users := usertest.NewStore()
	history := &usertest.History{}
	return NewService(users, history, tokens), users, history
}

func ptr(s string) *string { return &s }

func TestLoginHistoryPerOutcome(t *testing.T) {
	service, users, history := newTestService(t)
	alice := users.Seed("alice", "correct-horse", auth.RoleUser)
	ctx := context.Background()

	session, err := service.Login(ctx, LoginRequest{Username: "alice", Password: "correct-horse", IP: ptr("10.0.0.1")})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, 1, history.Count(&alice.ID, true))

	stored, _ := users.Get(alice.ID)
	require.NotNil(t, stored.LastLogin)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "10.0.0.1", *stored.IPAddress)

	_, err = service.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, 1, history.Count(&alice.ID, false))

	_, err = service.Login(ctx, LoginRequest{Username: "ghost", Password: "whatever"})
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.Equal(t, 1, history.Count(nil, false))

	assert.Len(t, history.Attempts(), 3)
}

func TestLoginBannedOnlyWhenRequested(t *testing.T) {
	service, users, history := newTestService(t)
	banned := users.Seed("mallory", "password1", auth.RoleUser)
	require.NoError(t, users.Ban(context.Background(), banned.ID, "chargeback"))

	_, err := service.Login(context.Background(), LoginRequest{Username: "mallory", Password: "password1", RejectBanned: true})
	assert.ErrorIs(t, err, ErrBanned)
	assert.Equal(t, 1, history.Count(&banned.ID, false))

	// The public login path keeps working for banned accounts.
	_, err = service.Login(context.Background(), LoginRequest{Username: "mallory", Password: "password1"})
	assert.NoError(t, err)
	assert.Equal(t, 1, history.Count(&banned.ID, true))
}

func TestLoginHistoryFailureAborts(t *testing.T) {
	service, users, history := newTestService(t)
	users.Seed("alice", "correct-horse", auth.RoleUser)
	history.Err = errors.New("insert failed")

	_, err := service.Login(context.Background(), LoginRequest{Username: "alice", Password: "correct-horse"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrWrongPassword)
}

func TestRegisterThenLogin(t *testing.T) {
	service, users, _ := newTestService(t)
	ctx := context.Background()

	created, err := service.Register(ctx, Registration{Username: "bob", Email: "bob@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, created.Role)
	assert.True(t, created.IsActive)
	assert.False(t, created.Banned)
	assert.NotEqual(t, "secret1", created.PasswordHash)

	session, err := service.Login(ctx, LoginRequest{Username: "bob", Password: "secret1"})
	require.NoError(t, err)

	validated, err := service.Validate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, validated.ID)

	_, err = service.Register(ctx, Registration{Username: "bob", Email: "other@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, user.ErrDuplicate)
	assert.Equal(t, 1, users.Len())
}

func TestRegistrationValidation(t *testing.T) {
	cases := []struct {
		name string
		reg  Registration
		want error
	}{
		{"short username", Registration{Username: "ab", Email: "a@b.co", Password: "secret1"}, ErrInvalidUsername},
		{"spaces in username", Registration{Username: "a b c", Email: "a@b.co", Password: "secret1"}, ErrInvalidUsername},
		{"bad email", Registration{Username: "alice", Email: "not-an-email", Password: "secret1"}, ErrInvalidEmail},
		{"display name email", Registration{Username: "alice", Email: "Alice <a@b.co>", Password: "secret1"}, ErrInvalidEmail},
		{"short password", Registration{Username: "alice", Email: "a@b.co", Password: "1234"}, ErrWeakPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.reg.Validate(), tc.want)
		})
	}

	assert.NoError(t, Registration{Username: "alice", Email: "a@b.co", Password: "12345"}.Validate())
}

func TestValidateRejectsDeletedUser(t *testing.T) {
	service, users, _ := newTestService(t)
	alice := users.Seed("alice", "correct-horse", auth.RoleUser)
	token, err := service.IssueToken(alice)
	require.NoError(t, err)
	require.NoError(t, users.Delete(context.Background(), alice.ID))

	_, err = service.Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(encoded)))
	return rec
}

func TestHandlerFlow(t *testing.T) {
	service, _, _ := newTestService(t)
	handler := NewHandler(service, observability.NewNopLogger())

	rec := postJSON(t, handler.Register, map[string]string{"username": "carol", "email": "carol@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, handler.Register, map[string]string{"username": "carol", "email": "carol@example.com", "password": "hunter22"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, handler.Login, map[string]string{"username": "carol", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, handler.Login, map[string]string{"username": "carol", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = postJSON(t, handler.Validate, map[string]string{"token": login.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	var validated map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &validated))
	assert.Equal(t, "carol", validated["username"])
	assert.NotContains(t, validated, "password_hash")

	rec = postJSON(t, handler.Validate, map[string]string{"token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, handler.Login, map[string]any{"username": "carol", "password": "hunter22", "extra": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginSetsRecordedTime(t *testing.T) {
	service, users, _ := newTestService(t)
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }
	alice := users.Seed("alice", "correct-horse", auth.RoleUser)

	session, err := service.Login(context.Background(), LoginRequest{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	require.NotNil(t, session.User.LastLogin)
	assert.Equal(t, fixed, *session.User.LastLogin)

	stored, _ := users.Get(alice.ID)
	assert.Equal(t, fixed, *stored.LastLogin)
}

func TestHandlerLoginWithBlankCredentialsIsRecorded(t *testing.T) {
	service, users, history := newTestService(t)
	alice := users.Seed("alice", "correct-horse", auth.RoleUser)
	handler := NewHandler(service, observability.NewNopLogger())

	rec := postJSON(t, handler.Login, map[string]string{"username": "", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, history.Count(nil, false))

	rec = postJSON(t, handler.Login, map[string]string{"username": "alice", "password": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, history.Count(&alice.ID, false))
}
