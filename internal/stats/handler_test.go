package stats

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coraza-store/internal/observability"
)

type stubStore struct {
	since  time.Time
	counts []DailyCount
	err    error
}

func (s *stubStore) RegistrationsSince(_ context.Context, since time.Time) ([]DailyCount, error) {
	s.since = since
	return s.counts, s.err
}

func TestRegistrationsUsesThirtyDayWindow(t *testing.T) {
	now := time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)
	store := &stubStore{counts: []DailyCount{{Date: "2025-08-02", Count: 1}, {Date: "2025-08-30", Count: 4}}}
	h := NewHandler(store, observability.NewNopLogger())
	h.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	h.Registrations(rec, httptest.NewRequest(http.MethodGet, "/stats/registrations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"date":"2025-08-02","count":1},{"date":"2025-08-30","count":4}]`, rec.Body.String())
	assert.Equal(t, time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC), store.since)
}

func TestRegistrationsEmptyIsArray(t *testing.T) {
	h := NewHandler(&stubStore{counts: []DailyCount{}}, observability.NewNopLogger())
	rec := httptest.NewRecorder()
	h.Registrations(rec, httptest.NewRequest(http.MethodGet, "/stats/registrations", nil))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRegistrationsStoreFailure(t *testing.T) {
	h := NewHandler(&stubStore{err: errors.New("db down")}, observability.NewNopLogger())
	rec := httptest.NewRecorder()
	h.Registrations(rec, httptest.NewRequest(http.MethodGet, "/stats/registrations", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
