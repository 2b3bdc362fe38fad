package maintenance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coraza-store/internal/observability"
)

type fakePurger struct {
	mu      sync.Mutex
	stale   int64
	cutoffs []time.Time
	err     error
}

func (p *fakePurger) DeleteOlderThan(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	if p.err != nil {
		return 0, p.err
	}
	n := int64(batchSize)
	if p.stale < n {
		n = p.stale
	}
	p.stale -= n
	return n, nil
}

func newTestCleaner(history, logs Purger, now time.Time) *Cleaner {
	c := NewCleaner(history, logs, Retention{
		LoginHistory: 180 * 24 * time.Hour,
		ActionLogs:   365 * 24 * time.Hour,
		BatchSize:    10,
	}, observability.NewNopLogger())
	c.now = func() time.Time { return now }
	return c
}

func TestCleanerDrainsInBatches(t *testing.T) {
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	history := &fakePurger{stale: 25}
	logs := &fakePurger{stale: 10}

	result, err := newTestCleaner(history, logs, now).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{DeletedLoginHistory: 25, DeletedActionLogs: 10}, result)
	assert.Len(t, history.cutoffs, 3)
	assert.Len(t, logs.cutoffs, 2)
	assert.Equal(t, now.Add(-180*24*time.Hour), history.cutoffs[0])
	assert.Equal(t, now.Add(-365*24*time.Hour), logs.cutoffs[0])
}

func TestCleanerSkipsDisabledRetention(t *testing.T) {
	history := &fakePurger{stale: 5}
	logs := &fakePurger{stale: 5}
	c := NewCleaner(history, logs, Retention{LoginHistory: time.Hour}, observability.NewNopLogger())

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.DeletedLoginHistory)
	assert.Empty(t, logs.cutoffs)
}

func TestCleanupHandler(t *testing.T) {
	now := time.Now()
	h := NewCleanupHandler(newTestCleaner(&fakePurger{stale: 3}, &fakePurger{}, now), observability.NewNopLogger())

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","result":{"deleted_login_history":3,"deleted_action_logs":0}}`, rec.Body.String())

	failing := NewCleanupHandler(newTestCleaner(&fakePurger{err: errors.New("db down")}, &fakePurger{}, now), observability.NewNopLogger())
	rec = httptest.NewRecorder()
	failing.Handle(rec, httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	c := newTestCleaner(&fakePurger{}, &fakePurger{}, time.Now())
	_, err := NewScheduler("not a schedule", c, observability.NewNopLogger())
	assert.Error(t, err)

	s, err := NewScheduler("@daily", c, observability.NewNopLogger())
	require.NoError(t, err)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
