package maintenance

import (
	"context"
	"fmt"
	"time"

	"coraza-store/internal/observability"
)

const maxBatchesPerRun = 200

// Purger deletes up to batchSize rows older than cutoff and reports how many
// it removed.
type Purger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

type Retention struct {
	LoginHistory time.Duration
	ActionLogs   time.Duration
	BatchSize    int
}

type Result struct {
	DeletedLoginHistory int64 `json:"deleted_login_history"`
	DeletedActionLogs   int64 `json:"deleted_action_logs"`
}

type Cleaner struct {
	loginHistory Purger
	actionLogs   Purger
	retention    Retention
	logger       *observability.Logger
	now          func() time.Time
}

func NewCleaner(loginHistory, actionLogs Purger, retention Retention, logger *observability.Logger) *Cleaner {
	if retention.BatchSize <= 0 {
		retention.BatchSize = 500
	}
	return &Cleaner{
		loginHistory: loginHistory,
		actionLogs:   actionLogs,
		retention:    retention,
		logger:       logger,
		now:          time.Now,
	}
}

// Run purges stale login history and action logs. A zero retention keeps
// that table untouched.
func (c *Cleaner) Run(ctx context.Context) (Result, error) {
	now := c.now().UTC()
	var result Result

	if c.retention.LoginHistory > 0 {
		deleted, err := c.purge(ctx, c.loginHistory, now.Add(-c.retention.LoginHistory))
		result.DeletedLoginHistory = deleted
		if err != nil {
			return result, fmt.Errorf("purge login history: %w", err)
		}
	}

	if c.retention.ActionLogs > 0 {
		deleted, err := c.purge(ctx, c.actionLogs, now.Add(-c.retention.ActionLogs))
		result.DeletedActionLogs = deleted
		if err != nil {
			return result, fmt.Errorf("purge action logs: %w", err)
		}
	}

	c.logger.Info("maintenance_cleanup_completed", map[string]any{
		"deleted_login_history": result.DeletedLoginHistory,
		"deleted_action_logs":   result.DeletedActionLogs,
	})

	return result, nil
}

func (c *Cleaner) purge(ctx context.Context, purger Purger, cutoff time.Time) (int64, error) {
	var total int64
	for i := 0; i < maxBatchesPerRun; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := purger.DeleteOlderThan(ctx, cutoff, c.retention.BatchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < int64(c.retention.BatchSize) {
			break
		}
	}
	return total, nil
}
