package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"coraza-store/internal/observability"
)

const runTimeout = 5 * time.Minute

// Scheduler runs the cleaner on a cron schedule inside the API process.
type Scheduler struct {
	cron    *cron.Cron
	cleaner *Cleaner
	logger  *observability.Logger
}

// NewScheduler parses a standard five-field cron spec (or a descriptor such
// as "@daily").
func NewScheduler(spec string, cleaner *Cleaner, logger *observability.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cleaner: cleaner,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("parse cleanup schedule %q: %w", spec, err)
	}

	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := s.cleaner.Run(ctx); err != nil {
		observability.CaptureError(s.logger, "scheduled_cleanup_failed", err, nil)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cleanup_scheduler_started", map[string]any{"entries": len(s.cron.Entries())})
}

// Stop waits for a running cleanup to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("cleanup_scheduler_stopped", nil)
	case <-ctx.Done():
		s.logger.Warn("cleanup_scheduler_stop_timeout", nil)
	}
}
