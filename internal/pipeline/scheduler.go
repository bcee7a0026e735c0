package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

// AutoSyncLister lists tenants that opted into periodic sync.
type AutoSyncLister interface {
	ListAutoSync(ctx context.Context) ([]string, error)
}

// Submitter starts supervised sync jobs.
type Submitter interface {
	Go(ctx context.Context, tenantID string, opts Options) (*Task, error)
}

// Scheduler periodically submits sync jobs for auto-sync tenants.
type Scheduler struct {
	tenants   AutoSyncLister
	jobs      Submitter
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(tenants AutoSyncLister, jobs Submitter, interval time.Duration, batchSize int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tenants:   tenants,
		jobs:      jobs,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start launches the scheduler loop. It runs until ctx is cancelled and does
// nothing when the interval is zero.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("auto sync disabled")
		return
	}
	s.logger.Info("auto sync scheduler starting", "interval", s.interval)
	go s.runLoop(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auto sync scheduler shutting down")
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Warn("auto sync error", "error", err)
			}
		}
	}
}

// tick submits one sync per auto-sync tenant. Tenants with a job already
// running are left alone until the next tick.
func (s *Scheduler) tick(ctx context.Context) error {
	ids, err := s.tenants.ListAutoSync(ctx)
	if err != nil {
		return err
	}
	submitted := 0
	for _, id := range ids {
		_, err := s.jobs.Go(ctx, id, Options{AutoIndex: true, BatchSize: s.batchSize})
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, catalog.ErrAlreadyRunning):
			s.logger.Debug("auto sync skipped, job running", "tenant", id)
		default:
			s.logger.Warn("auto sync submit failed", "tenant", id, "error", err)
		}
	}
	if submitted > 0 {
		s.logger.Info("auto sync submitted", "tenants", submitted)
	}
	return nil
}
