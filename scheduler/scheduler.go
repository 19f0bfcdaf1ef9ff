package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"centris_importer/config"
)

// Pruner removes import runs older than a cutoff.
type Pruner interface {
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs housekeeping for the local run log on a cron schedule.
type Scheduler struct {
	cfg    config.RetentionConfig
	runs   Pruner
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg config.RetentionConfig, runs Pruner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		runs:   runs,
		cron:   cron.New(),
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Cron == "" || s.cfg.MaxAge <= 0 {
		s.logger.Info("run retention disabled")
		return nil
	}

	s.logger.Info("starting run retention", "cron", s.cfg.Cron, "max_age", s.cfg.MaxAge)
	_, err := s.cron.AddFunc(s.cfg.Cron, func() {
		if _, err := s.Prune(ctx); err != nil {
			s.logger.Error("run retention failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop waits for a running prune to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Prune deletes runs older than the configured maximum age.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.MaxAge)
	n, err := s.runs.PruneRuns(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned import runs", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
