package worker

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultSweepInterval = time.Minute
	SweepBatchSize       = 200
)

// Sweeper is the maintenance surface of the access coordinator
type Sweeper interface {
	AbandonStale(ctx context.Context, idleFor time.Duration, limit int) (int, error)
	PurgeExpiredTokens(ctx context.Context, olderThan time.Duration) (int64, error)
}

type SweepConfig struct {
	Interval       time.Duration
	AbandonAfter   time.Duration
	TokenRetention time.Duration
}

// SweepWorker periodically abandons idle attempts and purges old tokens.
type SweepWorker struct {
	sweeper Sweeper
	cfg     SweepConfig
	log     *slog.Logger
}

func NewSweepWorker(sweeper Sweeper, cfg SweepConfig, log *slog.Logger) *SweepWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &SweepWorker{
		sweeper: sweeper,
		cfg:     cfg,
		log:     log.With("component", "sweep_worker"),
	}
}

// Start runs until ctx is cancelled
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info("SweepWorker started",
		"interval", w.cfg.Interval.String(),
		"abandon_after", w.cfg.AbandonAfter.String())

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("SweepWorker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Abandonment drains in batches so one
// slow pass does not hold a long transaction.
func (w *SweepWorker) RunOnce(ctx context.Context) {
	if w.cfg.AbandonAfter > 0 {
		total := 0
		for ctx.Err() == nil {
			n, err := w.sweeper.AbandonStale(ctx, w.cfg.AbandonAfter, SweepBatchSize)
			if err != nil {
				w.log.Error("Failed to abandon stale attempts", "error", err)
				break
			}
			total += n
			if n < SweepBatchSize {
				break
			}
		}
		if total > 0 {
			w.log.Info("Abandoned stale attempts", "count", total)
		}
	}

	if w.cfg.TokenRetention > 0 && ctx.Err() == nil {
		n, err := w.sweeper.PurgeExpiredTokens(ctx, w.cfg.TokenRetention)
		if err != nil {
			w.log.Error("Failed to purge expired tokens", "error", err)
			return
		}
		if n > 0 {
			w.log.Info("Purged expired tokens", "count", n)
		}
	}
}
