package syncqueue

import (
	"context"
	"log/slog"
	"time"
)

// SweeperConfig controls the periodic drain.
type SweeperConfig struct {
	Interval time.Duration `env:"SYNC_SWEEP_INTERVAL" envDefault:"1m"` // Interval between sweeps.
	Batch    int           `env:"SYNC_SWEEP_BATCH" envDefault:"50"`    // Batch is the per-sweep entry limit.
}

// Sweeper drains the queue on a timer, independent of any user request.
// Safe to run on multiple instances at once: claims skip locked rows.
type Sweeper struct {
	processor *Processor
	cfg       SweeperConfig
	log       *slog.Logger
}

// NewSweeper creates a periodic queue sweeper.
func NewSweeper(processor *Processor, cfg SweeperConfig, log *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{processor: processor, cfg: cfg, log: log}
}

// Run sweeps until ctx is cancelled. Sweep errors are logged, never
// fatal; the next tick tries again.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.InfoContext(ctx, "sync queue sweeper started",
		"interval", s.cfg.Interval, "batch", s.cfg.Batch)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sync queue sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.processor.ProcessPending(ctx, s.cfg.Batch); err != nil {
				s.log.ErrorContext(ctx, "sync queue sweep failed", "error", err)
			}
		}
	}
}
