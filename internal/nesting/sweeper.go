package nesting

import (
	"context"
	"log/slog"
	"time"

	"nestcore/internal/domain"
	"nestcore/internal/metrics"
)

// Notifier is told about each nest the sweep expired, carrying the external
// message reference stored on the nest. Implementations live outside this
// module; a failure affects only that nest's notification.
type Notifier interface {
	NestExpired(ctx context.Context, nest domain.ExpiredNest) error
}

// Sweeper periodically expires overdue nests and fans the results out to the
// notifier. One sweep failing, or one notification failing, never stops the
// loop.
type Sweeper struct {
	engine   *Engine
	notifier Notifier
	interval time.Duration
	log      *slog.Logger
	met      *metrics.Metrics
}

// NewSweeper builds a sweeper. notifier may be nil; interval <= 0 defaults
// to one minute.
func NewSweeper(engine *Engine, notifier Notifier, interval time.Duration, log *slog.Logger, met *metrics.Metrics) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{engine: engine, notifier: notifier, interval: interval, log: log, met: met}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	expired, err := s.engine.ExpireDueNests(ctx)
	s.met.ObserveSweep(time.Since(start).Seconds())
	if err != nil {
		s.log.Error("expiry sweep failed", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}
	s.log.Info("expiry sweep", "expired", len(expired))
	if s.notifier == nil {
		return
	}
	for _, nest := range expired {
		if err := s.notifier.NestExpired(ctx, nest); err != nil {
			s.log.Warn("expiry notification failed", "nest", nest.ID, "error", err)
		}
	}
}
