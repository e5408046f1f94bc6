package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/odvcencio/overwatch/pkg/observability"
)

// TransitionFunc receives each request the sweeper resolved. It runs after
// the request's lock has been released.
type TransitionFunc func(ctx context.Context, req Request)

// TickFunc runs once per sweep after expiry handling.
type TickFunc func(ctx context.Context, now time.Time)

// Sweeper periodically expires overdue requests.
type Sweeper struct {
	workflow     *Workflow
	interval     time.Duration
	onTransition TransitionFunc
	onTick       []TickFunc
	logger       *observability.Logger
}

// NewSweeper creates a sweeper. interval defaults to one minute.
func NewSweeper(w *Workflow, interval time.Duration, onTransition TransitionFunc, logger *observability.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &Sweeper{
		workflow:     w,
		interval:     interval,
		onTransition: onTransition,
		logger:       logger.Component("sweeper"),
	}
}

// OnTick registers work to run on every sweep.
func (s *Sweeper) OnTick(fn TickFunc) {
	s.onTick = append(s.onTick, fn)
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("approval sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("approval sweeper stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.workflow.now())
		}
	}
}

// Tick performs one sweep at now and returns the number of requests it
// resolved.
func (s *Sweeper) Tick(ctx context.Context, now time.Time) int {
	swept := s.workflow.Sweep(now)
	for _, req := range swept {
		if s.onTransition != nil {
			s.onTransition(ctx, req)
		}
	}
	for _, fn := range s.onTick {
		fn(ctx, now)
	}
	if len(swept) > 0 {
		s.logger.Info("approval requests expired", slog.Int("count", len(swept)))
	}
	return len(swept)
}
