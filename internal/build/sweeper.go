package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/k11v/arframe/internal/metrics"
	"github.com/k11v/arframe/internal/workspace"
)

// Sweeper deletes job directories once they are past their TTL and marks
// their records expired.
type Sweeper struct {
	workspace *workspace.Workspace
	database  Database
	ttl       time.Duration
	interval  time.Duration
	metrics   *metrics.Collector
	log       *slog.Logger
}

// NewSweeper returns a Sweeper for the builder's workspace.
func (b *Builder) NewSweeper() *Sweeper {
	return &Sweeper{
		workspace: b.workspace,
		database:  b.database,
		ttl:       b.cfg.ttl(),
		interval:  b.cfg.sweepInterval(),
		metrics:   b.metrics,
		log:       b.log.With("component", "sweeper"),
	}
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepLogged(ctx, time.Now())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepLogged(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep panicked", "panic", r)
		}
	}()

	removed, err := s.Sweep(ctx, now)
	if err != nil {
		s.log.Error("sweep failed", "error", err)
	}
	if removed > 0 {
		s.log.Info("swept expired jobs", "count", removed)
	}
}

// Sweep removes expired job directories and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed, err := s.workspace.Sweep(ctx, s.ttl, now)
	s.metrics.AddSwept(len(removed))
	if err != nil {
		return len(removed), fmt.Errorf("build.Sweeper: %w", err)
	}

	if _, err = s.database.ExpireBuilds(ctx, &DatabaseExpireBuildsParams{Now: now}); err != nil {
		return len(removed), fmt.Errorf("build.Sweeper: %w", err)
	}

	return len(removed), nil
}
