package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	membership "go-membership"
)

// Sweeper is the part of the engine the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context, scope membership.SweepScope) membership.SweepReport
}

// Scheduler runs global reconciliation sweeps on a cron schedule.
// Overlapping runs are skipped rather than queued.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler for the given cron spec ("@every 10m", "0 * * * *", ...).
func New(sweeper Sweeper, spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var s = &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		logger:  logger.With("component", "scheduler"),
	}

	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("failed to parse sweep schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start begins running sweeps in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling new sweeps and waits for a running one to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce runs a global sweep unless one is already in progress.
// It reports whether a sweep ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("sweep already running, skipping")
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var report = s.sweeper.Sweep(ctx, membership.GlobalScope())
	if err := report.Err(); err != nil {
		s.logger.Warn("scheduled sweep finished with errors", "total", report.Total(), "error", err)
		return true
	}

	s.logger.Info("scheduled sweep finished", "total", report.Total())
	return true
}
