package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/liamcoop/decisions/internal/logger"
	"github.com/liamcoop/decisions/internal/metrics"
)

// Scheduler reloads store models on a cron schedule, picking up changes
// made by other service instances.
type Scheduler struct {
	manager  *Manager
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler validates schedule, a standard five-field cron expression or
// a descriptor such as "@every 1m".
func NewScheduler(m *Manager, schedule string) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		manager:  m,
		schedule: schedule,
		cron:     cron.New(),
		logger:   m.logger.With("scheduler", schedule),
	}, nil
}

// Start registers the reload job and starts the cron runner. The scheduler
// stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.reload(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule reload: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.InfoContext(ctx, "model reload scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) reload(ctx context.Context) {
	if err := s.manager.reloadStore(ctx, metrics.SourceSchedule); err != nil {
		logger.WarnReloadFailure()
	}
}

// Stop stops the cron runner and waits for a running reload to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("model reload scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
