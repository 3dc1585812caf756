// Package scheduler periodically asks mounted panels to refetch.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"bilancio/internal/events"
	"bilancio/internal/log"
)

// Origin is the sync_requested origin used for scheduled ticks.
const Origin = "scheduler"

type SyncService struct {
	scheduler *gocron.Scheduler
	bus       *events.Bus
	interval  time.Duration
	logger    *log.Logger
}

func NewSyncService(bus *events.Bus, interval time.Duration, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncService{
		scheduler: gocron.NewScheduler(time.UTC),
		bus:       bus,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentScheduler),
	}
}

// Start schedules the tick and stops the scheduler when ctx is done. The
// first tick fires after one interval.
func (s *SyncService) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("Periodic sync disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("Periodic sync started", "interval", s.interval)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Tick publishes one sync_requested.
func (s *SyncService) Tick(ctx context.Context) {
	evt := s.bus.Publish(ctx, events.SyncRequested, events.SyncPayload{Origin: Origin})
	s.logger.DebugContext(ctx, "Sync requested", log.FieldEventID, evt.ID)
}

func (s *SyncService) Stop() {
	if s.scheduler.IsRunning() {
		s.logger.Info("Stopping periodic sync")
		s.scheduler.Stop()
	}
}

func (s *SyncService) Running() bool {
	return s.scheduler.IsRunning()
}
