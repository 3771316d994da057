// Package maintenance runs periodic housekeeping: room state
// checkpoints and store-level upkeep such as SQLite WAL checkpoints.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/room"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository"
)

// Scheduler drives maintenance on a 5-field cron schedule. The first
// run happens immediately on Start.
type Scheduler struct {
	enabled  bool
	schedule cron.Schedule
	mgr      *room.Manager
	store    repository.Store
	log      *logger.Logger

	stop chan struct{}
	done chan struct{}
}

// NewScheduler parses the configured cron expression. A disabled
// config yields a scheduler whose Start is a no-op.
func NewScheduler(cfg config.MaintenanceConfig, mgr *room.Manager, store repository.Store, log *logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		enabled: cfg.Enabled,
		mgr:     mgr,
		store:   store,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if !cfg.Enabled {
		close(s.done)
		return s, nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse maintenance schedule %q: %w", cfg.Schedule, err)
	}
	s.schedule = schedule
	return s, nil
}

// Start launches the maintenance loop. ctx cancellation stops it, as
// does Stop.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.enabled {
		s.log.Info("maintenance scheduler disabled")
		return
	}
	go s.loop(ctx)
}

// Stop halts the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.RunOnce(ctx)
		case <-s.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// RunOnce performs one maintenance pass: checkpoint every live room,
// then let the store do backend housekeeping. Failures are logged and
// do not stop the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	if err := s.mgr.CheckpointAll(ctx); err != nil {
		s.log.Warn("room checkpoint pass failed", zap.Error(err))
	}
	if err := s.store.Maintain(ctx); err != nil {
		s.log.Warn("store maintenance failed", zap.Error(err))
	}

	s.log.Debug("maintenance pass complete",
		zap.Int("rooms", s.mgr.Count()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
}
