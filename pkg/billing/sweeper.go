package billing

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/quill/pkg/observability"
)

// DefaultSweepSchedule runs the expiry sweep at five past every hour
const DefaultSweepSchedule = "5 * * * *"

// Sweeper periodically expires lapsed pro subscriptions and downgrades
// their accounts. A verified upgrade grants a fixed year; nothing else
// revisits end dates, so the sweep is the only path back to free for
// accounts whose grant ran out.
type Sweeper struct {
	service  *Service
	logger   *observability.Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper. An empty schedule uses the default.
func NewSweeper(service *Service, logger *observability.Logger, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		service:  service,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and launches the cron runner
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule subscription sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one expiry pass immediately
func (s *Sweeper) Sweep() (int, error) {
	return s.service.ExpireOverdue(time.Now())
}

func (s *Sweeper) sweep() {
	defer observability.RecoverPanic(s.logger, "subscription sweep")

	expired, err := s.Sweep()
	if err != nil {
		s.logger.WithError(err).Error("subscription expiry sweep failed")
		return
	}
	if expired > 0 {
		s.logger.WithField("count", expired).Info("expired lapsed subscriptions")
	}
}
