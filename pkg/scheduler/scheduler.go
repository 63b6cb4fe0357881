// Package scheduler runs a distribution job on a cron schedule. At most one
// job instance runs at a time; a tick that fires while the previous run is
// still in flight is skipped, not queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/sigmanauts/ergodist/pkg/metrics"
)

type Config struct {
	Logger *slog.Logger
	// Schedule is a standard five-field cron expression.
	Schedule string
	Job      func(ctx context.Context)
	Clock    clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Schedule == "" {
		return errors.New("schedule is required")
	}
	if cfg.Job == nil {
		return errors.New("job is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Scheduler struct {
	log      *slog.Logger
	cfg      Config
	schedule cron.Schedule
	running  sync.Mutex
}

func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron schedule %q: %w", cfg.Schedule, err)
	}
	return &Scheduler{log: cfg.Logger, cfg: cfg, schedule: schedule}, nil
}

// Run blocks, firing the job on each cron tick, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler: started", "schedule", s.cfg.Schedule,
		"next", s.schedule.Next(s.cfg.Clock.Now()))

	for {
		next := s.schedule.Next(s.cfg.Clock.Now())
		timer := s.cfg.Clock.NewTimer(next.Sub(s.cfg.Clock.Now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler: stopping")
			return ctx.Err()
		case <-timer.Chan():
			s.fire(ctx)
		}
	}
}

// fire starts the job unless the previous run is still in flight.
func (s *Scheduler) fire(ctx context.Context) {
	if !s.running.TryLock() {
		metrics.ScheduledJobSkipsTotal.Inc()
		s.log.Warn("scheduler: previous run still in progress, skipping tick")
		return
	}
	go func() {
		defer s.running.Unlock()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("scheduler: job panicked", "panic", r)
			}
		}()
		s.cfg.Job(ctx)
	}()
}
