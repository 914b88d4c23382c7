package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
)

// ErrInvalidInterval is returned for a non-positive interval.
var ErrInvalidInterval = errors.New("cron: interval must be positive")

// Job is the periodic work, usually a resync of every source.
type Job func(ctx context.Context) error

// Scheduler runs a job at a fixed interval in the background.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	job       Job
	logger    *slog.Logger
	runs      atomic.Int64
	cancel    context.CancelFunc
}

// New creates a scheduler for job. Nothing runs until Start.
func New(interval time.Duration, job Job, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		interval:  interval,
		job:       job,
		logger:    logger,
	}, nil
}

// Start schedules the job and returns immediately. The first run happens
// one interval from now. Runs stop when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.run, ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)

	go func() {
		<-ctx.Done()
		s.scheduler.Stop()
	}()
	return nil
}

// Stop terminates the schedule.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped", "runs", s.runs.Load())
}

// Runs reports how many times the job has finished.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled job failed", "error", err)
	} else {
		s.logger.Debug("scheduled job finished", "took", time.Since(start))
	}
	s.runs.Add(1)
}
