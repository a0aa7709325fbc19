// Package scheduler triggers reconciliation passes on a cron schedule so that
// activity predicates depending on time or external state are re-evaluated.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/appshell"
	"github.com/robfig/cron/v3"
)

// Static errors for the scheduler
var (
	ErrSchedulerAlreadyStarted = errors.New("scheduler already started")
	ErrSchedulerNotStarted     = errors.New("scheduler not started")
	ErrInvalidSchedule         = errors.New("invalid schedule")
)

// Reconciler is the part of appshell.Shell the scheduler triggers.
type Reconciler interface {
	Reconcile() *appshell.Future
}

// Scheduler runs Reconcile on a cron schedule.
type Scheduler struct {
	target   Reconciler
	schedule string
	logger   appshell.Logger

	cronScheduler *cron.Cron
	entryID       cron.EntryID
	isStarted     bool
	mu            sync.Mutex

	runs    int
	lastRun time.Time
}

// SchedulerOption defines a function that can configure a scheduler
type SchedulerOption func(*Scheduler)

// WithLogger sets the logger
func WithLogger(logger appshell.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCron replaces the cron runner, e.g. one created with cron.WithSeconds().
func WithCron(c *cron.Cron) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.cronScheduler = c
		}
	}
}

// NewScheduler creates a scheduler for a standard five-field cron expression
// or a descriptor such as "@every 30s".
func NewScheduler(target Reconciler, schedule string, opts ...SchedulerOption) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, schedule, err)
	}
	s := &Scheduler{
		target:   target,
		schedule: schedule,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cronScheduler == nil {
		s.cronScheduler = cron.New()
	}
	return s, nil
}

// Start registers the job and starts the cron runner.
func (s *Scheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrSchedulerAlreadyStarted
	}
	id, err := s.cronScheduler.AddFunc(s.schedule, s.tick)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, s.schedule, err)
	}
	s.entryID = id
	s.cronScheduler.Start()
	s.isStarted = true
	s.log("Reconcile scheduler started", "schedule", s.schedule)
	return nil
}

// Stop stops the runner and waits for a running tick or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isStarted {
		s.mu.Unlock()
		return ErrSchedulerNotStarted
	}
	s.isStarted = false
	s.cronScheduler.Remove(s.entryID)
	stopped := s.cronScheduler.Stop()
	s.mu.Unlock()

	select {
	case <-stopped.Done():
		s.log("Reconcile scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns the next scheduled run, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isStarted {
		return time.Time{}
	}
	return s.cronScheduler.Entry(s.entryID).Next
}

// Runs returns how many times the scheduler triggered a pass and when it last did.
func (s *Scheduler) Runs() (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastRun
}

// tick triggers a pass without waiting for it; overlapping ticks fold into the
// reconciler's queue.
func (s *Scheduler) tick() {
	s.mu.Lock()
	s.runs++
	s.lastRun = time.Now()
	s.mu.Unlock()

	s.target.Reconcile()
	if s.logger != nil {
		s.logger.Debug("Scheduled reconcile triggered", "schedule", s.schedule)
	}
}

func (s *Scheduler) log(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
