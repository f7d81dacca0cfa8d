// Package jobs runs recurring poll jobs on a cron scheduler.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Func is one scheduled unit of work. It receives the scheduler context.
type Func func(ctx context.Context)

// Job describes a registered recurring job
type Job struct {
	ID       string
	Interval time.Duration
	entry    cron.EntryID
}

// Scheduler fires registered jobs at fixed intervals. A tick is skipped while the
// previous run of the same job is still in flight.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]*Job
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler
func NewScheduler(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger}))),
		jobs:   make(map[string]*Job),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers fn to run every interval under id
func (s *Scheduler) Add(id string, interval time.Duration, fn Func) (*Job, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s for job %s", interval, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return nil, fmt.Errorf("job %s already scheduled", id)
	}

	entry, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		fn(s.ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule job %s: %w", id, err)
	}

	job := &Job{ID: id, Interval: interval, entry: entry}
	s.jobs[id] = job
	s.logger.Info().Str("job", id).Dur("interval", interval).Msg("job scheduled")
	return job, nil
}

// Remove unregisters a job. Unknown ids are ignored.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[id]; ok {
		s.cron.Remove(job.entry)
		delete(s.jobs, id)
	}
}

// Count returns the number of scheduled jobs
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Next returns the next activation time of a job
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(job.entry).Next, true
}

// Start begins firing jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", s.Count()).Msg("scheduler started")
}

// Stop cancels the job context and waits for running jobs, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop scheduler: %w", ctx.Err())
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
