package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

var (
	ErrDuplicateJob = errors.New("job already scheduled")
	ErrUnknownJob   = errors.New("unknown job")
)

// Job is a unit of background housekeeping
type Job func(ctx context.Context) error

type entry struct {
	id       cron.EntryID
	schedule string
	job      Job
	running  bool
}

// Scheduler runs named jobs on cron schedules with a seconds field. A job
// still running when its next tick fires is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger pipeline.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mutex sync.RWMutex
	jobs  map[string]*entry
}

// NewScheduler creates a stopped scheduler
func NewScheduler(logger pipeline.Logger) *Scheduler {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With(pipeline.String("component", "scheduler")),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// Add schedules job under name
func (s *Scheduler) Add(name, schedule string, job Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	e := &entry{schedule: schedule, job: job}
	id, err := s.cron.AddFunc(schedule, func() { s.run(name, e) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}
	e.id = id
	s.jobs[name] = e

	s.logger.Info("Scheduled job", pipeline.String("job", name), pipeline.String("schedule", schedule))
	return nil
}

// RunNow runs a job synchronously outside of its schedule
func (s *Scheduler) RunNow(name string) error {
	s.mutex.RLock()
	e, ok := s.jobs[name]
	s.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(name, e)
}

func (s *Scheduler) run(name string, e *entry) error {
	s.mutex.Lock()
	if e.running {
		s.mutex.Unlock()
		s.logger.Debug("Job already in progress, skipping", pipeline.String("job", name))
		return nil
	}
	e.running = true
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		e.running = false
		s.mutex.Unlock()
	}()

	start := time.Now()
	err := e.job(s.ctx)
	if err != nil {
		s.logger.Error("Job failed", pipeline.String("job", name), pipeline.Error(err))
		return err
	}
	s.logger.Debug("Job completed", pipeline.String("job", name), pipeline.Duration("took", time.Since(start)))
	return nil
}

// Start begins firing scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// NextRun returns when a job fires next, or the zero time when it is
// unknown or the scheduler is not started.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mutex.RLock()
	e, ok := s.jobs[name]
	s.mutex.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

// IsRunning reports whether a job is in progress
func (s *Scheduler) IsRunning(name string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	e, ok := s.jobs[name]
	return ok && e.running
}

// Schedule returns the cron expression of a job
func (s *Scheduler) Schedule(name string) string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if e, ok := s.jobs[name]; ok {
		return e.schedule
	}
	return ""
}
