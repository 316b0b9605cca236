// Package scheduler runs named jobs on cron specs in a fixed timezone.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Job is a unit of scheduled work. Its context is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	logger Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a seconds-precision scheduler evaluating specs in loc. A job
// whose previous run has not returned yet is skipped, and a panicking job is
// recovered and logged.
func New(loc *time.Location, logger Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) AddJob(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s is already scheduled", name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		if err := job(s.ctx); err != nil {
			s.logger.Errorf("Job %s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.jobs[name] = id
	s.logger.Infof("Scheduled job %s (%s)", name, spec)
	return nil
}

// Next returns the next activation of a job, or the zero time if it is unknown.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

type cronLogger struct {
	l Logger
}

// Info drops cron's per-tick chatter and keeps overlap skips.
func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		c.l.Infof("cron: skipped a run, previous one still running")
	}
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
