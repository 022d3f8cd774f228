// Package scheduler runs named background jobs on top of gocron.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. ctx is cancelled on Stop.
type TaskFn func(ctx context.Context) error

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run,omitempty"`
}

type job struct {
	id       uuid.UUID
	schedule string
	handle   gocron.Job
}

// Scheduler manages named jobs. Jobs never overlap with themselves: a run
// that is still going when the next one is due pushes the next one back.
type Scheduler struct {
	mu      sync.Mutex
	cron    gocron.Scheduler
	jobs    map[string]*job
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// New creates and starts a Scheduler; daily jobs fire in loc.
func New(logger *zap.Logger, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	cron, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron,
		jobs:   make(map[string]*job),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	cron.Start()
	return s, nil
}

// AddInterval registers fn to run every interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddInterval(name string, interval time.Duration, fn TaskFn) error {
	return s.add(name, "every "+interval.String(), gocron.DurationJob(interval), fn)
}

// AddDaily registers fn to run once a day at hour:minute in the scheduler's location.
func (s *Scheduler) AddDaily(name string, hour, minute uint, fn TaskFn) error {
	def := gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0)))
	return s.add(name, fmt.Sprintf("daily at %02d:%02d", hour, minute), def, fn)
}

func (s *Scheduler) add(name, schedule string, def gocron.JobDefinition, fn TaskFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler: stopped")
	}

	handle, err := s.cron.NewJob(def,
		gocron.NewTask(s.wrap(name, fn)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}
	if old, ok := s.jobs[name]; ok {
		if err := s.cron.RemoveJob(old.id); err != nil {
			s.logger.Warn("scheduler replace failed to remove old job", zap.String("name", name), zap.Error(err))
		}
	}
	s.jobs[name] = &job{id: handle.ID(), schedule: schedule, handle: handle}
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) wrap(name string, fn TaskFn) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduler task panicked",
					zap.String("task", name),
					zap.Any("recover", r))
			}
		}()
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			s.logger.Error("scheduler task failed", zap.String("task", name), zap.Error(err))
			return
		}
		s.logger.Debug("scheduler task done", zap.String("task", name), zap.Duration("took", time.Since(start)))
	}
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return
	}
	delete(s.jobs, name)
	if err := s.cron.RemoveJob(j.id); err != nil {
		s.logger.Warn("scheduler remove failed", zap.String("name", name), zap.Error(err))
	}
}

// List returns the registered jobs sorted by name.
func (s *Scheduler) List() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		info := JobInfo{Name: name, Schedule: j.schedule}
		if next, err := j.handle.NextRun(); err == nil {
			info.NextRun = next
		}
		if last, err := j.handle.LastRun(); err == nil {
			info.LastRun = last
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Stop cancels running tasks and shuts the scheduler down. Safe to call twice.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		s.logger.Warn("scheduler shutdown", zap.Error(err))
	}
}
