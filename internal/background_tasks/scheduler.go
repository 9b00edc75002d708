package background_tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Scheduler runs a single task forever: run, wait for the trigger, run
// again. Runs never overlap and a failing or panicking run never stops the
// loop; only cancelling the context does.
type Scheduler struct {
	task    Task
	trigger Trigger
	clock   clock.Clock
	sleep   SleepFunc

	mu            sync.Mutex
	ticks         uint64
	lastExecution *Execution
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithSleep(sleep SleepFunc) Option {
	return func(s *Scheduler) {
		s.sleep = sleep
	}
}

func NewScheduler(task Task, trigger Trigger, opts ...Option) *Scheduler {
	s := &Scheduler{
		task:    task,
		trigger: trigger,
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sleep == nil {
		s.sleep = ClockSleep(s.clock)
	}
	return s
}

// ClockSleep returns a SleepFunc driven by c, so a mock clock controls it.
func ClockSleep(c clock.Clock) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		timer := c.Timer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// Run blocks until ctx is cancelled and returns its error.
func (s *Scheduler) Run(ctx context.Context) error {
	zlog.Sugar().Infof("starting task %q", s.task.Name)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		execution := s.runTask(ctx)
		s.record(execution)

		wait := s.trigger.Next(s.clock.Now())
		zlog.Debug("waiting for next tick",
			zap.String("task", s.task.Name),
			zap.Duration("wait", wait))

		if err := s.sleep(ctx, wait); err != nil {
			zlog.Sugar().Infof("stopping task %q: %v", s.task.Name, err)
			return err
		}
	}
}

// LastExecution returns the most recent execution, if any.
func (s *Scheduler) LastExecution() (Execution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastExecution == nil {
		return Execution{}, false
	}
	return *s.lastExecution, true
}

// Ticks returns the number of completed runs.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func (s *Scheduler) record(execution Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = execution.Tick
	s.lastExecution = &execution
}

// runTask executes the task once and contains any error or panic it raises.
func (s *Scheduler) runTask(ctx context.Context) (execution Execution) {
	s.mu.Lock()
	execution = Execution{Tick: s.ticks + 1, StartedAt: s.clock.Now()}
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			execution.Status = StatusFailed
			execution.Error = fmt.Sprintf("panic: %v", r)
			zlog.Error("task panicked",
				zap.String("task", s.task.Name),
				zap.Uint64("tick", execution.Tick),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
		execution.EndedAt = s.clock.Now()
	}()

	if err := s.task.Function(ctx); err != nil {
		execution.Status = StatusFailed
		execution.Error = err.Error()
		zlog.Error("task failed",
			zap.String("task", s.task.Name),
			zap.Uint64("tick", execution.Tick),
			zap.Error(err))
		return execution
	}

	execution.Status = StatusSuccess
	return execution
}
